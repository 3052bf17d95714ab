package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/volaccel/live"
	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Send the daily trading summary",
	Long: `Build the daily summary from the live state, the journal and the broker
balance and send it to the configured notifiers.

Examples:
  volaccel summary
  volaccel summary --day 2024-01-15 --dry-run`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

var (
	summaryDay    string
	summaryDryRun bool
)

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().StringVar(&summaryDay, "day", "", "UTC day YYYY-MM-DD (default today)")
	summaryCmd.Flags().BoolVar(&summaryDryRun, "dry-run", false, "print without sending")
}

func runSummary(cmd *cobra.Command, args []string) error {
	day := time.Now().UTC()
	if summaryDay != "" {
		start, _, err := dayBounds(time.UTC, summaryDay)
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
		day = start
	}

	r, closeFn, err := newRunner()
	if err != nil {
		return err
	}
	defer closeFn()

	var h live.History
	if db, ok := r.Journal.(live.History); ok {
		h = db
	}

	send := r.SendSummary
	if summaryDryRun {
		send = r.Summary
	}
	sum, err := send(cmd.Context(), day, h)
	if err != nil {
		return err
	}

	fmt.Printf("Summary %s\n", sum.Date)
	fmt.Printf("  Trades:       %d (%d wins, %d losses, %.1f%%)\n", sum.Trades, sum.Wins, sum.Losses, sum.WinRate())
	fmt.Printf("  P/L:          %+.2f\n", sum.PnL)
	fmt.Printf("  Best/Worst:   %+.2f / %+.2f\n", sum.Best, sum.Worst)
	fmt.Printf("  Max drawdown: %.2f%%\n", sum.MaxDrawdownPct)
	fmt.Printf("  Balance:      %.2f\n", sum.Balance)
	return nil
}
