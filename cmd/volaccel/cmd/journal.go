package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rustyeddy/volaccel/backtest"
	"github.com/rustyeddy/volaccel/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display records from the SQLite journal.

Subcommands:
  trade  - Get details of a specific trade by ID
  today  - List live trades closed today (UTC)
  day    - List live trades closed on a specific day (UTC)
  run    - Print a recorded backtest run
  opt    - List a recorded optimization run

Examples:
  volaccel journal trade <trade-id>
  volaccel journal today
  volaccel journal day 2024-01-15
  volaccel journal run <run-id>`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List live trades closed today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List live trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Print a recorded backtest run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var journalOptCmd = &cobra.Command{
	Use:   "opt <run-id>",
	Short: "List a recorded optimization run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalOpt,
}

var (
	journalDBPath string
	journalOrg    bool
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd, journalTodayCmd, journalDayCmd, journalRunCmd, journalOptCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "SQLite journal (default journal.db_path)")
	journalRunCmd.Flags().BoolVar(&journalOrg, "org", false, "print the org-mode rendering")
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openJournal(journalDBPath)
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Println(journal.FormatTradeOrg(rec))
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	return listDay(time.Now().UTC().Format("2006-01-02"))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	return listDay(args[0])
}

func listDay(day string) error {
	start, end, err := dayBounds(time.UTC, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	j, err := openJournal(journalDBPath)
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Println(journal.FormatTradesOrg(recs))
	return nil
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, err := openJournal(journalDBPath)
	if err != nil {
		return err
	}
	defer j.Close()

	if journalOrg {
		org, err := j.ExportBacktestOrg(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(org)
		return nil
	}

	br, err := j.GetBacktestRun(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	backtest.PrintResult(os.Stdout, br)
	return nil
}

func runJournalOpt(cmd *cobra.Command, args []string) error {
	j, err := openJournal(journalDBPath)
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListOptimization(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("no optimization run %s", args[0])
	}
	fmt.Printf("%-4s %-7s %-7s %-9s %-8s %-8s %s\n", "RANK", "VARIANT", "TRADES", "RETURN%", "WIN%", "SHARPE", "PARAMS")
	for _, r := range recs {
		fmt.Printf("%-4d %-7d %-7d %-9.2f %-8.1f %-8.3f %s\n",
			r.Rank, r.Variant, r.Trades, r.ReturnPct, r.WinRate, r.Sharpe, r.Params)
	}
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "(never)"
	}
	return t.UTC().Format(time.RFC3339)
}
