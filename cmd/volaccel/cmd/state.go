package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rustyeddy/volaccel/state"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the live state file",
	Long: `The live driver persists capital, open positions and the daily stats in
live.state_path between invocations.

Examples:
  volaccel state show
  volaccel state reset --yes`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the live state",
	Args:  cobra.NoArgs,
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Replace the live state with a fresh one",
	Args:  cobra.NoArgs,
	RunE:  runStateReset,
}

var (
	stateJSON bool
	stateYes  bool
)

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)

	stateShowCmd.Flags().BoolVar(&stateJSON, "json", false, "print the raw JSON document")
	stateResetCmd.Flags().BoolVarP(&stateYes, "yes", "y", false, "confirm the reset")
}

func runStateShow(cmd *cobra.Command, args []string) error {
	store := state.NewStore(cfg.Live.StatePath, cfg.Live.InitialCapital)
	st, err := store.Load()
	if err != nil && !errors.Is(err, state.ErrCorrupt) {
		return err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if stateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Printf("State file:      %s\n", store.Path())
	fmt.Printf("Capital:         %.2f\n", st.Capital)
	fmt.Printf("Trading enabled: %t\n", st.TradingEnabled)
	fmt.Printf("Last bar:        %s\n", fmtTime(st.LastBar))
	fmt.Printf("Last update:     %s\n", fmtTime(st.LastUpdate))
	d := st.Daily
	fmt.Printf("Day %s: %d trades, %d wins, %d losses, P/L %+.2f, breaker %t\n",
		orNone(d.Date), d.Trades, d.Wins, d.Losses, d.Profit, d.BreakerFired)

	fmt.Printf("Open positions:  %d\n", len(st.Positions))
	for _, p := range st.Positions {
		fmt.Printf("  %s %-5s size %.4f x%d entry %.5f stop %.5f target %.5f bars %d trailing %t order %s\n",
			p.ID, p.Side, p.Size, p.Leverage, p.Entry, p.Stop, p.Target, p.BarsHeld, p.TrailingActive, orNone(p.OrderID))
		if p.PendingExit != "" {
			fmt.Printf("    pending exit: %s (retried next cycle)\n", p.PendingExit)
		}
	}
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	if !stateYes {
		return errors.New("refusing to reset without --yes; open positions at the broker are not closed")
	}
	store := state.NewStore(cfg.Live.StatePath, cfg.Live.InitialCapital)
	if _, err := store.Reset(); err != nil {
		return err
	}
	fmt.Printf("✓ State reset: %s\n", store.Path())
	return nil
}
