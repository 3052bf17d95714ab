package backtest

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rustyeddy/volaccel/journal"
	"github.com/rustyeddy/volaccel/strategy"
)

// minReliableTrades is the trade count below which a run gets a warning note.
const minReliableTrades = 10

// RunInfo identifies a run for the journal and the printed report.
type RunInfo struct {
	RunID     string
	Created   time.Time
	Pair      string
	Timeframe string
	Dataset   string
}

// ToRun builds the journal record of a result.
func (r Result) ToRun(info RunInfo, cfg strategy.Config) (journal.BacktestRun, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return journal.BacktestRun{}, fmt.Errorf("encode config: %w", err)
	}
	sc := r.Scorecard

	run := journal.BacktestRun{
		RunID:        info.RunID,
		Created:      info.Created,
		Timeframe:    info.Timeframe,
		Dataset:      info.Dataset,
		Pair:         info.Pair,
		Config:       raw,
		RiskPct:      cfg.RiskPerTrade,
		ATRMult:      cfg.ATRStopMultiplier,
		TPPoints:     cfg.TPPoints,
		Start:        r.Start,
		End:          r.End,
		Trades:       sc.Trades,
		Wins:         sc.Wins,
		Losses:       sc.Losses,
		StartBalance: sc.InitialCapital,
		EndBalance:   sc.FinalCapital,
		NetPL:        sc.FinalCapital - sc.InitialCapital,
		ReturnPct:    sc.TotalReturnPct,
		WinRate:      sc.WinRatePct,
		ProfitFactor: sc.ProfitFactor,
		MaxDDPct:     sc.MaxDrawdownPct,
		Sharpe:       sc.Sharpe,
		ExitReasons:  sc.ExitReasons,
	}

	switch {
	case sc.Trades == 0:
		run.Notes = append(run.Notes, "no trades")
	case sc.Trades < minReliableTrades:
		run.Notes = append(run.Notes, fmt.Sprintf("only %d trades, statistics are unreliable", sc.Trades))
	}
	if n := sc.ExitReasons["daily_loss"]; n > 0 {
		run.Notes = append(run.Notes, fmt.Sprintf("daily loss limit closed %d trades", n))
	}
	return run, nil
}

// Records converts the trades for the journal.
func (r Result) Records(runID, pair string) []journal.TradeRecord {
	out := make([]journal.TradeRecord, 0, len(r.Trades))
	for _, t := range r.Trades {
		out = append(out, journal.FromTrade(runID, pair, t))
	}
	return out
}

// Snapshots converts the equity curve for the journal.
func (r Result) Snapshots(runID string) []journal.EquitySnapshot {
	out := make([]journal.EquitySnapshot, 0, len(r.Equity))
	for _, p := range r.Equity {
		out = append(out, journal.EquitySnapshot{
			RunID:         runID,
			Time:          p.Time,
			Capital:       p.Capital,
			Equity:        p.Equity,
			DrawdownPct:   p.DrawdownPct,
			OpenPositions: p.Open,
		})
	}
	return out
}

func PrintResult(w io.Writer, r journal.BacktestRun) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	fmt.Fprintf(w, "Created:       %s\n", r.Created.Format(time.RFC3339))
	fmt.Fprintf(w, "Strategy:      volume_acceleration\n")
	fmt.Fprintf(w, "Pair:          %s\n", r.Pair)
	fmt.Fprintf(w, "Timeframe:     %s\n", r.Timeframe)
	fmt.Fprintf(w, "Dataset:       %s\n", r.Dataset)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Strategy Configuration")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Risk per Trade: %.2f%%\n", r.RiskPct*100)
	fmt.Fprintf(w, "ATR Stop Mult: %.2f\n", r.ATRMult)
	fmt.Fprintf(w, "Take Profit:   %.0f points\n", r.TPPoints)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", r.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", r.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.WinRate)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %.2f\n", r.StartBalance)
	fmt.Fprintf(w, "End Balance:   %.2f\n", r.EndBalance)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", r.NetPL)
	fmt.Fprintf(w, "Return:        %.2f%%\n", r.ReturnPct)
	fmt.Fprintf(w, "Profit Factor: %.2f\n", r.ProfitFactor)
	fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", r.MaxDDPct)
	fmt.Fprintf(w, "Sharpe:        %.2f\n", r.Sharpe)

	if len(r.ExitReasons) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Exit Reasons")
		fmt.Fprintln(w, "--------------------------------------------------")
		reasons := make([]string, 0, len(r.ExitReasons))
		for k := range r.ExitReasons {
			reasons = append(reasons, k)
		}
		sort.Strings(reasons)
		for _, k := range reasons {
			fmt.Fprintf(w, "%-14s %d\n", k+":", r.ExitReasons[k])
		}
	}

	if r.OrgPath != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Org Report:    %s\n", r.OrgPath)
	}

	if len(r.Notes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Observations")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, note := range r.Notes {
			fmt.Fprintf(w, "- %s\n", note)
		}
	}

	fmt.Fprintln(w)
}
