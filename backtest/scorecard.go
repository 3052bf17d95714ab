package backtest

import (
	"math"

	"github.com/rustyeddy/volaccel/risk"
	"gonum.org/v1/gonum/stat"
)

// Scorecard summarizes one run.
type Scorecard struct {
	InitialCapital float64        `json:"initial_capital"`
	FinalCapital   float64        `json:"final_capital"`
	TotalReturnPct float64        `json:"total_return_pct"`
	Trades         int            `json:"trades"`
	Wins           int            `json:"wins"`
	Losses         int            `json:"losses"`
	WinRatePct     float64        `json:"win_rate_pct"`
	AvgWin         float64        `json:"avg_win"`
	AvgLoss        float64        `json:"avg_loss"`
	ProfitFactor   float64        `json:"profit_factor"`
	MaxDrawdownPct float64        `json:"max_drawdown_pct"`
	Sharpe         float64        `json:"sharpe"`
	ExitReasons    map[string]int `json:"exit_reasons"`
}

// periodsPerYear annualizes the per-bar Sharpe ratio.
const periodsPerYear = 252

// Score computes the scorecard. A trade with zero P&L counts as a loss.
func Score(initial, final float64, trades []risk.Trade, equity []EquityPoint) Scorecard {
	sc := Scorecard{
		InitialCapital: initial,
		FinalCapital:   final,
		Trades:         len(trades),
		ExitReasons:    map[string]int{},
	}
	if initial > 0 {
		sc.TotalReturnPct = (final - initial) / initial * 100
	}

	var grossProfit, grossLoss float64
	for _, t := range trades {
		sc.ExitReasons[string(t.Reason)]++
		if t.Win() {
			sc.Wins++
			grossProfit += t.PnL
		} else {
			sc.Losses++
			grossLoss -= t.PnL
		}
	}
	if sc.Trades > 0 {
		sc.WinRatePct = float64(sc.Wins) / float64(sc.Trades) * 100
	}
	if sc.Wins > 0 {
		sc.AvgWin = grossProfit / float64(sc.Wins)
	}
	if sc.Losses > 0 {
		sc.AvgLoss = -grossLoss / float64(sc.Losses)
	}
	if grossLoss == 0 {
		grossLoss = 1
	}
	sc.ProfitFactor = grossProfit / grossLoss

	for _, p := range equity {
		sc.MaxDrawdownPct = max(sc.MaxDrawdownPct, p.DrawdownPct)
	}
	sc.Sharpe = sharpe(equity)
	return sc
}

func sharpe(equity []EquityPoint) float64 {
	if len(equity) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, equity[i].Equity/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}
