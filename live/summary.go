package live

import (
	"context"
	"time"

	"github.com/rustyeddy/volaccel/journal"
	"github.com/rustyeddy/volaccel/notify"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/rustyeddy/volaccel/risk"
)

// History is the part of the journal the daily summary reads.
type History interface {
	ListTradesClosedBetween(start, end time.Time) ([]journal.TradeRecord, error)
	ListEquityBetween(runID string, start, end time.Time) ([]journal.EquitySnapshot, error)
}

// Summary builds the daily summary of the UTC date of day. Counts come from
// the journal when one is given, otherwise from the persisted daily stats.
func (r *Runner) Summary(ctx context.Context, day time.Time, h History) (notify.DailySummary, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	st, err := r.Store.Load()
	if err != nil {
		r.Log.WarnContext(ctx, "Summary without persisted state", logger.ErrorField(err))
	}

	sum := notify.DailySummary{Date: risk.DateOf(start), Balance: r.balance(ctx, st)}
	if h == nil {
		if st.Daily.Date == sum.Date {
			sum.Trades, sum.Wins, sum.Losses, sum.PnL = st.Daily.Trades, st.Daily.Wins, st.Daily.Losses, st.Daily.Profit
		}
		return sum, nil
	}

	trades, err := h.ListTradesClosedBetween(start, end)
	if err != nil {
		return notify.DailySummary{}, err
	}
	ds := journal.SummarizeTrades(trades)
	sum.Trades, sum.Wins, sum.Losses, sum.PnL = ds.Trades, ds.Wins, ds.Losses, ds.PnL
	if ds.Best != nil {
		sum.Best = ds.Best.RealizedPL
	}
	if ds.Worst != nil {
		sum.Worst = ds.Worst.RealizedPL
	}

	equity, err := h.ListEquityBetween("", start, end)
	if err != nil {
		return notify.DailySummary{}, err
	}
	sum.MaxDrawdownPct = maxDrawdown(equity)
	return sum, nil
}

// SendSummary builds and sends the daily summary.
func (r *Runner) SendSummary(ctx context.Context, day time.Time, h History) (notify.DailySummary, error) {
	sum, err := r.Summary(ctx, day, h)
	if err != nil {
		return sum, err
	}
	r.notify(ctx, sum)
	return sum, nil
}

func maxDrawdown(points []journal.EquitySnapshot) float64 {
	peak, dd := 0.0, 0.0
	for _, p := range points {
		peak = max(peak, p.Equity)
		if peak > 0 {
			dd = max(dd, (peak-p.Equity)/peak*100)
		}
	}
	return dd
}
