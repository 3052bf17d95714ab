package live

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/volaccel/broker"
	"github.com/rustyeddy/volaccel/broker/paper"
	"github.com/rustyeddy/volaccel/journal"
	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/notify"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/rustyeddy/volaccel/risk"
	"github.com/rustyeddy/volaccel/state"
	"github.com/rustyeddy/volaccel/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const pair = "XXRPZUSD"

// burstSeries has quiet alternating volume and an acceleration burst at
// bars 197 to 199. Closes are flat at 1.0 with a 0.002 range.
func burstSeries(n int) market.Series {
	s := make(market.Series, n)
	for i := range s {
		v := 100 + 10*float64(i%2)
		switch i {
		case 197:
			v = 300
		case 198:
			v = 600
		case 199:
			v = 1200
		}
		s[i] = market.Candle{
			Time: t0.Add(time.Duration(i) * time.Hour),
			Open: 1, High: 1.001, Low: 0.999, Close: 1, Volume: v,
		}
	}
	return s
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind()
	}
	r.events = nil
	return out
}

type memJournal struct {
	mu     sync.Mutex
	trades []journal.TradeRecord
	equity []journal.EquitySnapshot
}

func (j *memJournal) RecordTrade(t journal.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, t)
	return nil
}

func (j *memJournal) RecordEquity(e journal.EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.equity = append(j.equity, e)
	return nil
}

func (j *memJournal) Close() error { return nil }

// flaky fails selected broker calls.
type flaky struct {
	*paper.Broker
	openErr  error
	closeErr error
}

func (f *flaky) OpenPosition(ctx context.Context, req broker.OrderRequest) (broker.Fill, error) {
	if f.openErr != nil {
		return broker.Fill{}, f.openErr
	}
	return f.Broker.OpenPosition(ctx, req)
}

func (f *flaky) ClosePosition(ctx context.Context, req broker.CloseRequest) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	return f.Broker.ClosePosition(ctx, req)
}

type harness struct {
	runner  *Runner
	paper   *paper.Broker
	flaky   *flaky
	notes   *recorder
	journal *memJournal
	now     time.Time
}

func testStrategy() strategy.Config {
	cfg := strategy.Default()
	cfg.VolumeSmoothPeriods = 1
	cfg.UseTrailingStop = false
	cfg.Hours.Enabled = false
	return cfg
}

func newHarness(t *testing.T, series market.Series, balance float64) *harness {
	t.Helper()

	h := &harness{notes: &recorder{}, journal: &memJournal{}}
	h.paper = paper.New(paper.SeriesData{Series: series, Now: func() time.Time { return h.now }}, balance)
	h.flaky = &flaky{Broker: h.paper}

	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"), 10000)
	r, err := New(DefaultSettings(), testStrategy(), h.flaky, store, logger.Nop())
	require.NoError(t, err)
	r.Notifier = h.notes
	r.Journal = h.journal
	r.Now = func() time.Time { return h.now }
	h.runner = r
	return h
}

// at shows bars up to and including bar i.
func (h *harness) at(i int) *harness {
	h.now = t0.Add(time.Duration(i)*time.Hour + 5*time.Minute)
	return h
}

func (h *harness) run(t *testing.T) Outcome {
	t.Helper()
	return h.runner.RunOnce(context.Background())
}

func TestRunOnceLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, burstSeries(202), 10000)

	out := h.at(198).run(t)
	require.Equal(t, StatusSuccess, out.Status, out.Reason)
	require.NotNil(t, out.Report.Opened)
	assert.Equal(t, []string{"signal", "order_placed"}, h.notes.take())
	p := out.Report.Opened
	assert.Equal(t, market.Long, p.Side)
	assert.Equal(t, 10, p.Leverage)
	assert.InDelta(t, 100000, p.Size, 1e-6)
	assert.Contains(t, p.OrderID, "P-")
	assert.InDelta(t, 100000, h.paper.Open(pair, market.Long), 1e-6)

	st, err := h.runner.Store.Load()
	require.NoError(t, err)
	require.Len(t, st.Positions, 1)
	assert.Equal(t, t0.Add(198*time.Hour), st.LastBar)

	out = h.run(t)
	assert.Equal(t, StatusSkipped, out.Status)
	assert.Contains(t, out.Reason, "already processed")
	assert.Empty(t, h.notes.take())

	out = h.at(199).run(t)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Contains(t, out.Reason, "MAX_POSITIONS")
	assert.Empty(t, out.Report.Closed)
	assert.Equal(t, []string{"signal"}, h.notes.take())

	out = h.at(200).run(t)
	assert.Equal(t, StatusSuccess, out.Status)
	require.Len(t, out.Report.Closed, 1)
	tr := out.Report.Closed[0]
	assert.Equal(t, risk.ExitTimeLimit, tr.Reason)
	assert.InDelta(t, -40, tr.PnL, 1e-6)
	assert.Equal(t, []string{"order_closed"}, h.notes.take())
	assert.Zero(t, h.paper.Open(pair, market.Long))

	st, err = h.runner.Store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Positions)
	assert.InDelta(t, 9960, st.Capital, 1e-6)
	assert.InDelta(t, -40, st.Daily.Profit, 1e-6)

	out = h.at(201).run(t)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.True(t, out.Report.BreakerFired)
	assert.Contains(t, out.Reason, "TRADING_DISABLED")
	assert.Equal(t, []string{"daily_loss_limit"}, h.notes.take())

	st, err = h.runner.Store.Load()
	require.NoError(t, err)
	assert.False(t, st.TradingEnabled)
	assert.True(t, st.Daily.BreakerFired)

	require.Len(t, h.journal.trades, 1)
	assert.Equal(t, "", h.journal.trades[0].RunID)
	assert.Equal(t, "time_limit", h.journal.trades[0].Reason)
	assert.Len(t, h.journal.equity, 4)
}

func TestRunOnceNotEnoughBars(t *testing.T) {
	t.Parallel()

	h := newHarness(t, burstSeries(202), 10000)
	out := h.at(50).run(t)

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, KindData, out.Kind)
	assert.ErrorIs(t, out.Err, market.ErrNotEnoughBars)
	assert.Equal(t, []string{"error"}, h.notes.take())

	_, err := os.Stat(h.runner.Store.Path())
	assert.NoError(t, err)
}

func TestRunOnceInsufficientBalance(t *testing.T) {
	t.Parallel()

	h := newHarness(t, burstSeries(202), 50)
	out := h.at(198).run(t)

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, "insufficient balance", out.Reason)
	assert.ErrorIs(t, out.Report.EntryErr, ErrInsufficientBalance)
	assert.Nil(t, out.Report.Opened)
	assert.Equal(t, []string{"signal", "error"}, h.notes.take())
}

func TestRunOnceOpenFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, burstSeries(202), 10000)
	h.flaky.openErr = errors.New("EOrder:Insufficient margin")
	out := h.at(198).run(t)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, KindBroker, out.Kind)
	assert.ErrorContains(t, out.Err, "Insufficient margin")

	st, err := h.runner.Store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Positions)
	assert.Equal(t, t0.Add(198*time.Hour), st.LastBar)
}

func TestRunOnceCloseFaults(t *testing.T) {
	t.Parallel()

	h := newHarness(t, burstSeries(202), 10000)
	require.Equal(t, StatusSuccess, h.at(198).run(t).Status)
	h.at(199).run(t)
	h.notes.take()

	h.flaky.closeErr = errors.New("EService:Unavailable")
	out := h.at(200).run(t)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, KindBroker, out.Kind)
	assert.Equal(t, []string{"error"}, h.notes.take())

	st, err := h.runner.Store.Load()
	require.NoError(t, err)
	require.Len(t, st.Positions, 1, "a failed close leaves the position open")
	assert.Equal(t, risk.ExitTimeLimit, st.Positions[0].PendingExit)
	assert.Equal(t, 1, st.Positions[0].BarsHeld)

	// The broker already closed it through the attached stop.
	h.flaky.closeErr = broker.ErrNoPosition
	out = h.at(201).run(t)
	assert.Equal(t, StatusSuccess, out.Status)
	require.Len(t, out.Report.Closed, 1)
	assert.Equal(t, risk.ExitTimeLimit, out.Report.Closed[0].Reason)
	assert.Len(t, h.journal.trades, 1)
}

// cancelAfterClose cancels the cycle right after the broker confirmed a
// close, as a shutdown signal arriving mid cycle would.
type cancelAfterClose struct {
	broker.Broker
	cancel context.CancelFunc
}

func (c *cancelAfterClose) ClosePosition(ctx context.Context, req broker.CloseRequest) error {
	err := c.Broker.ClosePosition(ctx, req)
	if err == nil {
		c.cancel()
	}
	return err
}

func TestRunOnceCanceledAfterCloseSavesState(t *testing.T) {
	t.Parallel()

	h := newHarness(t, burstSeries(202), 10000)
	h.runner.Strategy.MaxPositions = 2
	require.Equal(t, StatusSuccess, h.at(198).run(t).Status)
	require.NotNil(t, h.at(199).run(t).Report.Opened)
	h.notes.take()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.runner.Broker = &cancelAfterClose{Broker: h.flaky, cancel: cancel}

	h.at(200)
	out := h.runner.RunOnce(ctx)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, KindCanceled, out.Kind)
	assert.ErrorIs(t, out.Err, context.Canceled)
	require.Len(t, out.Report.Closed, 1)
	assert.Nil(t, out.Report.Opened)
	assert.Contains(t, h.notes.take(), "order_closed")

	st, err := h.runner.Store.Load()
	require.NoError(t, err)
	assert.Len(t, st.Positions, 1)
	assert.InDelta(t, 9960, st.Capital, 1e-6)
	assert.InDelta(t, -40, st.Daily.Profit, 1e-6)
	assert.Equal(t, t0.Add(200*time.Hour), st.LastBar)
	assert.Len(t, h.journal.trades, 1)
}

func TestRunOnceCanceledBeforeStep(t *testing.T) {
	t.Parallel()

	h := newHarness(t, burstSeries(202), 10000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.at(198)
	out := h.runner.RunOnce(ctx)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, KindCanceled, out.Kind)
	assert.Zero(t, h.paper.Open(pair, market.Long))

	st, err := h.runner.Store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Positions)
	assert.True(t, st.LastBar.IsZero())
}

func TestRunOnceBelowMinOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, burstSeries(202), 10000)
	h.paper.MinOrder = 1e9
	out := h.at(198).run(t)

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, "below minimum order size", out.Reason)
	assert.ErrorIs(t, out.Report.EntryErr, ErrBelowMinOrder)
	assert.Zero(t, h.paper.Open(pair, market.Long))
	assert.Equal(t, []string{"signal", "error"}, h.notes.take())
}

func TestRunOnceCorruptState(t *testing.T) {
	t.Parallel()

	h := newHarness(t, burstSeries(202), 10000)
	require.NoError(t, os.WriteFile(h.runner.Store.Path(), []byte("{not json"), 0o644))

	out := h.at(198).run(t)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, []string{"error", "signal", "order_placed"}, h.notes.take())

	_, err := h.runner.Store.Load()
	assert.NoError(t, err)
}

func TestSettingsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"defaults", func(*Settings) {}, ""},
		{"pair", func(s *Settings) { s.Pair = "" }, "pair is required"},
		{"mode", func(s *Settings) { s.Mode = "live" }, "mode must be"},
		{"interval", func(s *Settings) { s.Interval = 0 }, "interval"},
		{"lookback", func(s *Settings) { s.Lookback = 50 }, "below min_bars"},
		{"capital", func(s *Settings) { s.InitialCapital = 0 }, "initial_capital"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

type fakeHistory struct {
	trades []journal.TradeRecord
	equity []journal.EquitySnapshot
}

func (f fakeHistory) ListTradesClosedBetween(start, end time.Time) ([]journal.TradeRecord, error) {
	var out []journal.TradeRecord
	for _, t := range f.trades {
		if !t.CloseTime.Before(start) && t.CloseTime.Before(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f fakeHistory) ListEquityBetween(_ string, _, _ time.Time) ([]journal.EquitySnapshot, error) {
	return f.equity, nil
}

func TestSummary(t *testing.T) {
	t.Parallel()

	h := newHarness(t, burstSeries(202), 10000)
	day := t0.Add(10 * time.Hour)
	hist := fakeHistory{
		trades: []journal.TradeRecord{
			{TradeID: "a", RealizedPL: 12, CloseTime: t0.Add(2 * time.Hour)},
			{TradeID: "b", RealizedPL: -5, CloseTime: t0.Add(3 * time.Hour)},
			{TradeID: "c", RealizedPL: 30, CloseTime: t0.Add(4 * time.Hour)},
			{TradeID: "d", RealizedPL: 99, CloseTime: t0.Add(30 * time.Hour)},
		},
		equity: []journal.EquitySnapshot{{Equity: 10000}, {Equity: 10100}, {Equity: 9999}, {Equity: 10050}},
	}

	sum, err := h.runner.SendSummary(context.Background(), day, hist)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", sum.Date)
	assert.Equal(t, 3, sum.Trades)
	assert.Equal(t, 2, sum.Wins)
	assert.Equal(t, 1, sum.Losses)
	assert.InDelta(t, 37, sum.PnL, 1e-9)
	assert.InDelta(t, 30, sum.Best, 1e-9)
	assert.InDelta(t, -5, sum.Worst, 1e-9)
	assert.InDelta(t, 1.0, sum.MaxDrawdownPct, 1e-9)
	assert.InDelta(t, 10000, sum.Balance, 1e-9)
	assert.Equal(t, []string{"daily_summary"}, h.notes.take())

	sum, err = h.runner.Summary(context.Background(), day, nil)
	require.NoError(t, err)
	assert.Zero(t, sum.Trades)
	assert.False(t, math.IsNaN(sum.Balance))
}
