package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/risk"
	"github.com/rustyeddy/volaccel/signal"
	"github.com/rustyeddy/volaccel/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 2024-01-01 10:00 UTC, inside the European session.
var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func seqIDs() IDFunc {
	n := 0
	return func(time.Time) string {
		n++
		return fmt.Sprintf("p%d", n)
	}
}

func input(i int, price float64, side market.Side) StepInput {
	ts := t0.Add(time.Duration(i) * time.Minute)
	return StepInput{
		Bar:    market.Candle{Time: ts, Open: price, High: price + 0.0002, Low: price - 0.0002, Close: price, Volume: 1},
		ATR:    0.01,
		Signal: signal.Signal{Side: side},
		Now:    ts,
	}
}

type failingCloser struct {
	Book
	fail  bool
	moved int
}

func (f *failingCloser) ClosePosition(context.Context, *risk.Position, risk.Trade) error {
	if f.fail {
		return errors.New("broker down")
	}
	return nil
}

func (f *failingCloser) StopMoved(context.Context, *risk.Position, risk.Decision) { f.moved++ }

type failingOpener struct{ Book }

func (failingOpener) OpenPosition(context.Context, *risk.Position) (string, error) {
	return "", errors.New("rejected")
}

func TestStepOpensOnSignal(t *testing.T) {
	t.Parallel()
	e := New(risk.NewManager(strategy.Default()), seqIDs())
	st := NewState(10000)

	rep, err := e.Step(context.Background(), st, input(0, 1.0, market.Long), Book{})
	require.NoError(t, err)
	require.NotNil(t, rep.Opened)
	assert.True(t, rep.Rolled)
	assert.Equal(t, "p1", rep.Opened.ID)
	assert.Equal(t, "p1", rep.Opened.OrderID)
	assert.Len(t, st.Positions, 1)

	rep, err = e.Step(context.Background(), st, input(1, 1.0, market.Flat), Book{})
	require.NoError(t, err)
	assert.False(t, rep.Entry.Allowed)
	assert.Equal(t, "NO_SIGNAL,MAX_POSITIONS", rep.Entry.Reason())
}

func TestStepNeverExceedsMaxPositions(t *testing.T) {
	t.Parallel()
	cfg := strategy.Default()
	cfg.MaxPositions = 3
	cfg.MaxBarsInTrade = 7
	cfg.Hours.Enabled = false
	cfg.MaxDailyLoss = -1e9
	e := New(risk.NewManager(cfg), seqIDs())
	st := NewState(10000)

	r := rand.New(rand.NewSource(3))
	price := 1.0
	for i := 0; i < 2000; i++ {
		price += r.NormFloat64() * 0.0005
		side := market.Side(r.Intn(3) - 1)
		_, err := e.Step(context.Background(), st, input(i, price, side), Book{})
		require.NoError(t, err)
		require.LessOrEqual(t, len(st.Positions), cfg.MaxPositions)
	}
}

func TestStepSameDirectionOnly(t *testing.T) {
	t.Parallel()
	cfg := strategy.Default()
	cfg.MaxPositions = 2
	cfg.SameDirectionOnly = true
	e := New(risk.NewManager(cfg), seqIDs())
	st := NewState(10000)

	_, err := e.Step(context.Background(), st, input(0, 1.0, market.Long), Book{})
	require.NoError(t, err)
	rep, err := e.Step(context.Background(), st, input(1, 1.0, market.Short), Book{})
	require.NoError(t, err)
	assert.Nil(t, rep.Opened)
	assert.Equal(t, "DIRECTION_CONFLICT", rep.Entry.Reason())
	assert.Len(t, st.Positions, 1)
}

func TestCircuitBreakerInclusive(t *testing.T) {
	t.Parallel()
	cfg := strategy.Default()
	cfg.MaxPositions = 2
	e := New(risk.NewManager(cfg), seqIDs())
	st := NewState(10000)

	_, err := e.Step(context.Background(), st, input(0, 1.0, market.Long), Book{})
	require.NoError(t, err)
	require.Len(t, st.Positions, 1)

	st.Daily.Profit = cfg.MaxDailyLoss
	rep, err := e.Step(context.Background(), st, input(1, 1.0, market.Long), Book{})
	require.NoError(t, err)

	assert.True(t, rep.BreakerFired)
	require.Len(t, rep.Closed, 1)
	assert.Equal(t, risk.ExitDailyLoss, rep.Closed[0].Reason)
	assert.Empty(t, st.Positions)
	assert.False(t, st.TradingEnabled)
	assert.Nil(t, rep.Opened)
	assert.Equal(t, "TRADING_DISABLED", rep.Entry.Reason())

	// fires once per day
	rep, err = e.Step(context.Background(), st, input(2, 1.0, market.Long), Book{})
	require.NoError(t, err)
	assert.False(t, rep.BreakerFired)
	assert.Nil(t, rep.Opened)

	// next day trading resumes
	next := input(2, 1.0, market.Long)
	next.Now = next.Now.Add(24 * time.Hour)
	next.Bar.Time = next.Now
	rep, err = e.Step(context.Background(), st, next, Book{})
	require.NoError(t, err)
	assert.True(t, rep.Rolled)
	assert.True(t, st.TradingEnabled)
	assert.NotNil(t, rep.Opened)
}

func TestFailedCloseKeepsPosition(t *testing.T) {
	t.Parallel()
	cfg := strategy.Default()
	cfg.MaxBarsInTrade = 1
	e := New(risk.NewManager(cfg), seqIDs())
	st := NewState(10000)
	exec := &failingCloser{}

	_, err := e.Step(context.Background(), st, input(0, 1.0, market.Long), exec)
	require.NoError(t, err)

	exec.fail = true
	rep, err := e.Step(context.Background(), st, input(1, 1.0, market.Flat), exec)
	require.NoError(t, err)
	assert.Len(t, rep.CloseFailures, 1)
	assert.Error(t, rep.Err())
	require.Len(t, st.Positions, 1)
	assert.Equal(t, 10000.0, st.Capital)
	assert.Equal(t, 0, st.Daily.Trades)
	assert.Equal(t, 0, st.Positions[0].BarsHeld, "a failed close leaves the position as it was")
	assert.Equal(t, risk.ExitTimeLimit, st.Positions[0].PendingExit)

	exec.fail = false
	rep, err = e.Step(context.Background(), st, input(2, 1.0, market.Flat), exec)
	require.NoError(t, err)
	require.Len(t, rep.Closed, 1)
	assert.Equal(t, risk.ExitTimeLimit, rep.Closed[0].Reason)
	assert.Empty(t, st.Positions)
	assert.NoError(t, rep.Err())
}

func TestFailedOpenAddsNothing(t *testing.T) {
	t.Parallel()
	e := New(risk.NewManager(strategy.Default()), seqIDs())
	st := NewState(10000)

	rep, err := e.Step(context.Background(), st, input(0, 1.0, market.Long), failingOpener{})
	require.NoError(t, err)
	assert.Error(t, rep.EntryErr)
	assert.Nil(t, rep.Opened)
	assert.Empty(t, st.Positions)
}

func TestInvalidATRSkipsEntry(t *testing.T) {
	t.Parallel()
	e := New(risk.NewManager(strategy.Default()), seqIDs())
	st := NewState(10000)
	in := input(0, 1.0, market.Long)
	in.ATR = 0

	rep, err := e.Step(context.Background(), st, in, Book{})
	require.NoError(t, err)
	assert.ErrorIs(t, rep.EntryErr, risk.ErrInvalidSizing)
	assert.Empty(t, st.Positions)
}

func TestExitsRunOutsideHours(t *testing.T) {
	t.Parallel()
	cfg := strategy.Default()
	cfg.MaxBarsInTrade = 1
	e := New(risk.NewManager(cfg), seqIDs())
	st := NewState(10000)

	_, err := e.Step(context.Background(), st, input(0, 1.0, market.Long), Book{})
	require.NoError(t, err)

	// 23:30 is outside every default session
	late := input(0, 1.0, market.Long)
	late.Now = time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	late.Bar.Time = late.Now
	rep, err := e.Step(context.Background(), st, late, Book{})
	require.NoError(t, err)
	assert.Len(t, rep.Closed, 1)
	assert.Nil(t, rep.Opened)
	assert.Equal(t, "OUTSIDE_HOURS", rep.Entry.Reason())
}

func TestAccountingClosure(t *testing.T) {
	t.Parallel()
	cfg := strategy.Default()
	cfg.Hours.Enabled = false
	cfg.MaxDailyLoss = -1e9
	e := New(risk.NewManager(cfg), seqIDs())
	st := NewState(10000)

	r := rand.New(rand.NewSource(8))
	price := 1.0
	var sum float64
	for i := 0; i < 500; i++ {
		price += r.NormFloat64() * 0.001
		rep, err := e.Step(context.Background(), st, input(i, price, market.Side(r.Intn(3)-1)), Book{})
		require.NoError(t, err)
		for _, tr := range rep.Closed {
			sum += tr.PnL
		}
		// realized P&L alone moves capital
		assert.InDelta(t, st.Capital-10000, sum, 1e-6)
	}
	rep := e.CloseAll(context.Background(), st, price, t0, risk.ExitEndOfData, Book{})
	for _, tr := range rep.Closed {
		sum += tr.PnL
	}
	assert.Empty(t, st.Positions)
	assert.InDelta(t, st.Capital-10000, sum, 1e-6)
}

func TestFailedStopIsRetried(t *testing.T) {
	t.Parallel()
	e := New(risk.NewManager(strategy.Default()), seqIDs())
	st := NewState(10000)
	exec := &failingCloser{}

	_, err := e.Step(context.Background(), st, input(0, 1.0, market.Long), exec)
	require.NoError(t, err)
	require.Len(t, st.Positions, 1)
	stop := st.Positions[0].Stop

	exec.fail = true
	rep, err := e.Step(context.Background(), st, input(1, 0.985, market.Flat), exec)
	require.NoError(t, err)
	require.Len(t, rep.CloseFailures, 1)
	require.Len(t, st.Positions, 1)
	assert.Equal(t, risk.ExitStopLoss, st.Positions[0].PendingExit)
	assert.Equal(t, stop, st.Positions[0].Stop)

	// the next bar is back above the stop but the exit still goes through
	exec.fail = false
	rep, err = e.Step(context.Background(), st, input(2, 1.0, market.Flat), exec)
	require.NoError(t, err)
	require.Len(t, rep.Closed, 1)
	assert.Equal(t, risk.ExitStopLoss, rep.Closed[0].Reason)
	assert.Equal(t, 1.0, rep.Closed[0].ExitPrice)
	assert.Empty(t, st.Positions)
	assert.Zero(t, exec.moved)
}

func TestCanceledStepTouchesNothing(t *testing.T) {
	t.Parallel()
	e := New(risk.NewManager(strategy.Default()), seqIDs())
	st := NewState(10000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := e.Step(ctx, st, input(0, 1.0, market.Long), Book{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, rep.Opened)
	assert.Empty(t, st.Positions)
	assert.Empty(t, st.Daily.Date)
}
