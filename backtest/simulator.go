// Package backtest replays a candle series through the trading engine and
// scores the result.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/volaccel/engine"
	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/pkg/id"
	"github.com/rustyeddy/volaccel/risk"
	"github.com/rustyeddy/volaccel/signal"
	"github.com/rustyeddy/volaccel/strategy"
)

// DefaultWarmup is the number of leading bars used only to warm up
// indicators.
const DefaultWarmup = signal.MinBars

type Options struct {
	InitialCapital float64
	// Warmup defaults to DefaultWarmup when zero.
	Warmup int
	// Seed makes position ids reproducible.
	Seed int64
}

// EquityPoint is the account after one bar.
type EquityPoint struct {
	Time        time.Time `json:"time"`
	Capital     float64   `json:"capital"`
	Equity      float64   `json:"equity"`
	DrawdownPct float64   `json:"drawdown_pct"`
	Open        int       `json:"open_positions"`
}

// Result is everything a run produced.
type Result struct {
	Trades    []risk.Trade
	Equity    []EquityPoint
	Scorecard Scorecard
	Start     time.Time
	End       time.Time
}

type Simulator struct {
	cfg  strategy.Config
	opts Options
}

func New(cfg strategy.Config, opts Options) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.InitialCapital <= 0 {
		return nil, errors.New("backtest: initial capital must be positive")
	}
	if opts.Warmup < 0 {
		return nil, errors.New("backtest: warmup must not be negative")
	}
	if opts.Warmup == 0 {
		opts.Warmup = DefaultWarmup
	}
	return &Simulator{cfg: cfg, opts: opts}, nil
}

func (s *Simulator) Config() strategy.Config { return s.cfg }

// Run steps every bar after the warm-up through the engine. signals must be
// the output of signal.Generate for f under the simulator's config. Open
// positions are closed at the last close with reason end_of_data.
func (s *Simulator) Run(ctx context.Context, f *signal.Frame, signals []signal.Signal) (Result, error) {
	n := f.Len()
	if len(signals) != n {
		return Result{}, fmt.Errorf("backtest: %d signals for %d bars", len(signals), n)
	}
	if n <= s.opts.Warmup {
		return Result{}, fmt.Errorf("backtest: %w: need more than %d bars, got %d", market.ErrNotEnoughBars, s.opts.Warmup, n)
	}

	ids := id.NewSource(s.opts.Seed)
	eng := engine.New(risk.NewManager(s.cfg), ids.At)
	st := engine.NewState(s.opts.InitialCapital)
	exec := engine.Book{}

	res := Result{
		Start:  f.Times[s.opts.Warmup],
		End:    f.Times[n-1],
		Equity: make([]EquityPoint, 0, n-s.opts.Warmup),
	}
	peak := s.opts.InitialCapital

	for i := s.opts.Warmup; i < n; i++ {
		bar := f.Candle(i)
		rep, err := eng.Step(ctx, st, engine.StepInput{
			Bar:    bar,
			ATR:    f.ATR[i],
			Signal: signals[i],
			Now:    bar.Time,
		}, exec)
		if err != nil {
			return Result{}, err
		}
		res.Trades = append(res.Trades, rep.Closed...)

		eq := eng.Equity(st, bar.Close)
		peak = max(peak, eq)
		res.Equity = append(res.Equity, EquityPoint{
			Time:        bar.Time,
			Capital:     st.Capital,
			Equity:      eq,
			DrawdownPct: drawdownPct(peak, eq),
			Open:        len(st.Positions),
		})
	}

	last := f.Candle(n - 1)
	rep := eng.CloseAll(ctx, st, last.Close, last.Time, risk.ExitEndOfData, exec)
	res.Trades = append(res.Trades, rep.Closed...)
	if len(rep.Closed) > 0 {
		final := &res.Equity[len(res.Equity)-1]
		final.Capital = st.Capital
		final.Equity = st.Capital
		final.Open = 0
		final.DrawdownPct = drawdownPct(peak, st.Capital)
	}

	res.Scorecard = Score(s.opts.InitialCapital, st.Capital, res.Trades, res.Equity)
	return res, nil
}

func drawdownPct(peak, eq float64) float64 {
	if peak <= 0 {
		return 0
	}
	return (peak - eq) / peak * 100
}
