// Package live drives the strategy against a broker one invocation at a
// time. Each RunOnce loads the persisted state, processes at most one new
// bar and saves the state again.
package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/volaccel/broker"
	"github.com/rustyeddy/volaccel/engine"
	"github.com/rustyeddy/volaccel/journal"
	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/notify"
	"github.com/rustyeddy/volaccel/pkg/id"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/rustyeddy/volaccel/risk"
	"github.com/rustyeddy/volaccel/signal"
	"github.com/rustyeddy/volaccel/state"
	"github.com/rustyeddy/volaccel/strategy"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Failure kinds of a failed Outcome.
const (
	KindData     = "data"
	KindBroker   = "broker"
	KindPersist  = "persist"
	KindCanceled = "canceled"
)

// ErrInsufficientBalance is returned when the tradable balance is below
// Settings.MinBalance.
var ErrInsufficientBalance = errors.New("insufficient tradable balance")

// ErrBelowMinOrder is returned when the sized volume is below the pair's
// minimum order size.
var ErrBelowMinOrder = errors.New("volume below minimum order size")

// Outcome is the result of one invocation.
type Outcome struct {
	Status Status
	Reason string
	Kind   string
	Signal signal.Signal
	Report engine.StepReport
	Err    error
}

type Settings struct {
	Mode       string        `json:"mode" yaml:"mode" mapstructure:"mode"`
	Pair       string        `json:"pair" yaml:"pair" mapstructure:"pair"`
	Interval   time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`
	Lookback   int           `json:"lookback" yaml:"lookback" mapstructure:"lookback"`
	MinBars    int           `json:"min_bars" yaml:"min_bars" mapstructure:"min_bars"`
	MinBalance float64       `json:"min_balance" yaml:"min_balance" mapstructure:"min_balance"`
	StatePath  string        `json:"state_path" yaml:"state_path" mapstructure:"state_path"`
	// InitialCapital seeds a fresh state. Sizing always uses the broker balance.
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital" mapstructure:"initial_capital"`
	// PositionUpdates sends a notification per open position every cycle.
	PositionUpdates bool `json:"position_updates" yaml:"position_updates" mapstructure:"position_updates"`
	// Schedule is the cron spec of the live schedule command.
	Schedule string `json:"schedule" yaml:"schedule" mapstructure:"schedule"`
}

func DefaultSettings() Settings {
	return Settings{
		Mode:           "paper",
		Pair:           "XXRPZUSD",
		Interval:       time.Hour,
		Lookback:       200,
		MinBars:        signal.MinBars,
		MinBalance:     100,
		StatePath:      state.DefaultPath,
		InitialCapital: 10000,
		Schedule:       "1 * * * *",
	}
}

func (s Settings) Validate() error {
	if s.Pair == "" {
		return errors.New("live: pair is required")
	}
	if s.Mode != "paper" && s.Mode != "kraken" {
		return fmt.Errorf("live: mode must be paper or kraken, got %q", s.Mode)
	}
	if s.Interval <= 0 {
		return errors.New("live: interval must be positive")
	}
	if s.MinBars <= 0 {
		return errors.New("live: min_bars must be positive")
	}
	if s.Lookback < s.MinBars {
		return fmt.Errorf("live: lookback %d is below min_bars %d", s.Lookback, s.MinBars)
	}
	if s.MinBalance < 0 {
		return errors.New("live: min_balance must not be negative")
	}
	if s.InitialCapital <= 0 {
		return errors.New("live: initial_capital must be positive")
	}
	return nil
}

// Runner is one live strategy. Journal and Notifier are optional.
type Runner struct {
	Settings Settings
	Strategy strategy.Config
	Broker   broker.Broker
	Store    *state.Store
	Journal  journal.Journal
	Notifier notify.Notifier
	Log      *logger.Logger
	Now      func() time.Time
}

func New(s Settings, cfg strategy.Config, b broker.Broker, store *state.Store, log *logger.Logger) (*Runner, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b == nil || store == nil {
		return nil, errors.New("live: broker and state store are required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		Settings: s,
		Strategy: cfg,
		Broker:   b,
		Store:    store,
		Log:      log.With(logger.StringField("pair", s.Pair)),
		Now:      time.Now,
	}, nil
}

// RunOnce processes the newest closed bar. It never panics on data or
// broker faults; those are reported in the Outcome and notified.
func (r *Runner) RunOnce(ctx context.Context) Outcome {
	now := r.Now().UTC()
	pair := r.Settings.Pair

	st, err := r.Store.Load()
	if err != nil {
		r.Log.WarnContext(ctx, "Starting from a fresh state", logger.ErrorField(err))
		r.notify(ctx, notify.Fault{Op: "load state", Err: err})
	}
	if st.Daily.Roll(now) {
		st.TradingEnabled = true
		r.Log.InfoContext(ctx, "New trading day", logger.StringField("date", st.Daily.Date))
	}

	series, err := r.Broker.Candles(ctx, pair, r.Settings.Interval, r.Settings.Lookback)
	if err == nil && len(series) < r.Settings.MinBars {
		err = fmt.Errorf("%w: need %d bars, got %d", market.ErrNotEnoughBars, r.Settings.MinBars, len(series))
	}
	if err != nil {
		r.Log.WarnContext(ctx, "Market data unavailable", logger.ErrorField(err))
		r.notify(ctx, notify.Fault{Op: "market data", Err: err})
		return r.finish(ctx, st, Outcome{Status: StatusSkipped, Reason: "market data unavailable", Kind: KindData, Err: err})
	}

	last := series.Last()
	if !st.LastBar.IsZero() && !last.Time.After(st.LastBar) {
		return r.finish(ctx, st, Outcome{
			Status: StatusSkipped,
			Reason: fmt.Sprintf("bar %s already processed", last.Time.UTC().Format(time.RFC3339)),
		})
	}

	f := signal.NewFrame(series)
	sig, _ := signal.Latest(f, r.Strategy)
	if sig.Side != market.Flat {
		r.Log.InfoContext(ctx, "Signal", logger.StringField("side", sig.Side.String()),
			logger.IntField("run", sig.RunLength), logger.FloatField("close", last.Close))
		r.notify(ctx, notify.Signal{Pair: pair, Signal: sig})
	}

	eng := engine.New(risk.NewManager(r.Strategy), func(time.Time) string { return id.New() })
	exec := &executor{r: r, orders: map[string]string{}}
	rep, err := eng.Step(ctx, st, engine.StepInput{
		Bar:    last,
		ATR:    f.ATR[f.Len()-1],
		Signal: sig,
		Now:    now,
	}, exec)
	if err != nil {
		return r.finish(ctx, st, Outcome{Status: StatusFailed, Reason: "canceled", Kind: KindCanceled, Signal: sig, Report: rep, Err: err})
	}
	st.LastBar = last.Time

	out := Outcome{Status: StatusSuccess, Signal: sig, Report: rep}
	r.report(ctx, eng, st, last, exec, &out)
	if err := ctx.Err(); err != nil {
		// Whatever the broker already did is saved below.
		out.Status, out.Kind, out.Reason = StatusFailed, KindCanceled, "canceled"
		out.Err = errors.Join(err, out.Err)
	}
	return r.finish(ctx, st, out)
}

// report notifies and journals what a step did and sets the outcome status.
func (r *Runner) report(ctx context.Context, eng *engine.Engine, st *engine.State, bar market.Candle, exec *executor, out *Outcome) {
	rep := out.Report
	pair := r.Settings.Pair

	if rep.BreakerFired {
		r.Log.WarnContext(ctx, "Daily loss limit reached", logger.FloatField("profit", st.Daily.Profit))
		r.notify(ctx, notify.DailyLossLimit{Loss: st.Daily.Profit, Limit: r.Strategy.MaxDailyLoss})
	}

	if len(rep.Closed) > 0 {
		balance := r.balance(ctx, st)
		for _, t := range rep.Closed {
			r.Log.InfoContext(ctx, "Position closed", logger.StringField("position", t.ID),
				logger.StringField("reason", string(t.Reason)), logger.FloatField("pnl", t.PnL))
			r.notify(ctx, notify.OrderClosed{Pair: pair, OrderID: exec.orders[t.ID], Trade: t, Balance: balance})
			if r.Journal != nil {
				if err := r.Journal.RecordTrade(journal.FromTrade("", pair, t)); err != nil {
					r.Log.WarnContext(ctx, "Failed to journal trade", logger.ErrorField(err))
				}
			}
		}
	}

	for _, err := range rep.CloseFailures {
		r.Log.ErrorContext(ctx, "Close failed", logger.ErrorField(err))
		r.notify(ctx, notify.Fault{Op: "close position", Err: err})
	}

	switch {
	case rep.Opened != nil:
		p := rep.Opened
		r.Log.InfoContext(ctx, "Position opened", logger.StringField("position", p.ID),
			logger.StringField("order", p.OrderID), logger.FloatField("size", p.Size))
		r.notify(ctx, notify.OrderPlaced{Pair: pair, Position: *p})
		out.Reason = "opened " + p.ID
	case errors.Is(rep.EntryErr, ErrInsufficientBalance):
		r.Log.WarnContext(ctx, "Entry skipped", logger.ErrorField(rep.EntryErr))
		r.notify(ctx, notify.Fault{Op: "entry", Err: rep.EntryErr})
		out.Status, out.Reason = StatusSkipped, "insufficient balance"
	case errors.Is(rep.EntryErr, ErrBelowMinOrder):
		r.Log.WarnContext(ctx, "Entry skipped", logger.ErrorField(rep.EntryErr))
		r.notify(ctx, notify.Fault{Op: "entry", Err: rep.EntryErr})
		out.Status, out.Reason = StatusSkipped, "below minimum order size"
	case rep.EntryErr != nil:
		r.Log.ErrorContext(ctx, "Entry failed", logger.ErrorField(rep.EntryErr))
		r.notify(ctx, notify.Fault{Op: "open position", Err: rep.EntryErr})
		out.Status, out.Kind, out.Reason, out.Err = StatusFailed, KindBroker, "entry failed", rep.EntryErr
	default:
		out.Reason = "no entry: " + rep.Entry.Reason()
	}

	if len(rep.CloseFailures) > 0 {
		out.Status, out.Kind, out.Reason, out.Err = StatusFailed, KindBroker, "close failed", rep.Err()
	}

	if r.Settings.PositionUpdates {
		for _, p := range st.Positions {
			if p == rep.Opened {
				continue
			}
			r.notify(ctx, notify.PositionUpdate{
				Pair: pair, Position: *p, Price: bar.Close, PnL: eng.Risk.Unrealized(p, bar.Close), At: r.Now(),
			})
		}
	}

	if r.Journal != nil {
		err := r.Journal.RecordEquity(journal.EquitySnapshot{
			Time:          bar.Time,
			Capital:       st.Capital,
			Equity:        eng.Equity(st, bar.Close),
			OpenPositions: len(st.Positions),
		})
		if err != nil {
			r.Log.WarnContext(ctx, "Failed to journal equity", logger.ErrorField(err))
		}
	}
}

// finish persists the state. A save failure turns the outcome into a
// persistence failure.
func (r *Runner) finish(ctx context.Context, st *engine.State, out Outcome) Outcome {
	if err := r.Store.Save(st); err != nil {
		r.Log.ErrorContext(ctx, "Failed to save state", logger.ErrorField(err))
		r.notify(ctx, notify.Fault{Op: "save state", Err: err})
		out.Status, out.Kind, out.Reason, out.Err = StatusFailed, KindPersist, "state not saved", err
	}
	r.Log.InfoContext(ctx, "Cycle done", logger.StringField("status", string(out.Status)),
		logger.StringField("reason", out.Reason))
	return out
}

func (r *Runner) balance(ctx context.Context, st *engine.State) float64 {
	b, err := r.Broker.TradableBalance(ctx)
	if err != nil {
		r.Log.WarnContext(ctx, "Balance unavailable", logger.ErrorField(err))
		return st.Capital
	}
	return b
}

func (r *Runner) notify(ctx context.Context, e notify.Event) {
	if r.Notifier == nil {
		return
	}
	if err := r.Notifier.Notify(ctx, e); err != nil {
		r.Log.WarnContext(ctx, "Notification failed", logger.StringField("event", e.Kind()), logger.ErrorField(err))
	}
}

// Startup sends the startup notification.
func (r *Runner) Startup(ctx context.Context) {
	cfg := r.Strategy
	r.notify(ctx, notify.Startup{
		At:           r.Now(),
		Mode:         r.Settings.Mode,
		Pair:         r.Settings.Pair,
		Interval:     r.Settings.Interval,
		Capital:      r.balance(ctx, r.Store.Fresh()),
		RiskPerTrade: cfg.RiskPerTrade,
		LeverageMin:  cfg.LeverageMin,
		LeverageMax:  cfg.LeverageMax,
		Trailing:     cfg.UseTrailingStop,
		MaxDailyLoss: cfg.MaxDailyLoss,
	})
}
