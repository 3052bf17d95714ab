// Package engine runs the per-bar decision sequence shared by the backtest
// simulator and the live runner.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/risk"
	"github.com/rustyeddy/volaccel/signal"
)

// State is everything a driver carries between bars. For the live runner it
// is the persisted state.
type State struct {
	Capital        float64          `json:"capital"`
	Positions      []*risk.Position `json:"positions"`
	Daily          risk.DailyStats  `json:"daily_stats"`
	TradingEnabled bool             `json:"trading_enabled"`
	LastBar        time.Time        `json:"last_bar"`
	LastUpdate     time.Time        `json:"last_update"`
}

// NewState is a fresh state with trading enabled.
func NewState(capital float64) *State {
	return &State{Capital: capital, TradingEnabled: true}
}

// Exposure is the summed notional of open positions at price. The entry
// gate compares it with Capital when MaxExposure is set.
func (s *State) Exposure(price float64) float64 {
	total := 0.0
	for _, p := range s.Positions {
		total += p.Size * price
	}
	return total
}

// Executor carries out the side effects of a step. The backtest executor only
// books; the live executor talks to the broker.
type Executor interface {
	// RiskCapital is the capital that sizes a new position.
	RiskCapital(ctx context.Context, st *State) (float64, error)
	// Leveraged selects leverage based sizing.
	Leveraged() bool
	// OpenPosition submits p and returns the broker order id.
	OpenPosition(ctx context.Context, p *risk.Position) (string, error)
	// ClosePosition exits p. On error the position stays open in State.
	ClosePosition(ctx context.Context, p *risk.Position, t risk.Trade) error
	// StopMoved reports a trailing stop change.
	StopMoved(ctx context.Context, p *risk.Position, d risk.Decision)
}

// IDFunc names new positions.
type IDFunc func(t time.Time) string

// StepInput is one bar and the signal computed on it.
type StepInput struct {
	Bar    market.Candle
	ATR    float64
	Signal signal.Signal
	// Now is the decision time used for the daily date and trading hours.
	// Backtests pass the bar time.
	Now time.Time
}

// StepReport describes what one step did.
type StepReport struct {
	Rolled        bool
	BreakerFired  bool
	Closed        []risk.Trade
	CloseFailures []error
	TrailMoves    int
	Opened        *risk.Position
	Entry         risk.EntryDecision
	EntryErr      error
}

// Engine is one strategy bound to a risk manager.
type Engine struct {
	Risk  *risk.Manager
	NewID IDFunc
}

func New(m *risk.Manager, newID IDFunc) *Engine {
	return &Engine{Risk: m, NewID: newID}
}

// Step runs one bar: roll the daily stats, fire the circuit breaker, update
// every open position and finally try an entry.
func (e *Engine) Step(ctx context.Context, st *State, in StepInput, exec Executor) (StepReport, error) {
	var rep StepReport
	cfg := e.Risk.Config()

	// Cancellation is honoured only before the first executor call. Once a
	// side effect may have happened the step runs to the end so the caller
	// can persist it.
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	if st.Daily.Roll(in.Now) {
		rep.Rolled = true
		st.TradingEnabled = true
	}

	if st.Daily.Breached(cfg.MaxDailyLoss) && !st.Daily.BreakerFired {
		st.Daily.BreakerFired = true
		st.TradingEnabled = false
		rep.BreakerFired = true
		for _, p := range append([]*risk.Position(nil), st.Positions...) {
			if !e.close(ctx, st, p, in.Bar.Close, in.Bar.Time, risk.ExitDailyLoss, exec, &rep) {
				p.PendingExit = risk.ExitDailyLoss
			}
		}
	}

	for _, p := range append([]*risk.Position(nil), st.Positions...) {
		if p.PendingExit != "" {
			// A breaker that fired this step already tried every position.
			if !rep.BreakerFired {
				e.close(ctx, st, p, in.Bar.Close, in.Bar.Time, p.PendingExit, exec, &rep)
			}
			continue
		}

		prev := *p
		d := e.Risk.Update(p, in.Bar)
		if d.Close && !e.close(ctx, st, p, d.ExitPrice, in.Bar.Time, d.Reason, exec, &rep) {
			// The broker did not confirm the exit: keep the position as it
			// was and retry the same exit next bar.
			*p = prev
			p.PendingExit = d.Reason
			continue
		}
		if d.TrailMoved {
			rep.TrailMoves++
			exec.StopMoved(ctx, p, d)
		}
	}

	rep.Entry = e.Risk.CheckEntry(risk.EntryContext{
		Now:            in.Now,
		Side:           in.Signal.Side,
		TradingEnabled: st.TradingEnabled,
		Open:           st.Positions,
		Capital:        st.Capital,
		Exposure:       st.Exposure(in.Bar.Close),
	})
	if !rep.Entry.Allowed {
		return rep, nil
	}
	if err := ctx.Err(); err != nil {
		rep.EntryErr = err
		return rep, nil
	}

	p, err := e.open(ctx, st, in, exec)
	if err != nil {
		rep.EntryErr = err
		return rep, nil
	}
	rep.Opened = p
	return rep, nil
}

func (e *Engine) open(ctx context.Context, st *State, in StepInput, exec Executor) (*risk.Position, error) {
	capital, err := exec.RiskCapital(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("risk capital: %w", err)
	}
	price := in.Bar.Close
	sz, err := e.Risk.Size(price, in.ATR, capital, exec.Leveraged())
	if err != nil {
		return nil, err
	}

	p := e.Risk.Open(e.NewID(in.Bar.Time), in.Signal.Side, price, in.ATR, in.Bar.Time, sz)
	orderID, err := exec.OpenPosition(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p.Side, err)
	}
	p.OrderID = orderID
	st.Positions = append(st.Positions, p)
	return p, nil
}

// close exits p and books the trade. It reports false when the executor
// failed, leaving p open in st.
func (e *Engine) close(ctx context.Context, st *State, p *risk.Position, price float64, t time.Time, reason risk.ExitReason, exec Executor, rep *StepReport) bool {
	tr := e.Risk.Close(p, price, t, reason)
	if err := exec.ClosePosition(ctx, p, tr); err != nil {
		rep.CloseFailures = append(rep.CloseFailures, fmt.Errorf("close %s: %w", p.ID, err))
		return false
	}
	st.remove(p.ID)
	st.Capital += tr.PnL
	st.Daily.Record(tr)
	rep.Closed = append(rep.Closed, tr)
	return true
}

// CloseAll exits every position at price outside the normal step, as at the
// end of a backtest.
func (e *Engine) CloseAll(ctx context.Context, st *State, price float64, t time.Time, reason risk.ExitReason, exec Executor) StepReport {
	var rep StepReport
	for _, p := range append([]*risk.Position(nil), st.Positions...) {
		e.close(ctx, st, p, price, t, reason, exec, &rep)
	}
	return rep
}

func (s *State) remove(id string) {
	out := s.Positions[:0]
	for _, p := range s.Positions {
		if p.ID != id {
			out = append(out, p)
		}
	}
	for i := len(out); i < len(s.Positions); i++ {
		s.Positions[i] = nil
	}
	s.Positions = out
}

// Equity is capital plus the floating P&L of open positions at price.
func (e *Engine) Equity(st *State, price float64) float64 {
	eq := st.Capital
	for _, p := range st.Positions {
		eq += e.Risk.Unrealized(p, price)
	}
	return eq
}

// Err joins the close failures of a report.
func (r StepReport) Err() error {
	return errors.Join(r.CloseFailures...)
}
