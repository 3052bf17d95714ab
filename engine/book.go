package engine

import (
	"context"

	"github.com/rustyeddy/volaccel/risk"
)

// Book is the side effect free Executor of simulations: positions are sized
// from the state's own capital without leverage and fills always succeed.
type Book struct{}

func (Book) RiskCapital(_ context.Context, st *State) (float64, error) { return st.Capital, nil }
func (Book) Leveraged() bool                                          { return false }

func (Book) OpenPosition(_ context.Context, p *risk.Position) (string, error) {
	return p.ID, nil
}

func (Book) ClosePosition(context.Context, *risk.Position, risk.Trade) error { return nil }
func (Book) StopMoved(context.Context, *risk.Position, risk.Decision)        {}
