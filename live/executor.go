package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/volaccel/broker"
	"github.com/rustyeddy/volaccel/engine"
	"github.com/rustyeddy/volaccel/notify"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/rustyeddy/volaccel/risk"
)

// executor is the engine.Executor of the live runner. It sizes from the
// broker balance with leverage and sends every open and close to the
// broker.
type executor struct {
	r *Runner
	// orders maps closed position ids to their broker order ids.
	orders map[string]string
}

var _ engine.Executor = (*executor)(nil)

func (e *executor) RiskCapital(ctx context.Context, _ *engine.State) (float64, error) {
	bal, err := e.r.Broker.TradableBalance(ctx)
	if err != nil {
		return 0, fmt.Errorf("tradable balance: %w", err)
	}
	if bal < e.r.Settings.MinBalance {
		return 0, fmt.Errorf("%w: %.2f < %.2f", ErrInsufficientBalance, bal, e.r.Settings.MinBalance)
	}
	return bal, nil
}

func (e *executor) Leveraged() bool { return true }

func (e *executor) OpenPosition(ctx context.Context, p *risk.Position) (string, error) {
	minSize, err := e.r.Broker.MinOrderSize(ctx, e.r.Settings.Pair)
	if err != nil {
		return "", fmt.Errorf("min order size: %w", err)
	}
	if p.Size < minSize {
		return "", fmt.Errorf("%w: %.4f < %.4f", ErrBelowMinOrder, p.Size, minSize)
	}

	fill, err := e.r.Broker.OpenPosition(ctx, broker.OrderRequest{
		Pair:     e.r.Settings.Pair,
		Side:     p.Side,
		Size:     p.Size,
		Leverage: p.Leverage,
		StopLoss: p.Stop,
	})
	if err != nil {
		return "", err
	}
	if fill.Size > 0 {
		p.Size = fill.Size
	}
	return fill.OrderID, nil
}

// ClosePosition flattens p at the broker. A position the broker no longer
// holds was closed by its attached stop and counts as closed.
func (e *executor) ClosePosition(ctx context.Context, p *risk.Position, t risk.Trade) error {
	err := e.r.Broker.ClosePosition(ctx, broker.CloseRequest{
		Pair:     e.r.Settings.Pair,
		Side:     p.Side,
		Leverage: p.Leverage,
	})
	if errors.Is(err, broker.ErrNoPosition) {
		e.r.Log.WarnContext(ctx, "Position already closed at broker",
			logger.StringField("position", p.ID), logger.StringField("reason", string(t.Reason)))
		err = nil
	}
	if err != nil {
		return err
	}
	e.orders[p.ID] = p.OrderID
	return nil
}

// StopMoved only notifies. The broker side stop placed at entry is not
// replaced.
func (e *executor) StopMoved(ctx context.Context, p *risk.Position, d risk.Decision) {
	e.r.Log.InfoContext(ctx, "Trailing stop moved", logger.StringField("position", p.ID),
		logger.FloatField("stop", d.NewStop))
	e.r.notify(ctx, notify.TrailingUpdate{PositionID: p.ID, NewStop: d.NewStop, ProfitPoints: d.ProfitPoints})
}
