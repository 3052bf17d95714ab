// Package broker defines what the live runner needs from an exchange.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/volaccel/market"
)

// ErrNoPosition is returned when a close finds nothing open on the pair.
var ErrNoPosition = errors.New("no open position")

// MarketData serves closed OHLCV bars.
type MarketData interface {
	// Candles returns up to limit of the most recent closed bars, oldest
	// first. A bar still forming is never included.
	Candles(ctx context.Context, pair string, interval time.Duration, limit int) (market.Series, error)
}

// Broker places and closes margin positions.
type Broker interface {
	MarketData
	// TradableBalance is the equivalent balance available for margin
	// trading.
	TradableBalance(ctx context.Context) (float64, error)
	// MinOrderSize is the smallest volume the exchange accepts for pair.
	MinOrderSize(ctx context.Context, pair string) (float64, error)
	OpenPosition(ctx context.Context, req OrderRequest) (Fill, error)
	// ClosePosition flattens whatever is open on req.Pair in req.Side.
	ClosePosition(ctx context.Context, req CloseRequest) error
}

type OrderRequest struct {
	Pair     string
	Side     market.Side
	Size     float64
	Leverage int
	// StopLoss is attached to the order as a conditional close when
	// positive.
	StopLoss float64
}

type Fill struct {
	OrderID string
	Size    float64
	// Description is the exchange's human readable order summary.
	Description string
}

type CloseRequest struct {
	Pair string
	// Side is the side of the position being closed.
	Side     market.Side
	Leverage int
}
