package risk

import (
	"time"

	"github.com/rustyeddy/volaccel/market"
)

// ExitReason says why a position was closed.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitProfitTarget ExitReason = "profit_target"
	ExitTimeLimit    ExitReason = "time_limit"
	ExitDailyLoss    ExitReason = "daily_loss"
	ExitEndOfData    ExitReason = "end_of_data"
)

// Position is an open trade. It is owned by the Manager while open; the JSON
// form is the persisted live state schema.
type Position struct {
	ID        string      `json:"id"`
	OrderID   string      `json:"order_id,omitempty"`
	Side      market.Side `json:"direction"`
	Entry     float64     `json:"entry_price"`
	Size      float64     `json:"size"`
	Leverage  int         `json:"leverage"`
	EntryTime time.Time   `json:"entry_time"`
	ATR       float64     `json:"atr"`

	Stop        float64 `json:"stop_loss"`
	InitialStop float64 `json:"initial_stop_loss"`
	Target      float64 `json:"take_profit"`

	BarsHeld       int  `json:"bars_open"`
	TrailingActive bool `json:"trailing_activated"`
	// HighWater is the best favorable excursion in points since trailing armed.
	HighWater float64 `json:"highest_profit"`

	// PendingExit is the exit a broker failed to carry out. It is retried at
	// the next bar's close instead of running the exit rules again.
	PendingExit ExitReason `json:"pending_exit,omitempty"`
}

// Trade is the immutable record of a closed position.
type Trade struct {
	ID         string      `json:"id"`
	Side       market.Side `json:"direction"`
	EntryPrice float64     `json:"entry_price"`
	ExitPrice  float64     `json:"exit_price"`
	EntryTime  time.Time   `json:"entry_time"`
	ExitTime   time.Time   `json:"exit_time"`
	Size       float64     `json:"size"`
	Leverage   int         `json:"leverage"`
	Gross      float64     `json:"gross_pnl"`
	Commission float64     `json:"commission"`
	PnL        float64     `json:"pnl"`
	BarsHeld   int         `json:"bars_held"`
	Reason     ExitReason  `json:"exit_reason"`
}

// Win reports whether the trade made money after costs.
func (t Trade) Win() bool { return t.PnL > 0 }

// ReturnPct is the price move captured in the trade direction, in percent.
func (t Trade) ReturnPct() float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	return float64(t.Side) * (t.ExitPrice - t.EntryPrice) / t.EntryPrice * 100
}

// Duration is the time the position was open.
func (t Trade) Duration() time.Duration { return t.ExitTime.Sub(t.EntryTime) }
