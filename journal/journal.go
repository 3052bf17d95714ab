// Package journal persists closed trades, equity snapshots, backtest runs and
// optimization results.
package journal

import (
	"time"

	"github.com/rustyeddy/volaccel/risk"
)

// TradeRecord is one closed trade as stored in the journal.
type TradeRecord struct {
	RunID      string
	TradeID    string
	Pair       string
	Side       string
	Size       float64
	Leverage   int
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	Gross      float64
	Commission float64
	RealizedPL float64
	BarsHeld   int
	Reason     string
}

// FromTrade converts a closed trade. runID is empty for live trades.
func FromTrade(runID, pair string, t risk.Trade) TradeRecord {
	return TradeRecord{
		RunID:      runID,
		TradeID:    t.ID,
		Pair:       pair,
		Side:       t.Side.String(),
		Size:       t.Size,
		Leverage:   t.Leverage,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		OpenTime:   t.EntryTime,
		CloseTime:  t.ExitTime,
		Gross:      t.Gross,
		Commission: t.Commission,
		RealizedPL: t.PnL,
		BarsHeld:   t.BarsHeld,
		Reason:     string(t.Reason),
	}
}

// EquitySnapshot is the account state after one bar or live cycle.
type EquitySnapshot struct {
	RunID         string
	Time          time.Time
	Capital       float64
	Equity        float64
	DrawdownPct   float64
	OpenPositions int
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}
