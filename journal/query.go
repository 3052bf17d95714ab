package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.TradeID,
		&rec.RunID,
		&rec.Pair,
		&rec.Side,
		&rec.Size,
		&rec.Leverage,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.Gross,
		&rec.Commission,
		&rec.RealizedPL,
		&rec.BarsHeld,
		&rec.Reason,
	)
	return rec, err
}

func collectTrades(rows *sql.Rows) ([]TradeRecord, error) {
	defer rows.Close()
	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID)
	rec, err := scanTrade(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesClosedBetween returns live trades whose close_time is within
// [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = '' AND close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

// ListTradesByRunID returns the trades of one backtest run in close order.
func (j *SQLite) ListTradesByRunID(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ?
		ORDER BY close_time ASC, trade_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

// ListEquityBetween returns equity snapshots of a run within [start, end).
func (j *SQLite) ListEquityBetween(runID string, start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, capital, equity, drawdown_pct, open_positions
		FROM equity
		WHERE run_id = ? AND time >= ? AND time < ?
		ORDER BY time ASC`, runID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.RunID, &e.Time, &e.Capital, &e.Equity, &e.DrawdownPct, &e.OpenPositions); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DaySummary aggregates live trades closed within a day.
type DaySummary struct {
	Trades int
	Wins   int
	Losses int
	PnL    float64
	Best   *TradeRecord
	Worst  *TradeRecord
}

// SummarizeTrades folds trades into a DaySummary.
func SummarizeTrades(trades []TradeRecord) DaySummary {
	var s DaySummary
	for i := range trades {
		t := trades[i]
		s.Trades++
		s.PnL += t.RealizedPL
		if t.RealizedPL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		if s.Best == nil || t.RealizedPL > s.Best.RealizedPL {
			s.Best = &trades[i]
		}
		if s.Worst == nil || t.RealizedPL < s.Worst.RealizedPL {
			s.Worst = &trades[i]
		}
	}
	return s
}
