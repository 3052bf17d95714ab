package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

const tradeColumns = `trade_id, run_id, pair, side, size, leverage, entry_price, exit_price,
	open_time, close_time, gross_pl, commission, realized_pl, bars_held, reason`

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.RunID, t.Pair, t.Side, t.Size, t.Leverage, t.EntryPrice, t.ExitPrice,
		t.OpenTime.UTC(), t.CloseTime.UTC(), t.Gross, t.Commission, t.RealizedPL, t.BarsHeld, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, time, capital, equity, drawdown_pct, open_positions)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Time.UTC(), e.Capital, e.Equity, e.DrawdownPct, e.OpenPositions,
	)
	return err
}

// RecordBacktest stores a run summary together with its trades in one
// transaction.
func (j *SQLite) RecordBacktest(ctx context.Context, btr BacktestRun, trades []TradeRecord) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs
		(run_id, created, pair, timeframe, dataset, config, start_time, end_time,
		 trades, wins, losses, start_balance, end_balance, net_pl, return_pct,
		 win_rate, profit_factor, max_dd_pct, sharpe)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		btr.RunID, btr.Created.UTC(), btr.Pair, btr.Timeframe, btr.Dataset, string(btr.Config),
		btr.Start.UTC(), btr.End.UTC(), btr.Trades, btr.Wins, btr.Losses,
		btr.StartBalance, btr.EndBalance, btr.NetPL, btr.ReturnPct,
		btr.WinRate, btr.ProfitFactor, btr.MaxDDPct, btr.Sharpe,
	)
	if err != nil {
		return fmt.Errorf("insert backtest run: %w", err)
	}

	for _, t := range trades {
		t.RunID = btr.RunID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trades (`+tradeColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.TradeID, t.RunID, t.Pair, t.Side, t.Size, t.Leverage, t.EntryPrice, t.ExitPrice,
			t.OpenTime.UTC(), t.CloseTime.UTC(), t.Gross, t.Commission, t.RealizedPL, t.BarsHeld, t.Reason,
		)
		if err != nil {
			return fmt.Errorf("insert trade %s: %w", t.TradeID, err)
		}
	}
	return tx.Commit()
}

func (j *SQLite) GetBacktestRun(ctx context.Context, runID string) (BacktestRun, error) {
	var (
		btr BacktestRun
		cfg string
	)
	row := j.db.QueryRowContext(ctx, `
		SELECT run_id, created, pair, timeframe, dataset, config, start_time, end_time,
		       trades, wins, losses, start_balance, end_balance, net_pl, return_pct,
		       win_rate, profit_factor, max_dd_pct, sharpe
		FROM backtest_runs WHERE run_id = ?`, runID)
	err := row.Scan(
		&btr.RunID, &btr.Created, &btr.Pair, &btr.Timeframe, &btr.Dataset, &cfg,
		&btr.Start, &btr.End, &btr.Trades, &btr.Wins, &btr.Losses,
		&btr.StartBalance, &btr.EndBalance, &btr.NetPL, &btr.ReturnPct,
		&btr.WinRate, &btr.ProfitFactor, &btr.MaxDDPct, &btr.Sharpe,
	)
	if err == sql.ErrNoRows {
		return BacktestRun{}, fmt.Errorf("backtest run %q not found", runID)
	}
	if err != nil {
		return BacktestRun{}, err
	}
	btr.Config = []byte(cfg)

	reasons, err := j.exitReasons(ctx, runID)
	if err != nil {
		return BacktestRun{}, err
	}
	btr.ExitReasons = reasons
	return btr, nil
}

func (j *SQLite) exitReasons(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT reason, COUNT(*) FROM trades WHERE run_id = ? GROUP BY reason`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}

// ExportBacktestOrg loads a run and returns its Org block followed by its
// trades.
func (j *SQLite) ExportBacktestOrg(ctx context.Context, runID string) (string, error) {
	btr, err := j.GetBacktestRun(ctx, runID)
	if err != nil {
		return "", err
	}
	head, err := FormatBacktestOrg(btr)
	if err != nil {
		return "", err
	}
	trades, err := j.ListTradesByRunID(ctx, runID)
	if err != nil {
		return "", err
	}
	if len(trades) == 0 {
		return head, nil
	}
	return head + "\n" + FormatTradesOrg(trades), nil
}

// RecordOptimization replaces the stored results of an optimizer run.
func (j *SQLite) RecordOptimization(ctx context.Context, recs []OptimizationRecord) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range recs {
		if !json.Valid([]byte(r.Params)) {
			return fmt.Errorf("optimization rank %d: params are not JSON", r.Rank)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO optimization_results
			(run_id, rank, variant, params, trades, return_pct, win_rate, profit_factor,
			 max_dd_pct, sharpe, final_capital)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.Rank, r.Variant, r.Params, r.Trades, r.ReturnPct, r.WinRate,
			r.ProfitFactor, r.MaxDDPct, r.Sharpe, r.FinalCapital,
		)
		if err != nil {
			return fmt.Errorf("insert optimization rank %d: %w", r.Rank, err)
		}
	}
	return tx.Commit()
}

// ListOptimization returns the stored results of a run ordered by rank.
func (j *SQLite) ListOptimization(ctx context.Context, runID string) ([]OptimizationRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, rank, variant, params, trades, return_pct, win_rate, profit_factor,
		       max_dd_pct, sharpe, final_capital
		FROM optimization_results WHERE run_id = ? ORDER BY rank ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OptimizationRecord
	for rows.Next() {
		var r OptimizationRecord
		if err := rows.Scan(&r.RunID, &r.Rank, &r.Variant, &r.Params, &r.Trades, &r.ReturnPct,
			&r.WinRate, &r.ProfitFactor, &r.MaxDDPct, &r.Sharpe, &r.FinalCapital); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
