package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rustyeddy/volaccel/backtest"
	"github.com/rustyeddy/volaccel/journal"
	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/pkg/id"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/rustyeddy/volaccel/signal"
	"github.com/spf13/cobra"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest the strategy on a candle CSV",
	Long: `Replay an OHLCV candle file (time,open,high,low,close,volume) through the
strategy and print the scorecard. The run is recorded in the SQLite journal
unless --no-journal is given.

Example:
  volaccel backtest --data data/XXRPZUSD_60.csv
  volaccel backtest --data xrp.csv --capital 5000 --trades trades.csv --equity equity.csv`,
	RunE: runBacktest,
}

var (
	btDataPath  string
	btCapital   float64
	btSeed      int64
	btDBPath    string
	btNoJournal bool
	btTradesCSV string
	btEquityCSV string
	btOrgOut    bool
	btSynthVol  bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&btDataPath, "data", "", "candle CSV (default backtest.data)")
	backtestCmd.Flags().Float64Var(&btCapital, "capital", 0, "initial capital (default backtest.initial_capital)")
	backtestCmd.Flags().Int64Var(&btSeed, "seed", 0, "position id seed (default backtest.seed)")
	backtestCmd.Flags().StringVarP(&btDBPath, "db", "d", "", "SQLite journal (default journal.db_path)")
	backtestCmd.Flags().BoolVar(&btNoJournal, "no-journal", false, "do not record the run")
	backtestCmd.Flags().StringVar(&btTradesCSV, "trades", "", "also write trades to this CSV")
	backtestCmd.Flags().StringVar(&btEquityCSV, "equity", "", "also write the equity curve to this CSV (requires --trades)")
	backtestCmd.Flags().BoolVar(&btOrgOut, "org", false, "write an org-mode report next to the journal")
	backtestCmd.Flags().BoolVar(&btSynthVol, "synth-volume", false, "replace missing volume with a range/session proxy")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	bc := cfg.Backtest
	if btDataPath != "" {
		bc.Data = btDataPath
	}
	if btCapital > 0 {
		bc.InitialCapital = btCapital
	}
	if btSeed != 0 {
		bc.Seed = btSeed
	}
	if bc.Data == "" {
		return fmt.Errorf("no candle data: pass --data or set backtest.data")
	}

	series, err := market.LoadCSV(bc.Data)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}
	if !series.HasVolume() {
		if !btSynthVol {
			log.Warn("Candle data has no usable volume; acceleration signals will stay flat",
				logger.StringField("data", bc.Data))
		} else {
			series = market.SynthesizeVolume(series, bc.Seed)
			log.Info("Synthesized volume proxy", logger.IntField("bars", len(series)))
		}
	}

	strat := cfg.BacktestStrategy()
	sim, err := backtest.New(strat, backtest.Options{
		InitialCapital: bc.InitialCapital,
		Warmup:         bc.Warmup,
		Seed:           bc.Seed,
	})
	if err != nil {
		return err
	}

	log.Info("Backtest started", logger.StringField("data", bc.Data), logger.IntField("bars", len(series)))
	start := time.Now()
	f := signal.NewFrame(series)
	res, err := sim.Run(cmd.Context(), f, signal.Generate(f, strat))
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	log.Info("Backtest finished", logger.IntField("trades", len(res.Trades)),
		logger.StringField("elapsed", time.Since(start).String()))

	runID := id.New()
	br, err := res.ToRun(backtest.RunInfo{
		RunID:     runID,
		Created:   time.Now().UTC(),
		Pair:      bc.Pair,
		Timeframe: bc.Timeframe,
		Dataset:   filepath.Base(bc.Data),
	}, strat)
	if err != nil {
		return err
	}
	backtest.PrintResult(os.Stdout, br)

	if btTradesCSV != "" {
		if err := writeBacktestCSV(res, runID, bc.Pair); err != nil {
			return err
		}
	}

	if btNoJournal {
		return nil
	}
	return journalBacktest(cmd.Context(), res, br, bc.Pair)
}

func writeBacktestCSV(res backtest.Result, runID, pair string) error {
	equity := btEquityCSV
	if equity == "" {
		equity = os.DevNull
	}
	j, err := journal.NewCSV(btTradesCSV, equity)
	if err != nil {
		return err
	}
	for _, t := range res.Records(runID, pair) {
		if err := j.RecordTrade(t); err != nil {
			j.Close()
			return err
		}
	}
	for _, e := range res.Snapshots(runID) {
		if err := j.RecordEquity(e); err != nil {
			j.Close()
			return err
		}
	}
	fmt.Printf("Trades written to %s\n", btTradesCSV)
	return j.Close()
}

func journalBacktest(ctx context.Context, res backtest.Result, br journal.BacktestRun, pair string) error {
	db := btDBPath
	if db == "" {
		db = cfg.Journal.DBPath
	}
	if db == "" {
		return nil
	}

	j, err := journal.NewSQLite(db)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	if err := j.RecordBacktest(ctx, br, res.Records(br.RunID, pair)); err != nil {
		return fmt.Errorf("record backtest: %w", err)
	}
	for _, e := range res.Snapshots(br.RunID) {
		if err := j.RecordEquity(e); err != nil {
			return fmt.Errorf("record equity: %w", err)
		}
	}
	fmt.Printf("\nRecorded run %s in %s\n", br.RunID, db)

	if btOrgOut {
		br.OrgPath = br.RunID + ".org"
		if err := br.WriteBacktestOrg(); err != nil {
			return err
		}
		fmt.Printf("Org report written to %s\n", br.OrgPath)
	}
	return nil
}
