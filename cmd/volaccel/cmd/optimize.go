package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rustyeddy/volaccel/journal"
	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/optimize"
	"github.com/rustyeddy/volaccel/pkg/id"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/spf13/cobra"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Grid search strategy parameters on a candle CSV",
	Long: `Backtest every combination of a parameter grid and rank the results by
Sharpe ratio. Results below the grid's minimum trade count are dropped.

Writes optimization_results.csv (all valid results) and best_configs.json
(top N) to --out, and records the top N in the SQLite journal.

Without --grid the built-in grid is used. A grid file looks like:

  ranges:
    accel_bars_required: {min: 2, max: 4, step: 1}
    tp_points: {min: 100, max: 200, step: 50}
  bools:
    use_adx: [true, false]
  min_trades: 10
  top_n: 10

Example:
  volaccel optimize --data xrp.csv --workers 8`,
	RunE: runOptimize,
}

var (
	optDataPath string
	optGridPath string
	optWorkers  int
	optOutDir   string
	optTopN     int
	optDBPath   string
)

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optimizeCmd.Flags().StringVar(&optDataPath, "data", "", "candle CSV (default backtest.data)")
	optimizeCmd.Flags().StringVarP(&optGridPath, "grid", "g", "", "grid YAML (default optimize.grid or the built-in grid)")
	optimizeCmd.Flags().IntVarP(&optWorkers, "workers", "w", 0, "parallel workers (default optimize.workers, 0 = all CPUs)")
	optimizeCmd.Flags().StringVarP(&optOutDir, "out", "o", "", "output directory (default optimize.out_dir)")
	optimizeCmd.Flags().IntVarP(&optTopN, "top", "n", 0, "number of best configurations to keep (default optimize.top_n)")
	optimizeCmd.Flags().StringVarP(&optDBPath, "db", "d", "", "SQLite journal (default journal.db_path)")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	oc := cfg.Optimize
	data := firstNonEmpty(optDataPath, cfg.Backtest.Data)
	if data == "" {
		return fmt.Errorf("no candle data: pass --data or set backtest.data")
	}
	oc.Grid = firstNonEmpty(optGridPath, oc.Grid)
	oc.OutDir = firstNonEmpty(optOutDir, oc.OutDir)
	if optWorkers > 0 {
		oc.Workers = optWorkers
	}
	if optTopN > 0 {
		oc.TopN = optTopN
	}

	grid := optimize.DefaultGrid()
	if oc.Grid != "" {
		g, err := optimize.LoadGrid(oc.Grid)
		if err != nil {
			return fmt.Errorf("load grid: %w", err)
		}
		grid = g
	}
	if optTopN > 0 || grid.TopN == 0 {
		grid.TopN = oc.TopN
	}

	series, err := market.LoadCSV(data)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}

	ctx, stop := interruptContext(cmd.Context())
	defer stop()

	start := time.Now()
	rep, err := optimize.New(grid, oc.Workers, log).Run(ctx, series)
	if err != nil {
		return fmt.Errorf("optimize: %w", err)
	}
	log.Info("Optimization finished", logger.IntField("tested", rep.Tested),
		logger.IntField("valid", len(rep.Valid)), logger.StringField("elapsed", time.Since(start).String()))

	rep.PrintTop(os.Stdout, grid.TopN)

	if err := os.MkdirAll(oc.OutDir, 0o755); err != nil {
		return err
	}
	if err := rep.Save(oc.OutDir, grid.TopN); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	fmt.Printf("\nResults written to %s\n", oc.OutDir)

	db := firstNonEmpty(optDBPath, cfg.Journal.DBPath)
	if db == "" || len(rep.Valid) == 0 {
		return nil
	}
	recs, err := rep.Records(id.New(), grid.TopN)
	if err != nil {
		return err
	}
	j, err := journal.NewSQLite(db)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()
	if err := j.RecordOptimization(ctx, recs); err != nil {
		return fmt.Errorf("record optimization: %w", err)
	}
	fmt.Printf("Recorded %d results as run %s in %s\n", len(recs), recs[0].RunID, db)
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
