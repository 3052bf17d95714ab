package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/rustyeddy/volaccel/broker/kraken"
	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/spf13/cobra"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Download and inspect candle data",
	Long: `Manage the OHLCV candle CSV files used by backtest and optimize.

Subcommands:
  fetch - Download Kraken OHLC candles (up to 720 per call)
  stats - Report bar count, range and gaps of a candle file

Examples:
  volaccel data fetch --pair XXRPZUSD --interval 1h --out xrp.csv --append
  volaccel data stats xrp.csv --interval 1h`,
}

var dataFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download Kraken OHLC candles to CSV",
	Args:  cobra.NoArgs,
	RunE:  runDataFetch,
}

var dataStatsCmd = &cobra.Command{
	Use:   "stats <file.csv>",
	Short: "Report gaps in a candle file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDataStats,
}

var (
	dataPair     string
	dataInterval time.Duration
	dataOut      string
	dataAppend   bool
	dataLimit    int
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataFetchCmd, dataStatsCmd)

	dataFetchCmd.Flags().StringVar(&dataPair, "pair", "", "Kraken pair (default live.pair)")
	dataFetchCmd.Flags().StringVarP(&dataOut, "out", "o", "", "output CSV (required)")
	dataFetchCmd.Flags().BoolVar(&dataAppend, "append", false, "merge into an existing file instead of replacing it")
	dataFetchCmd.Flags().IntVar(&dataLimit, "limit", 0, "keep only the newest N bars (0 = all returned)")
	_ = dataFetchCmd.MarkFlagRequired("out")

	for _, c := range []*cobra.Command{dataFetchCmd, dataStatsCmd} {
		c.Flags().DurationVar(&dataInterval, "interval", 0, "bar interval (default live.interval)")
	}
}

func runDataFetch(cmd *cobra.Command, args []string) error {
	pair := firstNonEmpty(dataPair, cfg.Live.Pair)
	interval := dataInterval
	if interval == 0 {
		interval = cfg.Live.Interval
	}

	client, err := kraken.New(cfg.Kraken, log)
	if err != nil {
		return err
	}
	series, err := client.Candles(cmd.Context(), pair, interval, dataLimit)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	fetched := len(series)

	if dataAppend {
		old, err := market.LoadCSV(dataOut)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return fmt.Errorf("read %s: %w", dataOut, err)
		default:
			series = mergeSeries(old, series)
		}
	}

	if err := market.SaveCSV(dataOut, series); err != nil {
		return err
	}
	log.Info("Candles saved", logger.StringField("pair", pair), logger.IntField("fetched", fetched),
		logger.IntField("total", len(series)), logger.StringField("file", dataOut))
	fmt.Printf("✓ %d bars of %s written to %s (%d fetched)\n", len(series), pair, dataOut, fetched)
	return nil
}

// mergeSeries unions two series by bar time. Bars in b replace bars of a
// with the same time.
func mergeSeries(a, b market.Series) market.Series {
	byTime := make(map[int64]market.Candle, len(a)+len(b))
	for _, s := range []market.Series{a, b} {
		for _, c := range s {
			byTime[c.Time.Unix()] = c
		}
	}
	out := make(market.Series, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func runDataStats(cmd *cobra.Command, args []string) error {
	series, err := market.LoadCSV(args[0])
	if err != nil {
		return err
	}
	interval := dataInterval
	if interval == 0 {
		interval = cfg.Live.Interval
	}
	series.PrintStats(os.Stdout, interval)
	return nil
}
