package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rustyeddy/volaccel/config"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/spf13/cobra"
)

// defaultConfigFile is read when --config is not given and the file exists.
const defaultConfigFile = "volaccel.yaml"

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

var rootCmd = &cobra.Command{
	Use:   "volaccel",
	Short: "Volume acceleration trading: backtest, optimize and trade live",
	Long: `Volaccel trades a single pair on volume acceleration signals confirmed by
ADX, OBV, moving averages, Bollinger bands and RSI.

It provides tools for:
  - Backtesting the strategy on OHLCV candle CSV files
  - Grid optimizing strategy parameters in parallel
  - Running the live driver once per bar against Kraken or a paper broker
  - Inspecting the live state and the SQLite trade journal
  - Downloading Kraken OHLC data
  - Telegram notifications and daily summaries`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfig] != "" {
			return nil
		}
		return loadConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./"+defaultConfigFile+" when present)")
}

func loadConfig() error {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	c, err := config.Load(path)
	if err != nil {
		return err
	}
	l, err := logger.New(c.Log.Level, c.Log.Encoding)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	cfg, log = c, l
	return nil
}
