package cmd

import (
	"fmt"

	"github.com/rustyeddy/volaccel/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage volaccel configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Secrets are never stored in the file. Provide them in the environment or a
.env file: KRAKEN_API_KEY, KRAKEN_API_SECRET, TELEGRAM_BOT_TOKEN and
TELEGRAM_CHAT_ID. Any other setting can be overridden with VOLACCEL_<SECTION>_<KEY>,
for example VOLACCEL_LIVE_PAIR=XETHZUSD.

Examples:
  volaccel config init -o volaccel.yaml
  volaccel config validate -f volaccel.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Generate a default configuration file",
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:         "validate",
	Short:       "Validate a configuration file",
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", defaultConfigFile, "output config file path (.yaml or .json)")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	_ = configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	c := config.Default()
	if err := c.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  volaccel backtest -c %s --data candles.csv\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	c, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	s := c.Strategy
	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Live:     %s %s every %s (%s)\n", c.Live.Mode, c.Live.Pair, c.Live.Interval, c.Live.Schedule)
	fmt.Printf("  Strategy: smooth %d, accel bars %d, risk %.1f%%, leverage %d-%dx\n",
		s.VolumeSmoothPeriods, s.AccelBarsRequired, s.RiskPerTrade*100, s.LeverageMin, s.LeverageMax)
	fmt.Printf("  Filters:  adx=%t obv=%t ma=%t rsi=%t bb=%t (ratio %.2f)\n",
		s.UseADX, s.UseOBV, s.UsePriceMA, s.UseRSIFilter, s.UseBBFilter, s.MinConfirmationsRatio)
	fmt.Printf("  Journal:  %s\n", orNone(c.Journal.DBPath))
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
