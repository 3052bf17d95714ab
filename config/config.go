// Package config loads the complete volaccel configuration: strategy
// parameters, drivers, broker and notification settings.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/volaccel/broker/kraken"
	"github.com/rustyeddy/volaccel/live"
	"github.com/rustyeddy/volaccel/notify"
	"github.com/rustyeddy/volaccel/strategy"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. VOLACCEL_LIVE_PAIR.
const EnvPrefix = "VOLACCEL"

type Config struct {
	Log      LogConfig             `json:"log" yaml:"log" mapstructure:"log"`
	Strategy strategy.Config       `json:"strategy" yaml:"strategy" mapstructure:"strategy"`
	Backtest BacktestConfig        `json:"backtest" yaml:"backtest" mapstructure:"backtest"`
	Optimize OptimizeConfig        `json:"optimize" yaml:"optimize" mapstructure:"optimize"`
	Live     live.Settings         `json:"live" yaml:"live" mapstructure:"live"`
	Kraken   kraken.Config         `json:"kraken" yaml:"kraken" mapstructure:"kraken"`
	Telegram notify.TelegramConfig `json:"telegram" yaml:"telegram" mapstructure:"telegram"`
	Journal  JournalConfig         `json:"journal" yaml:"journal" mapstructure:"journal"`
}

type LogConfig struct {
	Level    string `json:"level" yaml:"level" mapstructure:"level"`
	Encoding string `json:"encoding" yaml:"encoding" mapstructure:"encoding"`
}

type BacktestConfig struct {
	Data           string  `json:"data" yaml:"data" mapstructure:"data"`
	Pair           string  `json:"pair" yaml:"pair" mapstructure:"pair"`
	Timeframe      string  `json:"timeframe" yaml:"timeframe" mapstructure:"timeframe"`
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital" mapstructure:"initial_capital"`
	Warmup         int     `json:"warmup" yaml:"warmup" mapstructure:"warmup"`
	Seed           int64   `json:"seed" yaml:"seed" mapstructure:"seed"`
	// SessionBuffer replaces the strategy session buffer in backtests.
	SessionBuffer int `json:"session_buffer" yaml:"session_buffer" mapstructure:"session_buffer"`
}

type OptimizeConfig struct {
	Grid    string `json:"grid,omitempty" yaml:"grid,omitempty" mapstructure:"grid"`
	Workers int    `json:"workers" yaml:"workers" mapstructure:"workers"`
	OutDir  string `json:"out_dir" yaml:"out_dir" mapstructure:"out_dir"`
	TopN    int    `json:"top_n" yaml:"top_n" mapstructure:"top_n"`
}

// JournalConfig selects where results are recorded. An empty DBPath turns
// the SQLite journal off.
type JournalConfig struct {
	DBPath    string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`
	TradesCSV string `json:"trades_csv,omitempty" yaml:"trades_csv,omitempty" mapstructure:"trades_csv"`
	EquityCSV string `json:"equity_csv,omitempty" yaml:"equity_csv,omitempty" mapstructure:"equity_csv"`
}

// Default returns the production defaults.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", Encoding: "console"},
		Strategy: strategy.Default(),
		Backtest: BacktestConfig{
			Pair:           "XXRPZUSD",
			Timeframe:      "1h",
			InitialCapital: 10000,
			Seed:           1,
		},
		Optimize: OptimizeConfig{OutDir: ".", TopN: 10},
		Live:     live.DefaultSettings(),
		Kraken:   kraken.DefaultConfig(),
		Telegram: notify.DefaultTelegramConfig(),
		Journal:  JournalConfig{DBPath: "volaccel.db"},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load builds the CLI configuration. Defaults are overlaid by the file at
// path (optional), then by VOLACCEL_* environment variables. Secrets come
// from the environment or a .env file: KRAKEN_API_KEY, KRAKEN_API_SECRET,
// TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	base, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType(path))
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		"kraken.api_key":    "KRAKEN_API_KEY",
		"kraken.api_secret": "KRAKEN_API_SECRET",
		"telegram.token":    "TELEGRAM_BOT_TOKEN",
		"telegram.chat_id":  "TELEGRAM_CHAT_ID",
	} {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

// SaveToFile saves configuration as YAML or JSON by extension. Secrets are
// never written.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if configType(path) == "yaml" {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks every section. Kraken credentials are only required in
// kraken mode.
func (c *Config) Validate() error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Encoding != "console" && c.Log.Encoding != "json" {
		return fmt.Errorf("log.encoding must be 'console' or 'json'")
	}
	if err := c.Strategy.Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be positive")
	}
	if c.Backtest.Warmup < 0 {
		return fmt.Errorf("backtest.warmup must not be negative")
	}
	if c.Backtest.SessionBuffer < 0 {
		return fmt.Errorf("backtest.session_buffer must not be negative")
	}
	if c.Optimize.Workers < 0 {
		return fmt.Errorf("optimize.workers must not be negative")
	}
	if c.Optimize.TopN <= 0 {
		return fmt.Errorf("optimize.top_n must be positive")
	}
	if err := c.Live.Validate(); err != nil {
		return err
	}
	if c.Live.Mode == "kraken" {
		if c.Kraken.APIKey == "" {
			return fmt.Errorf("kraken.api_key is required")
		}
		if c.Kraken.APISecret == "" {
			return fmt.Errorf("kraken.api_secret is required")
		}
	}
	if c.Kraken.BaseURL == "" {
		return fmt.Errorf("kraken.base_url is required")
	}
	return nil
}

// BacktestStrategy is the strategy with the backtest session buffer applied.
func (c *Config) BacktestStrategy() strategy.Config {
	s := c.Strategy
	s.Hours.SessionBuffer = c.Backtest.SessionBuffer
	return s
}
