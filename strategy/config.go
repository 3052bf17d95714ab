// Package strategy holds the immutable parameter set that fully determines the
// volume acceleration signal and its risk handling.
package strategy

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Config is one complete strategy parameter set. It is the unit the optimizer
// varies. Values are copied, never shared by pointer, so a Config handed to a
// simulator or the live runner cannot change underneath it.
type Config struct {
	// Volume acceleration
	VolumeSmoothPeriods int `json:"volume_smooth_periods" yaml:"volume_smooth_periods" mapstructure:"volume_smooth_periods" validate:"min=1,max=200"`
	AccelBarsRequired   int `json:"accel_bars_required" yaml:"accel_bars_required" mapstructure:"accel_bars_required" validate:"min=1,max=50"`

	// Confirmation filters
	UseADX                bool    `json:"use_adx" yaml:"use_adx" mapstructure:"use_adx"`
	ADXThreshold          float64 `json:"adx_threshold" yaml:"adx_threshold" mapstructure:"adx_threshold" validate:"gte=0,lte=100"`
	UseOBV                bool    `json:"use_obv" yaml:"use_obv" mapstructure:"use_obv"`
	OBVUseTrend           bool    `json:"obv_use_trend" yaml:"obv_use_trend" mapstructure:"obv_use_trend"`
	UsePriceMA            bool    `json:"use_price_ma" yaml:"use_price_ma" mapstructure:"use_price_ma"`
	UseRSIFilter          bool    `json:"use_rsi_filter" yaml:"use_rsi_filter" mapstructure:"use_rsi_filter"`
	RSIOverbought         float64 `json:"rsi_overbought" yaml:"rsi_overbought" mapstructure:"rsi_overbought" validate:"gt=0,lt=100"`
	RSIOversold           float64 `json:"rsi_oversold" yaml:"rsi_oversold" mapstructure:"rsi_oversold" validate:"gt=0,lt=100"`
	UseBBFilter           bool    `json:"use_bb_filter" yaml:"use_bb_filter" mapstructure:"use_bb_filter"`
	MinConfirmationsRatio float64 `json:"min_confirmations_ratio" yaml:"min_confirmations_ratio" mapstructure:"min_confirmations_ratio" validate:"gte=0,lte=1"`

	// Sizing and exits. Point based values are in instrument points of PointSize.
	RiskPerTrade        float64 `json:"risk_per_trade" yaml:"risk_per_trade" mapstructure:"risk_per_trade" validate:"gt=0,lte=1"`
	ATRStopMultiplier   float64 `json:"atr_stop_multiplier" yaml:"atr_stop_multiplier" mapstructure:"atr_stop_multiplier" validate:"gt=0"`
	TPPoints            float64 `json:"tp_points" yaml:"tp_points" mapstructure:"tp_points" validate:"gt=0"`
	UseTrailingStop     bool    `json:"use_trailing_stop" yaml:"use_trailing_stop" mapstructure:"use_trailing_stop"`
	TrailingStart       float64 `json:"trailing_start" yaml:"trailing_start" mapstructure:"trailing_start" validate:"gte=0"`
	TrailingStep        float64 `json:"trailing_step" yaml:"trailing_step" mapstructure:"trailing_step" validate:"gte=0"`
	ProfitClose         float64 `json:"profit_close" yaml:"profit_close" mapstructure:"profit_close" validate:"gt=0"`
	MaxDailyLoss        float64 `json:"max_daily_loss" yaml:"max_daily_loss" mapstructure:"max_daily_loss" validate:"lt=0"`
	MaxPositions        int     `json:"max_positions" yaml:"max_positions" mapstructure:"max_positions" validate:"min=1"`
	SameDirectionOnly   bool    `json:"same_direction_only" yaml:"same_direction_only" mapstructure:"same_direction_only"`
	MaxBarsInTrade      int     `json:"max_bars_in_trade" yaml:"max_bars_in_trade" mapstructure:"max_bars_in_trade" validate:"min=1"`
	PointSize           float64 `json:"point_size" yaml:"point_size" mapstructure:"point_size" validate:"gt=0"`
	Commission          float64 `json:"commission" yaml:"commission" mapstructure:"commission" validate:"gte=0,lt=1"`
	MaxNotionalFraction float64 `json:"max_notional_fraction" yaml:"max_notional_fraction" mapstructure:"max_notional_fraction" validate:"gt=0"`
	// MaxExposure caps open notional at this multiple of capital before a new
	// entry. Zero disables the cap.
	MaxExposure float64 `json:"max_exposure" yaml:"max_exposure" mapstructure:"max_exposure" validate:"gte=0"`

	// Live only
	LeverageMin int `json:"leverage_min" yaml:"leverage_min" mapstructure:"leverage_min" validate:"min=1"`
	LeverageMax int `json:"leverage_max" yaml:"leverage_max" mapstructure:"leverage_max" validate:"min=1"`

	Hours TradingHours `json:"trading_hours" yaml:"trading_hours" mapstructure:"trading_hours"`
}

// Default returns the production parameter set of the live bot.
func Default() Config {
	return Config{
		VolumeSmoothPeriods:   4,
		AccelBarsRequired:     2,
		ADXThreshold:          20,
		RSIOverbought:         70,
		RSIOversold:           30,
		MinConfirmationsRatio: 0.25,

		RiskPerTrade:        0.05,
		ATRStopMultiplier:   1.0,
		TPPoints:            100,
		UseTrailingStop:     true,
		TrailingStart:       25,
		TrailingStep:        15,
		ProfitClose:         50,
		MaxDailyLoss:        -20,
		MaxPositions:        1,
		MaxBarsInTrade:      2,
		PointSize:           0.0001,
		Commission:          0.0002,
		MaxNotionalFraction: 1.0,

		LeverageMin: 4,
		LeverageMax: 10,

		Hours: DefaultTradingHours(),
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report yaml names so messages match what users write in config files.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks ranges with struct tags and the combinations tags cannot
// express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return err
	}

	if c.RSIOverbought <= c.RSIOversold {
		return fmt.Errorf("strategy.rsi_overbought must be greater than strategy.rsi_oversold")
	}
	if c.LeverageMin > c.LeverageMax {
		return fmt.Errorf("strategy.leverage_min must not exceed strategy.leverage_max")
	}
	return c.Hours.validate()
}

func fieldError(fe validator.FieldError) error {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	switch fe.Tag() {
	case "min", "gte":
		return fmt.Errorf("strategy.%s must be at least %s", ns, fe.Param())
	case "max", "lte":
		return fmt.Errorf("strategy.%s must be at most %s", ns, fe.Param())
	case "gt":
		if fe.Param() == "0" {
			return fmt.Errorf("strategy.%s must be positive", ns)
		}
		return fmt.Errorf("strategy.%s must be greater than %s", ns, fe.Param())
	case "lt":
		if fe.Param() == "0" {
			return fmt.Errorf("strategy.%s must be negative", ns)
		}
		return fmt.Errorf("strategy.%s must be less than %s", ns, fe.Param())
	}
	return fmt.Errorf("strategy.%s failed %s validation", ns, fe.Tag())
}

// Points converts a price distance into instrument points.
func (c Config) Points(priceDelta float64) float64 {
	return priceDelta / c.PointSize
}

// Price converts instrument points into a price distance.
func (c Config) Price(points float64) float64 {
	return points * c.PointSize
}

// EnabledConfirmations is the number of ratio-counted filters. The RSI
// filter votes but is not counted.
func (c Config) EnabledConfirmations() int {
	n := 0
	for _, on := range []bool{c.UseADX, c.UseOBV, c.UsePriceMA, c.UseBBFilter} {
		if on {
			n++
		}
	}
	return n
}
