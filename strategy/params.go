package strategy

import (
	"fmt"
	"math"
	"sort"
)

type numberParam struct {
	get func(Config) float64
	set func(*Config, float64) error
}

type boolParam struct {
	get func(Config) bool
	set func(*Config, bool)
}

func intParam(p func(*Config) *int) numberParam {
	return numberParam{
		get: func(c Config) float64 { return float64(*p(&c)) },
		set: func(c *Config, v float64) error {
			r := math.Round(v)
			if math.Abs(v-r) > 1e-6 {
				return fmt.Errorf("want a whole number, got %g", v)
			}
			*p(c) = int(r)
			return nil
		},
	}
}

func floatParam(p func(*Config) *float64) numberParam {
	return numberParam{
		get: func(c Config) float64 { return *p(&c) },
		set: func(c *Config, v float64) error {
			*p(c) = v
			return nil
		},
	}
}

func flagParam(p func(*Config) *bool) boolParam {
	return boolParam{
		get: func(c Config) bool { return *p(&c) },
		set: func(c *Config, v bool) { *p(c) = v },
	}
}

// Parameter names are the yaml keys of Config.
var numberParams = map[string]numberParam{
	"volume_smooth_periods":   intParam(func(c *Config) *int { return &c.VolumeSmoothPeriods }),
	"accel_bars_required":     intParam(func(c *Config) *int { return &c.AccelBarsRequired }),
	"adx_threshold":           floatParam(func(c *Config) *float64 { return &c.ADXThreshold }),
	"rsi_overbought":          floatParam(func(c *Config) *float64 { return &c.RSIOverbought }),
	"rsi_oversold":            floatParam(func(c *Config) *float64 { return &c.RSIOversold }),
	"min_confirmations_ratio": floatParam(func(c *Config) *float64 { return &c.MinConfirmationsRatio }),
	"risk_per_trade":          floatParam(func(c *Config) *float64 { return &c.RiskPerTrade }),
	"atr_stop_multiplier":     floatParam(func(c *Config) *float64 { return &c.ATRStopMultiplier }),
	"tp_points":               floatParam(func(c *Config) *float64 { return &c.TPPoints }),
	"trailing_start":          floatParam(func(c *Config) *float64 { return &c.TrailingStart }),
	"trailing_step":           floatParam(func(c *Config) *float64 { return &c.TrailingStep }),
	"profit_close":            floatParam(func(c *Config) *float64 { return &c.ProfitClose }),
	"max_daily_loss":          floatParam(func(c *Config) *float64 { return &c.MaxDailyLoss }),
	"max_positions":           intParam(func(c *Config) *int { return &c.MaxPositions }),
	"max_bars_in_trade":       intParam(func(c *Config) *int { return &c.MaxBarsInTrade }),
	"commission":              floatParam(func(c *Config) *float64 { return &c.Commission }),
	"session_buffer":          intParam(func(c *Config) *int { return &c.Hours.SessionBuffer }),
}

var boolParams = map[string]boolParam{
	"use_adx":             flagParam(func(c *Config) *bool { return &c.UseADX }),
	"use_obv":             flagParam(func(c *Config) *bool { return &c.UseOBV }),
	"obv_use_trend":       flagParam(func(c *Config) *bool { return &c.OBVUseTrend }),
	"use_price_ma":        flagParam(func(c *Config) *bool { return &c.UsePriceMA }),
	"use_rsi_filter":      flagParam(func(c *Config) *bool { return &c.UseRSIFilter }),
	"use_bb_filter":       flagParam(func(c *Config) *bool { return &c.UseBBFilter }),
	"use_trailing_stop":   flagParam(func(c *Config) *bool { return &c.UseTrailingStop }),
	"same_direction_only": flagParam(func(c *Config) *bool { return &c.SameDirectionOnly }),
	"use_trading_hours":   flagParam(func(c *Config) *bool { return &c.Hours.Enabled }),
}

// SetNumber assigns a numeric parameter by name. Integer fields accept only
// whole numbers, within float noise.
func (c *Config) SetNumber(name string, v float64) error {
	p, ok := numberParams[name]
	if !ok {
		return fmt.Errorf("unknown numeric parameter %q", name)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s: not a finite number", name)
	}
	if err := p.set(c, v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// SetBool assigns a boolean parameter by name.
func (c *Config) SetBool(name string, v bool) error {
	p, ok := boolParams[name]
	if !ok {
		return fmt.Errorf("unknown boolean parameter %q", name)
	}
	p.set(c, v)
	return nil
}

// Number reads a numeric parameter by name.
func (c Config) Number(name string) (float64, bool) {
	p, ok := numberParams[name]
	if !ok {
		return 0, false
	}
	return p.get(c), true
}

// Bool reads a boolean parameter by name.
func (c Config) Bool(name string) (bool, bool) {
	p, ok := boolParams[name]
	if !ok {
		return false, false
	}
	return p.get(c), true
}

// IsNumberParam reports whether name is a numeric parameter.
func IsNumberParam(name string) bool {
	_, ok := numberParams[name]
	return ok
}

// IsBoolParam reports whether name is a boolean parameter.
func IsBoolParam(name string) bool {
	_, ok := boolParams[name]
	return ok
}

// ParamNames returns every tunable parameter name in sorted order.
func ParamNames() []string {
	names := make([]string, 0, len(numberParams)+len(boolParams))
	for n := range numberParams {
		names = append(names, n)
	}
	for n := range boolParams {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
