// Package optimize runs the backtest over a grid of strategy parameters and
// ranks the results.
package optimize

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/rustyeddy/volaccel/strategy"
	"gopkg.in/yaml.v3"
)

// maxVariants bounds the size of an enumerated grid.
const maxVariants = 1_000_000

// Range is an inclusive numeric range. Step 0 means the single value Min.
type Range struct {
	Min  float64 `yaml:"min" json:"min"`
	Max  float64 `yaml:"max" json:"max"`
	Step float64 `yaml:"step" json:"step"`
}

// Values expands the range. Values are computed from their index so that
// repeated float addition cannot drop the upper bound.
func (r Range) Values() []float64 {
	if r.Step == 0 {
		return []float64{r.Min}
	}
	n := int(math.Floor((r.Max-r.Min)/r.Step+1e-9)) + 1
	out := make([]float64, 0, n)
	for k := 0; k < n; k++ {
		v := r.Min + float64(k)*r.Step
		out = append(out, math.Round(v*1e9)/1e9)
	}
	return out
}

// Grid is an optimizer run definition.
type Grid struct {
	Ranges map[string]Range  `yaml:"ranges" json:"ranges"`
	Bools  map[string][]bool `yaml:"bools" json:"bools"`
	// Fixed holds every parameter the grid does not vary.
	Fixed strategy.Config `yaml:"fixed" json:"fixed"`

	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	MinTrades      int     `yaml:"min_trades" json:"min_trades"`
	TopN           int     `yaml:"top_n" json:"top_n"`
	Warmup         int     `yaml:"warmup" json:"warmup"`
}

// BaseConfig is the fixed part of the default grid.
func BaseConfig() strategy.Config {
	cfg := strategy.Default()
	cfg.UseTrailingStop = true
	cfg.ProfitClose = 30
	cfg.MaxDailyLoss = -50
	cfg.Hours.SessionBuffer = 0
	return cfg
}

// DefaultGrid is the grid the optimizer ships with.
func DefaultGrid() Grid {
	return Grid{
		Ranges: map[string]Range{
			"volume_smooth_periods":   {Min: 3, Max: 4, Step: 1},
			"accel_bars_required":     {Min: 2, Max: 4, Step: 1},
			"adx_threshold":           {Min: 25, Max: 25, Step: 5},
			"risk_per_trade":          {Min: 0.05, Max: 0.05, Step: 0.01},
			"atr_stop_multiplier":     {Min: 1, Max: 2, Step: 0.5},
			"tp_points":               {Min: 100, Max: 200, Step: 100},
			"trailing_start":          {Min: 25, Max: 25, Step: 10},
			"trailing_step":           {Min: 15, Max: 15, Step: 5},
			"min_confirmations_ratio": {Min: 0.25, Max: 0.75, Step: 0.25},
		},
		Bools: map[string][]bool{
			"use_adx":           {true, false},
			"use_obv":           {true, false},
			"use_trailing_stop": {true},
			"obv_use_trend":     {false},
		},
		Fixed:          BaseConfig(),
		InitialCapital: 10000,
		MinTrades:      10,
		TopN:           10,
	}
}

// LoadGrid reads a YAML grid. Anything the file leaves out keeps the value
// of an empty grid over BaseConfig.
func LoadGrid(path string) (Grid, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Grid{}, err
	}

	g := Grid{
		Fixed:          BaseConfig(),
		InitialCapital: 10000,
		MinTrades:      10,
		TopN:           10,
	}
	if err := yaml.Unmarshal(b, &g); err != nil {
		return Grid{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := g.Validate(); err != nil {
		return Grid{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func (g Grid) Validate() error {
	for name, r := range g.Ranges {
		if !strategy.IsNumberParam(name) {
			return fmt.Errorf("ranges: unknown parameter %q", name)
		}
		if r.Step < 0 {
			return fmt.Errorf("ranges.%s: step must not be negative", name)
		}
		if r.Max < r.Min {
			return fmt.Errorf("ranges.%s: max below min", name)
		}
	}
	for name, vs := range g.Bools {
		if !strategy.IsBoolParam(name) {
			return fmt.Errorf("bools: unknown parameter %q", name)
		}
		if len(vs) == 0 {
			return fmt.Errorf("bools.%s: needs at least one value", name)
		}
	}
	if g.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive")
	}
	if g.MinTrades < 0 {
		return fmt.Errorf("min_trades must not be negative")
	}
	if g.TopN < 1 {
		return fmt.Errorf("top_n must be at least 1")
	}
	return nil
}

// Variant is one point of the grid.
type Variant struct {
	Index   int
	Numbers map[string]float64
	Bools   map[string]bool
	Config  strategy.Config
}

// Params merges the varied values, keyed by parameter name.
func (v Variant) Params() map[string]any {
	out := make(map[string]any, len(v.Numbers)+len(v.Bools))
	for k, x := range v.Numbers {
		out[k] = x
	}
	for k, b := range v.Bools {
		out[k] = b
	}
	return out
}

type axis struct {
	name    string
	numbers []float64
	bools   []bool
}

func (a axis) len() int {
	if a.bools != nil {
		return len(a.bools)
	}
	return len(a.numbers)
}

// ParamNames lists the varied parameters in enumeration order: numeric ones
// sorted, then boolean ones sorted.
func (g Grid) ParamNames() []string {
	var nums, flags []string
	for k := range g.Ranges {
		nums = append(nums, k)
	}
	for k := range g.Bools {
		flags = append(flags, k)
	}
	sort.Strings(nums)
	sort.Strings(flags)
	return append(nums, flags...)
}

func (g Grid) axes() []axis {
	var out []axis
	for _, name := range g.ParamNames() {
		if r, ok := g.Ranges[name]; ok {
			out = append(out, axis{name: name, numbers: r.Values()})
			continue
		}
		out = append(out, axis{name: name, bools: dedupe(g.Bools[name])})
	}
	return out
}

func dedupe(vs []bool) []bool {
	out := make([]bool, 0, 2)
	seen := map[bool]bool{}
	for _, v := range vs {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Enumerate expands the Cartesian product of the grid. The last parameter
// varies fastest.
func Enumerate(g Grid) ([]Variant, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	axes := g.axes()

	total := 1
	for _, a := range axes {
		total *= a.len()
		if total > maxVariants {
			return nil, fmt.Errorf("grid has more than %d variants", maxVariants)
		}
	}

	out := make([]Variant, 0, total)
	idx := make([]int, len(axes))
	for n := 0; n < total; n++ {
		v := Variant{
			Index:   n,
			Numbers: map[string]float64{},
			Bools:   map[string]bool{},
			Config:  g.Fixed,
		}
		for i, a := range axes {
			if a.bools != nil {
				b := a.bools[idx[i]]
				v.Bools[a.name] = b
				if err := v.Config.SetBool(a.name, b); err != nil {
					return nil, fmt.Errorf("variant %d: %w", n, err)
				}
			} else {
				x := a.numbers[idx[i]]
				v.Numbers[a.name] = x
				if err := v.Config.SetNumber(a.name, x); err != nil {
					return nil, fmt.Errorf("variant %d: %w", n, err)
				}
			}
		}
		out = append(out, v)

		for i := len(axes) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < axes[i].len() {
				break
			}
			idx[i] = 0
		}
	}
	return out, nil
}
