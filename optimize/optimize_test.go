package optimize

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		r    Range
		want []float64
	}{
		{"step zero", Range{Min: 3, Max: 9, Step: 0}, []float64{3}},
		{"single", Range{Min: 25, Max: 25, Step: 5}, []float64{25}},
		{"inclusive", Range{Min: 1, Max: 2, Step: 0.5}, []float64{1, 1.5, 2}},
		{"float step", Range{Min: 0.1, Max: 0.3, Step: 0.1}, []float64{0.1, 0.2, 0.3}},
		{"max not on step", Range{Min: 100, Max: 250, Step: 100}, []float64{100, 200}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.r.Values())
		})
	}
}

func TestEnumerateOrder(t *testing.T) {
	t.Parallel()

	g := DefaultGrid()
	g.Ranges = map[string]Range{
		"min_confirmations_ratio": {Min: 0.25, Max: 0.75, Step: 0.25},
		"accel_bars_required":     {Min: 2, Max: 3, Step: 1},
	}
	g.Bools = map[string][]bool{"use_adx": {true, false, true}}

	vs, err := Enumerate(g)
	require.NoError(t, err)
	require.Len(t, vs, 12)

	assert.Equal(t, []string{"accel_bars_required", "min_confirmations_ratio", "use_adx"}, g.ParamNames())

	first := vs[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, 2, first.Config.AccelBarsRequired)
	assert.Equal(t, 0.25, first.Config.MinConfirmationsRatio)
	assert.True(t, first.Config.UseADX)

	assert.False(t, vs[1].Config.UseADX)
	assert.Equal(t, 0.5, vs[2].Config.MinConfirmationsRatio)

	last := vs[11]
	assert.Equal(t, 3, last.Config.AccelBarsRequired)
	assert.Equal(t, 0.75, last.Config.MinConfirmationsRatio)
	assert.False(t, last.Config.UseADX)
	assert.Equal(t, map[string]any{
		"accel_bars_required":     3.0,
		"min_confirmations_ratio": 0.75,
		"use_adx":                 false,
	}, last.Params())

	// fixed values survive
	assert.Equal(t, 30.0, last.Config.ProfitClose)
	assert.Equal(t, -50.0, last.Config.MaxDailyLoss)
}

func TestDefaultGridSize(t *testing.T) {
	t.Parallel()

	vs, err := Enumerate(DefaultGrid())
	require.NoError(t, err)
	// 2*3*1*1*3*2*1*1*3 numeric, 2*2*1*1 boolean
	assert.Len(t, vs, 432)
}

func TestEnumerateRejectsFractionalCounts(t *testing.T) {
	t.Parallel()

	g := DefaultGrid()
	g.Ranges = map[string]Range{"accel_bars_required": {Min: 2, Max: 3, Step: 0.5}}
	g.Bools = nil

	_, err := Enumerate(g)
	assert.ErrorContains(t, err, "variant 1: accel_bars_required")
}

func TestGridValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Grid)
		want   string
	}{
		{"unknown range", func(g *Grid) { g.Ranges["nope"] = Range{} }, "unknown parameter"},
		{"bool as range", func(g *Grid) { g.Ranges["use_adx"] = Range{} }, "unknown parameter"},
		{"negative step", func(g *Grid) { g.Ranges["tp_points"] = Range{Min: 1, Max: 2, Step: -1} }, "step"},
		{"max below min", func(g *Grid) { g.Ranges["tp_points"] = Range{Min: 3, Max: 2, Step: 1} }, "max below min"},
		{"empty bools", func(g *Grid) { g.Bools["use_obv"] = nil }, "at least one value"},
		{"capital", func(g *Grid) { g.InitialCapital = 0 }, "initial_capital"},
		{"top n", func(g *Grid) { g.TopN = 0 }, "top_n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := DefaultGrid()
			tt.mutate(&g)
			assert.ErrorContains(t, g.Validate(), tt.want)
		})
	}
}

func TestLoadGrid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ranges:
  tp_points: {min: 100, max: 300, step: 100}
bools:
  use_obv: [true, false]
fixed:
  max_bars_in_trade: 5
min_trades: 3
top_n: 5
`), 0o644))

	g, err := LoadGrid(path)
	require.NoError(t, err)
	assert.Equal(t, Range{Min: 100, Max: 300, Step: 100}, g.Ranges["tp_points"])
	assert.Len(t, g.Ranges, 1)
	assert.Equal(t, 5, g.Fixed.MaxBarsInTrade)
	assert.Equal(t, 30.0, g.Fixed.ProfitClose)
	assert.Equal(t, 3, g.MinTrades)
	assert.Equal(t, 10000.0, g.InitialCapital)

	vs, err := Enumerate(g)
	require.NoError(t, err)
	assert.Len(t, vs, 6)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("ranges:\n  bogus: {min: 1, max: 2, step: 1}\n"), 0o644))
	_, err = LoadGrid(bad)
	assert.ErrorContains(t, err, "bogus")
}

// burstSeries has a volume burst every 30 bars on a wavy price.
func burstSeries() market.Series {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 300
	s := make(market.Series, n)
	prev := 1.0
	for i := 0; i < n; i++ {
		c := 1 + 0.002*math.Sin(float64(i)/5)
		v := 100 + 10*float64(i%2)
		if i >= 110 && i < 297 {
			switch (i - 110) % 30 {
			case 0:
				v = 300
			case 1:
				v = 600
			case 2:
				v = 1200
			}
		}
		s[i] = market.Candle{
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   prev,
			High:   math.Max(prev, c) + 0.001,
			Low:    math.Min(prev, c) - 0.001,
			Close:  c,
			Volume: v,
		}
		prev = c
	}
	return s
}

func smallGrid() Grid {
	g := DefaultGrid()
	g.Fixed.VolumeSmoothPeriods = 1
	g.Fixed.Hours.Enabled = false
	g.Ranges = map[string]Range{
		"accel_bars_required": {Min: 2, Max: 3, Step: 1},
		"tp_points":           {Min: 50, Max: 100, Step: 50},
	}
	g.Bools = map[string][]bool{"use_trailing_stop": {true, false}}
	g.MinTrades = 1
	return g
}

func TestOptimizerRun(t *testing.T) {
	t.Parallel()

	opt := New(smallGrid(), 3, logger.Nop())
	rep, err := opt.Run(context.Background(), burstSeries())
	require.NoError(t, err)

	assert.Equal(t, 8, rep.Tested)
	assert.Equal(t, 0, rep.Failed)
	require.NotEmpty(t, rep.Valid)
	for i := 1; i < len(rep.Valid); i++ {
		prev, cur := rep.Valid[i-1], rep.Valid[i]
		assert.GreaterOrEqual(t, prev.Scorecard.Sharpe, cur.Scorecard.Sharpe)
		if prev.Scorecard.Sharpe == cur.Scorecard.Sharpe {
			assert.Less(t, prev.Variant.Index, cur.Variant.Index)
		}
	}

	again, err := New(smallGrid(), 1, nil).Run(context.Background(), burstSeries())
	require.NoError(t, err)
	assert.Equal(t, rep.Valid, again.Valid)
}

func TestOptimizerMinTrades(t *testing.T) {
	t.Parallel()

	g := smallGrid()
	g.MinTrades = 1000
	rep, err := New(g, 2, nil).Run(context.Background(), burstSeries())
	require.NoError(t, err)
	assert.Equal(t, 8, rep.Tested)
	assert.Empty(t, rep.Valid)
}

func TestOptimizerCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(smallGrid(), 2, nil).Run(ctx, burstSeries())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimizerShortSeries(t *testing.T) {
	t.Parallel()

	_, err := New(smallGrid(), 2, nil).Run(context.Background(), burstSeries()[:80])
	assert.ErrorIs(t, err, market.ErrNotEnoughBars)
}

func TestExports(t *testing.T) {
	t.Parallel()

	rep, err := New(smallGrid(), 2, nil).Run(context.Background(), burstSeries())
	require.NoError(t, err)
	require.NotEmpty(t, rep.Valid)

	dir := t.TempDir()
	require.NoError(t, rep.Save(dir, 2))

	fh, err := os.Open(filepath.Join(dir, ResultsFile))
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(rep.Valid)+1)
	assert.Equal(t, []string{"rank", "variant", "accel_bars_required", "tp_points", "use_trailing_stop"}, rows[0][:5])
	assert.Equal(t, "1", rows[1][0])

	raw, err := os.ReadFile(filepath.Join(dir, BestConfigsFile))
	require.NoError(t, err)
	var best []BestConfig
	require.NoError(t, json.Unmarshal(raw, &best))
	require.Len(t, best, min(2, len(rep.Valid)))
	assert.Equal(t, 1, best[0].Rank)
	assert.Contains(t, best[0].Params, "tp_points")

	recs, err := rep.Records("opt-1", 2)
	require.NoError(t, err)
	require.Len(t, recs, len(best))
	assert.Equal(t, "opt-1", recs[0].RunID)
	assert.JSONEq(t, string(mustJSON(t, best[0].Params)), recs[0].Params)

	var buf bytes.Buffer
	rep.PrintTop(&buf, 2)
	assert.Contains(t, buf.String(), "Top 2 configurations")
	assert.Contains(t, buf.String(), "#1 (variant")
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
