package signal

import (
	"math"
	"testing"

	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/market/markettest"
	"github.com/rustyeddy/volaccel/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// burst is 40 calm bars, five bars of doubling volume and 40 calm bars. With
// no smoothing the acceleration run is 1..5 over the burst and -1 on the
// collapse.
func burstVolume() []float64 {
	v := make([]float64, 0, 85)
	for i := 0; i < 40; i++ {
		v = append(v, 100)
	}
	v = append(v, 200, 400, 800, 1600, 3200)
	for i := 0; i < 40; i++ {
		v = append(v, 100)
	}
	return v
}

func burstSeries() market.Series {
	s := markettest.Flat(85, 1.0, 100)
	for i, v := range burstVolume() {
		s[i].Volume = v
	}
	return s
}

func plainConfig() strategy.Config {
	cfg := strategy.Default()
	cfg.VolumeSmoothPeriods = 1
	cfg.AccelBarsRequired = 2
	cfg.MinConfirmationsRatio = 0
	return cfg
}

func TestVolumeAcceleration(t *testing.T) {
	t.Parallel()
	acc := VolumeAcceleration(burstVolume(), 1)

	want := make([]int, 85)
	for i := 0; i < 5; i++ {
		want[40+i] = i + 1
	}
	want[45] = -1
	assert.Equal(t, want, acc.Run)

	assert.True(t, math.IsNaN(acc.FirstNorm[0]))
	assert.True(t, math.IsNaN(acc.SecondNorm[1]))
	assert.Greater(t, acc.FirstNorm[40], AccelThreshold)
}

func TestVolumeAccelerationRunRules(t *testing.T) {
	t.Parallel()
	s := markettest.RandomWalk(400, 11, 0.6)
	acc := VolumeAcceleration(s.Volumes(), 3)

	assert.Equal(t, 0, acc.Run[0])
	for i := 1; i < len(acc.Run); i++ {
		up := acc.FirstNorm[i] > AccelThreshold && acc.SecondNorm[i] > AccelThreshold
		down := acc.FirstNorm[i] < -AccelThreshold && acc.SecondNorm[i] < -AccelThreshold
		prev := acc.Run[i-1]
		switch {
		case up:
			assert.Equal(t, max(0, prev)+1, acc.Run[i], "bar %d", i)
		case down:
			assert.Equal(t, min(0, prev)-1, acc.Run[i], "bar %d", i)
		default:
			assert.Equal(t, 0, acc.Run[i], "bar %d", i)
		}
	}
}

func TestZScoreConstant(t *testing.T) {
	t.Parallel()
	z := zscore([]float64{math.NaN(), 5, 5, 5})
	assert.True(t, math.IsNaN(z[0]))
	for _, v := range z[1:] {
		assert.Equal(t, 0.0, v)
	}
}

func TestPrimaryVote(t *testing.T) {
	t.Parallel()
	tests := []struct {
		run  int
		want market.Side
	}{
		{3, market.Long},
		{2, market.Long},
		{1, market.Flat},
		{0, market.Flat},
		{-1, market.Flat},
		{-2, market.Short},
		{-7, market.Short},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PrimaryVote(tt.run, 2), "run %d", tt.run)
	}
}

func TestGenerateWithoutFilters(t *testing.T) {
	t.Parallel()
	sigs := Generate(NewFrame(burstSeries()), plainConfig())
	require.Len(t, sigs, 85)

	for i, s := range sigs {
		assert.Equal(t, i, s.Index)
		switch {
		case i >= 41 && i <= 44:
			assert.Equal(t, market.Long, s.Side, "bar %d", i)
			assert.Equal(t, 1.0, s.Ratio)
			assert.Equal(t, 0, s.Required)
		default:
			assert.Equal(t, market.Flat, s.Side, "bar %d", i)
		}
	}
}

func TestGenerateRequiresConfirmation(t *testing.T) {
	t.Parallel()
	cfg := plainConfig()
	cfg.UseADX = true
	cfg.MinConfirmationsRatio = 0.5

	// Flat prices never give the ADX filter a direction.
	sigs := Generate(NewFrame(burstSeries()), cfg)
	for i := 41; i <= 44; i++ {
		assert.Equal(t, market.Long, sigs[i].Primary)
		assert.Equal(t, market.Flat, sigs[i].Side)
		assert.Equal(t, 1, sigs[i].Required)
		assert.Equal(t, 0.0, sigs[i].Agreements)
	}

	cfg.MinConfirmationsRatio = 0
	sigs = Generate(NewFrame(burstSeries()), cfg)
	assert.Equal(t, market.Long, sigs[42].Side)
}

func TestGenerateRSI(t *testing.T) {
	t.Parallel()
	f := NewFrame(burstSeries())

	t.Run("opposing extreme vetoes", func(t *testing.T) {
		cfg := plainConfig()
		cfg.UseRSIFilter = true
		// flat closes keep RSI at 50, which is overbought here
		cfg.RSIOverbought, cfg.RSIOversold = 40, 10
		sigs := Generate(f, cfg)
		for i := 41; i <= 44; i++ {
			assert.True(t, sigs[i].Vetoed, "bar %d", i)
			assert.Equal(t, market.Flat, sigs[i].Side)
		}
	})

	t.Run("agreement counts half", func(t *testing.T) {
		cfg := plainConfig()
		cfg.UseRSIFilter = true
		cfg.RSIOverbought, cfg.RSIOversold = 90, 60
		sigs := Generate(f, cfg)
		for i := 41; i <= 44; i++ {
			assert.False(t, sigs[i].Vetoed)
			assert.Equal(t, 0.5, sigs[i].Agreements)
			assert.Equal(t, 0, sigs[i].Required)
			assert.Equal(t, market.Long, sigs[i].Side)
		}
	})
}

func TestGenerateDeterministic(t *testing.T) {
	t.Parallel()
	s := markettest.RandomWalk(600, 42, 0.55)
	cfg := strategy.Default()
	cfg.UseADX = true
	cfg.UseOBV = true
	cfg.UseRSIFilter = true

	a := Generate(NewFrame(s), cfg)
	b := Generate(NewFrame(s), cfg)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Side, b[i].Side)
		assert.Equal(t, a[i].RunLength, b[i].RunLength)
		assert.Equal(t, a[i].Agreements, b[i].Agreements)
		assert.Equal(t, a[i].Vetoed, b[i].Vetoed)
	}
}

func TestLatestMatchesGenerate(t *testing.T) {
	t.Parallel()
	s := markettest.RandomWalk(300, 5, 0.55)
	cfg := strategy.Default()
	f := NewFrame(s)

	all := Generate(f, cfg)
	last, ok := Latest(f, cfg)
	require.True(t, ok)
	assert.Equal(t, all[len(all)-1].Side, last.Side)
	assert.Equal(t, all[len(all)-1].RunLength, last.RunLength)
	assert.Equal(t, s[len(s)-1].Time, last.Time)

	_, ok = Latest(NewFrame(nil), cfg)
	assert.False(t, ok)
}

func TestVotesAt(t *testing.T) {
	t.Parallel()
	f := &Frame{
		Close:    []float64{1.0, 1.2},
		ADX:      []float64{math.NaN(), 30},
		PlusDI:   []float64{math.NaN(), 10},
		MinusDI:  []float64{math.NaN(), 25},
		OBV:      []float64{0, 50},
		OBVMA:    []float64{math.NaN(), 40},
		SMA20:    []float64{math.NaN(), 1.1},
		Momentum: []float64{math.NaN(), 0.1},
		BBUpper:  []float64{math.NaN(), 1.15},
		BBLower:  []float64{math.NaN(), 0.9},
		RSI:      []float64{math.NaN(), 75},
	}
	cfg := strategy.Default()

	v := VotesAt(f, cfg, 1)
	assert.Equal(t, market.Short, v.ADX)
	assert.Equal(t, market.Long, v.OBV)
	assert.Equal(t, market.Long, v.PriceMA)
	assert.Equal(t, market.Short, v.Bollinger)
	assert.Equal(t, market.Short, v.RSI)

	cfg.OBVUseTrend = true
	f.OBVMA[1] = 60
	assert.Equal(t, market.Flat, VotesAt(f, cfg, 1).OBV)

	// warmup NaNs never vote
	v = VotesAt(f, cfg, 0)
	assert.Equal(t, Votes{}, v)
}

func TestNewFrameWarmup(t *testing.T) {
	t.Parallel()
	f := NewFrame(markettest.RandomWalk(120, 9, 1.0))
	require.Equal(t, 120, f.Len())

	assert.True(t, math.IsNaN(f.ATR[13]))
	assert.False(t, math.IsNaN(f.ATR[14]))
	assert.True(t, math.IsNaN(f.ADX[26]))
	assert.False(t, math.IsNaN(f.ADX[27]))
	assert.True(t, math.IsNaN(f.SMA50[48]))
	assert.False(t, math.IsNaN(f.SMA50[49]))
	assert.True(t, math.IsNaN(f.OBVMA[1]))
	assert.False(t, math.IsNaN(f.OBVMA[2]))
	assert.Equal(t, f.Close[7], f.Candle(7).Close)
}
