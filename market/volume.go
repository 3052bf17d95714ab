package market

import (
	"math"
	"math/rand"
)

// HasVolume reports whether the series carries usable volume. Some exports
// carry zero or token volume.
func (s Series) HasVolume() bool {
	if len(s) == 0 {
		return false
	}
	sum := 0.0
	for _, c := range s {
		sum += c.Volume
	}
	return sum > 0 && sum/float64(len(s)) >= 1
}

// SynthesizeVolume returns a copy of s with a volume proxy built from bar range,
// close-to-close change and a UTC session activity factor. seed drives the noise
// term so the output is reproducible.
func SynthesizeVolume(s Series, seed int64) Series {
	out := make(Series, len(s))
	copy(out, s)
	if len(s) == 0 {
		return out
	}

	rng := make([]float64, len(s))
	chg := make([]float64, len(s))
	for i, c := range s {
		rng[i] = c.High - c.Low
		if i > 0 {
			chg[i] = math.Abs(c.Close - s[i-1].Close)
		} else {
			chg[i] = math.NaN()
		}
	}
	normalize(rng)
	normalize(chg)

	r := rand.New(rand.NewSource(seed))
	for i := range out {
		base := rng[i]
		if !math.IsNaN(chg[i]) {
			base = (rng[i] + chg[i]) / 2
		}
		noise := math.Min(math.Max(r.NormFloat64()*0.2+1, 0.5), 1.5)
		out[i].Volume = base * sessionFactor(out[i].Time.UTC().Hour()) * noise * 100000
	}
	return out
}

// normalize min-max scales v in place, ignoring NaN.
func normalize(v []float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		if math.IsNaN(x) {
			continue
		}
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	for i, x := range v {
		if !math.IsNaN(x) {
			v[i] = (x - lo) / (hi - lo + 1e-10)
		}
	}
}

func sessionFactor(hour int) float64 {
	switch {
	case hour >= 8 && hour < 12:
		return 1.5
	case hour >= 13 && hour < 17:
		return 2.0
	case hour >= 17 && hour < 22:
		return 1.3
	}
	return 1
}
