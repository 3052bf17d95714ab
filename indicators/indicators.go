// Package indicators provides technical analysis indicators for trading
package indicators

import (
	"math"

	"github.com/rustyeddy/volaccel/market"
)

// Indicator computes a single streaming value from candles.
// It is deterministic and safe to use in live, replay, and backtests.
type Indicator interface {
	// Name returns a stable identifier like "SMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next *closed* candle and updates internal state.
	Update(c market.Candle)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool
}

// ValueF64 is implemented by indicators with a single float output.
type ValueF64 interface {
	Indicator
	// Value returns the current indicator value. If !Ready(), it returns 0;
	// callers should always check Ready().
	Value() float64
}

// Column runs ind over candles from a clean state and records its value after
// every bar. Bars before warmup completes hold NaN.
func Column(ind ValueF64, candles []market.Candle) []float64 {
	ind.Reset()
	out := make([]float64, len(candles))
	for i, c := range candles {
		ind.Update(c)
		if ind.Ready() {
			out[i] = ind.Value()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
