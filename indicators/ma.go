package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/volaccel/market"
)

// MA calculates the Simple Moving Average of the last period closes.
func MA(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(candles) < period {
		return 0, fmt.Errorf("not enough candles: need %d, got %d", period, len(candles))
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period), nil
}

// RollingMean returns the trailing mean of values over period. Positions with
// fewer than minPeriods observations hold NaN; with minPeriods 1 the first
// values are means over the partial window.
func RollingMean(values []float64, period, minPeriods int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	if minPeriods < 1 {
		minPeriods = 1
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		n := i + 1
		if n > period {
			n = period
		}
		if n < minPeriods {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}

// Diff returns values[i] - values[i-lag]; the first lag positions are NaN.
// NaN inputs propagate.
func Diff(values []float64, lag int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < lag {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i] - values[i-lag]
	}
	return out
}

// SimpleMA is a streaming Simple Moving Average over closes, or over arbitrary
// values fed through Add.
type SimpleMA struct {
	period int
	window []float64
	sum    float64
}

// NewMA creates a new Simple Moving Average indicator with the given period
func NewMA(period int) *SimpleMA {
	return &SimpleMA{
		period: period,
		window: make([]float64, 0, period),
	}
}

func (m *SimpleMA) Name() string {
	return fmt.Sprintf("SMA(%d)", m.period)
}

func (m *SimpleMA) Warmup() int {
	return m.period
}

func (m *SimpleMA) Reset() {
	m.window = m.window[:0]
	m.sum = 0
}

func (m *SimpleMA) Update(c market.Candle) {
	m.Add(c.Close)
}

// Add pushes a raw value into the window.
func (m *SimpleMA) Add(v float64) {
	m.window = append(m.window, v)
	m.sum += v
	if len(m.window) > m.period {
		m.sum -= m.window[0]
		m.window = m.window[1:]
	}
}

func (m *SimpleMA) Ready() bool {
	return len(m.window) >= m.period
}

func (m *SimpleMA) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.sum / float64(len(m.window))
}
