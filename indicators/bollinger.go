package indicators

import (
	"fmt"

	"github.com/rustyeddy/volaccel/market"
	"gonum.org/v1/gonum/stat"
)

// Bollinger computes Bollinger Bands over closes: a simple moving average with
// bands k population standard deviations away.
type Bollinger struct {
	period int
	k      float64
	window []float64

	mid, upper, lower float64
}

func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{period: period, k: k, window: make([]float64, 0, period)}
}

func (b *Bollinger) Name() string { return fmt.Sprintf("BB(%d,%g)", b.period, b.k) }
func (b *Bollinger) Warmup() int  { return b.period }

func (b *Bollinger) Reset() {
	b.window = b.window[:0]
	b.mid, b.upper, b.lower = 0, 0, 0
}

func (b *Bollinger) Update(c market.Candle) {
	b.window = append(b.window, c.Close)
	if len(b.window) > b.period {
		b.window = b.window[1:]
	}
	if !b.Ready() {
		return
	}
	mean, std := stat.PopMeanStdDev(b.window, nil)
	b.mid = mean
	b.upper = mean + b.k*std
	b.lower = mean - b.k*std
}

func (b *Bollinger) Ready() bool { return len(b.window) >= b.period }

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.mid }
func (b *Bollinger) Upper() float64 { return b.upper }
func (b *Bollinger) Lower() float64 { return b.lower }
