package indicators

import (
	"fmt"

	"github.com/rustyeddy/volaccel/market"
)

// Momentum is close minus the close lag bars earlier.
type Momentum struct {
	lag    int
	closes []float64
}

func NewMomentum(lag int) *Momentum {
	return &Momentum{lag: lag, closes: make([]float64, 0, lag+1)}
}

func (m *Momentum) Name() string { return fmt.Sprintf("MOM(%d)", m.lag) }
func (m *Momentum) Warmup() int  { return m.lag + 1 }
func (m *Momentum) Reset()       { m.closes = m.closes[:0] }

func (m *Momentum) Update(c market.Candle) {
	m.closes = append(m.closes, c.Close)
	if len(m.closes) > m.lag+1 {
		m.closes = m.closes[1:]
	}
}

func (m *Momentum) Ready() bool { return len(m.closes) == m.lag+1 }

func (m *Momentum) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.closes[m.lag] - m.closes[0]
}
