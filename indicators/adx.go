package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/volaccel/market"
)

// ADX implements Wilder's Average Directional Index (trend strength) together
// with the +DI and -DI lines it is built from.
// Usage:
//
//	adx := indicators.NewADX(14)
//	adx.Update(candle)
//	if adx.Ready() && adx.Value() >= 20 && adx.PlusDI() > adx.MinusDI() { ... }
type ADX struct {
	Period int

	prev     market.Candle
	havePrev bool

	// Wilder-smoothed values after warmup
	trS  float64
	pdmS float64
	mdmS float64

	pdi, mdi float64
	diReady  bool

	adx   float64
	dxSum float64

	// count of candles processed (including the first prev seed)
	count int
	ready bool
}

func NewADX(period int) *ADX {
	return &ADX{Period: period}
}

func (a *ADX) Name() string {
	return fmt.Sprintf("ADX(%d)", a.Period)
}

// Warmup is 2*Period candles: Period+1 seed the DI lines and Period DX
// values seed the ADX.
func (a *ADX) Warmup() int {
	return 2 * a.Period
}

func (a *ADX) Reset() {
	*a = ADX{Period: a.Period}
}

func (a *ADX) Value() float64 {
	if !a.ready {
		return 0
	}
	return a.adx
}

func (a *ADX) Ready() bool {
	return a.ready
}

// PlusDI and MinusDI become meaningful once DIReady is true, which happens
// Period bars before the ADX itself is ready.
func (a *ADX) PlusDI() float64  { return a.pdi }
func (a *ADX) MinusDI() float64 { return a.mdi }
func (a *ADX) DIReady() bool    { return a.diReady }

// Update consumes the next candle.
// - Period candles initialize the smoothed TR/+DM/-DM (DI becomes ready)
// - Period DX values then initialize the ADX
func (a *ADX) Update(c market.Candle) {
	if !a.havePrev {
		a.prev = c
		a.havePrev = true
		a.count = 1
		return
	}

	upMove := c.High - a.prev.High
	downMove := a.prev.Low - c.Low

	var pdm, mdm float64
	if upMove > downMove && upMove > 0 {
		pdm = upMove
	}
	if downMove > upMove && downMove > 0 {
		mdm = downMove
	}

	tr := trueRange(c, a.prev)
	a.prev = c
	a.count++

	p := float64(a.Period)

	// Warmup phase A: simple averages of the first Period samples.
	if a.count <= a.Period+1 {
		a.trS += tr
		a.pdmS += pdm
		a.mdmS += mdm
		if a.count < a.Period+1 {
			return
		}
		a.trS /= p
		a.pdmS /= p
		a.mdmS /= p
	} else {
		a.trS = (a.trS*(p-1) + tr) / p
		a.pdmS = (a.pdmS*(p-1) + pdm) / p
		a.mdmS = (a.mdmS*(p-1) + mdm) / p
	}

	// Guard against pathological flat data.
	if a.trS == 0 {
		return
	}

	a.pdi = 100 * a.pdmS / a.trS
	a.mdi = 100 * a.mdmS / a.trS
	a.diReady = true

	den := a.pdi + a.mdi
	dx := 0.0
	if den != 0 {
		dx = 100 * math.Abs(a.pdi-a.mdi) / den
	}

	// Warmup phase B: the first DX arrives at count == Period+1 and Period of
	// them seed the ADX at count == 2*Period.
	seedADXCount := 2 * a.Period
	if !a.ready {
		a.dxSum += dx
		if a.count == seedADXCount {
			a.adx = a.dxSum / p
			a.ready = true
		}
		return
	}

	a.adx = (a.adx*(p-1) + dx) / p
}
