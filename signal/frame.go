// Package signal turns a candle series into volume acceleration trading
// signals confirmed by conventional technical filters.
package signal

import (
	"math"
	"time"

	"github.com/rustyeddy/volaccel/indicators"
	"github.com/rustyeddy/volaccel/market"
)

// Fixed look-backs of the confirmation indicators.
const (
	ADXPeriod      = 14
	RSIPeriod      = 14
	ATRPeriod      = 14
	OBVMAPeriod    = 3
	FastMAPeriod   = 20
	SlowMAPeriod   = 50
	BBPeriod       = 20
	BBDeviations   = 2.0
	MomentumPeriod = 5
)

// MinBars is the history needed before signals are trusted.
const MinBars = 100

// Frame holds every config independent indicator column of a series. It is
// read-only after NewFrame and may be shared between goroutines.
type Frame struct {
	Times  []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64

	ATR      []float64
	ADX      []float64
	PlusDI   []float64
	MinusDI  []float64
	RSI      []float64
	OBV      []float64
	OBVMA    []float64
	SMA20    []float64
	SMA50    []float64
	BBUpper  []float64
	BBMid    []float64
	BBLower  []float64
	Momentum []float64
}

// NewFrame computes all columns for series. Values before an indicator has
// warmed up are NaN.
func NewFrame(series market.Series) *Frame {
	n := len(series)
	f := &Frame{
		Times:   make([]time.Time, n),
		Open:    make([]float64, n),
		High:    make([]float64, n),
		Low:     make([]float64, n),
		Close:   make([]float64, n),
		Volume:  make([]float64, n),
		ADX:     nanColumn(n),
		PlusDI:  nanColumn(n),
		MinusDI: nanColumn(n),
		BBUpper: nanColumn(n),
		BBMid:   nanColumn(n),
		BBLower: nanColumn(n),
	}
	for i, c := range series {
		f.Times[i] = c.Time
		f.Open[i] = c.Open
		f.High[i] = c.High
		f.Low[i] = c.Low
		f.Close[i] = c.Close
		f.Volume[i] = c.Volume
	}

	candles := []market.Candle(series)
	f.ATR = indicators.Column(indicators.NewATR(ATRPeriod), candles)
	f.RSI = indicators.Column(indicators.NewRSI(RSIPeriod), candles)
	f.OBV = indicators.Column(indicators.NewOBV(), candles)
	f.OBVMA = indicators.RollingMean(f.OBV, OBVMAPeriod, OBVMAPeriod)
	f.SMA20 = indicators.Column(indicators.NewMA(FastMAPeriod), candles)
	f.SMA50 = indicators.Column(indicators.NewMA(SlowMAPeriod), candles)
	f.Momentum = indicators.Column(indicators.NewMomentum(MomentumPeriod), candles)

	adx := indicators.NewADX(ADXPeriod)
	bb := indicators.NewBollinger(BBPeriod, BBDeviations)
	for i, c := range candles {
		adx.Update(c)
		if adx.Ready() {
			f.ADX[i] = adx.Value()
		}
		if adx.DIReady() {
			f.PlusDI[i] = adx.PlusDI()
			f.MinusDI[i] = adx.MinusDI()
		}

		bb.Update(c)
		if bb.Ready() {
			f.BBUpper[i] = bb.Upper()
			f.BBMid[i] = bb.Value()
			f.BBLower[i] = bb.Lower()
		}
	}
	return f
}

// Len is the number of bars in the frame.
func (f *Frame) Len() int { return len(f.Close) }

// Candle rebuilds bar i.
func (f *Frame) Candle(i int) market.Candle {
	return market.Candle{
		Time:   f.Times[i],
		Open:   f.Open[i],
		High:   f.High[i],
		Low:    f.Low[i],
		Close:  f.Close[i],
		Volume: f.Volume[i],
	}
}

func nanColumn(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
