package indicators

import "github.com/rustyeddy/volaccel/market"

// OBV is On-Balance Volume: volume is added on up closes, subtracted on down
// closes and ignored when the close is unchanged. The first candle seeds 0.
type OBV struct {
	obv       float64
	prevClose float64
	havePrev  bool
}

func NewOBV() *OBV { return &OBV{} }

func (o *OBV) Name() string { return "OBV" }
func (o *OBV) Warmup() int  { return 1 }
func (o *OBV) Reset()       { *o = OBV{} }
func (o *OBV) Ready() bool  { return o.havePrev }

func (o *OBV) Update(c market.Candle) {
	if o.havePrev {
		switch {
		case c.Close > o.prevClose:
			o.obv += c.Volume
		case c.Close < o.prevClose:
			o.obv -= c.Volume
		}
	}
	o.prevClose = c.Close
	o.havePrev = true
}

func (o *OBV) Value() float64 { return o.obv }
