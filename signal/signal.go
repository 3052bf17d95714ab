package signal

import (
	"math"
	"time"

	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/strategy"
)

// Vote is one filter's direction on a bar. Flat means no opinion.
type Vote = market.Side

// Snapshot is the indicator state a signal was produced from.
type Snapshot struct {
	Close          float64 `json:"close"`
	ATR            float64 `json:"atr"`
	ADX            float64 `json:"adx"`
	PlusDI         float64 `json:"plus_di"`
	MinusDI        float64 `json:"minus_di"`
	RSI            float64 `json:"rsi"`
	OBV            float64 `json:"obv"`
	OBVMA          float64 `json:"obv_ma"`
	SMA20          float64 `json:"sma20"`
	SMA50          float64 `json:"sma50"`
	BBUpper        float64 `json:"bb_upper"`
	BBLower        float64 `json:"bb_lower"`
	Momentum       float64 `json:"momentum"`
	VolFirst       float64 `json:"vol_first_norm"`
	VolSecond      float64 `json:"vol_second_norm"`
	SmoothedVolume float64 `json:"smoothed_volume"`
}

// Signal is the decision for one bar.
type Signal struct {
	Index int         `json:"index"`
	Time  time.Time   `json:"time"`
	Side  market.Side `json:"side"`

	// Primary is the volume acceleration vote before confirmation.
	Primary    market.Side `json:"primary"`
	RunLength  int         `json:"run_length"`
	Agreements float64     `json:"agreements"`
	Required   int         `json:"required"`
	// Ratio is agreements over required, 1 when no filter is enabled.
	Ratio  float64 `json:"ratio"`
	Vetoed bool    `json:"vetoed"`

	// Snapshot holds NaN before warmup and is not JSON encodable.
	Snapshot Snapshot `json:"-"`
}

// Votes are the per-filter opinions on one bar.
type Votes struct {
	ADX       Vote
	OBV       Vote
	PriceMA   Vote
	Bollinger Vote
	RSI       Vote
}

// Generate evaluates every bar of f under cfg. The result has one Signal per
// bar; bars without a decision carry Side Flat.
func Generate(f *Frame, cfg strategy.Config) []Signal {
	acc := VolumeAcceleration(f.Volume, cfg.VolumeSmoothPeriods)
	out := make([]Signal, f.Len())
	for i := range out {
		out[i] = evaluate(f, acc, cfg, i)
	}
	return out
}

// Latest evaluates only the last bar of f. It returns false for an empty
// frame.
func Latest(f *Frame, cfg strategy.Config) (Signal, bool) {
	if f.Len() == 0 {
		return Signal{}, false
	}
	acc := VolumeAcceleration(f.Volume, cfg.VolumeSmoothPeriods)
	return evaluate(f, acc, cfg, f.Len()-1), true
}

// PrimaryVote maps a run length onto a direction.
func PrimaryVote(run, required int) market.Side {
	switch {
	case run >= required:
		return market.Long
	case run <= -required:
		return market.Short
	}
	return market.Flat
}

// VotesAt computes every filter vote on bar i regardless of which filters
// cfg enables. NaN inputs vote Flat.
func VotesAt(f *Frame, cfg strategy.Config, i int) Votes {
	var v Votes

	adx, pdi, mdi := f.ADX[i], f.PlusDI[i], f.MinusDI[i]
	if adx > cfg.ADXThreshold {
		switch {
		case pdi > mdi:
			v.ADX = market.Long
		case mdi > pdi:
			v.ADX = market.Short
		}
	}

	if i > 0 {
		obv, prev, ma := f.OBV[i], f.OBV[i-1], f.OBVMA[i]
		if cfg.OBVUseTrend {
			switch {
			case obv > ma && obv > prev:
				v.OBV = market.Long
			case obv < ma && obv < prev:
				v.OBV = market.Short
			}
		} else {
			switch {
			case obv > prev:
				v.OBV = market.Long
			case obv < prev:
				v.OBV = market.Short
			}
		}
	}

	c, sma, mom := f.Close[i], f.SMA20[i], f.Momentum[i]
	switch {
	case c > sma && mom > 0:
		v.PriceMA = market.Long
	case c < sma && mom < 0:
		v.PriceMA = market.Short
	}

	switch {
	case c < f.BBLower[i]:
		v.Bollinger = market.Long
	case c > f.BBUpper[i]:
		v.Bollinger = market.Short
	}

	rsi := f.RSI[i]
	switch {
	case rsi < cfg.RSIOversold:
		v.RSI = market.Long
	case rsi > cfg.RSIOverbought:
		v.RSI = market.Short
	}
	return v
}

func evaluate(f *Frame, acc Acceleration, cfg strategy.Config, i int) Signal {
	s := Signal{
		Index:     i,
		Time:      f.Times[i],
		RunLength: acc.Run[i],
		Snapshot:  snapshot(f, acc, i),
	}
	s.Primary = PrimaryVote(acc.Run[i], cfg.AccelBarsRequired)
	if s.Primary == market.Flat {
		return s
	}

	votes := VotesAt(f, cfg, i)
	for _, filter := range []struct {
		on   bool
		vote Vote
	}{
		{cfg.UseADX, votes.ADX},
		{cfg.UseOBV, votes.OBV},
		{cfg.UsePriceMA, votes.PriceMA},
		{cfg.UseBBFilter, votes.Bollinger},
	} {
		if !filter.on {
			continue
		}
		s.Required++
		if filter.vote == s.Primary {
			s.Agreements++
		}
	}

	if cfg.UseRSIFilter {
		switch votes.RSI {
		case s.Primary:
			s.Agreements += 0.5
		case -s.Primary:
			s.Vetoed = true
			return s
		}
	}

	if s.Required == 0 {
		s.Ratio = 1
		s.Side = s.Primary
		return s
	}
	s.Ratio = math.Min(s.Agreements/float64(s.Required), 1)
	if s.Agreements >= float64(s.Required)*cfg.MinConfirmationsRatio {
		s.Side = s.Primary
	}
	return s
}

func snapshot(f *Frame, acc Acceleration, i int) Snapshot {
	return Snapshot{
		Close:          f.Close[i],
		ATR:            f.ATR[i],
		ADX:            f.ADX[i],
		PlusDI:         f.PlusDI[i],
		MinusDI:        f.MinusDI[i],
		RSI:            f.RSI[i],
		OBV:            f.OBV[i],
		OBVMA:          f.OBVMA[i],
		SMA20:          f.SMA20[i],
		SMA50:          f.SMA50[i],
		BBUpper:        f.BBUpper[i],
		BBLower:        f.BBLower[i],
		Momentum:       f.Momentum[i],
		VolFirst:       acc.FirstNorm[i],
		VolSecond:      acc.SecondNorm[i],
		SmoothedVolume: acc.Smoothed[i],
	}
}
