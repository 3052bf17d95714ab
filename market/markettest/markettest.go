// Package markettest builds deterministic candle series for tests.
package markettest

import (
	"math"
	"math/rand"
	"time"

	"github.com/rustyeddy/volaccel/market"
)

// Start is the default first bar time: a Monday at midnight UTC.
var Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// RandomWalk returns n hourly bars following a seeded random walk around price.
// Volume alternates between calm and bursting regimes so volume acceleration
// signals appear in both directions.
func RandomWalk(n int, seed int64, price float64) market.Series {
	r := rand.New(rand.NewSource(seed))
	out := make(market.Series, n)
	vol := 1000.0
	for i := 0; i < n; i++ {
		open := price
		step := r.NormFloat64() * price * 0.002
		price = math.Max(open+step, price*0.5)
		hi := math.Max(open, price) + math.Abs(r.NormFloat64())*price*0.001
		lo := math.Min(open, price) - math.Abs(r.NormFloat64())*price*0.001

		switch (i / 6) % 3 {
		case 0:
			vol *= 1.25 + r.Float64()*0.2
		case 1:
			vol *= 0.7 + r.Float64()*0.1
		default:
			vol = vol*0.9 + 100*r.Float64()
		}
		vol = math.Min(math.Max(vol, 50), 1e7)

		out[i] = market.Candle{
			Time:   Start.Add(time.Duration(i) * time.Hour),
			Open:   open,
			High:   hi,
			Low:    lo,
			Close:  price,
			Volume: vol,
		}
	}
	return out
}

// Flat returns n hourly bars with constant price and volume.
func Flat(n int, price, volume float64) market.Series {
	out := make(market.Series, n)
	for i := range out {
		out[i] = market.Candle{
			Time:   Start.Add(time.Duration(i) * time.Hour),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: volume,
		}
	}
	return out
}

// Bar is a shorthand constructor used by table tests.
func Bar(t time.Time, o, h, l, c, v float64) market.Candle {
	return market.Candle{Time: t, Open: o, High: h, Low: l, Close: c, Volume: v}
}
