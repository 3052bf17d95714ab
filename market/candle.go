package market

import "time"

// Candle represents one OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Side is the direction of a signal or position: +1 long, -1 short, 0 flat.
type Side int8

const (
	Flat  Side = 0
	Long  Side = +1
	Short Side = -1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// ParseSide is the inverse of Side.String.
func ParseSide(s string) Side {
	switch s {
	case "long", "buy":
		return Long
	case "short", "sell":
		return Short
	}
	return Flat
}

// MarshalText lets Side travel as "long"/"short" in JSON and YAML.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	*s = ParseSide(string(b))
	return nil
}

// Better reports whether price a is strictly more favorable than b for a
// stop on this side: higher for longs, lower for shorts.
func (s Side) Better(a, b float64) bool {
	switch s {
	case Long:
		return a > b
	case Short:
		return a < b
	}
	return false
}

// Opposite returns the reverse direction.
func (s Side) Opposite() Side { return -s }
