package risk

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSizing is returned when a position cannot be sized from the
// given inputs.
var ErrInvalidSizing = errors.New("invalid sizing inputs")

// Sizing is the outcome of the position sizing rule.
type Sizing struct {
	Size       float64
	Leverage   int
	RiskAmount float64
	// RawSize is the unconstrained risk based size.
	RawSize  float64
	Notional float64
	Margin   float64
}

// PlannedRisk is the loss if the stop is hit.
func PlannedRisk(size, entry, stop float64) float64 {
	return size * math.Abs(entry-stop)
}

// RR is the reward to risk ratio of a bracket.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	reward := math.Abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}

// Size applies the risk budget to the stop distance.
//
// Unleveraged sizing caps notional at MaxNotionalFraction of capital.
// Leveraged sizing picks the smallest leverage in [LeverageMin, LeverageMax]
// covering the shortfall between the risk based size and what capital can
// buy outright.
func (m *Manager) Size(price, atr, capital float64, leveraged bool) (Sizing, error) {
	if price <= 0 || atr <= 0 || capital <= 0 || math.IsNaN(atr) || math.IsNaN(price) {
		return Sizing{}, fmt.Errorf("%w: price=%g atr=%g capital=%g", ErrInvalidSizing, price, atr, capital)
	}

	cfg := m.cfg
	s := Sizing{Leverage: 1}
	s.RiskAmount = capital * cfg.RiskPerTrade
	s.RawSize = s.RiskAmount / (cfg.ATRStopMultiplier * atr)

	if !leveraged {
		s.Size = math.Min(s.RawSize, capital*cfg.MaxNotionalFraction/price)
	} else {
		affordable := capital / price
		s.Size = s.RawSize
		if s.RawSize > affordable {
			lev := int(math.Ceil(s.RawSize / affordable))
			lev = max(cfg.LeverageMin, min(lev, cfg.LeverageMax))
			s.Leverage = lev
			s.Size = math.Min(s.RawSize, affordable*float64(lev))
		}
	}

	if s.Size <= 0 || math.IsInf(s.Size, 0) {
		return Sizing{}, fmt.Errorf("%w: size %g", ErrInvalidSizing, s.Size)
	}
	s.Notional = s.Size * price
	s.Margin = s.Notional / float64(s.Leverage)
	return s, nil
}
