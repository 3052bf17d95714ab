package risk

import (
	"fmt"
	"time"

	"github.com/rustyeddy/volaccel/market"
)

type Violation struct {
	Code string
	Msg  string
}

// EntryDecision says whether a new position may be opened.
type EntryDecision struct {
	Allowed    bool
	Violations []Violation
}

func (d *EntryDecision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Reason joins the violation codes.
func (d EntryDecision) Reason() string {
	out := ""
	for i, v := range d.Violations {
		if i > 0 {
			out += ","
		}
		out += v.Code
	}
	return out
}

// EntryContext is what the entry gate looks at.
type EntryContext struct {
	Now            time.Time
	Side           market.Side
	TradingEnabled bool
	Open           []*Position
	// Capital and Exposure feed the MaxExposure cap. Exposure is the open
	// notional at the current price.
	Capital  float64
	Exposure float64
}

// CheckEntry evaluates the entry gate: trading enabled, trading hours, a
// directional signal, position capacity, the same direction rule and the
// exposure cap.
func (m *Manager) CheckEntry(c EntryContext) EntryDecision {
	cfg := m.cfg
	d := EntryDecision{Allowed: true}

	if !c.TradingEnabled {
		d.add("TRADING_DISABLED", "daily loss limit reached")
	}
	if !cfg.Hours.Allows(c.Now) {
		d.add("OUTSIDE_HOURS", fmt.Sprintf("%s is outside trading hours", c.Now.UTC().Format("Mon 15:04")))
	}
	if c.Side == market.Flat {
		d.add("NO_SIGNAL", "no directional signal")
	}
	if len(c.Open) >= cfg.MaxPositions {
		d.add("MAX_POSITIONS",
			fmt.Sprintf("open positions %d >= max %d", len(c.Open), cfg.MaxPositions))
	}
	if cfg.SameDirectionOnly && len(c.Open) > 0 && c.Side != market.Flat && c.Open[0].Side != c.Side {
		d.add("DIRECTION_CONFLICT",
			fmt.Sprintf("open %s position blocks %s entry", c.Open[0].Side, c.Side))
	}
	if cfg.MaxExposure > 0 && c.Exposure >= cfg.MaxExposure*c.Capital {
		d.add("MAX_EXPOSURE",
			fmt.Sprintf("open notional %.2f >= %.2f x capital %.2f", c.Exposure, cfg.MaxExposure, c.Capital))
	}
	return d
}
