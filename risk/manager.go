// Package risk sizes positions and runs their per-bar exit rules.
package risk

import (
	"time"

	"github.com/rustyeddy/volaccel/market"
	"github.com/rustyeddy/volaccel/strategy"
)

// Manager applies one strategy.Config to positions. It holds no position
// state itself and is safe for concurrent use.
type Manager struct {
	cfg strategy.Config
}

func NewManager(cfg strategy.Config) *Manager {
	return &Manager{cfg: cfg}
}

// Config returns the parameter set the manager was built with.
func (m *Manager) Config() strategy.Config { return m.cfg }

// Decision is the result of one Update.
type Decision struct {
	Close     bool
	Reason    ExitReason
	ExitPrice float64

	TrailArmed bool
	TrailMoved bool
	NewStop    float64
	// ProfitPoints is the close to close excursion used by the point rules.
	ProfitPoints float64
}

// Open builds a position with its stop and target placed around price.
func (m *Manager) Open(id string, side market.Side, price, atr float64, t time.Time, s Sizing) *Position {
	stopDist := m.cfg.ATRStopMultiplier * atr
	target := m.cfg.Price(m.cfg.TPPoints)
	dir := float64(side)

	p := &Position{
		ID:        id,
		Side:      side,
		Entry:     price,
		Size:      s.Size,
		Leverage:  s.Leverage,
		EntryTime: t,
		ATR:       atr,
		Stop:      price - dir*stopDist,
		Target:    price + dir*target,
	}
	p.InitialStop = p.Stop
	return p
}

// ProfitPoints is the favorable excursion of p at price, in points.
func (m *Manager) ProfitPoints(p *Position, price float64) float64 {
	return m.cfg.Points(float64(p.Side) * (price - p.Entry))
}

// Update advances p by one bar. Rules run in a fixed order and the first
// exit wins: profit target at the close, trailing ratchet, stop loss before
// take profit against the bar range, then the holding time limit.
func (m *Manager) Update(p *Position, bar market.Candle) Decision {
	cfg := m.cfg
	p.BarsHeld++

	d := Decision{ProfitPoints: m.ProfitPoints(p, bar.Close)}

	if d.ProfitPoints >= cfg.ProfitClose {
		return m.exit(d, ExitProfitTarget, bar.Close)
	}

	if cfg.UseTrailingStop && d.ProfitPoints >= cfg.TrailingStart {
		if !p.TrailingActive {
			p.TrailingActive = true
			p.HighWater = d.ProfitPoints
			d.TrailArmed = true
		} else if d.ProfitPoints > p.HighWater {
			p.HighWater = d.ProfitPoints
			stop := p.Entry + float64(p.Side)*cfg.Price(p.HighWater-cfg.TrailingStep)
			if p.Side.Better(stop, p.Stop) {
				p.Stop = stop
				d.TrailMoved = true
				d.NewStop = stop
			}
		}
	}

	switch p.Side {
	case market.Long:
		if bar.Low <= p.Stop {
			return m.exit(d, ExitStopLoss, p.Stop)
		}
		if bar.High >= p.Target {
			return m.exit(d, ExitTakeProfit, p.Target)
		}
	case market.Short:
		if bar.High >= p.Stop {
			return m.exit(d, ExitStopLoss, p.Stop)
		}
		if bar.Low <= p.Target {
			return m.exit(d, ExitTakeProfit, p.Target)
		}
	}

	if p.BarsHeld >= cfg.MaxBarsInTrade {
		return m.exit(d, ExitTimeLimit, bar.Close)
	}
	return d
}

func (m *Manager) exit(d Decision, reason ExitReason, price float64) Decision {
	d.Close = true
	d.Reason = reason
	d.ExitPrice = price
	return d
}

// Gross is the price P&L of p at price before costs.
func Gross(p *Position, price float64) float64 {
	return float64(p.Side) * (price - p.Entry) * p.Size
}

// Commission is the round trip cost of p when closed at exit.
func (m *Manager) Commission(p *Position, exit float64) float64 {
	return m.cfg.Commission * p.Size * (p.Entry + exit)
}

// Unrealized is the floating P&L of p at price net of the entry commission.
func (m *Manager) Unrealized(p *Position, price float64) float64 {
	return Gross(p, price) - m.cfg.Commission*p.Size*p.Entry
}

// Close turns p into a Trade at price.
func (m *Manager) Close(p *Position, price float64, t time.Time, reason ExitReason) Trade {
	gross := Gross(p, price)
	comm := m.Commission(p, price)
	return Trade{
		ID:         p.ID,
		Side:       p.Side,
		EntryPrice: p.Entry,
		ExitPrice:  price,
		EntryTime:  p.EntryTime,
		ExitTime:   t,
		Size:       p.Size,
		Leverage:   p.Leverage,
		Gross:      gross,
		Commission: comm,
		PnL:        gross - comm,
		BarsHeld:   p.BarsHeld,
		Reason:     reason,
	}
}

// CloseAll closes every position at price.
func (m *Manager) CloseAll(positions []*Position, price float64, t time.Time, reason ExitReason) []Trade {
	out := make([]Trade, 0, len(positions))
	for _, p := range positions {
		out = append(out, m.Close(p, price, t, reason))
	}
	return out
}
