package risk

import "time"

// DateLayout is the calendar date format of DailyStats.
const DateLayout = "2006-01-02"

// DailyStats aggregates realized results for one UTC calendar date.
type DailyStats struct {
	Date   string  `json:"date"`
	Profit float64 `json:"profit"`
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`
	// BreakerFired is set once the daily loss limit closed everything.
	BreakerFired bool `json:"breaker_fired"`
}

// DateOf returns the DailyStats key for t.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Roll resets the stats when t falls on a different date. It reports whether
// a rollover happened.
func (d *DailyStats) Roll(t time.Time) bool {
	date := DateOf(t)
	if d.Date == date {
		return false
	}
	*d = DailyStats{Date: date}
	return true
}

// Record adds a closed trade.
func (d *DailyStats) Record(t Trade) {
	d.Profit += t.PnL
	d.Trades++
	if t.Win() {
		d.Wins++
	} else {
		d.Losses++
	}
}

// Breached reports whether realized profit has reached limit. The limit is
// negative and the comparison inclusive.
func (d DailyStats) Breached(limit float64) bool {
	return d.Profit <= limit
}

// WinRate is wins over trades in percent.
func (d DailyStats) WinRate() float64 {
	if d.Trades == 0 {
		return 0
	}
	return float64(d.Wins) / float64(d.Trades) * 100
}
