package strategy

import (
	"fmt"
	"time"
)

// Session is a daily trading session in UTC minutes since midnight,
// inclusive at both ends.
type Session struct {
	Name  string
	Start int
	End   int
}

var (
	AsianSession    = Session{Name: "asian", Start: 0, End: 8 * 60}
	EuropeanSession = Session{Name: "european", Start: 7 * 60, End: 16 * 60}
	AmericanSession = Session{Name: "american", Start: 13 * 60, End: 22 * 60}
)

// TradingHours gates entries by weekday and session. Exits are never gated.
// Saturday and Sunday are always closed.
type TradingHours struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	Asian    bool `json:"asian" yaml:"asian" mapstructure:"asian"`
	European bool `json:"european" yaml:"european" mapstructure:"european"`
	American bool `json:"american" yaml:"american" mapstructure:"american"`

	// SessionBuffer shaves minutes off both ends of every session.
	SessionBuffer int `json:"session_buffer" yaml:"session_buffer" mapstructure:"session_buffer" validate:"gte=0,lte=240"`

	Monday    bool `json:"monday" yaml:"monday" mapstructure:"monday"`
	Tuesday   bool `json:"tuesday" yaml:"tuesday" mapstructure:"tuesday"`
	Wednesday bool `json:"wednesday" yaml:"wednesday" mapstructure:"wednesday"`
	Thursday  bool `json:"thursday" yaml:"thursday" mapstructure:"thursday"`
	Friday    bool `json:"friday" yaml:"friday" mapstructure:"friday"`

	// Custom replaces the sessions with a single window when set.
	Custom      bool `json:"custom" yaml:"custom" mapstructure:"custom"`
	StartHour   int  `json:"start_hour" yaml:"start_hour" mapstructure:"start_hour" validate:"gte=0,lte=23"`
	StartMinute int  `json:"start_minute" yaml:"start_minute" mapstructure:"start_minute" validate:"gte=0,lte=59"`
	EndHour     int  `json:"end_hour" yaml:"end_hour" mapstructure:"end_hour" validate:"gte=0,lte=23"`
	EndMinute   int  `json:"end_minute" yaml:"end_minute" mapstructure:"end_minute" validate:"gte=0,lte=59"`
}

// DefaultTradingHours trades the European and American sessions Monday to
// Friday with a 15 minute buffer.
func DefaultTradingHours() TradingHours {
	return TradingHours{
		Enabled:       true,
		European:      true,
		American:      true,
		SessionBuffer: 15,
		Monday:        true,
		Tuesday:       true,
		Wednesday:     true,
		Thursday:      true,
		Friday:        true,
	}
}

func (h TradingHours) validate() error {
	if !h.Enabled {
		return nil
	}
	if h.Custom {
		if h.StartHour*60+h.StartMinute >= h.EndHour*60+h.EndMinute {
			return fmt.Errorf("strategy.trading_hours custom start must be before end")
		}
		return nil
	}
	if !h.Asian && !h.European && !h.American {
		return fmt.Errorf("strategy.trading_hours needs at least one session")
	}
	return nil
}

// Sessions returns the enabled sessions with the buffer applied.
func (h TradingHours) Sessions() []Session {
	if h.Custom {
		return []Session{{
			Name:  "custom",
			Start: h.StartHour*60 + h.StartMinute,
			End:   h.EndHour*60 + h.EndMinute,
		}}
	}

	var out []Session
	for _, s := range []struct {
		on bool
		s  Session
	}{
		{h.Asian, AsianSession},
		{h.European, EuropeanSession},
		{h.American, AmericanSession},
	} {
		if !s.on {
			continue
		}
		b := s.s
		b.Start += h.SessionBuffer
		b.End -= h.SessionBuffer
		out = append(out, b)
	}
	return out
}

func (h TradingHours) weekday(d time.Weekday) bool {
	switch d {
	case time.Monday:
		return h.Monday
	case time.Tuesday:
		return h.Tuesday
	case time.Wednesday:
		return h.Wednesday
	case time.Thursday:
		return h.Thursday
	case time.Friday:
		return h.Friday
	}
	return false
}

// Allows reports whether a new position may be opened at t. When the gate is
// disabled every instant is allowed.
func (h TradingHours) Allows(t time.Time) bool {
	if !h.Enabled {
		return true
	}
	t = t.UTC()
	if !h.weekday(t.Weekday()) {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	for _, s := range h.Sessions() {
		if s.Start <= m && m <= s.End {
			return true
		}
	}
	return false
}

// Session returns the name of the first session containing t, or "".
func (h TradingHours) Session(t time.Time) string {
	t = t.UTC()
	m := t.Hour()*60 + t.Minute()
	for _, s := range h.Sessions() {
		if s.Start <= m && m <= s.End {
			return s.Name
		}
	}
	return ""
}
