package market

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotEnoughBars is returned when a series is shorter than a required look-back.
var ErrNotEnoughBars = errors.New("not enough bars")

// Series is an ordered sequence of candles with strictly increasing timestamps.
type Series []Candle

// Validate checks ordering and basic sanity of every bar.
func (s Series) Validate() error {
	for i, c := range s {
		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
			return fmt.Errorf("bar %d (%s): prices must be positive", i, c.Time.Format(time.RFC3339))
		}
		if c.High < c.Low {
			return fmt.Errorf("bar %d (%s): high %.8f below low %.8f", i, c.Time.Format(time.RFC3339), c.High, c.Low)
		}
		if c.Volume < 0 {
			return fmt.Errorf("bar %d (%s): negative volume", i, c.Time.Format(time.RFC3339))
		}
		if i > 0 && !c.Time.After(s[i-1].Time) {
			return fmt.Errorf("bar %d (%s): timestamps must be strictly increasing", i, c.Time.Format(time.RFC3339))
		}
	}
	return nil
}

// Require returns ErrNotEnoughBars when the series holds fewer than n bars.
func (s Series) Require(n int) error {
	if len(s) < n {
		return fmt.Errorf("%w: need %d, got %d", ErrNotEnoughBars, n, len(s))
	}
	return nil
}

// Last returns the final candle. It panics on an empty series.
func (s Series) Last() Candle {
	return s[len(s)-1]
}

// Closes extracts the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volume column.
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Volume
	}
	return out
}

// After returns the suffix of bars strictly newer than t.
func (s Series) After(t time.Time) Series {
	for i, c := range s {
		if c.Time.After(t) {
			return s[i:]
		}
	}
	return s[len(s):]
}

type Gap struct {
	StartIdx int           // index of the bar after the hole
	Missing  int           // number of missing intervals
	Span     time.Duration // wall time between the two bars
	Kind     string        // weekend, suspicious or minor
}

type GapStats struct {
	Bars           int
	GapCount       int
	MissingBars    int
	WeekendGaps    int
	SuspiciousGaps int
	LongestGap     int
	LongestGapKind string
}

// Gaps reports holes in a series sampled every interval. The engine does not
// treat gaps as errors; they only degrade indicator quality.
func (s Series) Gaps(interval time.Duration) []Gap {
	if interval <= 0 {
		return nil
	}
	var gaps []Gap
	for i := 1; i < len(s); i++ {
		span := s[i].Time.Sub(s[i-1].Time)
		if span <= interval {
			continue
		}
		missing := int(span/interval) - 1
		if missing <= 0 {
			continue
		}
		gaps = append(gaps, Gap{
			StartIdx: i,
			Missing:  missing,
			Span:     span,
			Kind:     classifyGap(s[i-1].Time, span),
		})
	}
	return gaps
}

func classifyGap(from time.Time, span time.Duration) string {
	wd := from.UTC().Weekday()

	// Weekend-ish if the hole is a day or longer and starts Fri/Sat/Sun.
	if span >= 24*time.Hour {
		if wd == time.Friday || wd == time.Saturday || wd == time.Sunday {
			return "weekend"
		}
		return "suspicious"
	}
	if span >= 4*time.Hour {
		return "suspicious"
	}
	return "minor"
}

// Stats summarizes gap information for interval-spaced bars.
func (s Series) Stats(interval time.Duration) GapStats {
	st := GapStats{Bars: len(s)}
	for _, g := range s.Gaps(interval) {
		st.GapCount++
		st.MissingBars += g.Missing
		if g.Missing > st.LongestGap {
			st.LongestGap = g.Missing
			st.LongestGapKind = g.Kind
		}
		switch g.Kind {
		case "weekend":
			st.WeekendGaps++
		case "suspicious":
			st.SuspiciousGaps++
		}
	}
	return st
}

func (s Series) PrintStats(w io.Writer, interval time.Duration) {
	if len(s) == 0 {
		fmt.Fprintln(w, "---- Series Stats ----")
		fmt.Fprintln(w, "(empty)")
		return
	}
	st := s.Stats(interval)

	fmt.Fprintln(w, "---- Series Stats ----")
	fmt.Fprintf(w, "Range: %s → %s\n", s[0].Time.Format(time.RFC3339), s.Last().Time.Format(time.RFC3339))
	fmt.Fprintf(w, "            Bars: %d\n", st.Bars)
	fmt.Fprintf(w, "    Missing Bars: %d\n", st.MissingBars)
	fmt.Fprintf(w, "      Total Gaps: %d\n", st.GapCount)
	fmt.Fprintf(w, "    Weekend Gaps: %d\n", st.WeekendGaps)
	fmt.Fprintf(w, " Suspicious Gaps: %d\n", st.SuspiciousGaps)
	fmt.Fprintf(w, "Longest Gap: %d bars (%s)\n", st.LongestGap, st.LongestGapKind)
	fmt.Fprintln(w, "----------------------")
}
