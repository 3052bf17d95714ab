package cmd

import (
	"testing"
	"time"

	"github.com/rustyeddy/volaccel/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayBounds(t *testing.T) {
	t.Parallel()

	start, end, err := dayBounds(time.UTC, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	_, _, err = dayBounds(time.UTC, "15/01/2024")
	assert.Error(t, err)
}

func TestMergeSeries(t *testing.T) {
	t.Parallel()

	at := func(h int, c float64) market.Candle {
		return market.Candle{Time: time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	old := market.Series{at(0, 1), at(1, 1), at(2, 1)}
	fresh := market.Series{at(2, 2), at(3, 2)}

	got := mergeSeries(old, fresh)
	require.Len(t, got, 4)
	assert.Equal(t, 2.0, got[2].Close)
	assert.Equal(t, 3, got[3].Time.Hour())
	assert.NoError(t, got.Validate())
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
