package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordTrade(sampleTrade("T1", -1.5, ts)))
	require.NoError(t, j.RecordEquity(EquitySnapshot{Time: ts, Capital: 100, Equity: 101.25, OpenPositions: 1}))
	require.NoError(t, j.Close())

	read := func(path string) [][]string {
		fh, err := os.Open(path)
		require.NoError(t, err)
		defer fh.Close()
		rows, err := csv.NewReader(fh).ReadAll()
		require.NoError(t, err)
		return rows
	}

	trades := read(tradesPath)
	require.Len(t, trades, 2)
	assert.Equal(t, tradeHeader, trades[0])
	assert.Equal(t, "T1", trades[1][0])
	assert.Equal(t, "4", trades[1][5])
	assert.Equal(t, "2024-05-01T12:00:00Z", trades[1][9])
	assert.Equal(t, "-1.500000", trades[1][12])
	assert.Equal(t, "time_limit", trades[1][14])

	equity := read(equityPath)
	require.Len(t, equity, 2)
	assert.Equal(t, equityHeader, equity[0])
	assert.Equal(t, "101.250000", equity[1][3])
	assert.Equal(t, "1", equity[1][5])
}
