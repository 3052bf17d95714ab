package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsParseableAndSorted(t *testing.T) {
	a := New()
	b := New()

	_, err := ulid.Parse(a)
	require.NoError(t, err)
	_, err = ulid.Parse(b)
	require.NoError(t, err)
	assert.Less(t, a, b)
}

func TestSourceIsReplayable(t *testing.T) {
	ts := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	s1 := NewSource(42)
	s2 := NewSource(42)
	for i := 0; i < 5; i++ {
		at := ts.Add(time.Duration(i) * time.Hour)
		assert.Equal(t, s1.At(at), s2.At(at))
	}
}

func TestSourceEncodesTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	v, err := ulid.Parse(NewSource(1).At(ts))
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(ts), v.Time())
}
