package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Source hands out ULIDs from a monotonic entropy stream.
// IDs generated within the same millisecond stay lexicographically increasing.
type Source struct {
	mu   sync.Mutex
	mono *ulid.MonotonicEntropy
}

// NewSource returns a Source seeded with seed. Two sources with the same seed
// fed the same timestamps produce the same IDs, which keeps backtests replayable.
func NewSource(seed int64) *Source {
	return &Source{mono: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)}
}

// At returns a ULID stamped with t.
func (s *Source) At(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), s.mono)
	if err != nil {
		// Only happens if time goes backwards past the monotonic window or entropy fails.
		panic(err)
	}
	return id.String()
}

var global = func() *Source {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewSource(seed)
}()

// New returns a ULID string (time-sortable identifier) for the current time.
func New() string {
	return global.At(time.Now())
}
