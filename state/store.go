// Package state persists the live engine state between invocations as a
// JSON document.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rustyeddy/volaccel/engine"
)

// DefaultPath is the state file used when none is configured.
const DefaultPath = "trading_state.json"

// ErrCorrupt reports a state file that exists but cannot be decoded. Load
// still returns a fresh state alongside it.
var ErrCorrupt = errors.New("state file is corrupt")

type Store struct {
	path    string
	capital float64
	now     func() time.Time
}

// NewStore returns a store at path. Fresh states start with capital.
func NewStore(path string, capital float64) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path, capital: capital, now: time.Now}
}

func (s *Store) Path() string { return s.path }

// Fresh is the state of a first run.
func (s *Store) Fresh() *engine.State {
	return engine.NewState(s.capital)
}

// Load reads the state. A missing file yields a fresh state and no error. An
// unreadable or undecodable file yields a fresh state and an error wrapping
// ErrCorrupt so the caller can report it and carry on.
func (s *Store) Load() (*engine.State, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.Fresh(), nil
	}
	if err != nil {
		return s.Fresh(), fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	st := &engine.State{}
	if err := json.Unmarshal(b, st); err != nil {
		return s.Fresh(), fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	for _, p := range st.Positions {
		if p == nil || p.ID == "" {
			return s.Fresh(), fmt.Errorf("%w: %s: position without id", ErrCorrupt, s.path)
		}
	}
	return st, nil
}

// Save stamps LastUpdate and replaces the file atomically: the document is
// written to a temporary file in the same directory and renamed over the
// old one.
func (s *Store) Save(st *engine.State) error {
	st.LastUpdate = s.now().UTC()
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("save state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("save state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Reset overwrites the file with a fresh state.
func (s *Store) Reset() (*engine.State, error) {
	st := s.Fresh()
	if err := s.Save(st); err != nil {
		return nil, err
	}
	return st, nil
}
