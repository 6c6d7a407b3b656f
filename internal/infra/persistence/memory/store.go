// Package memory provides an in-memory snapshot store used for tests and
// ephemeral sessions.
package memory

import (
	"context"
	"sync"

	"configforge/pkg/domain"
)

var _ domain.SnapshotStore = (*Store)(nil)

// Store keeps the last saved snapshot in memory.
type Store struct {
	mu       sync.RWMutex
	snapshot domain.Snapshot
	saved    bool
	saves    int
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{}
}

// Load returns a copy of the last saved snapshot.
func (s *Store) Load(_ context.Context) (domain.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.saved {
		return domain.Snapshot{}, false, nil
	}
	return s.snapshot.Clone(), true, nil
}

// Save replaces the stored snapshot.
func (s *Store) Save(_ context.Context, snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot.Clone()
	s.saved = true
	s.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
