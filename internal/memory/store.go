// Package memory provides an in-process preference store for tests and
// ephemeral sessions.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/blackmichael/volume/internal/domain"
)

// Store is a KeyValueStore backed by a map.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ domain.KeyValueStore = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return slices.Clone(v), ok, nil
}

// Set stores a copy of value under key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = slices.Clone(value)
	return nil
}

// Delete removes key. Missing keys are ignored.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
