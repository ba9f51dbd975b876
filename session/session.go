// Package session holds JSON-safe key/value state that outlives a single
// script invocation for the life of a connection. Only a snapshot copy ever
// crosses the isolation boundary; mutations come back as explicit session
// update messages.
package session

import "sync"

// Store is the connection-scoped state bag. Invocations on one connection
// never overlap, so there is no cross-invocation locking beyond the mutex;
// concurrent updates from overlapping calls inside one invocation are
// last-write-wins in message-arrival order.
type Store struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]any)}
}

// Snapshot returns a plain copy of the current state, suitable for seeding a
// new invocation. The guest never sees the live map.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]any, len(s.data))
	for k, v := range s.data {
		snap[k] = v
	}
	return snap
}

// Apply records one session update. Values arrive already decoded from the
// message channel, so they are JSON-safe by construction.
func (s *Store) Apply(key string, value any) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

// Get reads a single key for host-side inspection.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	return v, ok
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Clear drops all state. Called on connection teardown or explicit reset,
// never implicitly.
func (s *Store) Clear() {
	s.mu.Lock()
	s.data = make(map[string]any)
	s.mu.Unlock()
}
