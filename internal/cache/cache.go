// Package cache provides the in-memory content-hash stores that memoize
// embedding vectors and resolved validation results across back-fill runs.
package cache

import (
	"sync"
	"sync/atomic"
)

// Store is a concurrent map keyed by content hash. Entries are treated as
// immutable: a Set on an existing key keeps the original value, so racing
// writers converge on whichever result landed first. Content-addressed keys
// make the losing value identical anyway for deterministic producers.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]V

	hits   atomic.Int64
	misses atomic.Int64
}

func New[V any]() *Store[V] {
	return &Store[V]{entries: make(map[string]V)}
}

// Get returns the cached value for key, if present.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	v, ok := s.entries[key]
	s.mu.RUnlock()

	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key unless the key is already present.
func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		return
	}
	s.entries[key] = value
}

// Len returns the number of cached entries.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats returns cumulative hit and miss counts.
func (s *Store[V]) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}
