// Package memory provides an in-memory session store for tests and
// short-lived processes. Nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rbaliyan/inbox/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store with a map.
// Thread-safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	values    map[string]string
	corrupt   map[string]bool
	connected int32
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		values:  make(map[string]string),
		corrupt: make(map[string]bool),
	}
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected. Stored values are kept so a
// reconnected store sees them again.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(_ context.Context, key string) (string, error) {
	if atomic.LoadInt32(&s.connected) == 0 {
		return "", store.ErrNotConnected
	}
	if err := store.ValidateKey(key); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.corrupt[key] {
		return "", store.ErrMalformed
	}
	v, ok := s.values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

// Set stores value under key.
func (s *Store) Set(_ context.Context, key, value string) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	if err := store.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	delete(s.corrupt, key)
	return nil
}

// Remove deletes key.
func (s *Store) Remove(_ context.Context, key string) error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	if err := store.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	delete(s.corrupt, key)
	return nil
}

// Corrupt marks key as holding an unreadable record, so the next Get
// returns store.ErrMalformed until the key is written or removed.
// It exists to exercise recovery paths in tests.
func (s *Store) Corrupt(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt[key] = true
}

// Len returns the number of readable keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
