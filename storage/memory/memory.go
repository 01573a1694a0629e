// Package memory provides a thread-safe in-memory implementation of
// storage.SecureStore. Suitable for testing and ephemeral sessions.
package memory

import (
	"sync"

	"github.com/finsync/gatekeeper/storage"
)

// Store is a thread-safe in-memory implementation of storage.SecureStore.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ storage.SecureStore = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
