/*
2021 © Postgres.ai
*/

package verification

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const defaultCleanupInterval = time.Minute

func failuresKey(key string) string {
	return key + "#failures"
}

// MemoryStore keeps codes in process memory. Expired codes are evicted by a janitor.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: cache.New(DefaultTTL, defaultCleanupInterval)}
}

// Save stores the code.
func (s *MemoryStore) Save(_ context.Context, key, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Set(key, code, ttl)
	s.cache.Delete(failuresKey(key))

	return nil
}

// Get returns the stored code.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := s.cache.Get(key)
	if !ok {
		return "", false, nil
	}

	code, ok := value.(string)

	return code, ok, nil
}

// Delete removes the code.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache.Get(key); !ok {
		return false, nil
	}

	s.cache.Delete(key)
	s.cache.Delete(failuresKey(key))

	return true, nil
}

// RecordFailure increments the failure counter of the code.
func (s *MemoryStore) RecordFailure(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, expiresAt, ok := s.cache.GetWithExpiration(key)
	if !ok {
		return 0, nil
	}

	n, err := s.cache.IncrementInt(failuresKey(key), 1)
	if err == nil {
		return n, nil
	}

	ttl := cache.NoExpiration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
	}

	s.cache.Set(failuresKey(key), 1, ttl)

	return 1, nil
}
