package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type storeEntry struct {
	value     int64
	expiresAt time.Time // zero means no expiry
}

func (e storeEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is a bounded, in-process counter store satisfying
// throttled.GCRAStoreCtx. Once maxKeys distinct keys are tracked, the least
// recently used key is evicted.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, storeEntry]
	now   func() time.Time
}

// NewMemoryStore creates a store holding at most maxKeys keys.
func NewMemoryStore(maxKeys int) (*MemoryStore, error) {
	c, err := lru.New[string, storeEntry](maxKeys)
	if err != nil {
		return nil, fmt.Errorf("creating rate limit store: %w", err)
	}
	return &MemoryStore{cache: c, now: time.Now}, nil
}

// GetWithTime returns the value of key, or -1 if it is absent or expired,
// together with the store's current time.
func (s *MemoryStore) GetWithTime(_ context.Context, key string) (int64, time.Time, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key, now)
	if !ok {
		return -1, now, nil
	}
	return e.value, now, nil
}

// SetIfNotExistsWithTTL stores value under key unless a live value exists.
// It reports whether the value was stored.
func (s *MemoryStore) SetIfNotExistsWithTTL(_ context.Context, key string, value int64, ttl time.Duration) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(key, now); ok {
		return false, nil
	}
	s.cache.Add(key, newEntry(value, now, ttl))
	return true, nil
}

// CompareAndSwapWithTTL replaces the value of key with next when it
// currently equals old. A missing key reports false with no error.
func (s *MemoryStore) CompareAndSwapWithTTL(_ context.Context, key string, old, next int64, ttl time.Duration) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key, now)
	if !ok || e.value != old {
		return false, nil
	}
	s.cache.Add(key, newEntry(next, now, ttl))
	return true, nil
}

// Len returns the number of tracked keys, expired ones included.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// lookup must be called with s.mu held.
func (s *MemoryStore) lookup(key string, now time.Time) (storeEntry, bool) {
	e, ok := s.cache.Get(key)
	if !ok {
		return storeEntry{}, false
	}
	if e.expired(now) {
		s.cache.Remove(key)
		return storeEntry{}, false
	}
	return e, true
}

func newEntry(value int64, now time.Time, ttl time.Duration) storeEntry {
	e := storeEntry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	return e
}
