package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps entries in process. It backs single-instance deployments
// and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemoryStore constructs an empty in-process store.
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:    map[string]memoryEntry{},
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source for deterministic testing.
func (s *MemoryStore) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), entry.value...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("cache key is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	for key, value := range entries {
		if err := s.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}
