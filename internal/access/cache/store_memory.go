package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"clinauth/internal/access"
)

// MemoryStore is a process-local Store for tests and single-instance
// deployments. Expiry is lazy and driven by the injected clock so TTL
// behavior is deterministic under test.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   access.Clock
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func NewMemoryStore(clock access.Clock) *MemoryStore {
	if clock == nil {
		clock = access.SystemClock{}
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		clock:   clock,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && !s.clock.Now().Before(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) GetMulti(ctx context.Context, keys []string) ([]string, error) {
	vals := make([]string, len(keys))
	for i, key := range keys {
		val, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			vals[i] = val
		}
	}
	return vals, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if entry, ok := s.entries[key]; ok {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err == nil {
			current = parsed
		}
	}
	current++
	s.entries[key] = memoryEntry{value: strconv.FormatInt(current, 10)}
	return current, nil
}

// Len reports the number of live entries; test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
