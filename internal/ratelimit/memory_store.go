package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore — счётчики в памяти процесса (режим без Redis).
// Годится для одного инстанса; в кластере используйте RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = &memEntry{expiresAt: now.Add(ttl)}
		s.entries[key] = e
	}
	e.count++

	// ленивое вымывание протухших окон
	if len(s.entries) > 4096 {
		for k, v := range s.entries {
			if now.After(v.expiresAt) {
				delete(s.entries, k)
			}
		}
	}
	return e.count, nil
}
