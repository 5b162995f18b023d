package alerting

import (
	"sync"
	"time"
)

// suppressionStore is an in-memory TTL map keyed by alert fingerprint. Expiry
// is checked on read and swept by Purge; entries carry no per-key timers.
type suppressionStore struct {
	mu   sync.Mutex
	data map[string]time.Time
}

func newSuppressionStore() *suppressionStore {
	return &suppressionStore{data: make(map[string]time.Time)}
}

// Seen reports whether the key is present and not expired. Expired entries
// are deleted on the way out.
func (s *suppressionStore) Seen(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.data[key]
	if !ok {
		return false
	}
	if now.After(expiresAt) {
		delete(s.data, key)
		return false
	}
	return true
}

// Mark records the key until now+ttl, refreshing any existing entry.
func (s *suppressionStore) Mark(key string, now time.Time, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = now.Add(ttl)
}

// Purge removes every expired entry and returns how many were dropped.
func (s *suppressionStore) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, expiresAt := range s.data {
		if now.After(expiresAt) {
			delete(s.data, key)
			purged++
		}
	}
	return purged
}

func (s *suppressionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
