package replay

import (
	"context"
	"sync"
	"time"

	"github.com/golden-vcr/openapi-go/hmac"
)

// sweepInterval is the number of recorded nonces between sweeps for expired entries
const sweepInterval = 1024

// MemoryStore records nonces in a process-local map
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]time.Time
	inserted int
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryStore) CheckAndRecord(ctx context.Context, appId, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := nonceKey(appId, nonce)
	if expiresAt, ok := s.entries[key]; ok && now.Before(expiresAt) {
		return hmac.ErrNonceReused
	}
	s.entries[key] = now.Add(ttl)

	s.inserted++
	if s.inserted%sweepInterval == 0 {
		for k, expiresAt := range s.entries {
			if !now.Before(expiresAt) {
				delete(s.entries, k)
			}
		}
	}
	return nil
}

// Len returns the number of nonces currently held, including any that have expired but
// not yet been swept
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func nonceKey(appId, nonce string) string {
	return appId + ":" + nonce
}

var _ hmac.NonceStore = (*MemoryStore)(nil)
