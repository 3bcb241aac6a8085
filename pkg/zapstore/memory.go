package zapstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	raw       string
	expiresAt time.Time
}

// Memory is an in-process Store with the same TTL semantics as the redis
// implementation. Used in tests and redis-less development setups.
type Memory struct {
	mu    sync.Mutex
	notes map[string]memoryEntry
	now   func() time.Time
}

// NewMemory creates an empty in-memory zap note store.
func NewMemory() *Memory {
	return &Memory{
		notes: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

// Save stores the raw zap request under the payment hash with the fixed TTL.
func (s *Memory) Save(_ context.Context, paymentHash, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[paymentHash] = memoryEntry{
		raw:       raw,
		expiresAt: s.now().Add(NoteTTL),
	}
	return nil
}

// Get returns the stored zap request if it exists and has not expired.
func (s *Memory) Get(_ context.Context, paymentHash string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.notes[paymentHash]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.notes, paymentHash)
		return "", false
	}
	return entry.raw, true
}
