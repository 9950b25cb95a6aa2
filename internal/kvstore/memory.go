package kvstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore implements Store without persistence.
// State is lost on exit. Used for ephemeral sessions and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
	quota   int
}

// NewMemoryStore creates an ephemeral store with the given per-value
// quota. quota <= 0 means DefaultQuotaBytes.
func NewMemoryStore(quota int) *MemoryStore {
	if quota <= 0 {
		quota = DefaultQuotaBytes
	}
	return &MemoryStore{
		entries: make(map[string]string),
		quota:   quota,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	if len(value) > s.quota {
		return fmt.Errorf("%w: key %q holds %d bytes (limit %d)", ErrQuotaExceeded, key, len(value), s.quota)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
