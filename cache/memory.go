package cache

import (
	"context"
	"sync"

	"github.com/BaSui01/eventflow/timerange"
)

// memoryStore is an in-process RangeStore used by tests and by runs that
// opt out of Redis. Contents do not survive the process.
type memoryStore struct {
	mu     sync.RWMutex
	ranges map[string]timerange.Range
}

// NewMemoryStore creates an empty in-memory RangeStore.
func NewMemoryStore() RangeStore {
	return &memoryStore{ranges: make(map[string]timerange.Range)}
}

// GetRange implements RangeStore.GetRange.
func (s *memoryStore) GetRange(_ context.Context, key string) (timerange.Range, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.ranges[key]
	return r, ok, nil
}

// SetRange implements RangeStore.SetRange.
func (s *memoryStore) SetRange(_ context.Context, key string, r timerange.Range) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges[key] = r
	return nil
}

// Close implements RangeStore.Close.
func (s *memoryStore) Close() error {
	return nil
}
