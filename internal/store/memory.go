package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/standardbeagle/findall/internal/types"
)

// MemoryStore keeps state in process memory only.
type MemoryStore struct {
	mu       sync.RWMutex
	cache    map[string]types.CacheEntry
	activity []types.ActivityRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: make(map[string]types.CacheEntry)}
}

func (s *MemoryStore) LoadCache(context.Context) (map[string]types.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.cache), nil
}

func (s *MemoryStore) SaveCache(_ context.Context, entries map[string]types.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = maps.Clone(entries)
	if s.cache == nil {
		s.cache = make(map[string]types.CacheEntry)
	}
	return nil
}

func (s *MemoryStore) LoadActivity(context.Context) ([]types.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.activity), nil
}

func (s *MemoryStore) SaveActivity(_ context.Context, records []types.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = slices.Clone(records)
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]types.CacheEntry)
	s.activity = nil
	return nil
}

func (s *MemoryStore) Close() error { return nil }
