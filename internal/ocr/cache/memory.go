package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a bounded in-process store. When the bound is
// exceeded it evicts the least recently touched tenth of entries,
// matching the persistent store's policy.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]Entry
	maxEntries int
}

// NewMemoryStore creates a store holding at most maxEntries entries.
// Zero means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]Entry),
		maxEntries: maxEntries,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, hash string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[hash]
	if ok {
		e.TouchedAt = time.Now()
		s.entries[hash] = e
	}
	return e, ok, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.TouchedAt.IsZero() {
		entry.TouchedAt = time.Now()
	}
	s.entries[entry.Hash] = entry
	if s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		s.evictLocked()
	}
	return nil
}

func (s *MemoryStore) evictLocked() {
	type aged struct {
		hash    string
		touched time.Time
	}
	all := make([]aged, 0, len(s.entries))
	for h, e := range s.entries {
		all = append(all, aged{hash: h, touched: e.TouchedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].touched.Before(all[j].touched)
	})
	drop := len(all) / 10
	if drop < 1 {
		drop = 1
	}
	for _, a := range all[:drop] {
		delete(s.entries, a.hash)
	}
}

// Len reports the entry count.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
