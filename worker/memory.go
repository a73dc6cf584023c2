package worker

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage keeps caches in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	caches map[string]*memoryCache
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]*memoryCache)}
}

// Open returns the named cache, creating it if needed.
func (s *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.caches[name]
	if !ok {
		c = &memoryCache{entries: make(map[string]*CachedResponse)}
		s.caches[name] = c
	}
	return c, nil
}

// Has reports whether the named cache exists.
func (s *MemoryStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.caches[name]
	return ok, nil
}

// Delete removes the named cache.
func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.caches[name]
	delete(s.caches, name)
	return ok, nil
}

// Names lists cache names in order.
func (s *MemoryStorage) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*CachedResponse
}

func (c *memoryCache) Match(_ context.Context, key string) (*CachedResponse, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return resp.Clone(), true, nil
}

func (c *memoryCache) Put(_ context.Context, key string, resp *CachedResponse) error {
	c.mu.Lock()
	c.entries[key] = resp.Clone()
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok, nil
}

func (c *memoryCache) Keys(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

var _ Storage = (*MemoryStorage)(nil)
