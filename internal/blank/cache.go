package blank

import (
	"context"
	"sync"
)

// MaxCacheEntries bounds the in-process cache; it is cleared when full.
const MaxCacheEntries = 10000

// RemoteCache is an optional shared tier behind the in-process cache,
// implemented on Redis in internal/store.
type RemoteCache interface {
	GetVerdict(ctx context.Context, key string) (blank bool, found bool, err error)
	SetVerdict(ctx context.Context, key string, blank bool) error
}

// Cache memoizes verdicts by key. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]bool
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]bool)}
}

func (c *Cache) Get(key string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *Cache) Set(key string, blank bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= MaxCacheEntries {
		c.entries = make(map[string]bool)
	}
	c.entries[key] = blank
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
