package market

import (
	"sync"
	"time"
)

// Cache stores recent quotes. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ticker string) (*Quote, bool)
	Set(ticker string, quote *Quote)
}

type cacheEntry struct {
	quote   *Quote
	expires time.Time
}

// MemoryCache is an in-process Cache with a fixed time-to-live.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewMemoryCache creates a cache whose entries expire after ttl. A non-positive ttl
// disables caching.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ticker string) (*Quote, bool) {
	c.mu.RLock()
	entry, ok := c.entries[ticker]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expires) {
		c.mu.Lock()
		delete(c.entries, ticker)
		c.mu.Unlock()
		return nil, false
	}
	return entry.quote, true
}

func (c *MemoryCache) Set(ticker string, quote *Quote) {
	if c.ttl <= 0 || quote == nil {
		return
	}
	c.mu.Lock()
	c.entries[ticker] = cacheEntry{quote: quote, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
