package rest

import (
	"strings"
	"sync"
	"time"
)

// CacheKey builds the canonical cache key for a provider call:
// service:endpoint:params. Params are joined in the order given, so callers
// must pass them pre-sorted when order is not naturally stable.
func CacheKey(service, endpoint string, params ...string) string {
	parts := make([]string, 0, 2+len(params))
	parts = append(parts, service, endpoint)
	parts = append(parts, params...)
	return strings.Join(parts, ":")
}

type cacheEntry struct {
	body      []byte
	expiresAt time.Time
}

// Cache is a small in-process TTL cache for raw response bodies. Entries are
// written only after a fully successful request, so a cached value never
// represents an error response. The clock is injectable for tests.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCache returns an empty cache using the wall clock.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// NewCacheWithClock returns an empty cache that reads time from now.
func NewCacheWithClock(now func() time.Time) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     now,
	}
}

// Get returns the cached body for key, or false when the key is absent or
// expired. Expired entries are removed on read.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.body, true
}

// Set stores body under key for ttl. A non-positive ttl is a no-op.
func (c *Cache) Set(key string, body []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{body: body, expiresAt: c.now().Add(ttl)}
}

// Invalidate drops every entry whose key starts with prefix. Used by the
// refresh endpoint to force a provider round trip.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Len reports the number of live entries, counting expired ones that have not
// been read yet.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
