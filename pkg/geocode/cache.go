package geocode

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// cacheKey returns SHA-256 hex of the normalized query for cache lookup.
func cacheKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

type cacheEntry struct {
	result   Result
	cachedAt time.Time
}

// memoryCache holds matched geocode results for the life of the process.
// A nil *memoryCache is a valid, always-missing cache.
type memoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func newMemoryCache(ttl time.Duration) *memoryCache {
	return &memoryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// get looks up a cached result, evicting it if the TTL has passed.
func (c *memoryCache) get(key string) (*Result, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.cachedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}

	zap.L().Debug("geocode cache hit", zap.String("key", key[:12]))
	r := e.result
	return &r, true
}

func (c *memoryCache) put(key string, r *Result) {
	if c == nil || r == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{result: *r, cachedAt: c.now()}
}
