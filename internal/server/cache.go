package server

import (
	"sync"
	"time"
)

type cacheEntry struct {
	doc     string
	created time.Time
}

// resultCache keeps inlined documents for a fixed time to live. A
// negative ttl disables it.
type resultCache struct {
	mu   sync.RWMutex
	now  func() time.Time
	ttl  time.Duration
	data map[string]cacheEntry
}

func newResultCache(now func() time.Time, ttl time.Duration) *resultCache {
	if now == nil {
		now = time.Now
	}
	return &resultCache{now: now, ttl: ttl, data: make(map[string]cacheEntry)}
}

func cacheKey(target string, pretty bool) string {
	if pretty {
		return target + "|pretty"
	}
	return target
}

func (c *resultCache) Store(key, doc string) {
	if c.ttl <= 0 {
		return
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.data {
		if now.Sub(e.created) >= c.ttl {
			delete(c.data, k)
		}
	}
	c.data[key] = cacheEntry{doc: doc, created: now}
}

func (c *resultCache) Get(key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.created) >= c.ttl {
		return "", false
	}
	return e.doc, true
}
