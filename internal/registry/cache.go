package registry

import (
	"sync"
	"time"
)

// cacheTTL is the revalidation window for cached reads. Caching here is an
// optimization only: mutations invalidate the owner's tag eagerly.
const cacheTTL = 5 * time.Minute

type cacheEntry struct {
	value    any
	tag      string
	expireAt time.Time
}

// tagCache is a small in-process TTL cache with invalidate-by-tag eviction.
type tagCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	nowFn   func() time.Time
}

func newTagCache(ttl time.Duration, nowFn func() time.Time) *tagCache {
	if ttl <= 0 {
		ttl = cacheTTL
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &tagCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		nowFn:   nowFn,
	}
}

func (c *tagCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expireAt.After(c.nowFn()) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *tagCache) put(key, tag string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		value:    value,
		tag:      tag,
		expireAt: c.nowFn().Add(c.ttl),
	}
}

// invalidateTag evicts every entry carrying the tag.
func (c *tagCache) invalidateTag(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if entry.tag == tag {
			delete(c.entries, key)
		}
	}
}
