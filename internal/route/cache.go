package route

import (
	"container/list"
	"regexp"
	"sync"
)

// DefaultCacheSize bounds the number of compiled templates kept.
const DefaultCacheSize = 500

// compiledRoute is a cleaned template with its anchored pattern.
// pattern is nil when the template could not be compiled.
type compiledRoute struct {
	template string
	cleaned  string
	segments []string
	pattern  *regexp.Regexp
}

// CacheStats tracks cache performance statistics
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// patternCache holds compiled templates and evicts in insertion order.
// Lookups do not refresh an entry's position.
type patternCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
	capacity int
	stats    CacheStats
}

func newPatternCache(capacity int) *patternCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &patternCache{
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
	}
}

func (c *patternCache) get(template string) (*compiledRoute, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[template]; ok {
		c.stats.Hits++
		return e.Value.(*compiledRoute), true
	}
	c.stats.Misses++
	return nil, false
}

func (c *patternCache) put(r *compiledRoute) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[r.template]; exists {
		return
	}
	for c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		delete(c.entries, oldest.Value.(*compiledRoute).template)
		c.order.Remove(oldest)
		c.stats.Evictions++
	}
	c.entries[r.template] = c.order.PushBack(r)
}

func (c *patternCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *patternCache) contains(template string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[template]
	return ok
}

func (c *patternCache) snapshot() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
