package indexing

import (
	"context"
	"sync"
	"time"

	"github.com/standardbeagle/findall/internal/types"
)

// contentCache maps file paths to their last extraction. An entry is
// reused only when its hash matches the file's current hash.
type contentCache struct {
	mu      sync.Mutex
	entries map[string]types.CacheEntry
	dirty   bool
}

func newContentCache() *contentCache {
	return &contentCache{entries: make(map[string]types.CacheEntry)}
}

func (c *contentCache) load(ctx context.Context, store CacheStore) error {
	if store == nil {
		return nil
	}
	entries, err := store.LoadCache(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if entries == nil {
		entries = make(map[string]types.CacheEntry)
	}
	c.entries = entries
	c.dirty = false
	return nil
}

// save persists the cache when it changed since the last save.
func (c *contentCache) save(ctx context.Context, store CacheStore) error {
	if store == nil {
		return nil
	}
	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return nil
	}
	snapshot := make(map[string]types.CacheEntry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.dirty = false
	c.mu.Unlock()

	if err := store.SaveCache(ctx, snapshot); err != nil {
		c.mu.Lock()
		c.dirty = true
		c.mu.Unlock()
		return err
	}
	return nil
}

// lookup returns the cached symbols of path if hash matches.
func (c *contentCache) lookup(path string, hash uint64) ([]types.SearchableItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok || e.ContentHash == 0 || e.ContentHash != hash {
		return nil, false
	}
	return e.Symbols, true
}

func (c *contentCache) put(path string, modTime time.Time, hash uint64, symbols []types.SearchableItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = types.CacheEntry{ModTime: modTime, ContentHash: hash, Symbols: symbols}
	c.dirty = true
}

// touch records a new modification time for an unchanged file.
func (c *contentCache) touch(path string, modTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok && !e.ModTime.Equal(modTime) {
		e.ModTime = modTime
		c.entries[path] = e
		c.dirty = true
	}
}

func (c *contentCache) has(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[path]
	return ok
}

// invalidate forgets the hash of path so the next lookup misses.
func (c *contentCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		e.ContentHash = 0
		c.entries[path] = e
		c.dirty = true
	}
}

func (c *contentCache) remove(paths ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		if _, ok := c.entries[p]; ok {
			delete(c.entries, p)
			c.dirty = true
		}
	}
}

func (c *contentCache) paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for p := range c.entries {
		out = append(out, p)
	}
	return out
}

func (c *contentCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *contentCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]types.CacheEntry)
	c.dirty = true
}
