package workspace

import (
	"context"
	"sort"

	"github.com/standardbeagle/findall/internal/types"
)

// CacheLoader is the part of the persistence store the symbol provider
// reads.
type CacheLoader interface {
	LoadCache(ctx context.Context) (map[string]types.CacheEntry, error)
}

// CachedSymbols answers symbol queries from the last persisted
// extraction. It is the fast source the indexer consults before the
// exhaustive pass has parsed anything.
type CachedSymbols struct {
	store CacheLoader
}

func NewCachedSymbols(store CacheLoader) *CachedSymbols {
	return &CachedSymbols{store: store}
}

// WorkspaceSymbols returns the cached symbols of every file whose content
// still hashes to the value recorded at extraction.
func (c *CachedSymbols) WorkspaceSymbols(ctx context.Context) ([]types.SearchableItem, error) {
	entries, err := c.store.LoadCache(ctx)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var items []types.SearchableItem
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		e := entries[p]
		if len(e.Symbols) == 0 || !unchanged(p, e) {
			continue
		}
		items = append(items, e.Symbols...)
	}
	return items, nil
}

// DocumentSymbols returns the cached symbols of one file, or nil when the
// file is not cached or has changed.
func (c *CachedSymbols) DocumentSymbols(ctx context.Context, path string) ([]types.SearchableItem, error) {
	entries, err := c.store.LoadCache(ctx)
	if err != nil {
		return nil, err
	}
	e, ok := entries[path]
	if !ok || !unchanged(path, e) {
		return nil, nil
	}
	return e.Symbols, nil
}

// unchanged compares content hashes. A file rewritten within the
// modification time granularity keeps its timestamp.
func unchanged(path string, e types.CacheEntry) bool {
	if e.ContentHash == 0 {
		return false
	}
	hash, err := types.HashFile(path)
	return err == nil && hash == e.ContentHash
}
