package search

import (
	"path/filepath"

	"github.com/standardbeagle/findall/internal/types"
)

// internPruneThreshold is the number of cumulative removals after which
// keys no longer referenced by any item are dropped.
const internPruneThreshold = 10000

// columnStore keeps one slice per attribute, all index-aligned. Every
// mutation touches every column so the lengths never diverge.
type columnStore struct {
	items      []types.SearchableItem
	names      []*preparedKey
	lowerNames []string
	fullNames  []*preparedKey // nil when the item has no full name
	paths      []*preparedKey // nil when the item has no path
	capitals   []string
	masks      []uint64
}

func (c *columnStore) len() int {
	return len(c.items)
}

func (c *columnStore) reset() {
	*c = columnStore{}
}

func (c *columnStore) append(item types.SearchableItem, in *interner) {
	name, full, path, caps := in.prepare(item)
	c.items = append(c.items, item)
	c.names = append(c.names, name)
	c.lowerNames = append(c.lowerNames, name.lower)
	c.fullNames = append(c.fullNames, full)
	c.paths = append(c.paths, path)
	c.capitals = append(c.capitals, caps)
	c.masks = append(c.masks, combinedMask(name, full, path))
}

func (c *columnStore) set(i int, item types.SearchableItem, in *interner) {
	name, full, path, caps := in.prepare(item)
	c.items[i] = item
	c.names[i] = name
	c.lowerNames[i] = name.lower
	c.fullNames[i] = full
	c.paths[i] = path
	c.capitals[i] = caps
	c.masks[i] = combinedMask(name, full, path)
}

// compact keeps the rows for which keep returns true, preserving order,
// and returns the number of rows removed.
func (c *columnStore) compact(keep func(i int) bool) int {
	w := 0
	for r := range c.items {
		if !keep(r) {
			continue
		}
		if w != r {
			c.items[w] = c.items[r]
			c.names[w] = c.names[r]
			c.lowerNames[w] = c.lowerNames[r]
			c.fullNames[w] = c.fullNames[r]
			c.paths[w] = c.paths[r]
			c.capitals[w] = c.capitals[r]
			c.masks[w] = c.masks[r]
		}
		w++
	}

	removed := len(c.items) - w
	// Clear the tail so dropped keys can be collected.
	clear(c.items[w:])
	clear(c.names[w:])
	clear(c.lowerNames[w:])
	clear(c.fullNames[w:])
	clear(c.paths[w:])
	clear(c.capitals[w:])

	c.items = c.items[:w]
	c.names = c.names[:w]
	c.lowerNames = c.lowerNames[:w]
	c.fullNames = c.fullNames[:w]
	c.paths = c.paths[:w]
	c.capitals = c.capitals[:w]
	c.masks = c.masks[:w]
	return removed
}

func combinedMask(keys ...*preparedKey) uint64 {
	var m uint64
	for _, k := range keys {
		if k != nil {
			m |= k.mask
		}
	}
	return m
}

// interner deduplicates prepared keys and capitals signatures by content.
type interner struct {
	keys     map[string]*preparedKey
	capitals map[string]string
}

func newInterner() *interner {
	return &interner{
		keys:     make(map[string]*preparedKey),
		capitals: make(map[string]string),
	}
}

func (in *interner) key(s string) *preparedKey {
	if s == "" {
		return nil
	}
	if k, ok := in.keys[s]; ok {
		return k
	}
	k := newPreparedKey(s)
	in.keys[s] = k
	return k
}

func (in *interner) capitalsOf(name string) string {
	if c, ok := in.capitals[name]; ok {
		return c
	}
	c := capitalsOf(name)
	in.capitals[name] = c
	return c
}

func (in *interner) prepare(item types.SearchableItem) (name, full, path *preparedKey, caps string) {
	name = in.key(item.Name)
	if name == nil {
		name = &preparedKey{}
	}
	if item.FullName != "" && item.FullName != item.Name {
		full = in.key(item.FullName)
	}
	path = in.key(normalizedPath(item))
	caps = in.capitalsOf(item.Name)
	return name, full, path, caps
}

// prune rebuilds the maps from the keys still referenced by c.
func (in *interner) prune(c *columnStore) {
	keys := make(map[string]*preparedKey, len(c.items))
	capitals := make(map[string]string, len(c.items))
	for i := range c.items {
		for _, k := range [...]*preparedKey{c.names[i], c.fullNames[i], c.paths[i]} {
			if k != nil && k.text != "" {
				keys[k.text] = k
			}
		}
		capitals[c.items[i].Name] = c.capitals[i]
	}
	in.keys = keys
	in.capitals = capitals
}

func (in *interner) size() int {
	return len(in.keys)
}

// normalizedPath is the slash-separated path used for path matching.
func normalizedPath(item types.SearchableItem) string {
	p := item.RelativeFilePath
	if p == "" {
		p = item.FilePath
	}
	return filepath.ToSlash(p)
}
