package types

import (
	"io"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
)

// CacheEntry records the last extraction of a file. The entry is only
// trusted when ContentHash matches the file's current content hash.
type CacheEntry struct {
	ModTime     time.Time        `json:"mod_time"`
	ContentHash uint64           `json:"content_hash"`
	Symbols     []SearchableItem `json:"symbols,omitempty"`
}

// HashFile returns the xxhash of a file's content.
func HashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// ActivityRecord is the usage history of a single item.
type ActivityRecord struct {
	ItemID         string    `json:"item_id"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int       `json:"access_count"`
	CachedScore    float64   `json:"cached_score"`
}

// WatchKind classifies a file system change notification.
type WatchKind uint8

const (
	WatchCreate WatchKind = iota
	WatchChange
	WatchDelete
)

// WatchHandler receives a debounced file change notification.
type WatchHandler func(path string, kind WatchKind)

func (k WatchKind) String() string {
	switch k {
	case WatchCreate:
		return "create"
	case WatchChange:
		return "change"
	case WatchDelete:
		return "delete"
	}
	return "unknown"
}
