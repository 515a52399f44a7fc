// Package indexing discovers workspace files, extracts their declarations
// and keeps the search corpus current as files change.
package indexing

import (
	"context"
	"io"

	"github.com/standardbeagle/findall/internal/types"
)

// Extractor turns one file into declarations. ParseFile never fails: an
// unreadable or unsupported file yields no items.
type Extractor interface {
	Init() error
	ParseFile(path string) []types.SearchableItem
}

// ExtractorFactory creates a fresh Extractor. Each extraction worker owns
// one, so implementations need not be safe for concurrent use.
type ExtractorFactory func() (Extractor, error)

// Workspace is the file system environment being indexed.
type Workspace interface {
	Roots() []string
	FindFiles(ctx context.Context, include, exclude []string) ([]string, error)
	ToRelativePath(path string) string
	Watch(pattern string, handler types.WatchHandler) (io.Closer, error)
}

// SymbolProvider is an optional prebuilt symbol source consumed before
// the exhaustive extraction pass.
type SymbolProvider interface {
	WorkspaceSymbols(ctx context.Context) ([]types.SearchableItem, error)
	DocumentSymbols(ctx context.Context, path string) ([]types.SearchableItem, error)
}

// VCS lists and classifies files through version control. Every method
// may fail when a root is not a repository; callers degrade to "no VCS".
type VCS interface {
	ListFiles(ctx context.Context, root string) ([]string, error)
	ModifiedFiles(ctx context.Context, roots []string) ([]string, error)
	CheckIgnored(ctx context.Context, root string, paths []string) (map[string]bool, error)
}

// CacheStore persists per-file extraction results.
type CacheStore interface {
	LoadCache(ctx context.Context) (map[string]types.CacheEntry, error)
	SaveCache(ctx context.Context, entries map[string]types.CacheEntry) error
}

// EventKind identifies a corpus mutation requested by the indexer.
type EventKind uint8

const (
	// EventReset drops every indexed item.
	EventReset EventKind = iota
	// EventAdd upserts Items.
	EventAdd
	// EventRemoveFiles removes every item located in Files.
	EventRemoveFiles
	// EventReplaceFile removes every item of Files[0], then adds Items.
	EventReplaceFile
)

var eventKindNames = [...]string{
	EventReset:       "reset",
	EventAdd:         "add",
	EventRemoveFiles: "remove_files",
	EventReplaceFile: "replace_file",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// Event is one corpus mutation. Events must be applied in emission order.
type Event struct {
	Kind  EventKind
	Items []types.SearchableItem
	Files []string
}

// State is the indexer lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateIndexing
	StateWatching
	StateCooldown
)

var stateNames = [...]string{
	StateIdle:     "idle",
	StateIndexing: "indexing",
	StateWatching: "watching",
	StateCooldown: "cooldown",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
