package indexing

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// pathFilter applies include and exclude globs to root-relative paths.
type pathFilter struct {
	roots   []string // longest first, so nested roots win
	include []string
	exclude []string
}

func newPathFilter(roots, include, exclude []string) *pathFilter {
	sorted := append([]string(nil), roots...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	return &pathFilter{roots: sorted, include: include, exclude: exclude}
}

func (f *pathFilter) rootOf(path string) (string, bool) {
	for _, root := range f.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return root, true
		}
	}
	return "", false
}

func (f *pathFilter) relative(path string) (string, bool) {
	root, ok := f.rootOf(path)
	if !ok {
		return "", false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// excluded reports whether path is outside every root or matches an
// exclude pattern.
func (f *pathFilter) excluded(path string) bool {
	rel, ok := f.relative(path)
	if !ok {
		return true
	}
	return matchAny(f.exclude, rel)
}

// included reports whether a file passes the include patterns. No
// patterns means everything is included.
func (f *pathFilter) included(path string) bool {
	if len(f.include) == 0 {
		return true
	}
	rel, ok := f.relative(path)
	return ok && matchAny(f.include, rel)
}

// accepts combines both checks for a discovered file.
func (f *pathFilter) accepts(path string) bool {
	return !f.excluded(path) && f.included(path)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

type ignoreRequest struct {
	path    string
	resolve func(ignored bool)
}

// ignoreBatcher collects ignore checks for a short window and issues one
// VCS query per root for the whole batch. Callbacks run on the flush
// goroutine in request order. At most one flush runs at a time; requests
// that arrive during a flush wait for the next one.
type ignoreBatcher struct {
	vcs    VCS
	filter *pathFilter
	window time.Duration
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	pending  map[string][]ignoreRequest // by root
	timer    *time.Timer
	flushing bool
	stopped  bool
	wg       sync.WaitGroup
}

func newIgnoreBatcher(vcs VCS, filter *pathFilter, window time.Duration, logger *slog.Logger) *ignoreBatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &ignoreBatcher{
		vcs:     vcs,
		filter:  filter,
		window:  window,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string][]ignoreRequest),
	}
}

// check queues path and calls resolve once its ignore status is known.
// Without a VCS every path resolves as not ignored immediately.
func (b *ignoreBatcher) check(path string, resolve func(ignored bool)) {
	root, ok := b.filter.rootOf(path)
	if b.vcs == nil || !ok {
		resolve(false)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.pending[root] = append(b.pending[root], ignoreRequest{path: path, resolve: resolve})
	if b.timer == nil && !b.flushing {
		b.armLocked()
	}
}

func (b *ignoreBatcher) armLocked() {
	b.wg.Add(1)
	b.timer = time.AfterFunc(b.window, b.flush)
}

func (b *ignoreBatcher) flush() {
	defer b.wg.Done()

	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string][]ignoreRequest)
	b.timer = nil
	stopped := b.stopped
	b.flushing = !stopped
	b.mu.Unlock()
	if stopped {
		return
	}
	defer func() {
		b.mu.Lock()
		b.flushing = false
		if !b.stopped && len(b.pending) > 0 {
			b.armLocked()
		}
		b.mu.Unlock()
	}()

	roots := make([]string, 0, len(pending))
	for root := range pending {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	for _, root := range roots {
		reqs := pending[root]
		paths := make([]string, len(reqs))
		for i, r := range reqs {
			paths[i] = r.path
		}
		ignored, err := b.vcs.CheckIgnored(b.ctx, root, paths)
		if err != nil {
			// Unavailable VCS means nothing is ignored.
			b.logger.Debug("ignore check failed", "root", root, "paths", len(paths), "error", err)
			ignored = nil
		}
		for _, r := range reqs {
			r.resolve(ignored[r.path])
		}
	}
}

// stop drops pending checks and waits for a running flush.
func (b *ignoreBatcher) stop() {
	b.mu.Lock()
	b.stopped = true
	if b.timer != nil && b.timer.Stop() {
		b.wg.Done()
	}
	b.timer = nil
	b.mu.Unlock()
	b.cancel()
	b.wg.Wait()
}
