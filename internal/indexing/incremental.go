package indexing

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/standardbeagle/findall/internal/metrics"
	"github.com/standardbeagle/findall/internal/types"
)

type watchEvent struct {
	path string
	kind types.WatchKind
}

// onWatchEvent is the workspace watch handler. Excluded paths are
// dropped; during a full index or cooldown the latest event per path is
// buffered.
func (ix *Indexer) onWatchEvent(path string, kind types.WatchKind) {
	path = filepath.Clean(path)
	if ix.filter.excluded(path) {
		return
	}
	if kind != types.WatchDelete && !ix.filter.included(path) {
		return
	}

	ix.mu.Lock()
	if ix.closed {
		ix.mu.Unlock()
		return
	}
	if s := ix.State(); s == StateIndexing || s == StateCooldown {
		if _, seen := ix.pending[path]; !seen {
			ix.pendingOrder = append(ix.pendingOrder, path)
		}
		ix.pending[path] = kind
		ix.mu.Unlock()
		return
	}
	ix.mu.Unlock()

	ix.dispatch(path, kind)
}

// dispatch runs the VCS ignore check and queues the event.
func (ix *Indexer) dispatch(path string, kind types.WatchKind) {
	ix.ignores.check(path, func(ignored bool) {
		if ignored {
			return
		}
		select {
		case ix.events <- watchEvent{path: path, kind: kind}:
		case <-ix.ctx.Done():
		}
	})
}

// runIncremental applies queued events one at a time so that removals and
// additions for a file reach Emit in order. It owns a single extractor.
func (ix *Indexer) runIncremental() {
	defer ix.wg.Done()
	var ex Extractor
	defer func() {
		if ex != nil {
			closeExtractor(ex)
		}
	}()

	for {
		select {
		case <-ix.ctx.Done():
			return
		case ev := <-ix.events:
			ex = ix.apply(ev, ex)
		}
	}
}

// apply handles one event and returns the extractor to use next.
func (ix *Indexer) apply(ev watchEvent, ex Extractor) Extractor {
	metrics.WatchEvents.WithLabelValues(ev.kind.String()).Inc()

	if ev.kind == types.WatchDelete {
		ix.removePath(ev.path)
		return ex
	}
	if ev.kind == types.WatchChange {
		ix.cache.invalidate(ev.path)
	}

	fi, err := ix.inspect(ix.ctx, ev.path)
	if err != nil || fi == nil {
		// Gone, unreadable or now generated.
		ix.removePath(ev.path)
		return ex
	}
	ix.remember(ev.path)

	items := []types.SearchableItem{fi.item()}
	if !ix.extractable(*fi) {
		ix.cache.remove(ev.path)
		ix.emit(Event{Kind: EventReplaceFile, Files: []string{ev.path}, Items: items})
		return ex
	}

	if err := ix.limiter.Wait(ix.ctx); err != nil {
		return ex
	}
	if ex == nil {
		if ex, err = ix.newExtractor(); err != nil {
			ix.logger.Warn("incremental extraction unavailable", "error", err)
			ix.emit(Event{Kind: EventReplaceFile, Files: []string{ev.path}, Items: items})
			return nil
		}
	}

	res, ok := ix.processFile(ex, *fi, false)
	if !ok {
		closeExtractor(ex)
		ex = nil
	}
	ix.logger.Debug("file updated", "path", ev.path, "kind", ev.kind, "symbols", len(res.symbols), "cached", res.cached)
	ix.recordResult(res)
	return ex
}

// removePath forgets a file, or every known file below a directory, and
// removes their items.
func (ix *Indexer) removePath(path string) {
	removed := ix.forget(path)
	if len(removed) == 0 {
		removed = []string{path}
	}
	ix.cache.remove(removed...)
	ix.emit(Event{Kind: EventRemoveFiles, Files: removed})
}

func (ix *Indexer) remember(path string) {
	ix.knownMu.Lock()
	defer ix.knownMu.Unlock()
	ix.known[path] = struct{}{}
}

func (ix *Indexer) forget(path string) []string {
	ix.knownMu.Lock()
	defer ix.knownMu.Unlock()
	prefix := path + string(filepath.Separator)
	var removed []string
	for p := range ix.known {
		if p == path || strings.HasPrefix(p, prefix) {
			removed = append(removed, p)
			delete(ix.known, p)
		}
	}
	sort.Strings(removed)
	return removed
}
