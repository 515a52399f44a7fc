package indexing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/standardbeagle/findall/internal/config"
	"github.com/standardbeagle/findall/internal/debug"
	findallerrors "github.com/standardbeagle/findall/internal/errors"
	"github.com/standardbeagle/findall/internal/metrics"
	"github.com/standardbeagle/findall/internal/types"
)

// ErrClosed is returned by operations on a closed Indexer.
var ErrClosed = errors.New("indexer closed")

// Deps are the collaborators of an Indexer. Workspace, Extractors and
// Emit are required.
type Deps struct {
	Workspace  Workspace
	Extractors ExtractorFactory
	// Supports reports whether a path is worth extracting; nil means all.
	Supports func(path string) bool
	Symbols  SymbolProvider
	VCS      VCS
	Cache    CacheStore
	// Emit receives corpus mutations in order. Calls are serialized.
	Emit func(Event)
}

// Indexer builds the corpus for a workspace and keeps it current.
type Indexer struct {
	cfg      *config.Config
	ws       Workspace
	factory  ExtractorFactory
	supports func(string) bool
	symbols  SymbolProvider
	vcs      VCS
	store    CacheStore
	emitFn   func(Event)
	emitMu   sync.Mutex
	logger   *slog.Logger

	detector *BinaryDetector
	filter   *pathFilter
	cache    *contentCache
	ignores  *ignoreBatcher
	limiter  *rate.Limiter

	state     atomic.Int32
	cancelled atomic.Bool

	mu            sync.Mutex
	closed        bool
	cancelRun     context.CancelFunc
	runWG         sync.WaitGroup
	cooldown      *time.Timer
	cooldownGen   int
	afterCooldown []func()
	pending       map[string]types.WatchKind
	pendingOrder  []string
	watch         io.Closer

	knownMu     sync.Mutex
	known       map[string]struct{}
	cacheLoaded bool

	events chan watchEvent
	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Indexer and starts its incremental update loop.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Indexer {
	logger = debug.OrDiscard(logger).With("component", "indexing")
	roots := deps.Workspace.Roots()

	perSecond := cfg.Index.ReextractPerSecond
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}

	filter := newPathFilter(roots, cfg.Include, cfg.Exclude)
	vcs := deps.VCS
	if !cfg.Index.UseVCS {
		vcs = nil
	}

	ctx, stop := context.WithCancel(context.Background())
	ix := &Indexer{
		cfg:      cfg,
		ws:       deps.Workspace,
		factory:  deps.Extractors,
		supports: deps.Supports,
		symbols:  deps.Symbols,
		vcs:      vcs,
		store:    deps.Cache,
		emitFn:   deps.Emit,
		logger:   logger,
		detector: NewBinaryDetector(),
		filter:   filter,
		cache:    newContentCache(),
		ignores:  newIgnoreBatcher(vcs, filter, time.Duration(cfg.Index.IgnoreCheckDebounceMs)*time.Millisecond, logger),
		limiter:  rate.NewLimiter(limit, burst),
		pending:  make(map[string]types.WatchKind),
		known:    make(map[string]struct{}),
		events:   make(chan watchEvent, incrementalQueueSize),
		ctx:      ctx,
		stop:     stop,
	}

	ix.wg.Add(1)
	go ix.runIncremental()
	return ix
}

// State returns the current lifecycle state.
func (ix *Indexer) State() State {
	return State(ix.state.Load())
}

func (ix *Indexer) setState(s State) {
	old := State(ix.state.Swap(int32(s)))
	if old != s {
		ix.logger.Debug("state change", "from", old, "to", s)
	}
}

// CacheSize is the number of files with a cached extraction.
func (ix *Indexer) CacheSize() int {
	return ix.cache.len()
}

// ClearCache drops every cached extraction, in memory and persisted.
func (ix *Indexer) ClearCache(ctx context.Context) error {
	ix.cache.clear()
	return ix.cache.save(ctx, ix.store)
}

// SaveCache persists the extraction cache if it changed.
func (ix *Indexer) SaveCache(ctx context.Context) error {
	return ix.cache.save(ctx, ix.store)
}

func (ix *Indexer) emit(ev Event) {
	ix.emitMu.Lock()
	defer ix.emitMu.Unlock()
	ix.emitFn(ev)
}

// IndexWorkspace runs a full index. With force, cached extractions are
// ignored and the corpus is reset first. A cancelled run returns an error
// matching ErrCancelled; a second concurrent run returns
// ErrIndexInProgress.
func (ix *Indexer) IndexWorkspace(ctx context.Context, force bool, progress ProgressFunc) (err error) {
	ix.mu.Lock()
	if ix.closed {
		ix.mu.Unlock()
		return ErrClosed
	}
	if ix.State() == StateIndexing {
		ix.mu.Unlock()
		return findallerrors.ErrIndexInProgress
	}
	if ix.cooldown != nil {
		ix.cooldown.Stop()
		ix.cooldown = nil
	}
	ix.setState(StateIndexing)
	ix.cancelled.Store(false)

	var runCtx context.Context
	var cancel context.CancelFunc
	if secs := ix.cfg.Performance.IndexingTimeoutSec; secs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	ix.cancelRun = cancel
	ix.runWG.Add(1)
	ix.mu.Unlock()

	start := time.Now()
	defer func() {
		cancel()
		outcome := "completed"
		switch {
		case findallerrors.IsCancelled(err):
			outcome = "cancelled"
		case err != nil:
			outcome = "failed"
		}
		metrics.IndexDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		ix.logger.Info("index finished", "outcome", outcome, "duration", time.Since(start), "files", ix.knownCount())

		ix.mu.Lock()
		ix.cancelRun = nil
		if !ix.closed {
			ix.startCooldownLocked()
		}
		ix.mu.Unlock()
		ix.runWG.Done()
	}()

	return ix.index(runCtx, force, NewProgressTracker(progress))
}

// Cancel stops a running full index. Dispatched extraction batches run
// to completion but their results are discarded.
func (ix *Indexer) Cancel() {
	ix.cancelled.Store(true)
	ix.mu.Lock()
	if ix.cancelRun != nil {
		ix.cancelRun()
	}
	ix.mu.Unlock()
}

func (ix *Indexer) isCancelled() bool {
	return ix.cancelled.Load()
}

// checkCancelled maps cancellation to ErrCancelled and a timeout to an
// indexing failure.
func (ix *Indexer) checkCancelled(ctx context.Context) error {
	if ix.isCancelled() || errors.Is(ctx.Err(), context.Canceled) {
		return findallerrors.ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return findallerrors.NewIndexingError("index", err)
	}
	return nil
}

func (ix *Indexer) index(ctx context.Context, force bool, progress *ProgressTracker) error {
	ix.loadCacheOnce(ctx)
	if force {
		ix.cache.clear()
		ix.forgetAll()
		ix.emit(Event{Kind: EventReset})
	}

	progress.Begin(PhaseDiscovery, 1)
	paths, err := ix.discover(ctx)
	if cerr := ix.checkCancelled(ctx); cerr != nil {
		return cerr
	}
	if err != nil {
		return findallerrors.NewIndexingError("discovery", err)
	}
	progress.Step("")

	progress.Begin(PhaseListing, len(paths))
	files, err := ix.listFiles(ctx, paths, progress)
	if err != nil {
		return err
	}

	fileItems := make([]types.SearchableItem, len(files))
	current := make(map[string]struct{}, len(files))
	for i, f := range files {
		fileItems[i] = f.item()
		current[f.path] = struct{}{}
	}
	ix.emit(Event{Kind: EventAdd, Items: fileItems})
	if vanished := ix.replaceKnown(current); len(vanished) > 0 {
		ix.cache.remove(vanished...)
		ix.emit(Event{Kind: EventRemoveFiles, Files: vanished})
	}
	if err := ix.checkCancelled(ctx); err != nil {
		return err
	}

	var work []fileInfo
	for _, f := range files {
		if ix.extractable(f) {
			work = append(work, f)
		} else if ix.cache.has(f.path) {
			ix.cache.remove(f.path)
			ix.emit(Event{Kind: EventReplaceFile, Files: []string{f.path}, Items: []types.SearchableItem{f.item()}})
		}
	}
	work = ix.prioritize(ctx, work)

	progress.Begin(PhaseExtraction, len(work))
	var processedMu sync.Mutex
	processed := make(map[string]bool, len(work))

	var fast sync.WaitGroup
	if ix.symbols != nil {
		fast.Add(1)
		go func() {
			defer fast.Done()
			ix.fastPass(ctx, current, &processedMu, processed)
		}()
	}

	sink := func(res fileResult) {
		processedMu.Lock()
		defer processedMu.Unlock()
		processed[res.file.path] = true
		ix.recordResult(res)
	}
	err = ix.runExtraction(ctx, work, force, progress, sink)
	fast.Wait()
	if err != nil {
		return err
	}

	progress.Begin(PhaseFinalize, 1)
	if err := ix.cache.save(ctx, ix.store); err != nil {
		ix.logger.Warn("failed to persist extraction cache", "error", err)
	}
	ix.ensureWatch()
	progress.Step("")
	progress.Finish()
	return nil
}

// fastPass emits prebuilt symbols for files the exhaustive pass has not
// reached yet. Failures are ignored.
func (ix *Indexer) fastPass(ctx context.Context, current map[string]struct{}, mu *sync.Mutex, processed map[string]bool) {
	symbols, err := ix.symbols.WorkspaceSymbols(ctx)
	if err != nil {
		ix.logger.Debug("workspace symbols unavailable", "error", err)
		return
	}
	byFile := make(map[string][]types.SearchableItem)
	var order []string
	for _, s := range symbols {
		if _, ok := current[s.FilePath]; !ok {
			continue
		}
		if _, seen := byFile[s.FilePath]; !seen {
			order = append(order, s.FilePath)
		}
		byFile[s.FilePath] = append(byFile[s.FilePath], s)
	}

	mu.Lock()
	defer mu.Unlock()
	var items []types.SearchableItem
	for _, path := range order {
		if !processed[path] {
			items = append(items, ix.decorate(path, byFile[path])...)
		}
	}
	if len(items) > 0 && !ix.isCancelled() {
		ix.emit(Event{Kind: EventAdd, Items: items})
	}
}

// recordResult caches a file's extraction and replaces its items.
func (ix *Indexer) recordResult(res fileResult) {
	switch {
	case res.failed:
		metrics.FilesExtracted.WithLabelValues("failed").Inc()
	case res.cached:
		metrics.FilesExtracted.WithLabelValues("cached").Inc()
	default:
		metrics.FilesExtracted.WithLabelValues("extracted").Inc()
	}
	switch {
	case res.failed:
	case res.cached:
		ix.cache.touch(res.file.path, res.file.modTime)
	default:
		ix.cache.put(res.file.path, res.file.modTime, res.hash, res.symbols)
	}
	items := make([]types.SearchableItem, 0, len(res.symbols)+1)
	items = append(items, res.file.item())
	items = append(items, ix.decorate(res.file.path, res.symbols)...)
	ix.emit(Event{Kind: EventReplaceFile, Files: []string{res.file.path}, Items: items})
}

// decorate fills the relative path of symbols declared in path.
func (ix *Indexer) decorate(path string, symbols []types.SearchableItem) []types.SearchableItem {
	if len(symbols) == 0 {
		return nil
	}
	rel := ix.ws.ToRelativePath(path)
	out := make([]types.SearchableItem, len(symbols))
	for i, s := range symbols {
		if s.RelativeFilePath == "" {
			s.RelativeFilePath = rel
		}
		out[i] = s
	}
	return out
}

func (ix *Indexer) loadCacheOnce(ctx context.Context) {
	ix.knownMu.Lock()
	loaded := ix.cacheLoaded
	ix.cacheLoaded = true
	ix.knownMu.Unlock()
	if loaded {
		return
	}
	if err := ix.cache.load(ctx, ix.store); err != nil {
		ix.logger.Warn("failed to load extraction cache, starting cold", "error", err)
		return
	}
	// Files indexed in an earlier session may have vanished since.
	ix.knownMu.Lock()
	for _, p := range ix.cache.paths() {
		ix.known[p] = struct{}{}
	}
	ix.knownMu.Unlock()
}

// ensureWatch subscribes to workspace changes once.
func (ix *Indexer) ensureWatch() {
	if !ix.cfg.Index.WatchMode {
		return
	}
	ix.mu.Lock()
	if ix.watch != nil || ix.closed {
		ix.mu.Unlock()
		return
	}
	ix.mu.Unlock()

	sub, err := ix.ws.Watch(watchPattern, ix.onWatchEvent)
	if err != nil {
		ix.logger.Warn("file watching unavailable", "error", err)
		return
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed || ix.watch != nil {
		_ = sub.Close()
		return
	}
	ix.watch = sub
}

// EnterCooldown suspends incremental updates for the cooldown window.
// Events arriving meanwhile are buffered and applied afterwards, then
// after runs. During a full index the window starts when the run ends.
func (ix *Indexer) EnterCooldown(after func()) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return
	}
	if after != nil {
		ix.afterCooldown = append(ix.afterCooldown, after)
	}
	if ix.State() == StateIndexing {
		return
	}
	ix.startCooldownLocked()
}

func (ix *Indexer) startCooldownLocked() {
	ix.setState(StateCooldown)
	if ix.cooldown != nil {
		ix.cooldown.Stop()
	}
	ix.cooldownGen++
	gen := ix.cooldownGen
	window := time.Duration(ix.cfg.Index.CooldownMs) * time.Millisecond
	ix.cooldown = time.AfterFunc(window, func() { ix.endCooldown(gen) })
}

func (ix *Indexer) endCooldown(gen int) {
	ix.mu.Lock()
	if ix.closed || gen != ix.cooldownGen || ix.State() != StateCooldown {
		ix.mu.Unlock()
		return
	}
	ix.cooldown = nil
	order, pending := ix.pendingOrder, ix.pending
	ix.pendingOrder, ix.pending = nil, make(map[string]types.WatchKind)
	after := ix.afterCooldown
	ix.afterCooldown = nil
	if ix.watch != nil {
		ix.setState(StateWatching)
	} else {
		ix.setState(StateIdle)
	}
	ix.mu.Unlock()

	if len(order) > 0 {
		ix.logger.Debug("applying buffered changes", "files", len(order))
	}
	for _, path := range order {
		ix.dispatch(path, pending[path])
	}
	for _, fn := range after {
		fn()
	}
}

// Close stops watching, cancels a running index, waits for background
// work and persists the cache.
func (ix *Indexer) Close() error {
	ix.mu.Lock()
	if ix.closed {
		ix.mu.Unlock()
		return nil
	}
	ix.closed = true
	ix.cancelled.Store(true)
	if ix.cancelRun != nil {
		ix.cancelRun()
	}
	if ix.cooldown != nil {
		ix.cooldown.Stop()
		ix.cooldown = nil
	}
	watch := ix.watch
	ix.watch = nil
	ix.mu.Unlock()

	var errs []error
	if watch != nil {
		if err := watch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close watch: %w", err))
		}
	}
	ix.stop()
	ix.ignores.stop()
	ix.wg.Wait()
	ix.runWG.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ix.cache.save(ctx, ix.store); err != nil {
		errs = append(errs, err)
	}
	ix.setState(StateIdle)
	return findallerrors.NewMultiError(errs).ErrorOrNil()
}

func (ix *Indexer) knownCount() int {
	ix.knownMu.Lock()
	defer ix.knownMu.Unlock()
	return len(ix.known)
}

// replaceKnown installs current as the indexed file set and returns the
// previously known files missing from it, sorted.
func (ix *Indexer) replaceKnown(current map[string]struct{}) []string {
	ix.knownMu.Lock()
	defer ix.knownMu.Unlock()
	var vanished []string
	for p := range ix.known {
		if _, ok := current[p]; !ok {
			vanished = append(vanished, p)
		}
	}
	ix.known = make(map[string]struct{}, len(current))
	for p := range current {
		ix.known[p] = struct{}{}
	}
	sort.Strings(vanished)
	return vanished
}

func (ix *Indexer) forgetAll() {
	ix.knownMu.Lock()
	defer ix.knownMu.Unlock()
	ix.known = make(map[string]struct{})
}
