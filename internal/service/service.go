// Package service is the host-facing surface of findall. It owns the
// search engine, the activity tracker, the workspace indexer and the
// persistence store, and applies indexer events to the engine from a
// single writer goroutine so that per-file removals always precede the
// matching additions.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/findall/internal/activity"
	"github.com/standardbeagle/findall/internal/config"
	"github.com/standardbeagle/findall/internal/debug"
	findallerrors "github.com/standardbeagle/findall/internal/errors"
	"github.com/standardbeagle/findall/internal/extract"
	"github.com/standardbeagle/findall/internal/git"
	"github.com/standardbeagle/findall/internal/indexing"
	"github.com/standardbeagle/findall/internal/search"
	"github.com/standardbeagle/findall/internal/store"
	"github.com/standardbeagle/findall/internal/types"
	"github.com/standardbeagle/findall/internal/workspace"
)

// ErrClosed is returned by operations on a closed Service.
var ErrClosed = errors.New("service closed")

// ErrUnknownItem is returned when an item ID is not in the corpus.
var ErrUnknownItem = errors.New("unknown item")

const opQueueSize = 256

// Options overrides collaborators normally derived from the config.
type Options struct {
	// Roots defaults to the configured project root.
	Roots []string
	// Store replaces the backend selected by cfg.Storage.
	Store store.Store
	// VCS replaces git. Ignored when cfg.Index.UseVCS is false.
	VCS indexing.VCS
	// Literal is an optional external text searcher.
	Literal search.LiteralSearcher
	Logger  *slog.Logger
}

// Stats is the corpus breakdown plus indexer status.
type Stats struct {
	types.IndexStats
	State      string    `json:"state"`
	Indexing   bool      `json:"indexing"`
	CacheSize  int       `json:"cache_size"`
	LastUpdate time.Time `json:"last_update"`
}

// op is one unit of work for the writer goroutine. done, when set, is
// closed once every earlier op has been applied.
type op struct {
	apply func(*search.Engine)
	done  chan struct{}
}

// Service is safe for concurrent use.
type Service struct {
	cfg     *config.Config
	engine  *search.Engine
	tracker *activity.Tracker
	indexer *indexing.Indexer
	store   store.Store
	probe   *extract.Extractor
	head    *git.HeadWatcher
	logger  *slog.Logger

	sendMu sync.RWMutex
	closed bool
	ops    chan op
	writer chan struct{}

	cmdMu    sync.Mutex
	commands []types.SearchableItem

	lastUpdate atomic.Int64

	lifeMu  sync.Mutex
	closing bool
	bg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// Open wires a Service for cfg. Activity history is loaded, but no
// indexing starts until RebuildIndex or IndexInBackground is called.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		return nil, findallerrors.NewConfigError("config", "", errors.New("nil config"))
	}
	logger := debug.OrDiscard(opts.Logger)

	st := opts.Store
	if st == nil {
		var err error
		st, err = store.Open(cfg, logger)
		if err != nil {
			logger.Warn("persistence unavailable, keeping state in memory", "error", err)
			st = store.Instrument(store.NewMemoryStore(), config.BackendMemory)
		}
	}

	roots := opts.Roots
	if len(roots) == 0 {
		roots = []string{cfg.Project.Root}
	}
	ws := workspace.NewLocal(roots, workspace.OptionsFromConfig(cfg), logger)

	exOpts := extract.DefaultOptions()
	exOpts.MaxFileSize = cfg.Index.MaxFileSize
	probe := extract.New(exOpts, logger)
	if err := probe.Init(); err != nil {
		logger.Warn("symbol extraction unavailable", "error", err)
	}

	var vcs indexing.VCS
	var provider *git.Provider
	if cfg.Index.UseVCS {
		if opts.VCS != nil {
			vcs = opts.VCS
		} else if p := git.NewProvider(logger); p.Available() {
			provider = p
			vcs = p
		} else {
			logger.Info("git not found, walking the file system")
		}
	}

	engine := search.NewEngine(search.Options{
		MaxTextFileSize:       cfg.Search.MaxTextFileSize,
		MaxTextResults:        cfg.Search.MaxTextResults,
		TypoTolerance:         cfg.Search.TypoTolerance,
		CharMaskPrefilter:     cfg.Search.CharMaskPrefilter,
		PersonalizationWeight: cfg.Search.PersonalizationWeight,
		RouteCacheSize:        cfg.Search.RouteCacheSize,
	}, logger)
	if opts.Literal != nil {
		engine.SetLiteralSearcher(opts.Literal)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:    cfg,
		engine: engine,
		store:  st,
		probe:  probe,
		logger: logger.With("component", "service"),
		ops:    make(chan op, opQueueSize),
		writer: make(chan struct{}),
		ctx:    runCtx,
		cancel: cancel,
	}
	go s.runWriter()

	if cfg.Activity.Enabled {
		s.tracker = activity.NewTracker(st, activity.Options{
			SaveInterval: time.Duration(cfg.Activity.SaveIntervalSec) * time.Second,
			Retention:    time.Duration(cfg.Activity.RetentionDays) * 24 * time.Hour,
			MaxItems:     cfg.Activity.MaxItems,
		}, logger)
		if err := s.tracker.Load(ctx); err != nil {
			s.logger.Warn("activity history not loaded", "error", err)
		}
		s.tracker.Start()
		engine.SetActivitySource(s.tracker)
	}

	s.indexer = indexing.New(cfg, indexing.Deps{
		Workspace: ws,
		Extractors: func() (indexing.Extractor, error) {
			return extract.New(exOpts, logger), nil
		},
		Supports: probe.Supports,
		Symbols:  workspace.NewCachedSymbols(st),
		VCS:      vcs,
		Cache:    st,
		Emit:     s.emit,
	}, logger)

	if provider != nil && cfg.Index.WatchMode {
		hw, err := git.WatchHead(ws.Roots(), 0, s.onHeadChange, logger)
		if err != nil {
			s.logger.Warn("HEAD watching unavailable", "error", err)
		} else {
			s.head = hw
		}
	}
	return s, nil
}

func (s *Service) runWriter() {
	defer close(s.writer)
	for o := range s.ops {
		if o.apply != nil {
			o.apply(s.engine)
			s.lastUpdate.Store(time.Now().UnixNano())
		}
		if o.done != nil {
			close(o.done)
		}
	}
}

func (s *Service) send(o op) bool {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return false
	}
	s.ops <- o
	return true
}

// flush waits until every mutation queued so far is visible to queries.
func (s *Service) flush(ctx context.Context) error {
	done := make(chan struct{})
	if !s.send(op{done: done}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) emit(ev indexing.Event) {
	s.send(op{apply: func(e *search.Engine) { s.applyEvent(e, ev) }})
}

func (s *Service) applyEvent(e *search.Engine, ev indexing.Event) {
	switch ev.Kind {
	case indexing.EventReset:
		e.SetItems(s.commandItems())
	case indexing.EventAdd:
		e.AddItems(ev.Items)
	case indexing.EventRemoveFiles:
		e.RemoveItemsByFiles(ev.Files)
	case indexing.EventReplaceFile:
		if len(ev.Files) > 0 {
			e.RemoveItemsByFile(ev.Files[0])
		}
		e.AddItems(ev.Items)
	default:
		s.logger.Warn("unknown indexer event", "kind", ev.Kind)
	}
}

// RebuildIndex runs a full index and returns once its results are
// searchable. With force, cached extractions are discarded.
func (s *Service) RebuildIndex(ctx context.Context, force bool, progress indexing.ProgressFunc) error {
	err := s.indexer.IndexWorkspace(ctx, force, progress)
	if errors.Is(err, indexing.ErrClosed) {
		return ErrClosed
	}
	// A cancelled run still emitted partial results.
	if ferr := s.flush(ctx); err == nil && ferr != nil && !errors.Is(ferr, context.Canceled) {
		err = ferr
	}
	return err
}

// IndexInBackground starts a non-forced index after the configured
// startup delay. Failures are logged.
func (s *Service) IndexInBackground(progress indexing.ProgressFunc) {
	s.goBackground(func(ctx context.Context) {
		if d := s.cfg.Performance.StartupDelayMs; d > 0 {
			t := time.NewTimer(time.Duration(d) * time.Millisecond)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return
			}
		}
		s.logRebuild(s.RebuildIndex(ctx, false, progress))
	})
}

// CancelIndex stops a running full index.
func (s *Service) CancelIndex() {
	s.indexer.Cancel()
}

func (s *Service) onHeadChange(root string) {
	s.logger.Info("repository HEAD changed", "root", root)
	s.indexer.EnterCooldown(func() {
		s.goBackground(func(ctx context.Context) {
			s.logRebuild(s.RebuildIndex(ctx, false, nil))
		})
	})
}

func (s *Service) logRebuild(err error) {
	switch {
	case err == nil:
	case findallerrors.IsCancelled(err), errors.Is(err, ErrClosed):
		s.logger.Debug("index run stopped", "error", err)
	case errors.Is(err, findallerrors.ErrIndexInProgress):
		s.logger.Debug("index already running")
	default:
		s.logger.Error("index run failed", "error", err)
	}
}

func (s *Service) goBackground(fn func(ctx context.Context)) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closing {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn(s.ctx)
	}()
}

// ClearCache drops cached extractions, in memory and persisted. The
// corpus is untouched until the next rebuild.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.indexer.ClearCache(ctx)
}

// IndexStats reports corpus counts and indexer state.
func (s *Service) IndexStats() Stats {
	state := s.indexer.State()
	st := Stats{
		IndexStats: s.engine.GetStats(),
		State:      state.String(),
		Indexing:   state == indexing.StateIndexing,
		CacheSize:  s.indexer.CacheSize(),
	}
	if ns := s.lastUpdate.Load(); ns > 0 {
		st.LastUpdate = time.Unix(0, ns)
	}
	return st
}

// Config returns the configuration the service was opened with.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Close stops background work, persists state and releases the store.
func (s *Service) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.close() })
	return s.closeErr
}

func (s *Service) close() error {
	s.lifeMu.Lock()
	s.closing = true
	s.lifeMu.Unlock()
	s.cancel()

	var errs []error
	if s.head != nil {
		if err := s.head.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close HEAD watcher: %w", err))
		}
	}
	if err := s.indexer.Close(); err != nil {
		errs = append(errs, err)
	}
	s.bg.Wait()

	s.sendMu.Lock()
	s.closed = true
	close(s.ops)
	s.sendMu.Unlock()
	<-s.writer

	if s.tracker != nil {
		if err := s.tracker.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("save activity: %w", err))
		}
	}
	s.probe.Close()
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Debug("service closed")
	return findallerrors.NewMultiError(errs).ErrorOrNil()
}
