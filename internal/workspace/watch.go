package workspace

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/findall/internal/types"
)

// DefaultWatchDebounce is used when Options.WatchDebounce is unset.
const DefaultWatchDebounce = 300 * time.Millisecond

// Subscription is an active watch. Close stops it; notifications still
// pending in the debounce window are dropped.
type Subscription struct {
	watcher *fsnotify.Watcher
	local   *Local
	pattern string
	handler types.WatchHandler

	debouncer *eventDebouncer

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Watch subscribes handler to changes of files under the roots whose
// root-relative path matches pattern ("**/*" for everything). Excluded
// directories are not watched. Within one debounced flush, deletes are
// delivered first, then changes, then creates.
func (l *Local) Watch(pattern string, handler types.WatchHandler) (io.Closer, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	debounce := l.opts.WatchDebounce
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	s := &Subscription{
		watcher: w,
		local:   l,
		pattern: pattern,
		handler: handler,
		done:    make(chan struct{}),
	}
	s.debouncer = newEventDebouncer(debounce, s.deliver)

	for _, root := range l.roots {
		s.addWatches(root, false)
	}

	s.wg.Add(1)
	go s.processEvents()
	l.logger.Debug("watching workspace", "roots", len(l.roots), "pattern", pattern)
	return s, nil
}

// Close stops the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.debouncer.stop()
		err = s.watcher.Close()
		s.wg.Wait()
	})
	return err
}

// addWatches watches dir and every non-excluded directory below it.
// When announce is set, files found are reported as created; a directory
// that appears in one step may already hold files.
func (s *Subscription) addWatches(dir string, announce bool) {
	visited := make(map[string]bool)
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if announce && d.Type().IsRegular() && s.wants(path) {
				s.debouncer.add(path, types.WatchCreate)
			}
			return nil
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil || visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true
		if path != dir && s.local.IsExcluded(path, true) {
			return filepath.SkipDir
		}
		if err := s.watcher.Add(path); err != nil {
			s.local.logger.Warn("failed to add watch", "dir", path, "error", err)
		}
		return nil
	})
}

func (s *Subscription) processEvents() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.local.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (s *Subscription) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		// The old name of a rename is gone; the new name arrives as Create.
		if _, err := os.Lstat(path); err != nil {
			if s.inRoots(path) {
				s.debouncer.add(path, types.WatchDelete)
			}
			return
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !s.local.IsExcluded(path, true) {
			s.addWatches(path, true)
		}
		return
	}
	if !s.wants(path) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		s.debouncer.add(path, types.WatchCreate)
	case event.Op&fsnotify.Write != 0:
		s.debouncer.add(path, types.WatchChange)
	}
}

func (s *Subscription) inRoots(path string) bool {
	_, ok := s.local.rootOf(path)
	return ok
}

// wants reports whether a file path passes exclusions and the pattern.
func (s *Subscription) wants(path string) bool {
	root, ok := s.local.rootOf(path)
	if !ok || s.local.IsExcluded(path, false) {
		return false
	}
	matched, err := doublestar.Match(s.pattern, relSlash(root, path))
	return err == nil && matched
}

func (s *Subscription) deliver(path string, kind types.WatchKind) {
	select {
	case <-s.done:
		return
	default:
	}
	s.handler(path, kind)
}

// eventDebouncer collapses bursts of events per path and flushes them
// once the window has been quiet.
type eventDebouncer struct {
	mu       sync.Mutex
	events   map[string]types.WatchKind
	debounce time.Duration
	timer    *time.Timer
	stopped  bool
	flushFn  func(path string, kind types.WatchKind)
}

func newEventDebouncer(debounce time.Duration, fn func(string, types.WatchKind)) *eventDebouncer {
	return &eventDebouncer{
		events:   make(map[string]types.WatchKind),
		debounce: debounce,
		flushFn:  fn,
	}
}

func (d *eventDebouncer) add(path string, kind types.WatchKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	prev, seen := d.events[path]
	switch {
	case !seen:
		d.events[path] = kind
	case prev == types.WatchCreate && kind == types.WatchChange:
		// Still a create from the consumer's point of view.
	case prev == types.WatchDelete && kind == types.WatchCreate:
		// Replaced within the window.
		d.events[path] = types.WatchChange
	default:
		d.events[path] = kind
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.flush)
}

func (d *eventDebouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	events := d.events
	d.events = make(map[string]types.WatchKind)
	d.mu.Unlock()

	var deletes, changes, creates []string
	for path, kind := range events {
		switch kind {
		case types.WatchDelete:
			deletes = append(deletes, path)
		case types.WatchChange:
			changes = append(changes, path)
		case types.WatchCreate:
			creates = append(creates, path)
		}
	}
	for _, p := range deletes {
		d.flushFn(p, types.WatchDelete)
	}
	for _, p := range changes {
		d.flushFn(p, types.WatchChange)
	}
	for _, p := range creates {
		d.flushFn(p, types.WatchCreate)
	}
}

func (d *eventDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
