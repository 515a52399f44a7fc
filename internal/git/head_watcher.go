package git

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/findall/internal/debug"
)

// DefaultHeadDebounce collapses the burst of writes git makes to HEAD
// and its lock file during a checkout.
const DefaultHeadDebounce = 100 * time.Millisecond

// HeadWatcher reports branch switches and commits by watching each
// repository's HEAD file.
type HeadWatcher struct {
	watcher  *fsnotify.Watcher
	onChange func(root string)
	debounce time.Duration
	logger   *slog.Logger

	heads map[string]string // HEAD path -> work tree root

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool

	done chan struct{}
	wg   sync.WaitGroup
}

// WatchHead starts watching the HEAD of every root that is a git work
// tree. Roots without a git directory are skipped. onChange runs on a
// timer goroutine once per debounced burst.
func WatchHead(roots []string, debounce time.Duration, onChange func(root string), logger *slog.Logger) (*HeadWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultHeadDebounce
	}

	hw := &HeadWatcher{
		watcher:  w,
		onChange: onChange,
		debounce: debounce,
		logger:   debug.OrDiscard(logger).With("component", "head-watcher"),
		heads:    make(map[string]string),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}

	for _, root := range roots {
		gitDir, err := GitDir(root)
		if err != nil {
			continue
		}
		// Watch the directory: git replaces HEAD by renaming HEAD.lock.
		if err := w.Add(gitDir); err != nil {
			hw.logger.Warn("cannot watch git directory", "dir", gitDir, "error", err)
			continue
		}
		hw.heads[filepath.Join(gitDir, "HEAD")] = root
		hw.heads[filepath.Join(gitDir, "logs", "HEAD")] = root
		if err := w.Add(filepath.Join(gitDir, "logs")); err != nil {
			hw.logger.Debug("no reflog directory", "dir", gitDir)
		}
	}

	hw.wg.Add(1)
	go hw.loop()
	return hw, nil
}

// Watching returns the number of watched HEAD and reflog paths.
func (hw *HeadWatcher) Watching() int {
	return len(hw.heads)
}

func (hw *HeadWatcher) loop() {
	defer hw.wg.Done()
	for {
		select {
		case <-hw.done:
			return
		case event, ok := <-hw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if root, ok := hw.heads[filepath.Clean(event.Name)]; ok {
				hw.schedule(root)
			}
		case err, ok := <-hw.watcher.Errors:
			if !ok {
				return
			}
			hw.logger.Warn("head watcher error", "error", err)
		}
	}
}

func (hw *HeadWatcher) schedule(root string) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if hw.stopped {
		return
	}
	if t, ok := hw.timers[root]; ok {
		t.Stop()
	}
	hw.timers[root] = time.AfterFunc(hw.debounce, func() {
		hw.mu.Lock()
		stopped := hw.stopped
		delete(hw.timers, root)
		hw.mu.Unlock()
		if stopped {
			return
		}
		hw.logger.Debug("HEAD changed", "root", root)
		hw.onChange(root)
	})
}

// Close stops watching. Pending notifications are dropped.
func (hw *HeadWatcher) Close() error {
	hw.mu.Lock()
	if hw.stopped {
		hw.mu.Unlock()
		return nil
	}
	hw.stopped = true
	for _, t := range hw.timers {
		t.Stop()
	}
	hw.mu.Unlock()

	close(hw.done)
	err := hw.watcher.Close()
	hw.wg.Wait()
	return err
}
