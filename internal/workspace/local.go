// Package workspace exposes the local file system as the indexer's view
// of a workspace: its roots, the files under them, path display and
// change notifications.
package workspace

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/findall/internal/config"
	"github.com/standardbeagle/findall/internal/debug"
)

// ctxCheckInterval is how many walk entries pass between context checks.
const ctxCheckInterval = 256

// Options configures a Local workspace.
type Options struct {
	// Exclude globs are matched against root-relative, slash-separated
	// paths. A directory matching "<glob>" with any child is pruned.
	Exclude          []string
	RespectGitignore bool
	FollowSymlinks   bool
	WatchDebounce    time.Duration
}

// OptionsFromConfig derives workspace options from the loaded config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Exclude:          cfg.Exclude,
		RespectGitignore: cfg.Index.RespectGitignore,
		FollowSymlinks:   cfg.Index.FollowSymlinks,
		WatchDebounce:    time.Duration(cfg.Index.WatchDebounceMs) * time.Millisecond,
	}
}

// Local is a workspace made of directories on the local disk.
type Local struct {
	roots     []string
	opts      Options
	gitignore map[string]*config.GitignoreRules
	logger    *slog.Logger
}

// NewLocal creates a workspace over roots. Roots are made absolute and
// symlinks in them resolved; duplicates are dropped.
func NewLocal(roots []string, opts Options, logger *slog.Logger) *Local {
	l := &Local{
		opts:      opts,
		gitignore: make(map[string]*config.GitignoreRules),
		logger:    debug.OrDiscard(logger).With("component", "workspace"),
	}

	seen := make(map[string]bool)
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			abs = real
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		l.roots = append(l.roots, abs)

		if opts.RespectGitignore {
			rules := config.NewGitignoreRules()
			if err := rules.LoadGitignore(abs); err != nil {
				l.logger.Warn("cannot read .gitignore", "root", abs, "error", err)
			}
			l.gitignore[abs] = rules
		}
	}
	return l
}

// Roots returns the absolute workspace roots.
func (l *Local) Roots() []string {
	out := make([]string, len(l.roots))
	copy(out, l.roots)
	return out
}

// FindFiles walks every root and returns the absolute paths of regular
// files that match include (every file when include is empty) and match
// neither exclude nor the workspace's own exclusions. The result is
// sorted.
func (l *Local) FindFiles(ctx context.Context, include, exclude []string) ([]string, error) {
	excludes := append(append([]string{}, l.opts.Exclude...), exclude...)

	var files []string
	for _, root := range l.roots {
		found, err := l.walkRoot(ctx, root, include, excludes)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	sort.Strings(files)
	return files, nil
}

func (l *Local) walkRoot(ctx context.Context, root string, include, excludes []string) ([]string, error) {
	var files []string
	visited := make(map[string]bool)
	rules := l.gitignore[root]
	n := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		n++
		if n%ctxCheckInterval == 0 {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
		}
		if err != nil {
			l.logger.Debug("walk error", "path", path, "error", err)
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel := relSlash(root, path)
		isDir := d.IsDir()

		if d.Type()&fs.ModeSymlink != 0 {
			if !l.opts.FollowSymlinks {
				return nil
			}
			info, err := os.Stat(path)
			if err != nil {
				return nil
			}
			if info.IsDir() {
				// WalkDir does not descend into symlinked directories.
				if l.excludedDir(rel, excludes, rules) {
					return nil
				}
				sub, err := l.walkLinked(ctx, root, path, include, excludes, visited)
				files = append(files, sub...)
				return err
			}
		}

		if isDir {
			real, err := filepath.EvalSymlinks(path)
			if err == nil {
				if visited[real] {
					return filepath.SkipDir
				}
				visited[real] = true
			}
			if l.excludedDir(rel, excludes, rules) {
				return filepath.SkipDir
			}
			return nil
		}

		if l.excludedFile(rel, excludes, rules) || !matchesAny(include, rel, true) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// walkLinked walks a symlinked directory, reporting paths under the
// link rather than under its target.
func (l *Local) walkLinked(ctx context.Context, root, link string, include, excludes []string, visited map[string]bool) ([]string, error) {
	target, err := filepath.EvalSymlinks(link)
	if err != nil || visited[target] {
		return nil, nil
	}
	visited[target] = true

	var files []string
	rules := l.gitignore[root]
	err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if path == target {
			return nil
		}
		linked := filepath.Join(link, strings.TrimPrefix(path, target+string(filepath.Separator)))
		rel := relSlash(root, linked)
		if d.IsDir() {
			if l.excludedDir(rel, excludes, rules) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || l.excludedFile(rel, excludes, rules) || !matchesAny(include, rel, true) {
			return nil
		}
		files = append(files, linked)
		return nil
	})
	return files, err
}

func (l *Local) excludedDir(rel string, excludes []string, rules *config.GitignoreRules) bool {
	// Probe with a child so "**/node_modules/**" prunes node_modules itself.
	if matchesAny(excludes, rel+"/_", false) {
		return true
	}
	return rules != nil && rules.ShouldIgnore(rel, true)
}

func (l *Local) excludedFile(rel string, excludes []string, rules *config.GitignoreRules) bool {
	if matchesAny(excludes, rel, false) {
		return true
	}
	return rules != nil && rules.ShouldIgnore(rel, false)
}

// IsExcluded reports whether path falls under the workspace exclusions
// or its root's .gitignore.
func (l *Local) IsExcluded(path string, isDir bool) bool {
	root, ok := l.rootOf(path)
	if !ok {
		return true
	}
	rel := relSlash(root, path)
	if isDir {
		return l.excludedDir(rel, l.opts.Exclude, l.gitignore[root])
	}
	return l.excludedFile(rel, l.opts.Exclude, l.gitignore[root])
}

// ToRelativePath renders path for display. With several roots the root's
// base name is prepended. Paths outside every root come back unchanged.
func (l *Local) ToRelativePath(path string) string {
	root, ok := l.rootOf(path)
	if !ok {
		return path
	}
	rel := relSlash(root, path)
	if len(l.roots) > 1 {
		return filepath.Base(root) + "/" + rel
	}
	return rel
}

// rootOf returns the deepest root containing path.
func (l *Local) rootOf(path string) (string, bool) {
	best := ""
	for _, r := range l.roots {
		if path == r || strings.HasPrefix(path, r+string(filepath.Separator)) {
			if len(r) > len(best) {
				best = r
			}
		}
	}
	return best, best != ""
}

func relSlash(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// matchesAny reports whether rel matches one of patterns. An empty
// pattern list yields emptyResult.
func matchesAny(patterns []string, rel string, emptyResult bool) bool {
	if len(patterns) == 0 {
		return emptyResult
	}
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
