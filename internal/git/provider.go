// Package git answers the version-control questions the indexer asks:
// which files a repository tracks, which are modified and which are
// ignored. A missing git binary or a non-repository directory is not an
// error for callers; they fall back to walking the file system.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/findall/internal/debug"
)

const (
	// CommandTimeout bounds every git invocation.
	CommandTimeout = 10 * time.Second

	maxConcurrentRoots = 4
)

// ErrNotRepository is returned when a directory is not inside a git
// work tree.
var ErrNotRepository = errors.New("not a git repository")

// Provider runs git commands. It is safe for concurrent use.
type Provider struct {
	binary string
	logger *slog.Logger

	mu    sync.Mutex
	roots map[string]string // dir -> repository top level ("" if none)
}

// NewProvider locates the git binary. The provider is still usable when
// git is missing; Available reports false and every query fails with
// exec.ErrNotFound.
func NewProvider(logger *slog.Logger) *Provider {
	binary, err := exec.LookPath("git")
	if err != nil {
		binary = ""
	}
	return &Provider{
		binary: binary,
		logger: debug.OrDiscard(logger).With("component", "git"),
		roots:  make(map[string]string),
	}
}

// Available reports whether a git binary was found.
func (p *Provider) Available() bool {
	return p.binary != ""
}

// run executes git in dir with the given stdin and returns stdout.
func (p *Provider) run(ctx context.Context, dir string, stdin []byte, args ...string) ([]byte, error) {
	if p.binary == "" {
		return nil, exec.ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Dir = dir
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, &CommandError{Args: args, Dir: dir, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return out, nil
}

// CommandError describes a failed git invocation.
type CommandError struct {
	Args   []string
	Dir    string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s in %s: %v", strings.Join(e.Args, " "), e.Dir, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode returns the process exit code, or -1 when git did not run.
func (e *CommandError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// RepoRoot returns the top level of the work tree containing dir.
func (p *Provider) RepoRoot(ctx context.Context, dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid directory: %w", err)
	}

	p.mu.Lock()
	root, ok := p.roots[abs]
	p.mu.Unlock()
	if ok {
		if root == "" {
			return "", ErrNotRepository
		}
		return root, nil
	}

	out, err := p.run(ctx, abs, nil, "rev-parse", "--show-toplevel")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || ctx.Err() != nil {
			return "", err
		}
		p.remember(abs, "")
		return "", fmt.Errorf("%w: %s", ErrNotRepository, abs)
	}
	root = filepath.Clean(strings.TrimSpace(string(out)))
	p.remember(abs, root)
	return root, nil
}

func (p *Provider) remember(dir, root string) {
	p.mu.Lock()
	p.roots[dir] = root
	p.mu.Unlock()
}

// ListFiles returns the absolute paths of every tracked file and every
// untracked file that is not ignored under root.
func (p *Provider) ListFiles(ctx context.Context, root string) ([]string, error) {
	out, err := p.run(ctx, root, nil, "ls-files", "--cached", "--others", "--exclude-standard", "-z")
	if err != nil {
		return nil, err
	}

	var files []string
	seen := make(map[string]struct{})
	for _, rel := range splitNUL(out) {
		path := filepath.Join(root, filepath.FromSlash(rel))
		// Files deleted in the work tree are still listed by --cached.
		if _, dup := seen[path]; dup {
			continue
		}
		if _, err := os.Lstat(path); err != nil {
			continue
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}
	return files, nil
}

// ModifiedFiles returns the absolute paths of files that differ from
// HEAD (staged, unstaged or untracked) across roots. Roots that are not
// repositories contribute nothing.
func (p *Provider) ModifiedFiles(ctx context.Context, roots []string) ([]string, error) {
	results := make([][]string, len(roots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRoots)

	for i, root := range roots {
		g.Go(func() error {
			out, err := p.run(gctx, root, nil, "status", "--porcelain=v1", "-z", "--untracked-files=all")
			if err != nil {
				var cmdErr *CommandError
				if errors.As(err, &cmdErr) {
					p.logger.Debug("git status failed", "root", root, "error", err)
					return nil
				}
				return err
			}
			results[i] = parsePorcelain(root, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var files []string
	for _, r := range results {
		files = append(files, r...)
	}
	return files, nil
}

// parsePorcelain reads `git status --porcelain=v1 -z` output. Renamed
// and copied entries carry their source path in the next field, which
// is skipped. Deleted files are omitted.
func parsePorcelain(root string, out []byte) []string {
	fields := splitNUL(out)
	var files []string
	for i := 0; i < len(fields); i++ {
		entry := fields[i]
		if len(entry) < 4 {
			continue
		}
		x, y, rel := entry[0], entry[1], entry[3:]
		if x == 'R' || x == 'C' {
			i++
		}
		if x == 'D' || y == 'D' {
			continue
		}
		files = append(files, filepath.Join(root, filepath.FromSlash(rel)))
	}
	return files
}

// CheckIgnored reports which of paths git ignores under root. All paths
// go to a single `git check-ignore --stdin` process.
func (p *Provider) CheckIgnored(ctx context.Context, root string, paths []string) (map[string]bool, error) {
	ignored := make(map[string]bool, len(paths))
	if len(paths) == 0 {
		return ignored, nil
	}

	var stdin bytes.Buffer
	for _, path := range paths {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		stdin.WriteString(filepath.ToSlash(rel))
		stdin.WriteByte(0)
	}

	out, err := p.run(ctx, root, stdin.Bytes(), "check-ignore", "--stdin", "-z")
	if err != nil {
		// Exit status 1 means none of the paths are ignored.
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.ExitCode() == 1 {
			return ignored, nil
		}
		return nil, err
	}
	for _, rel := range splitNUL(out) {
		ignored[filepath.Join(root, filepath.FromSlash(rel))] = true
	}
	return ignored, nil
}

// GitDir returns the git directory of the work tree at root, following
// the "gitdir:" indirection used by worktrees and submodules.
func GitDir(root string) (string, error) {
	dotGit := filepath.Join(root, ".git")
	info, err := os.Stat(dotGit)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return dotGit, nil
	}

	data, err := os.ReadFile(dotGit)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(data))
	dir, ok := strings.CutPrefix(line, "gitdir:")
	if !ok {
		return "", fmt.Errorf("unrecognized .git file in %s", root)
	}
	dir = strings.TrimSpace(dir)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return filepath.Clean(dir), nil
}

func splitNUL(out []byte) []string {
	var fields []string
	for _, f := range bytes.Split(out, []byte{0}) {
		if len(f) > 0 {
			fields = append(fields, string(f))
		}
	}
	return fields
}
