package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/findall/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func tempRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return root
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func relAll(t *testing.T, l *Local, files []string) []string {
	t.Helper()
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = l.ToRelativePath(f)
	}
	return out
}

func TestFindFilesAppliesExclusions(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "src/app.ts", "export {}\n")
	writeFile(t, root, "src/app.min.js", "x\n")
	writeFile(t, root, "node_modules/lib/index.js", "x\n")
	writeFile(t, root, ".git/config", "x\n")
	writeFile(t, root, "gen/out.txt", "x\n")
	writeFile(t, root, "notes.tmp", "x\n")
	writeFile(t, root, ".gitignore", "gen/\n*.tmp\n")

	l := NewLocal([]string{root}, Options{
		Exclude:          []string{"**/node_modules/**", "**/.*/**", "**/*.min.js"},
		RespectGitignore: true,
	}, nil)

	files, err := l.FindFiles(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{".gitignore", "main.go", "src/app.ts"}, relAll(t, l, files))

	files, err = l.FindFiles(context.Background(), []string{"**/*.ts"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/app.ts"}, relAll(t, l, files))

	files, err = l.FindFiles(context.Background(), nil, []string{"src/**"})
	require.NoError(t, err)
	assert.Equal(t, []string{".gitignore", "main.go"}, relAll(t, l, files))
}

func TestFindFilesWithoutGitignore(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, root, "a.go", "x")
	writeFile(t, root, "b.tmp", "x")
	writeFile(t, root, ".gitignore", "*.tmp\n")

	l := NewLocal([]string{root}, Options{}, nil)
	files, err := l.FindFiles(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestFindFilesCancelled(t *testing.T) {
	root := tempRoot(t)
	for i := 0; i < ctxCheckInterval*2; i++ {
		writeFile(t, root, fmt.Sprintf("d/%c/f%d.txt", 'a'+i%26, i), "x")
	}
	l := NewLocal([]string{root}, Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.FindFiles(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindFilesFollowsSymlinks(t *testing.T) {
	root := tempRoot(t)
	outside := tempRoot(t)
	writeFile(t, outside, "shared/lib.go", "package lib\n")
	writeFile(t, root, "main.go", "package main\n")
	if err := os.Symlink(filepath.Join(outside, "shared"), filepath.Join(root, "shared")); err != nil {
		t.Skip("symlinks unsupported")
	}

	l := NewLocal([]string{root}, Options{}, nil)
	files, err := l.FindFiles(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, relAll(t, l, files))

	l = NewLocal([]string{root}, Options{FollowSymlinks: true}, nil)
	files, err = l.FindFiles(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go", "shared/lib.go"}, relAll(t, l, files))
}

func TestToRelativePath(t *testing.T) {
	a := tempRoot(t)
	b := tempRoot(t)

	single := NewLocal([]string{a, a}, Options{}, nil)
	assert.Len(t, single.Roots(), 1)
	assert.Equal(t, "src/x.go", single.ToRelativePath(filepath.Join(a, "src", "x.go")))
	assert.Equal(t, "/elsewhere/y.go", single.ToRelativePath("/elsewhere/y.go"))

	multi := NewLocal([]string{a, b}, Options{}, nil)
	assert.Equal(t, filepath.Base(b)+"/z.go", multi.ToRelativePath(filepath.Join(b, "z.go")))
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) handle(path string, kind types.WatchKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind.String()+" "+filepath.Base(path))
}

func (r *recorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func TestWatchReportsChanges(t *testing.T) {
	root := tempRoot(t)
	existing := writeFile(t, root, "existing.go", "package a\n")
	writeFile(t, root, "node_modules/dep.js", "x")

	l := NewLocal([]string{root}, Options{
		Exclude:       []string{"**/node_modules/**"},
		WatchDebounce: 20 * time.Millisecond,
	}, nil)

	rec := &recorder{}
	sub, err := l.Watch("**/*.go", rec.handle)
	require.NoError(t, err)
	defer sub.Close()

	writeFile(t, root, "created.go", "package a\n")
	require.Eventually(t, func() bool { return rec.has("create created.go") }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(existing, []byte("package a\n\nvar X = 1\n"), 0o644))
	require.Eventually(t, func() bool { return rec.has("change existing.go") }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(existing))
	require.Eventually(t, func() bool { return rec.has("delete existing.go") }, 5*time.Second, 10*time.Millisecond)

	writeFile(t, root, "newdir/inner.go", "package b\n")
	require.Eventually(t, func() bool { return rec.has("create inner.go") }, 5*time.Second, 10*time.Millisecond)

	writeFile(t, root, "notes.txt", "ignored by pattern")
	writeFile(t, root, "node_modules/other.go", "excluded")
	time.Sleep(100 * time.Millisecond)
	assert.False(t, rec.has("create notes.txt"))
	assert.False(t, rec.has("create other.go"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}

func TestWatchRejectsBadPattern(t *testing.T) {
	l := NewLocal([]string{tempRoot(t)}, Options{}, nil)
	_, err := l.Watch("[", func(string, types.WatchKind) {})
	assert.Error(t, err)
}

func TestDebouncerOrdersAndFolds(t *testing.T) {
	var got []string
	d := newEventDebouncer(time.Hour, func(path string, kind types.WatchKind) {
		got = append(got, kind.String()+" "+path)
	})
	d.add("a", types.WatchCreate)
	d.add("a", types.WatchChange)
	d.add("b", types.WatchDelete)
	d.add("b", types.WatchCreate)
	d.add("c", types.WatchDelete)
	d.stop()

	// Flush manually; stop only prevents the timer from firing.
	d.stopped = false
	d.flush()
	assert.Equal(t, []string{"delete c", "change b", "create a"}, got)
}

type fakeCache map[string]types.CacheEntry

func (f fakeCache) LoadCache(context.Context) (map[string]types.CacheEntry, error) {
	return f, nil
}

func TestCachedSymbols(t *testing.T) {
	root := tempRoot(t)
	fresh := writeFile(t, root, "fresh.go", "package a\n")
	stale := writeFile(t, root, "stale.go", "package a\n")

	info, err := os.Stat(fresh)
	require.NoError(t, err)
	hash, err := types.HashFile(fresh)
	require.NoError(t, err)

	sym := func(path, name string) types.SearchableItem {
		return types.SearchableItem{ID: types.SymbolItemID(types.ItemFunction, path, name, 1, 1), Name: name, Type: types.ItemFunction, FilePath: path}
	}
	cache := fakeCache{
		fresh:                         {ModTime: info.ModTime(), ContentHash: hash, Symbols: []types.SearchableItem{sym(fresh, "Fresh")}},
		stale:                         {ModTime: info.ModTime(), ContentHash: hash + 1, Symbols: []types.SearchableItem{sym(stale, "Stale")}},
		filepath.Join(root, "gone.go"): {ModTime: info.ModTime(), ContentHash: hash, Symbols: []types.SearchableItem{sym("gone.go", "Gone")}},
	}

	provider := NewCachedSymbols(cache)
	items, err := provider.WorkspaceSymbols(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Fresh", items[0].Name)

	doc, err := provider.DocumentSymbols(context.Background(), fresh)
	require.NoError(t, err)
	assert.Len(t, doc, 1)

	doc, err = provider.DocumentSymbols(context.Background(), stale)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestCachedSymbolsRejectRewriteWithSameModTime(t *testing.T) {
	root := tempRoot(t)
	path := writeFile(t, root, "a.go", "package a\n\nfunc Old() {}\n")
	info, err := os.Stat(path)
	require.NoError(t, err)
	hash, err := types.HashFile(path)
	require.NoError(t, err)

	cache := fakeCache{path: {
		ModTime:     info.ModTime(),
		ContentHash: hash,
		Symbols: []types.SearchableItem{{
			ID: types.SymbolItemID(types.ItemFunction, path, "Old", 3, 6), Name: "Old", Type: types.ItemFunction, FilePath: path,
		}},
	}}
	provider := NewCachedSymbols(cache)

	doc, err := provider.DocumentSymbols(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, doc, 1)

	require.NoError(t, os.WriteFile(path, []byte("package a\n\nfunc New() {}\n"), 0o644))
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

	doc, err = provider.DocumentSymbols(context.Background(), path)
	require.NoError(t, err)
	assert.Nil(t, doc, "content changed under an unchanged timestamp")

	items, err := provider.WorkspaceSymbols(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}
