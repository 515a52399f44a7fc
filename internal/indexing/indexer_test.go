package indexing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/findall/internal/config"
	findallerrors "github.com/standardbeagle/findall/internal/errors"
	"github.com/standardbeagle/findall/internal/types"
)

func TestIndexWorkspaceBuildsCorpus(t *testing.T) {
	root := tempRoot(t)
	a := writeFile(t, root, "a.go", "package a\n\nfunc Alpha()\nfunc Beta()\n")
	notes := writeFile(t, root, "docs/notes.txt", "func NotCode()\n")
	img := writeFile(t, root, "logo.png", "\x89PNG\r\n\x1a\nbinary")
	gen := writeFile(t, root, "gen.go", "// Code generated by stringer. DO NOT EDIT.\n\nfunc Gen()\n")
	writeFile(t, root, "node_modules/lib/index.go", "func Vendored()\n")

	f := newFixture(t, root, nil)
	var reports []Progress
	require.NoError(t, f.ix.IndexWorkspace(context.Background(), false, func(p Progress) {
		reports = append(reports, p)
	}))

	assert.Equal(t, []string{"file a.go", "function Alpha", "function Beta"}, f.corpus.names(a))
	assert.Equal(t, []string{"file notes.txt"}, f.corpus.names(notes), "unsupported files are listed but not extracted")
	assert.Equal(t, []string{"file logo.png"}, f.corpus.names(img))
	assert.Empty(t, f.corpus.names(gen), "generated files are skipped")
	assert.Empty(t, f.corpus.names(filepath.Join(root, "node_modules", "lib", "index.go")))

	alpha := types.SymbolItemID(types.ItemFunction, a, "Alpha", 3, 6)
	require.True(t, f.corpus.has(alpha))
	assert.Equal(t, "a.go", f.corpus.items[alpha].RelativeFilePath)

	require.NotEmpty(t, reports)
	last := reports[len(reports)-1]
	assert.Equal(t, PhaseDone, last.Phase)
	assert.InDelta(t, 100.0, last.Percent, 0.001)
	for i := 1; i < len(reports); i++ {
		assert.GreaterOrEqual(t, reports[i].Percent, reports[i-1].Percent)
	}

	require.Eventually(t, func() bool { return f.ix.State() == StateIdle }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.ix.CacheSize())
}

func TestIndexWorkspaceHashDecidesReextraction(t *testing.T) {
	root := tempRoot(t)
	path := writeFile(t, root, "svc.go", "func Serve()\n")
	f := newFixture(t, root, nil)

	f.index(t, false)
	require.EqualValues(t, 1, f.ex.parses.Load())

	// Same content, new modification time: cached symbols are reused.
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	f.index(t, false)
	assert.EqualValues(t, 1, f.ex.parses.Load())
	assert.Equal(t, []string{"file svc.go", "function Serve"}, f.corpus.names(path))

	// New content, modification time pinned: the hash still changes.
	require.NoError(t, os.WriteFile(path, []byte("func Listen()\n"), 0o644))
	require.NoError(t, os.Chtimes(path, later, later))
	f.index(t, false)
	assert.EqualValues(t, 2, f.ex.parses.Load())
	assert.Equal(t, []string{"file svc.go", "function Listen"}, f.corpus.names(path))

	// Force ignores the cache.
	f.index(t, true)
	assert.EqualValues(t, 3, f.ex.parses.Load())
	assert.Equal(t, []string{"file svc.go", "function Listen"}, f.corpus.names(path))
}

func TestIndexWorkspaceWarmStartFromStore(t *testing.T) {
	root := tempRoot(t)
	path := writeFile(t, root, "svc.go", "func Serve()\n")
	first := newFixture(t, root, nil)
	first.index(t, false)
	require.NoError(t, first.ix.SaveCache(context.Background()))

	second := newFixture(t, root, func(_ *config.Config, deps *Deps) {
		deps.Cache = first.cache
	})
	second.index(t, false)
	assert.EqualValues(t, 0, second.ex.parses.Load(), "symbols come from the persisted cache")
	assert.Equal(t, []string{"file svc.go", "function Serve"}, second.corpus.names(path))
}

func TestIndexWorkspaceRemovesVanishedFiles(t *testing.T) {
	root := tempRoot(t)
	keep := writeFile(t, root, "keep.go", "func Keep()\n")
	gone := writeFile(t, root, "gone.go", "func Gone()\n")
	f := newFixture(t, root, nil)
	f.index(t, false)
	require.NotEmpty(t, f.corpus.names(gone))

	require.NoError(t, os.Remove(gone))
	f.index(t, false)
	assert.Empty(t, f.corpus.names(gone))
	assert.Equal(t, []string{"file keep.go", "function Keep"}, f.corpus.names(keep))
	assert.Equal(t, 1, f.ix.CacheSize())
}

func TestIndexWorkspaceWorkerFailureRequeues(t *testing.T) {
	root := tempRoot(t)
	var paths []string
	for _, name := range []string{"a.go", "b.go", "bad.go", "c.go", "d.go", "e.go"} {
		paths = append(paths, writeFile(t, root, name, "func F"+name[:1]+"()\n"))
	}
	f := newFixture(t, root, func(cfg *config.Config, _ *Deps) {
		cfg.Performance.ParallelFileWorkers = 1
		cfg.Index.BatchSize = 10
	})
	f.ex.panicOn = "bad.go"
	f.index(t, false)

	for _, p := range paths {
		names := f.corpus.names(p)
		if filepath.Base(p) == "bad.go" {
			assert.Equal(t, []string{"file bad.go"}, names)
			continue
		}
		assert.Len(t, names, 2, p)
	}
	assert.Equal(t, len(paths)-1, f.ix.CacheSize(), "a failed file is not cached")
}

type docSymbols struct{}

func (docSymbols) WorkspaceSymbols(context.Context) ([]types.SearchableItem, error) {
	return nil, errors.New("not ready")
}

func (docSymbols) DocumentSymbols(_ context.Context, path string) ([]types.SearchableItem, error) {
	return []types.SearchableItem{{
		ID:       types.SymbolItemID(types.ItemClass, path, "FromHost", 1, 1),
		Name:     "FromHost",
		Type:     types.ItemClass,
		FilePath: path,
	}}, nil
}

func TestIndexWorkspaceInlineFallback(t *testing.T) {
	root := tempRoot(t)
	path := writeFile(t, root, "a.go", "func A()\n")
	f := newFixture(t, root, func(_ *config.Config, deps *Deps) {
		deps.Extractors = func() (Extractor, error) { return nil, errors.New("no grammar") }
		deps.Symbols = docSymbols{}
	})
	f.index(t, false)
	assert.Equal(t, []string{"class FromHost", "file a.go"}, f.corpus.names(path))
	assert.Equal(t, 0, f.ix.CacheSize())
}

type workspaceSymbols struct{ items []types.SearchableItem }

func (w workspaceSymbols) WorkspaceSymbols(context.Context) ([]types.SearchableItem, error) {
	return w.items, nil
}

func (workspaceSymbols) DocumentSymbols(context.Context, string) ([]types.SearchableItem, error) {
	return nil, nil
}

func TestIndexWorkspaceFastPassIsReplaced(t *testing.T) {
	root := tempRoot(t)
	path := writeFile(t, root, "a.go", "func Fresh()\n")
	stale := types.SearchableItem{
		ID:       types.SymbolItemID(types.ItemFunction, path, "Stale", 1, 6),
		Name:     "Stale",
		Type:     types.ItemFunction,
		FilePath: path,
	}
	outside := types.SearchableItem{ID: "x", Name: "Elsewhere", Type: types.ItemClass, FilePath: "/elsewhere/x.go"}
	f := newFixture(t, root, func(_ *config.Config, deps *Deps) {
		deps.Symbols = workspaceSymbols{items: []types.SearchableItem{stale, outside}}
	})
	f.index(t, false)
	assert.Equal(t, []string{"file a.go", "function Fresh"}, f.corpus.names(path))
	assert.False(t, f.corpus.has("x"), "symbols of unlisted files are ignored")
}

func TestIndexWorkspaceCancel(t *testing.T) {
	root := tempRoot(t)
	for _, name := range []string{"a.go", "b.go", "c.go", "d.go"} {
		writeFile(t, root, name, "func X()\n")
	}
	f := newFixture(t, root, nil)
	f.ex.started = make(chan string, 8)
	f.ex.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- f.ix.IndexWorkspace(context.Background(), false, nil) }()

	<-f.ex.started
	assert.Equal(t, StateIndexing, f.ix.State())
	assert.ErrorIs(t, f.ix.IndexWorkspace(context.Background(), false, nil), findallerrors.ErrIndexInProgress)

	f.ix.Cancel()
	close(f.ex.release)

	err := <-done
	require.Error(t, err)
	assert.True(t, findallerrors.IsCancelled(err))
	for _, ev := range f.corpus.eventsSince(0) {
		assert.NotEqual(t, EventReplaceFile, ev.Kind, "results of cancelled batches are discarded")
	}
}

func TestIndexWorkspaceUsesVCSListing(t *testing.T) {
	root := tempRoot(t)
	tracked := writeFile(t, root, "tracked.go", "func Tracked()\n")
	untracked := writeFile(t, root, "scratch.go", "func Scratch()\n")
	vcs := &fakeVCS{lists: map[string][]string{root: {tracked}}}

	f := newFixture(t, root, func(cfg *config.Config, deps *Deps) {
		cfg.Index.UseVCS = true
		deps.VCS = vcs
	})
	f.index(t, false)
	assert.NotEmpty(t, f.corpus.names(tracked))
	assert.Empty(t, f.corpus.names(untracked))
}

func TestIndexWorkspaceFallsBackToWalk(t *testing.T) {
	root := tempRoot(t)
	path := writeFile(t, root, "a.go", "func A()\n")
	f := newFixture(t, root, func(cfg *config.Config, deps *Deps) {
		cfg.Index.UseVCS = true
		deps.VCS = &fakeVCS{listErr: errors.New("git: not found")}
	})
	f.index(t, false)
	assert.Equal(t, []string{"file a.go", "function A"}, f.corpus.names(path))
}

func TestIndexWorkspaceMaxFileCount(t *testing.T) {
	root := tempRoot(t)
	for _, name := range []string{"a.go", "b.go", "c.go"} {
		writeFile(t, root, name, "func X()\n")
	}
	f := newFixture(t, root, func(cfg *config.Config, _ *Deps) {
		cfg.Index.MaxFileCount = 2
	})
	f.index(t, false)
	assert.Equal(t, 2, f.ix.knownCount())
}

func TestIndexWorkspaceAfterClose(t *testing.T) {
	f := newFixture(t, tempRoot(t), nil)
	require.NoError(t, f.ix.Close())
	assert.ErrorIs(t, f.ix.IndexWorkspace(context.Background(), false, nil), ErrClosed)
}

func TestPrioritizeModifiedFirst(t *testing.T) {
	root := tempRoot(t)
	vcs := &fakeVCS{modified: []string{filepath.Join(root, "c.go")}}
	f := newFixture(t, root, func(cfg *config.Config, deps *Deps) {
		cfg.Index.UseVCS = true
		deps.VCS = vcs
	})
	files := []fileInfo{
		{path: filepath.Join(root, "a.go")},
		{path: filepath.Join(root, "b.go")},
		{path: filepath.Join(root, "c.go")},
	}
	got := f.ix.prioritize(context.Background(), files)
	assert.Equal(t, filepath.Join(root, "c.go"), got[0].path)
	assert.Equal(t, filepath.Join(root, "a.go"), got[1].path)
}
