package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/findall/internal/config"
	"github.com/standardbeagle/findall/internal/debug"
	"github.com/standardbeagle/findall/internal/indexing"
	"github.com/standardbeagle/findall/internal/search"
	"github.com/standardbeagle/findall/internal/store"
	"github.com/standardbeagle/findall/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const appSource = `package app

type UserStore struct {
	Name string
}

func HandleRequest() {}
`

func workspaceRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.go"), []byte(appSource), 0o644))
	return root
}

func testConfig(root string) *config.Config {
	cfg := config.Default(root)
	cfg.Storage.Backend = config.BackendMemory
	cfg.Index.UseVCS = false
	cfg.Index.WatchMode = false
	cfg.Index.CooldownMs = 10
	cfg.Index.ReextractPerSecond = 0
	return cfg
}

func openService(t *testing.T, root string, st store.Store) *Service {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	s, err := Open(context.Background(), testConfig(root), Options{Store: st, Logger: debug.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func names(results []types.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Item.Name)
	}
	return out
}

func TestRebuildIndexMakesCorpusSearchable(t *testing.T) {
	root := workspaceRoot(t)
	s := openService(t, root, nil)
	ctx := context.Background()

	require.NoError(t, s.RebuildIndex(ctx, false, nil))

	found, err := s.Search(ctx, "UserStore", types.ScopeTypes, 5)
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, "UserStore", found[0].Item.Name)
	assert.Equal(t, types.ScopeTypes, found[0].Scope)

	found, err = s.Search(ctx, "HandleReq", types.ScopeSymbols, 5)
	require.NoError(t, err)
	assert.Contains(t, names(found), "HandleRequest")

	assert.Contains(t, names(s.BurstSearch("app", types.ScopeFiles, 5)), "app.go")

	stats := s.IndexStats()
	assert.Equal(t, 1, stats.Files)
	assert.GreaterOrEqual(t, stats.Total, 3)
	assert.False(t, stats.Indexing)
	assert.Equal(t, 1, stats.CacheSize)
	assert.False(t, stats.LastUpdate.IsZero())
}

func TestSearchStreamEmitsBurstThenFinal(t *testing.T) {
	s := openService(t, workspaceRoot(t), nil)
	ctx := context.Background()
	require.NoError(t, s.RebuildIndex(ctx, false, nil))

	var finals []bool
	err := s.SearchStream(ctx, "UserStore", types.ScopeEverything, 5, func(results []types.SearchResult, final bool) {
		finals = append(finals, final)
		assert.Contains(t, names(results), "UserStore")
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, finals)
}

func TestCommandsSurviveForcedRebuild(t *testing.T) {
	s := openService(t, workspaceRoot(t), nil)
	ctx := context.Background()

	require.NoError(t, s.RegisterCommands(ctx, []Command{
		{Name: "Reindex Workspace", Description: "rebuild the index"},
		{Name: "Clear Cache"},
	}))
	require.NoError(t, s.RebuildIndex(ctx, true, nil))

	found, err := s.Search(ctx, "reindex", types.ScopeCommands, 5)
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, CommandItemID("Reindex Workspace"), found[0].Item.ID)
	assert.Equal(t, "rebuild the index", found[0].Item.Detail)
	assert.Equal(t, 2, s.IndexStats().Commands)

	require.NoError(t, s.RegisterCommands(ctx, []Command{{Name: "Show Stats"}}))
	assert.Empty(t, s.ResolveItems([]string{CommandItemID("Clear Cache")}))
	assert.Len(t, s.ResolveItems([]string{CommandItemID("Show Stats")}), 1)
	assert.Equal(t, 1, s.IndexStats().Commands)
}

func TestRecordActivity(t *testing.T) {
	root := workspaceRoot(t)
	s := openService(t, root, nil)
	ctx := context.Background()
	require.NoError(t, s.RebuildIndex(ctx, false, nil))

	id := types.FileItemID(filepath.Join(root, "app.go"))
	require.NoError(t, s.RecordActivity(id))
	recent := s.GetRecentItems(5)
	require.Len(t, recent, 1)
	assert.Equal(t, id, recent[0].Item.ID)
	assert.Greater(t, recent[0].Score, 0.0)

	assert.ErrorIs(t, s.RecordActivity("file:/nowhere"), ErrUnknownItem)
}

func TestActivityPersistsAcrossSessions(t *testing.T) {
	root := workspaceRoot(t)
	st := store.NewMemoryStore()
	ctx := context.Background()
	id := types.FileItemID(filepath.Join(root, "app.go"))

	first, err := Open(ctx, testConfig(root), Options{Store: st})
	require.NoError(t, err)
	require.NoError(t, first.RebuildIndex(ctx, false, nil))
	require.NoError(t, first.RecordActivity(id))
	require.NoError(t, first.Close())

	second := openService(t, root, st)
	require.NoError(t, second.RebuildIndex(ctx, false, nil))
	recent := second.GetRecentItems(1)
	require.Len(t, recent, 1)
	assert.Equal(t, id, recent[0].Item.ID)
	assert.Equal(t, 1, second.IndexStats().CacheSize, "extraction cache was persisted too")
}

func TestClearActivityPersists(t *testing.T) {
	root := workspaceRoot(t)
	st := store.NewMemoryStore()
	s := openService(t, root, st)
	ctx := context.Background()
	require.NoError(t, s.RebuildIndex(ctx, false, nil))

	stored := func() int {
		records, _ := st.LoadActivity(ctx)
		return len(records)
	}

	id := types.FileItemID(filepath.Join(root, "app.go"))
	require.NoError(t, s.RecordActivity(id))
	require.NoError(t, s.tracker.Save(ctx))
	require.Equal(t, 1, stored())

	assert.ErrorIs(t, s.ForgetActivity("file:/nowhere"), ErrUnknownItem)
	require.NoError(t, s.ForgetActivity(id))
	assert.Empty(t, s.GetRecentItems(5))
	assert.Eventually(t, func() bool { return stored() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.RecordActivity(id))
	require.NoError(t, s.tracker.Save(ctx))
	require.Equal(t, 1, stored())

	require.NoError(t, s.ClearActivity(ctx))
	assert.Empty(t, s.GetRecentItems(5))
	assert.Zero(t, stored(), "the cleared history is stored before ClearActivity returns")
}

func TestClearCache(t *testing.T) {
	s := openService(t, workspaceRoot(t), nil)
	ctx := context.Background()
	require.NoError(t, s.RebuildIndex(ctx, false, nil))
	require.Equal(t, 1, s.IndexStats().CacheSize)

	require.NoError(t, s.ClearCache(ctx))
	stats := s.IndexStats()
	assert.Zero(t, stats.CacheSize)
	assert.NotZero(t, stats.Files, "the corpus stays until the next rebuild")
}

func TestApplyEventReplacesFileItems(t *testing.T) {
	s := openService(t, workspaceRoot(t), nil)
	e := search.NewEngine(search.DefaultOptions(), nil)
	path := "/repo/a.go"
	old := types.SearchableItem{ID: "old", Name: "Old", Type: types.ItemFunction, FilePath: path}
	fresh := types.SearchableItem{ID: "new", Name: "New", Type: types.ItemFunction, FilePath: path}
	other := types.SearchableItem{ID: "other", Name: "Other", Type: types.ItemFunction, FilePath: "/repo/b.go"}

	s.applyEvent(e, indexing.Event{Kind: indexing.EventAdd, Items: []types.SearchableItem{old, other}})
	s.applyEvent(e, indexing.Event{Kind: indexing.EventReplaceFile, Files: []string{path}, Items: []types.SearchableItem{fresh}})
	assert.Empty(t, e.ResolveItems([]string{"old"}))
	assert.Len(t, e.ResolveItems([]string{"new", "other"}), 2)

	s.applyEvent(e, indexing.Event{Kind: indexing.EventRemoveFiles, Files: []string{"/repo/b.go"}})
	assert.Equal(t, 1, e.Len())

	s.applyEvent(e, indexing.Event{Kind: indexing.EventReset})
	assert.Zero(t, e.Len())
}

func TestClosedService(t *testing.T) {
	s, err := Open(context.Background(), testConfig(workspaceRoot(t)), Options{Store: store.NewMemoryStore()})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.RebuildIndex(context.Background(), false, nil), ErrClosed)
	assert.ErrorIs(t, s.RegisterCommands(context.Background(), []Command{{Name: "x"}}), ErrClosed)
	s.IndexInBackground(nil)
}
