package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	findallerrors "github.com/standardbeagle/findall/internal/errors"
	"github.com/standardbeagle/findall/internal/types"
)

func symbol(t types.ItemType, name, path string, line int) types.SearchableItem {
	return types.SearchableItem{
		ID:       types.SymbolItemID(t, path, name, line, 1),
		Name:     name,
		Type:     t,
		FilePath: path,
		Line:     line,
		Column:   1,
	}
}

func fixtureItems() []types.SearchableItem {
	userSvc := symbol(types.ItemClass, "UserService", "src/UserService.ts", 3)
	getUser := symbol(types.ItemMethod, "getUserById", "src/UserService.ts", 10)
	getUser.ContainerName = "UserService"
	getUser.FullName = "UserService.getUserById"
	return []types.SearchableItem{
		types.NewFileItem("src/UserService.ts", "src/UserService.ts", 100),
		types.NewFileItem("src/OrderService.ts", "src/OrderService.ts", 100),
		userSvc,
		getUser,
		symbol(types.ItemClass, "OrderService", "src/OrderService.ts", 2),
		symbol(types.ItemEndpoint, "[GET] api/users/{id}", "src/routes.ts", 7),
		symbol(types.ItemProperty, "userName", "src/UserService.ts", 4),
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(DefaultOptions(), nil)
	e.SetItems(fixtureItems())
	return e
}

func names(results []types.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Item.Name
	}
	return out
}

func TestSearchRanksClassPrefixFirst(t *testing.T) {
	e := newTestEngine(t)

	results, err := e.Search(context.Background(), "User", types.ScopeEverything, 10, true)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "UserService", results[0].Item.Name)
	assert.NotContains(t, names(results), "OrderService")
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "results must be sorted")
	}
	assert.Equal(t, []types.Span{{Start: 0, End: 4}}, results[0].Highlights)
}

func TestSearchShortQueryFindsClass(t *testing.T) {
	e := newTestEngine(t)

	results, err := e.Search(context.Background(), "US", types.ScopeEverything, 10, true)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "UserService", results[0].Item.Name)
}

func TestSearchAcronymMatchesCamelHumps(t *testing.T) {
	e := NewEngine(DefaultOptions(), nil)
	e.SetItems([]types.SearchableItem{
		symbol(types.ItemClass, "FileComponentController", "src/files.ts", 1),
		symbol(types.ItemFunction, "fccHelper", "src/util.ts", 1),
	})

	off, err := e.Search(context.Background(), "FCC", types.ScopeEverything, 10, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"fccHelper", "FileComponentController"}, names(off))

	on, err := e.Search(context.Background(), "FCC", types.ScopeEverything, 10, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"FileComponentController", "fccHelper"}, names(on))
	assert.InDelta(t, 1.0*1.5*0.8*1.5, on[0].Score, 1e-9)
	assert.Greater(t, on[0].Score, off[1].Score)
}

func TestSearchAcronymIgnoresContiguousMatches(t *testing.T) {
	e := newTestEngine(t)

	on, err := e.Search(context.Background(), "US", types.ScopeTypes, 10, true)
	require.NoError(t, err)
	off, err := e.Search(context.Background(), "US", types.ScopeTypes, 10, false)
	require.NoError(t, err)
	require.NotEmpty(t, on)
	assert.Equal(t, "UserService", on[0].Item.Name)
	assert.InDelta(t, off[0].Score, on[0].Score, 1e-9, "a prefix match outranks the acronym tier")
}

func TestSearchRouteQueryMatchesEndpoint(t *testing.T) {
	e := newTestEngine(t)

	for _, q := range []string{"get api/users/5", "api/users/5", "[GET] /api/users/5"} {
		t.Run(q, func(t *testing.T) {
			results, err := e.Search(context.Background(), q, types.ScopeEndpoints, 10, true)
			require.NoError(t, err)
			require.Len(t, results, 1)

			r := results[0]
			assert.Equal(t, "[GET] api/users/{id}", r.Item.Name)
			assert.Equal(t, types.ScopeEndpoints, r.Scope)
			assert.InDelta(t, 1.35, r.Score, 1e-9)
			assert.Nil(t, r.Highlights)
		})
	}
}

func TestSearchScopeFilter(t *testing.T) {
	e := newTestEngine(t)

	results, err := e.Search(context.Background(), "User", types.ScopeTypes, 10, true)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, types.ScopeTypes, r.Item.Type.Scope())
	}

	results, err = e.Search(context.Background(), "user", types.ScopeProperties, 10, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"userName"}, names(results))
}

func TestSearchLineOverride(t *testing.T) {
	e := newTestEngine(t)

	results, err := e.Search(context.Background(), "UserService:42", types.ScopeTypes, 1, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 42, results[0].Item.Line)

	stored := e.ResolveItems([]string{results[0].Item.ID})
	require.Len(t, stored, 1)
	assert.Equal(t, 3, stored[0].Line, "the corpus copy is untouched")
}

func TestSearchEmptyQuery(t *testing.T) {
	e := newTestEngine(t)
	results, err := e.Search(context.Background(), "   ", types.ScopeEverything, 10, true)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRespectsMaxResults(t *testing.T) {
	e := NewEngine(DefaultOptions(), nil)
	var items []types.SearchableItem
	for i := 0; i < 200; i++ {
		items = append(items, symbol(types.ItemFunction, fmt.Sprintf("handler%03d", i), "h.go", i+1))
	}
	e.SetItems(items)

	results, err := e.Search(context.Background(), "handler", types.ScopeEverything, 25, false)
	require.NoError(t, err)
	require.Len(t, results, 25)
	// Equal scores keep corpus order.
	assert.Equal(t, "handler000", results[0].Item.Name)
	assert.Equal(t, "handler024", results[24].Item.Name)
}

func TestSearchCancelled(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := e.Search(ctx, "User", types.ScopeEverything, 10, true)
	assert.ErrorIs(t, err, findallerrors.ErrCancelled)
	assert.True(t, findallerrors.IsCancelled(err))
	assert.Empty(t, results)
}

func TestCharMaskPrefilterKeepsRanking(t *testing.T) {
	plain := newTestEngine(t)
	opts := DefaultOptions()
	opts.CharMaskPrefilter = true
	masked := NewEngine(opts, nil)
	masked.SetItems(fixtureItems())

	for _, q := range []string{"User", "serv", "getuser"} {
		want, err := plain.Search(context.Background(), q, types.ScopeEverything, 10, false)
		require.NoError(t, err)
		got, err := masked.Search(context.Background(), q, types.ScopeEverything, 10, false)
		require.NoError(t, err)
		assert.Equal(t, names(want), names(got), q)
	}
}

type fakeActivity struct {
	scores map[string]float64
	recent []string
}

func (f *fakeActivity) Score(id string) (float64, bool) {
	s, ok := f.scores[id]
	return s, ok
}

func (f *fakeActivity) RecentItemIDs(n int) []string {
	if n < len(f.recent) {
		return f.recent[:n]
	}
	return f.recent
}

func TestPersonalizationReordersTies(t *testing.T) {
	e := NewEngine(DefaultOptions(), nil)
	first := symbol(types.ItemClass, "Alpha1Widget", "a.go", 1)
	second := symbol(types.ItemClass, "Alpha2Widget", "a.go", 2)
	e.SetItems([]types.SearchableItem{first, second})

	results, err := e.Search(context.Background(), "alpha", types.ScopeEverything, 10, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha1Widget", "Alpha2Widget"}, names(results))

	e.SetActivitySource(&fakeActivity{scores: map[string]float64{second.ID: 1}})
	results, err = e.Search(context.Background(), "alpha", types.ScopeEverything, 10, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha2Widget", "Alpha1Widget"}, names(results))

	base := (0.75 + 0.2*5.0/12.0) * 1.5
	assert.InDelta(t, base*0.7+0.3, results[0].Score, 1e-9)
	assert.InDelta(t, base, results[1].Score, 1e-9, "items without history keep their match score")
}

func TestPersonalizationLeavesUnvisitedItemsAlone(t *testing.T) {
	e := newTestEngine(t)
	plain, err := e.Search(context.Background(), "UserService", types.ScopeTypes, 5, false)
	require.NoError(t, err)
	require.NotEmpty(t, plain)

	e.SetActivitySource(&fakeActivity{scores: map[string]float64{"unrelated": 1}})
	personalized, err := e.Search(context.Background(), "UserService", types.ScopeTypes, 5, false)
	require.NoError(t, err)
	require.Len(t, personalized, len(plain))
	for i := range plain {
		assert.Equal(t, plain[i].Item.ID, personalized[i].Item.ID)
		assert.InDelta(t, plain[i].Score, personalized[i].Score, 1e-9)
	}

	burst := e.BurstSearch("user", types.ScopeEverything, 5)
	e.SetActivitySource(nil)
	assert.Equal(t, e.BurstSearch("user", types.ScopeEverything, 5), burst)
}

func TestGetRecentItemsSkipsUnknown(t *testing.T) {
	e := newTestEngine(t)
	items := fixtureItems()
	e.SetActivitySource(&fakeActivity{
		scores: map[string]float64{items[2].ID: 0.9, items[4].ID: 0.5},
		recent: []string{items[2].ID, "gone", items[4].ID},
	})

	recent := e.GetRecentItems(5)
	assert.Equal(t, []string{"UserService", "OrderService"}, names(recent))
	assert.InDelta(t, 0.9, recent[0].Score, 1e-9)

	assert.Len(t, e.GetRecentItems(1), 1)
}

func TestAddItemsUpsertsByID(t *testing.T) {
	e := newTestEngine(t)
	before := e.Len()

	renamed := fixtureItems()[2]
	renamed.Name = "AccountService"
	e.AddItems([]types.SearchableItem{renamed})
	assert.Equal(t, before, e.Len())

	results, err := e.Search(context.Background(), "AccountService", types.ScopeTypes, 5, false)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, renamed.ID, results[0].Item.ID)

	// A type change moves the item between scopes.
	renamed.Type = types.ItemFunction
	e.AddItems([]types.SearchableItem{renamed})
	stats := e.GetStats()
	assert.Equal(t, 1, stats.Types)
	assert.Equal(t, 2, stats.Symbols)
	assertColumnsAligned(t, e)
}

func TestAddItemsDropsInvalidType(t *testing.T) {
	e := newTestEngine(t)
	before := e.Len()
	e.AddItems([]types.SearchableItem{{ID: "bad", Name: "bad", Type: types.ItemType(200)}})
	assert.Equal(t, before, e.Len())
}

func assertColumnsAligned(t *testing.T, e *Engine) {
	t.Helper()
	n := e.cols.len()
	assert.Len(t, e.cols.names, n)
	assert.Len(t, e.cols.lowerNames, n)
	assert.Len(t, e.cols.fullNames, n)
	assert.Len(t, e.cols.paths, n)
	assert.Len(t, e.cols.capitals, n)
	assert.Len(t, e.cols.masks, n)
	assert.Len(t, e.byID, n)

	total := 0
	for s := range e.scopes {
		total += len(e.scopes[s])
		for _, idx := range e.scopes[s] {
			require.Less(t, int(idx), n)
			assert.Equal(t, types.Scope(s), e.cols.items[idx].Type.Scope())
		}
	}
	assert.Equal(t, n, total)
	for i, item := range e.cols.items {
		assert.Equal(t, i, e.byID[item.ID])
		assert.Equal(t, item.Name, e.cols.names[i].text)
	}
}

func TestRemoveItemsByFileCompactsInLockstep(t *testing.T) {
	e := newTestEngine(t)

	removed := e.RemoveItemsByFile("src/UserService.ts")
	assert.Equal(t, 4, removed)
	assertColumnsAligned(t, e)

	results, err := e.Search(context.Background(), "UserService", types.ScopeEverything, 10, false)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "src/UserService.ts", r.Item.FilePath)
	}

	assert.Zero(t, e.RemoveItemsByFile("missing.ts"))
	removed = e.RemoveItemsByFiles([]string{"src/OrderService.ts", "src/routes.ts"})
	assert.Equal(t, 3, removed)
	assert.Zero(t, e.Len())
	assertColumnsAligned(t, e)
}

func TestRemoveItemsByID(t *testing.T) {
	e := newTestEngine(t)
	items := fixtureItems()
	assert.Equal(t, 1, e.RemoveItems([]string{items[4].ID, "unknown"}))
	assert.Empty(t, e.ResolveItems([]string{items[4].ID}))
	assertColumnsAligned(t, e)
}

func TestInternMapsPruned(t *testing.T) {
	e := NewEngine(DefaultOptions(), nil)
	items := []types.SearchableItem{symbol(types.ItemFunction, "Keep", "keep.go", 1)}
	for i := 0; i < internPruneThreshold; i++ {
		items = append(items, symbol(types.ItemFunction, fmt.Sprintf("Bulk%d", i), "bulk.go", i+1))
	}
	e.SetItems(items)
	require.Greater(t, e.intern.size(), internPruneThreshold)

	e.RemoveItemsByFile("bulk.go")
	assert.Equal(t, 2, e.intern.size(), "only the surviving name and path remain")
	assert.Zero(t, e.removed)
	assertColumnsAligned(t, e)
}

func TestGetStats(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, types.IndexStats{
		Files:      2,
		Types:      2,
		Symbols:    1,
		Properties: 1,
		Endpoints:  1,
		Total:      7,
	}, e.GetStats())
}

func TestBurstSearch(t *testing.T) {
	e := newTestEngine(t)

	results := e.BurstSearch("user", types.ScopeEverything, 10)
	require.NotEmpty(t, results)
	assert.Equal(t, "UserService", results[0].Item.Name)
	assert.InDelta(t, 0.9*1.5, results[0].Score, 1e-9)
	assert.NotContains(t, names(results), "getUserById", "burst only takes name prefixes")

	assert.Len(t, e.BurstSearch("user", types.ScopeEverything, 1), 1)
	assert.Nil(t, e.BurstSearch("user", types.ScopeText, 10))

	exact := e.BurstSearch("ordersERVICE", types.ScopeTypes, 10)
	require.Len(t, exact, 1)
	assert.InDelta(t, 1.5, exact[0].Score, 1e-9)

	route := e.BurstSearch("post api/users/9", types.ScopeEverything, 10)
	require.Len(t, route, 1)
	assert.Equal(t, types.ScopeEndpoints, route[0].Scope)
}

func TestSearchStreamEmitsBurstThenFinal(t *testing.T) {
	e := newTestEngine(t)

	var finals []bool
	var last []types.SearchResult
	err := e.SearchStream(context.Background(), "User", types.ScopeEverything, 10, true, func(r []types.SearchResult, final bool) {
		finals = append(finals, final)
		last = r
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, finals)
	require.NotEmpty(t, last)
	assert.Equal(t, "UserService", last[0].Item.Name)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err = e.SearchStream(ctx, "User", types.ScopeEverything, 10, true, func([]types.SearchResult, bool) { calls++ })
	assert.ErrorIs(t, err, findallerrors.ErrCancelled)
	assert.Zero(t, calls)
}
