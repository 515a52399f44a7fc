// Package search ranks workspace items against free-form queries.
package search

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/standardbeagle/findall/internal/debug"
	findallerrors "github.com/standardbeagle/findall/internal/errors"
	"github.com/standardbeagle/findall/internal/metrics"
	"github.com/standardbeagle/findall/internal/route"
	"github.com/standardbeagle/findall/internal/types"
)

const (
	// DefaultMaxResults applies when a caller passes a non-positive limit.
	DefaultMaxResults = 50

	// cancelCheckInterval is how many candidates are scored between
	// context checks.
	cancelCheckInterval = 1024
)

var lineSuffixRe = regexp.MustCompile(`^(.*\S):(\d+)$`)

// ActivitySource supplies personalization scores and recent items.
type ActivitySource interface {
	Score(id string) (float64, bool)
	RecentItemIDs(n int) []string
}

// Options tunes an Engine.
type Options struct {
	MaxTextFileSize       int64
	MaxTextResults        int
	TypoTolerance         bool
	CharMaskPrefilter     bool
	PersonalizationWeight float64
	RouteCacheSize        int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		MaxTextFileSize:       1024 * 1024,
		MaxTextResults:        200,
		TypoTolerance:         true,
		PersonalizationWeight: 0.3,
		RouteCacheSize:        route.DefaultCacheSize,
	}
}

// Engine is the in-memory corpus and its ranking. Queries may run
// concurrently with each other; mutations take the write lock.
type Engine struct {
	mu      sync.RWMutex
	cols    columnStore
	byID    map[string]int
	scopes  [types.NumScopes][]int32
	intern  *interner
	removed int

	routes   *route.Matcher
	activity ActivitySource
	literal  LiteralSearcher
	opts     Options
	logger   *slog.Logger
}

// NewEngine creates an empty engine.
func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if opts.MaxTextFileSize <= 0 {
		opts.MaxTextFileSize = DefaultOptions().MaxTextFileSize
	}
	if opts.MaxTextResults <= 0 {
		opts.MaxTextResults = DefaultOptions().MaxTextResults
	}
	return &Engine{
		byID:   make(map[string]int),
		intern: newInterner(),
		routes: route.NewMatcher(opts.RouteCacheSize),
		opts:   opts,
		logger: debug.OrDiscard(logger).With("component", "search"),
	}
}

// SetActivitySource wires personalization. nil disables it.
func (e *Engine) SetActivitySource(a ActivitySource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activity = a
}

// SetLiteralSearcher installs an external text searcher used before the
// built-in line scan. nil restores the built-in scan only.
func (e *Engine) SetLiteralSearcher(l LiteralSearcher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.literal = l
}

// SetItems replaces the corpus.
func (e *Engine) SetItems(items []types.SearchableItem) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cols.reset()
	e.intern = newInterner()
	e.byID = make(map[string]int, len(items))
	e.removed = 0
	e.addLocked(items)
	e.publishStatsLocked()
}

// AddItems appends items. An item whose ID is already present replaces
// the existing entry in place.
func (e *Engine) AddItems(items []types.SearchableItem) {
	if len(items) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.addLocked(items)
	e.publishStatsLocked()
}

func (e *Engine) addLocked(items []types.SearchableItem) {
	rebuild := false
	for _, item := range items {
		if !item.Type.Valid() {
			e.logger.Warn("dropping item with invalid type", "id", item.ID, "type", uint8(item.Type))
			continue
		}
		if i, ok := e.byID[item.ID]; ok {
			if e.cols.items[i].Type.Scope() != item.Type.Scope() {
				rebuild = true
			}
			e.cols.set(i, item, e.intern)
			continue
		}
		i := e.cols.len()
		e.cols.append(item, e.intern)
		e.byID[item.ID] = i
		if !rebuild {
			scope := item.Type.Scope()
			e.scopes[scope] = append(e.scopes[scope], int32(i))
		}
	}
	if rebuild {
		e.rebuildScopesLocked()
	}
}

// RemoveItemsByFile removes every item whose FilePath is path.
func (e *Engine) RemoveItemsByFile(path string) int {
	return e.RemoveItemsByFiles([]string{path})
}

// RemoveItemsByFiles removes every item located in one of paths in a
// single compaction pass and returns the number of items removed.
func (e *Engine) RemoveItemsByFiles(paths []string) int {
	if len(paths) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		drop[p] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := e.cols.compact(func(i int) bool {
		_, gone := drop[e.cols.items[i].FilePath]
		return !gone
	})
	if removed == 0 {
		return 0
	}
	e.afterRemovalLocked(removed)
	return removed
}

// RemoveItems removes items by ID.
func (e *Engine) RemoveItems(ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	drop := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if i, ok := e.byID[id]; ok {
			drop[i] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return 0
	}
	removed := e.cols.compact(func(i int) bool {
		_, gone := drop[i]
		return !gone
	})
	e.afterRemovalLocked(removed)
	return removed
}

func (e *Engine) afterRemovalLocked(removed int) {
	e.byID = make(map[string]int, e.cols.len())
	for i := range e.cols.items {
		e.byID[e.cols.items[i].ID] = i
	}
	e.rebuildScopesLocked()

	e.removed += removed
	if e.removed >= internPruneThreshold {
		before := e.intern.size()
		e.intern.prune(&e.cols)
		e.logger.Debug("pruned intern maps", "before", before, "after", e.intern.size())
		e.removed = 0
	}
	e.publishStatsLocked()
}

func (e *Engine) rebuildScopesLocked() {
	var counts [types.NumScopes]int
	for i := range e.cols.items {
		counts[e.cols.items[i].Type.Scope()]++
	}
	for s := range e.scopes {
		e.scopes[s] = make([]int32, 0, counts[s])
	}
	for i := range e.cols.items {
		scope := e.cols.items[i].Type.Scope()
		e.scopes[scope] = append(e.scopes[scope], int32(i))
	}
}

func (e *Engine) publishStatsLocked() {
	metrics.SetCorpusStats(e.statsLocked())
}

// Len returns the corpus size.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cols.len()
}

// GetStats returns per-category counts.
func (e *Engine) GetStats() types.IndexStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.statsLocked()
}

func (e *Engine) statsLocked() types.IndexStats {
	return types.IndexStats{
		Files:      len(e.scopes[types.ScopeFiles]),
		Types:      len(e.scopes[types.ScopeTypes]),
		Symbols:    len(e.scopes[types.ScopeSymbols]),
		Properties: len(e.scopes[types.ScopeProperties]),
		Endpoints:  len(e.scopes[types.ScopeEndpoints]),
		Text:       len(e.scopes[types.ScopeText]),
		Commands:   len(e.scopes[types.ScopeCommands]),
		Total:      e.cols.len(),
	}
}

// ResolveItems returns the items for ids, skipping unknown IDs.
func (e *Engine) ResolveItems(ids []string) []types.SearchableItem {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]types.SearchableItem, 0, len(ids))
	for _, id := range ids {
		if i, ok := e.byID[id]; ok {
			out = append(out, e.cols.items[i])
		}
	}
	return out
}

// GetRecentItems resolves the most recently used items that are still in
// the corpus. Scores are the activity scores.
func (e *Engine) GetRecentItems(n int) []types.SearchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.activity == nil || n <= 0 {
		return nil
	}
	// Ask for extra IDs; some may have left the corpus.
	ids := e.activity.RecentItemIDs(n * 2)
	out := make([]types.SearchResult, 0, min(n, len(ids)))
	for _, id := range ids {
		i, ok := e.byID[id]
		if !ok {
			continue
		}
		item := e.cols.items[i]
		score, _ := e.activity.Score(id)
		out = append(out, types.SearchResult{Item: item, Score: score, Scope: item.Type.Scope()})
		if len(out) == n {
			break
		}
	}
	return out
}

// parsedQuery is a query with its ":<line>" override split off.
type parsedQuery struct {
	text string
	line int
}

func parseQuery(query string) parsedQuery {
	q := strings.TrimSpace(query)
	if m := lineSuffixRe.FindStringSubmatch(q); m != nil {
		if line, err := strconv.Atoi(m[2]); err == nil && line > 0 {
			return parsedQuery{text: strings.TrimSpace(m[1]), line: line}
		}
	}
	return parsedQuery{text: q}
}

func prepareQuery(text string) *preparedQuery {
	lower := strings.ToLower(text)
	_, rest := route.StripMethod(text)
	return &preparedQuery{
		raw:   text,
		lower: lower,
		upper: strings.ToUpper(text),
		mask:  charMask(lower),
		route: rest,
		isURL: route.IsPotentialURL(rest),
	}
}

type candidate struct {
	idx   int
	score float64
	scope types.Scope
	seq   int
}

// Lower scores rank lower; among equal scores the later candidate ranks
// lower, keeping insertion order stable.
func lessCandidate(a, b candidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.seq > b.seq
}

// Search returns up to maxResults items ranked for query within scope.
// A cancelled context returns the results selected so far together with
// ErrCancelled.
func (e *Engine) Search(ctx context.Context, query string, scope types.Scope, maxResults int, enableAcronym bool) ([]types.SearchResult, error) {
	start := time.Now()
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	pq := parseQuery(query)
	if pq.text == "" {
		return nil, nil
	}

	if scope == types.ScopeText {
		defer metrics.ObserveQuery("text", start)
		return e.searchText(ctx, pq, maxResults)
	}
	defer metrics.ObserveQuery("search", start)

	q := prepareQuery(pq.text)

	e.mu.RLock()
	defer e.mu.RUnlock()

	tk := NewTopK(maxResults, lessCandidate)
	cancelled := false

	visit := func(seq, idx int) bool {
		if seq%cancelCheckInterval == 0 && ctx.Err() != nil {
			cancelled = true
			return false
		}
		score, resultScope, ok := e.scoreLocked(idx, q, enableAcronym)
		if !ok {
			return true
		}
		if tk.Full() {
			if weakest, _ := tk.Peek(); score <= weakest.score {
				return true
			}
		}
		tk.Push(candidate{idx: idx, score: score, scope: resultScope, seq: seq})
		return true
	}

	if scope == types.ScopeEverything {
		for i := range e.cols.items {
			if !visit(i, i) {
				break
			}
		}
	} else if scope.Valid() {
		for seq, idx := range e.scopes[scope] {
			if !visit(seq, int(idx)) {
				break
			}
		}
	}

	results := e.materializeLocked(tk.Sorted(), q, pq.line)
	if cancelled {
		metrics.QueriesCancelled.Inc()
		return results, findallerrors.ErrCancelled
	}
	return results, nil
}

// scoreLocked computes the final score of one candidate. ok is false
// when the candidate does not match at all.
func (e *Engine) scoreLocked(idx int, q *preparedQuery, enableAcronym bool) (float64, types.Scope, bool) {
	if e.opts.CharMaskPrefilter && !q.isURL && maskRejects(q.mask, e.cols.masks[idx]) {
		return 0, 0, false
	}

	typo := e.opts.TypoTolerance
	best := fuzzyScore(q, e.cols.names[idx], typo) * nameWeight
	if best < fullNameWeight {
		if s := fuzzyScore(q, e.cols.fullNames[idx], typo) * fullNameWeight; s > best {
			best = s
		}
	}
	if best < pathWeight {
		if s := fuzzyScore(q, e.cols.paths[idx], false) * pathWeight; s > best {
			best = s
		}
	}
	if best < minFuzzyScore {
		best = 0
	}
	if enableAcronym && best < weakMatchScore {
		if a := acronymScore(q.upper, e.cols.capitals[idx]); a > best {
			best = a
		}
	}

	item := &e.cols.items[idx]
	boost := item.Type.Boost()
	score := best * boost
	resultScope := item.Type.Scope()

	if q.isURL && item.Type == types.ItemEndpoint {
		if rs := e.routes.Score(item.Name, q.route) * boost; rs > score {
			score = rs
			resultScope = types.ScopeEndpoints
		}
	}
	if score <= 0 {
		return 0, 0, false
	}

	return e.personalize(item.ID, score), resultScope, true
}

// personalize blends in the item's activity score. Items without history
// keep their match score.
func (e *Engine) personalize(id string, score float64) float64 {
	if e.activity == nil {
		return score
	}
	p, ok := e.activity.Score(id)
	if !ok {
		return score
	}
	return blendPersonalization(score, p, e.opts.PersonalizationWeight)
}

func (e *Engine) materializeLocked(cands []candidate, q *preparedQuery, lineOverride int) []types.SearchResult {
	results := make([]types.SearchResult, 0, len(cands))
	for _, c := range cands {
		item := e.cols.items[c.idx]
		if lineOverride > 0 {
			item.Line = lineOverride
		}
		r := types.SearchResult{Item: item, Score: c.score, Scope: c.scope}
		if !q.isURL {
			r.Highlights = highlightSpans(q.raw, item.Name)
		}
		results = append(results, r)
	}
	return results
}

// BurstSearch is the fast path for interactive typing: exact or prefix
// name matches only, stopping after maxResults hits.
func (e *Engine) BurstSearch(query string, scope types.Scope, maxResults int) []types.SearchResult {
	start := time.Now()
	defer metrics.ObserveQuery("burst", start)

	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	pq := parseQuery(query)
	if pq.text == "" || scope == types.ScopeText {
		return nil
	}
	q := prepareQuery(pq.text)

	e.mu.RLock()
	defer e.mu.RUnlock()

	var hits []candidate
	visit := func(seq, idx int) bool {
		item := &e.cols.items[idx]
		var s float64
		switch name := e.cols.lowerNames[idx]; {
		case name == q.lower:
			s = 1.0
		case strings.HasPrefix(name, q.lower):
			s = 0.9
		}
		s *= item.Type.Boost()
		resultScope := item.Type.Scope()
		if q.isURL && item.Type == types.ItemEndpoint {
			if rs := e.routes.Score(item.Name, q.route) * item.Type.Boost(); rs > s {
				s = rs
				resultScope = types.ScopeEndpoints
			}
		}
		if s <= 0 {
			return true
		}
		s = e.personalize(item.ID, s)
		hits = append(hits, candidate{idx: idx, score: s, scope: resultScope, seq: seq})
		return len(hits) < maxResults
	}

	if scope == types.ScopeEverything {
		for i := range e.cols.items {
			if !visit(i, i) {
				break
			}
		}
	} else if scope.Valid() {
		for seq, idx := range e.scopes[scope] {
			if !visit(seq, int(idx)) {
				break
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	return e.materializeLocked(hits, q, pq.line)
}

// SearchStream emits burst results first and the fully ranked list
// second. emit is not called after ctx is cancelled.
func (e *Engine) SearchStream(ctx context.Context, query string, scope types.Scope, maxResults int, enableAcronym bool, emit func(results []types.SearchResult, final bool)) error {
	if scope != types.ScopeText {
		burst := e.BurstSearch(query, scope, maxResults)
		if ctx.Err() != nil {
			return findallerrors.ErrCancelled
		}
		emit(burst, false)
	}

	results, err := e.Search(ctx, query, scope, maxResults, enableAcronym)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return findallerrors.ErrCancelled
	}
	emit(results, true)
	return nil
}
