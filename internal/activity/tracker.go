// Package activity records which items a user opens and turns that
// history into a personalization score.
package activity

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/standardbeagle/findall/internal/debug"
	"github.com/standardbeagle/findall/internal/types"
)

const (
	recencyWeight   = 0.6
	frequencyWeight = 0.4

	DefaultSaveInterval = 30 * time.Second
	DefaultRetention    = 30 * 24 * time.Hour
	DefaultMaxItems     = 5000

	saveTimeout = 10 * time.Second
)

// Persister loads and stores activity records.
type Persister interface {
	LoadActivity(ctx context.Context) ([]types.ActivityRecord, error)
	SaveActivity(ctx context.Context, records []types.ActivityRecord) error
}

// Options tunes a Tracker. Zero values select the defaults.
type Options struct {
	SaveInterval time.Duration
	Retention    time.Duration
	MaxItems     int
	Now          func() time.Time
}

type saveState int

const (
	saveIdle saveState = iota
	saveRunning
	// saveRerun means another save was requested while one was running.
	saveRerun
)

// Tracker is safe for concurrent use. Access recording never waits on
// persistence.
type Tracker struct {
	mu       sync.RWMutex
	records  map[string]*types.ActivityRecord
	maxCount int
	dirty    bool

	saveMu  sync.Mutex
	state   saveState
	pending []chan error

	store  Persister
	opts   Options
	logger *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTracker creates a tracker. store may be nil for an in-memory
// tracker.
func NewTracker(store Persister, opts Options, logger *slog.Logger) *Tracker {
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = DefaultSaveInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		records: make(map[string]*types.ActivityRecord),
		store:   store,
		opts:    opts,
		logger:  debug.OrDiscard(logger).With("component", "activity"),
		stop:    make(chan struct{}),
	}
}

// Load replaces the in-memory history with the persisted one. Records
// past the retention window are dropped.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	records, err := t.store.LoadActivity(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[string]*types.ActivityRecord, len(records))
	for i := range records {
		r := records[i]
		if r.ItemID == "" {
			continue
		}
		t.records[r.ItemID] = &r
	}
	t.sweepLocked()
	t.recomputeMaxLocked()
	t.logger.Debug("loaded activity", "records", len(t.records))
	return nil
}

// Start launches the periodic save loop. Dispose stops it.
func (t *Tracker) Start() {
	t.wg.Add(1)
	go t.periodicSave()
}

func (t *Tracker) periodicSave() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.opts.SaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if !t.isDirty() {
				continue
			}
			if err := t.Save(context.Background()); err != nil {
				t.logger.Warn("periodic activity save failed", "error", err)
			}
		}
	}
}

func (t *Tracker) isDirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dirty
}

// RecordAccess notes that item was opened now.
func (t *Tracker) RecordAccess(item types.SearchableItem) {
	if item.ID == "" {
		return
	}
	now := t.opts.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[item.ID]
	if !ok {
		r = &types.ActivityRecord{ItemID: item.ID}
		t.records[item.ID] = r
	}
	r.LastAccessedAt = now
	r.AccessCount++
	if r.AccessCount > t.maxCount {
		t.maxCount = r.AccessCount
	}
	t.dirty = true
}

// Score returns the personalization score of id in [0, 1]. ok is false
// when the item has no history.
func (t *Tracker) Score(id string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[id]
	if !ok {
		return 0, false
	}
	return t.scoreLocked(r, t.opts.Now()), true
}

func (t *Tracker) scoreLocked(r *types.ActivityRecord, now time.Time) float64 {
	days := now.Sub(r.LastAccessedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	recency := 1 / (1 + days)

	frequency := 0.0
	if t.maxCount > 0 {
		frequency = float64(r.AccessCount) / float64(t.maxCount)
	}
	return recencyWeight*recency + frequencyWeight*frequency
}

// RecentItems returns up to n records, most recently accessed first.
func (t *Tracker) RecentItems(n int) []types.ActivityRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 || len(t.records) == 0 {
		return nil
	}

	now := t.opts.Now()
	out := make([]types.ActivityRecord, 0, len(t.records))
	for _, r := range t.records {
		rec := *r
		rec.CachedScore = t.scoreLocked(r, now)
		out = append(out, rec)
	}
	sortByRecency(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// RecentItemIDs returns the IDs of RecentItems(n).
func (t *Tracker) RecentItemIDs(n int) []string {
	recent := t.RecentItems(n)
	ids := make([]string, len(recent))
	for i, r := range recent {
		ids[i] = r.ItemID
	}
	return ids
}

func sortByRecency(records []types.ActivityRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.LastAccessedAt.Equal(b.LastAccessedAt) {
			return a.LastAccessedAt.After(b.LastAccessedAt)
		}
		return a.ItemID < b.ItemID
	})
}

// Remove forgets id and starts a save in the background. It reports
// whether id was tracked.
func (t *Tracker) Remove(id string) bool {
	t.mu.Lock()
	if _, ok := t.records[id]; !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.records, id)
	t.recomputeMaxLocked()
	t.dirty = true
	t.mu.Unlock()

	t.saveSoon()
	return true
}

// Clear forgets all history and starts a save in the background.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.records = make(map[string]*types.ActivityRecord)
	t.maxCount = 0
	t.dirty = true
	t.mu.Unlock()

	t.saveSoon()
}

// Len returns the number of tracked items.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

func (t *Tracker) recomputeMaxLocked() {
	t.maxCount = 0
	for _, r := range t.records {
		if r.AccessCount > t.maxCount {
			t.maxCount = r.AccessCount
		}
	}
}

// sweepLocked drops records older than the retention window, then the
// least recently used records beyond MaxItems.
func (t *Tracker) sweepLocked() int {
	cutoff := t.opts.Now().Add(-t.opts.Retention)
	dropped := 0
	for id, r := range t.records {
		if r.LastAccessedAt.Before(cutoff) {
			delete(t.records, id)
			dropped++
		}
	}

	if over := len(t.records) - t.opts.MaxItems; over > 0 {
		all := make([]types.ActivityRecord, 0, len(t.records))
		for _, r := range t.records {
			all = append(all, *r)
		}
		sortByRecency(all)
		for _, r := range all[t.opts.MaxItems:] {
			delete(t.records, r.ItemID)
		}
		dropped += over
	}

	if dropped > 0 {
		t.recomputeMaxLocked()
	}
	return dropped
}

// Save persists the history. Concurrent calls coalesce: a call made
// while a save is running waits for exactly one follow-up save that
// covers every such call.
func (t *Tracker) Save(ctx context.Context) error {
	if t.store == nil {
		return nil
	}

	done := make(chan error, 1)
	t.saveMu.Lock()
	t.pending = append(t.pending, done)
	t.scheduleLocked()
	t.saveMu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// saveSoon requests a coalesced save without waiting for it. After
// Dispose the request is dropped; Dispose already wrote the history.
func (t *Tracker) saveSoon() {
	if t.store == nil {
		return
	}
	select {
	case <-t.stop:
		return
	default:
	}
	t.saveMu.Lock()
	t.scheduleLocked()
	t.saveMu.Unlock()
}

func (t *Tracker) scheduleLocked() {
	switch t.state {
	case saveIdle:
		t.state = saveRunning
		t.wg.Add(1)
		go t.saveLoop()
	case saveRunning:
		t.state = saveRerun
	}
}

func (t *Tracker) saveLoop() {
	defer t.wg.Done()
	for {
		t.saveMu.Lock()
		waiters := t.pending
		t.pending = nil
		t.saveMu.Unlock()

		err := t.persist()
		for _, w := range waiters {
			w <- err
		}

		t.saveMu.Lock()
		if t.state == saveRerun {
			t.state = saveRunning
			t.saveMu.Unlock()
			continue
		}
		t.state = saveIdle
		t.saveMu.Unlock()
		return
	}
}

func (t *Tracker) persist() error {
	t.mu.Lock()
	if n := t.sweepLocked(); n > 0 {
		t.logger.Debug("swept activity", "dropped", n)
	}
	now := t.opts.Now()
	snapshot := make([]types.ActivityRecord, 0, len(t.records))
	for _, r := range t.records {
		r.CachedScore = t.scoreLocked(r, now)
		snapshot = append(snapshot, *r)
	}
	t.dirty = false
	t.mu.Unlock()

	sortByRecency(snapshot)

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := t.store.SaveActivity(ctx, snapshot); err != nil {
		t.mu.Lock()
		t.dirty = true
		t.mu.Unlock()
		t.logger.Warn("saving activity failed", "error", err)
		return err
	}
	return nil
}

// Dispose stops the periodic loop and writes any unsaved history.
func (t *Tracker) Dispose() error {
	t.stopOnce.Do(func() { close(t.stop) })

	var err error
	if t.isDirty() {
		err = t.Save(context.Background())
	}
	t.wg.Wait()
	return err
}
