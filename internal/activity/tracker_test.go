package activity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
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

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memStore struct {
	mu      sync.Mutex
	saved   [][]types.ActivityRecord
	loaded  []types.ActivityRecord
	saveErr error
	gate    chan struct{}
	entered chan struct{}
	saves   atomic.Int32
}

func (s *memStore) LoadActivity(context.Context) ([]types.ActivityRecord, error) {
	return s.loaded, nil
}

func (s *memStore) SaveActivity(_ context.Context, records []types.ActivityRecord) error {
	s.saves.Add(1)
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, records)
	return s.saveErr
}

func (s *memStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func (s *memStore) last() []types.ActivityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return nil
	}
	return s.saved[len(s.saved)-1]
}

func item(id string) types.SearchableItem {
	return types.SearchableItem{ID: id, Name: id, Type: types.ItemFunction}
}

func TestScoreBlendsRecencyAndFrequency(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(nil, Options{Now: clock.Now}, nil)

	tr.RecordAccess(item("a"))
	tr.RecordAccess(item("a"))
	tr.RecordAccess(item("b"))

	a, ok := tr.Score("a")
	require.True(t, ok)
	assert.InDelta(t, 0.6*1+0.4*1, a, 1e-9)

	b, ok := tr.Score("b")
	require.True(t, ok)
	assert.InDelta(t, 0.6*1+0.4*0.5, b, 1e-9)

	clock.Advance(24 * time.Hour)
	a, _ = tr.Score("a")
	assert.InDelta(t, 0.6*0.5+0.4*1, a, 1e-9)

	_, ok = tr.Score("missing")
	assert.False(t, ok)
}

func TestRecentItemsOrder(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(nil, Options{Now: clock.Now}, nil)

	for _, id := range []string{"a", "b", "c"} {
		tr.RecordAccess(item(id))
		clock.Advance(time.Minute)
	}
	tr.RecordAccess(item("a"))

	assert.Equal(t, []string{"a", "c", "b"}, tr.RecentItemIDs(10))
	assert.Equal(t, []string{"a", "c"}, tr.RecentItemIDs(2))
	assert.Nil(t, tr.RecentItems(0))

	recent := tr.RecentItems(1)
	require.Len(t, recent, 1)
	assert.Equal(t, 2, recent[0].AccessCount)
	assert.Greater(t, recent[0].CachedScore, 0.0)
}

func TestRemoveAndClear(t *testing.T) {
	tr := NewTracker(nil, Options{}, nil)
	tr.RecordAccess(item("a"))
	tr.RecordAccess(item("a"))
	tr.RecordAccess(item("b"))

	tr.Remove("a")
	b, ok := tr.Score("b")
	require.True(t, ok)
	assert.InDelta(t, 1.0, b, 1e-6, "max count shrinks with the removed item")

	tr.Clear()
	assert.Zero(t, tr.Len())
	assert.Empty(t, tr.RecentItemIDs(5))
}

func TestRemoveAndClearPersist(t *testing.T) {
	store := &memStore{}
	tr := NewTracker(store, Options{SaveInterval: time.Hour}, nil)
	tr.RecordAccess(item("a"))
	tr.RecordAccess(item("b"))

	assert.False(t, tr.Remove("missing"))
	assert.Zero(t, store.saves.Load(), "nothing changed, nothing saved")

	require.True(t, tr.Remove("a"))
	require.Eventually(t, func() bool { return store.savedCount() == 1 }, 2*time.Second, time.Millisecond)
	saved := store.last()
	require.Len(t, saved, 1)
	assert.Equal(t, "b", saved[0].ItemID)

	tr.Clear()
	require.Eventually(t, func() bool { return store.savedCount() == 2 }, 2*time.Second, time.Millisecond)
	assert.Empty(t, store.last())

	require.NoError(t, tr.Dispose())
	assert.Equal(t, int32(2), store.saves.Load(), "history was already clean at dispose")
}

func TestRecordAccessIgnoresEmptyID(t *testing.T) {
	tr := NewTracker(nil, Options{}, nil)
	tr.RecordAccess(types.SearchableItem{})
	assert.Zero(t, tr.Len())
}

func TestSaveSweepsExpiredAndCapsItems(t *testing.T) {
	clock := newFakeClock()
	store := &memStore{}
	tr := NewTracker(store, Options{Now: clock.Now, Retention: 48 * time.Hour, MaxItems: 2}, nil)

	tr.RecordAccess(item("old"))
	clock.Advance(72 * time.Hour)
	for _, id := range []string{"x", "y", "z"} {
		tr.RecordAccess(item(id))
		clock.Advance(time.Second)
	}

	require.NoError(t, tr.Save(context.Background()))

	saved := store.last()
	require.Len(t, saved, 2)
	assert.Equal(t, "z", saved[0].ItemID)
	assert.Equal(t, "y", saved[1].ItemID)
	assert.Equal(t, 2, tr.Len())
}

func TestLoadRestoresHistory(t *testing.T) {
	clock := newFakeClock()
	store := &memStore{loaded: []types.ActivityRecord{
		{ItemID: "kept", LastAccessedAt: clock.Now().Add(-time.Hour), AccessCount: 3},
		{ItemID: "expired", LastAccessedAt: clock.Now().Add(-90 * 24 * time.Hour), AccessCount: 9},
		{ItemID: "", AccessCount: 1},
	}}
	tr := NewTracker(store, Options{Now: clock.Now}, nil)

	require.NoError(t, tr.Load(context.Background()))
	assert.Equal(t, []string{"kept"}, tr.RecentItemIDs(10))

	s, ok := tr.Score("kept")
	require.True(t, ok)
	assert.InDelta(t, 0.4, s-0.6/(1+1.0/24), 1e-9)
}

func TestConcurrentSavesCoalesce(t *testing.T) {
	store := &memStore{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	tr := NewTracker(store, Options{}, nil)
	tr.RecordAccess(item("a"))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- tr.Save(context.Background())
	}()
	<-store.entered

	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- tr.Save(context.Background())
		}()
	}
	require.Eventually(t, func() bool {
		tr.saveMu.Lock()
		defer tr.saveMu.Unlock()
		return len(tr.pending) == 9 && tr.state == saveRerun
	}, time.Second, time.Millisecond)

	close(store.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.Equal(t, int32(2), store.saves.Load())
	assert.Eventually(t, func() bool {
		tr.saveMu.Lock()
		defer tr.saveMu.Unlock()
		return tr.state == saveIdle
	}, time.Second, time.Millisecond)
	require.NoError(t, tr.Dispose())
}

func TestSaveFailureKeepsDirty(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	tr := NewTracker(store, Options{}, nil)
	tr.RecordAccess(item("a"))

	assert.Error(t, tr.Save(context.Background()))
	assert.True(t, tr.isDirty())

	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()
	require.NoError(t, tr.Dispose())
	assert.False(t, tr.isDirty())
	assert.Equal(t, int32(2), store.saves.Load())
}

func TestPeriodicSave(t *testing.T) {
	store := &memStore{}
	tr := NewTracker(store, Options{SaveInterval: 10 * time.Millisecond}, nil)
	tr.Start()

	tr.RecordAccess(item("a"))
	require.Eventually(t, func() bool { return store.saves.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)

	// Nothing changed since the last save.
	before := store.saves.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, store.saves.Load())

	require.NoError(t, tr.Dispose())
	require.NoError(t, tr.Dispose())
}

func TestInMemoryTrackerSaveIsNoop(t *testing.T) {
	tr := NewTracker(nil, Options{}, nil)
	tr.RecordAccess(item("a"))
	assert.NoError(t, tr.Save(context.Background()))
	assert.NoError(t, tr.Load(context.Background()))
	tr.Start()
	assert.NoError(t, tr.Dispose())
}
