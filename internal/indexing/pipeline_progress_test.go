package indexing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressTrackerPhaseWeights(t *testing.T) {
	pt := NewProgressTracker(nil)

	pt.Begin(PhaseDiscovery, 1)
	assert.InDelta(t, 0, pt.Snapshot().Percent, 0.001)
	pt.Step("")
	assert.InDelta(t, 10, pt.Snapshot().Percent, 0.001)

	pt.Begin(PhaseListing, 4)
	pt.Step("a")
	pt.Step("b")
	assert.InDelta(t, 15, pt.Snapshot().Percent, 0.001)

	pt.Begin(PhaseExtraction, 10)
	for i := 0; i < 5; i++ {
		pt.Step("f")
	}
	snap := pt.Snapshot()
	assert.InDelta(t, 55, snap.Percent, 0.001)
	assert.Equal(t, 5, snap.FilesProcessed)
	assert.Equal(t, 10, snap.TotalFiles)
	assert.Equal(t, PhaseExtraction, snap.Phase)

	pt.Begin(PhaseFinalize, 1)
	pt.Step("")
	assert.InDelta(t, 100, pt.Snapshot().Percent, 0.001)
}

func TestProgressTrackerEmptyPhase(t *testing.T) {
	pt := NewProgressTracker(nil)
	pt.Begin(PhaseExtraction, 0)
	assert.InDelta(t, 20, pt.Snapshot().Percent, 0.001)
}

func TestProgressTrackerReportsMonotonically(t *testing.T) {
	var mu sync.Mutex
	var got []Progress
	pt := NewProgressTracker(func(p Progress) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	pt.Begin(PhaseListing, 200)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				pt.Step("file")
			}
		}()
	}
	wg.Wait()
	pt.Finish()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Percent, got[i-1].Percent)
	}
	assert.Equal(t, PhaseDone, got[len(got)-1].Phase)
	assert.InDelta(t, 100, got[len(got)-1].Percent, 0.001)
}
