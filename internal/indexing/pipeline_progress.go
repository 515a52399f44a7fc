package indexing

import (
	"sync"
	"sync/atomic"
	"time"
)

// Phase names a stage of a full index.
type Phase string

const (
	PhaseDiscovery  Phase = "discovery"
	PhaseListing    Phase = "listing"
	PhaseExtraction Phase = "extraction"
	PhaseFinalize   Phase = "finalize"
	PhaseDone       Phase = "done"
)

// phaseSpan is the [base, base+weight) percentage range of a phase.
var phaseSpan = map[Phase][2]float64{
	PhaseDiscovery:  {0, weightDiscovery},
	PhaseListing:    {weightDiscovery, weightListing},
	PhaseExtraction: {weightDiscovery + weightListing, weightExtraction},
	PhaseFinalize:   {weightDiscovery + weightListing + weightExtraction, weightFinalize},
	PhaseDone:       {100, 0},
}

// Progress is a snapshot handed to the progress callback.
type Progress struct {
	Phase          Phase
	Percent        float64
	FilesProcessed int
	TotalFiles     int
	CurrentFile    string
	Elapsed        time.Duration
}

// ProgressFunc receives progress snapshots. Calls are serialized and
// Percent never decreases within one index run.
type ProgressFunc func(Progress)

const progressInterval = 100 * time.Millisecond

// ProgressTracker turns per-file steps into phase-weighted percentages.
// Step is safe for concurrent use; reports are throttled.
type ProgressTracker struct {
	report    ProgressFunc
	startTime time.Time

	total      atomic.Int64
	processed  atomic.Int64
	lastReport atomic.Int64 // unix nanos

	mu          sync.Mutex
	phase       Phase
	lastPercent float64
}

func NewProgressTracker(report ProgressFunc) *ProgressTracker {
	return &ProgressTracker{
		report:    report,
		startTime: time.Now(),
		phase:     PhaseDiscovery,
	}
}

// Begin enters phase with total units of work and reports immediately.
func (pt *ProgressTracker) Begin(phase Phase, total int) {
	pt.mu.Lock()
	pt.phase = phase
	pt.total.Store(int64(total))
	pt.processed.Store(0)
	pt.mu.Unlock()
	pt.emit("")
}

// Step records one finished unit of the current phase.
func (pt *ProgressTracker) Step(currentFile string) {
	done := pt.processed.Add(1)
	now := time.Now().UnixNano()
	last := pt.lastReport.Load()
	if done < pt.total.Load() && now-last < int64(progressInterval) {
		return
	}
	if !pt.lastReport.CompareAndSwap(last, now) {
		return
	}
	pt.emit(currentFile)
}

// Finish reports completion.
func (pt *ProgressTracker) Finish() {
	pt.Begin(PhaseDone, 0)
}

// Snapshot returns the current progress without reporting it.
func (pt *ProgressTracker) Snapshot() Progress {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.snapshotLocked("")
}

func (pt *ProgressTracker) snapshotLocked(currentFile string) Progress {
	total := pt.total.Load()
	processed := pt.processed.Load()
	if processed > total {
		processed = total
	}
	span := phaseSpan[pt.phase]
	percent := span[0]
	if total > 0 {
		percent += span[1] * float64(processed) / float64(total)
	}
	if percent < pt.lastPercent {
		percent = pt.lastPercent
	}
	return Progress{
		Phase:          pt.phase,
		Percent:        percent,
		FilesProcessed: int(processed),
		TotalFiles:     int(total),
		CurrentFile:    currentFile,
		Elapsed:        time.Since(pt.startTime),
	}
}

func (pt *ProgressTracker) emit(currentFile string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	p := pt.snapshotLocked(currentFile)
	pt.lastPercent = p.Percent
	if pt.report != nil {
		pt.report(p)
	}
}
