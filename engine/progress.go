package engine

import (
	"slices"
	"sync"
	"time"
)

// DefaultLogSize is the number of status lines kept for display.
const DefaultLogSize = 10

// ProgressTracker folds ProgressEvents into a TransferStats snapshot.
//
// Percent never decreases while the transfer is running: rsync can print a
// per-file percentage after the overall one, and the larger value wins.
// Fields missing from an update keep their previous value.
type ProgressTracker struct {
	clock   Clock
	logSize int

	mu    sync.Mutex
	start time.Time
	stats TransferStats
	log   []string
}

// NewProgressTracker creates a tracker. A nil clock means SystemClock and a
// logSize <= 0 means DefaultLogSize.
func NewProgressTracker(clock Clock, logSize int) *ProgressTracker {
	if clock == nil {
		clock = SystemClock
	}
	if logSize <= 0 {
		logSize = DefaultLogSize
	}
	t := &ProgressTracker{clock: clock, logSize: logSize}
	t.Reset()
	return t
}

// Reset returns the tracker to its initial state and restarts the elapsed
// clock. It is meant for reusing a tracker across transfers, never for use
// in the middle of one.
func (t *ProgressTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.start = now
	t.log = t.log[:0]
	t.stats = TransferStats{
		Status:     StatusStarting,
		LastUpdate: now,
	}
}

// OnEvent applies ev and returns the resulting snapshot. A nil event leaves
// the state untouched.
func (t *ProgressTracker) OnEvent(ev ProgressEvent) TransferStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case PercentUpdate:
		if t.stats.Status.Terminal() {
			break
		}
		if t.stats.Status == StatusStarting {
			t.stats.Status = StatusRunning
		}
		t.stats.Percent = max(t.stats.Percent, min(max(e.Percent, 0), 100))
		if e.Speed != "" {
			t.stats.Speed = e.Speed
		}
		if e.BytesDone != "" {
			t.stats.Transferred = e.BytesDone
		}
		if e.BytesTotal != "" {
			t.stats.Total = e.BytesTotal
		}
		if e.ETA != "" {
			t.stats.ETA = e.ETA
		}
	case StatusLine:
		t.appendLog(e.Text)
	case Unrecognized:
		t.appendLog(e.Raw)
	case Completed:
		if e.Success {
			t.stats.Status = StatusCompleted
			t.stats.Percent = 100
		} else {
			t.stats.Status = StatusFailed
		}
		if e.Summary != "" {
			t.appendLog(e.Summary)
		}
	case nil:
		return t.snapshot()
	}

	t.touch()
	return t.snapshot()
}

// Finish records the authoritative terminal status decided by the
// orchestrator from the exit code, timeout or cancellation.
func (t *ProgressTracker) Finish(status Status) TransferStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Status = status
	if status == StatusCompleted {
		t.stats.Percent = 100
	}
	t.touch()
	return t.snapshot()
}

// Snapshot returns a copy of the current state.
func (t *ProgressTracker) Snapshot() TransferStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *ProgressTracker) touch() {
	now := t.clock.Now()
	t.stats.Elapsed = int(now.Sub(t.start) / time.Second)
	t.stats.LastUpdate = now
}

func (t *ProgressTracker) appendLog(line string) {
	if len(t.log) == t.logSize {
		copy(t.log, t.log[1:])
		t.log = t.log[:len(t.log)-1]
	}
	t.log = append(t.log, line)
}

func (t *ProgressTracker) snapshot() TransferStats {
	s := t.stats
	s.Log = nil
	if len(t.log) > 0 {
		s.Log = slices.Clone(t.log)
	}
	return s
}
