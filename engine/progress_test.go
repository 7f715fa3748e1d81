package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func TestProgressTrackerInitialState(t *testing.T) {
	clock := newFakeClock()
	tr := NewProgressTracker(clock, 0)

	s := tr.Snapshot()
	assert.Equal(t, StatusStarting, s.Status)
	assert.Zero(t, s.Percent)
	assert.Zero(t, s.Elapsed)
	assert.Nil(t, s.Log)
	assert.Equal(t, clock.Now(), s.LastUpdate)
}

func TestProgressTrackerPercentIsMonotonic(t *testing.T) {
	tr := NewProgressTracker(newFakeClock(), 0)

	var got []int
	for _, p := range []int{40, 10, 70} {
		got = append(got, tr.OnEvent(PercentUpdate{Percent: p}).Percent)
	}
	assert.Equal(t, []int{40, 40, 70}, got)
	assert.Equal(t, StatusRunning, tr.Snapshot().Status)
}

func TestProgressTrackerKeepsMissingFields(t *testing.T) {
	tr := NewProgressTracker(newFakeClock(), 0)

	tr.OnEvent(PercentUpdate{Percent: 10, Speed: "5MB/s", BytesDone: "10MB", BytesTotal: "100MB", ETA: "0:00:18"})
	s := tr.OnEvent(PercentUpdate{Percent: 20})

	assert.Equal(t, 20, s.Percent)
	assert.Equal(t, "5MB/s", s.Speed)
	assert.Equal(t, "10MB", s.Transferred)
	assert.Equal(t, "100MB", s.Total)
	assert.Equal(t, "0:00:18", s.ETA)

	s = tr.OnEvent(PercentUpdate{Percent: 30, Speed: "7MB/s"})
	assert.Equal(t, "7MB/s", s.Speed)
	assert.Equal(t, "10MB", s.Transferred)
}

func TestProgressTrackerLogEviction(t *testing.T) {
	tr := NewProgressTracker(newFakeClock(), 3)

	var s TransferStats
	for i := range 5 {
		s = tr.OnEvent(StatusLine{Category: CategoryInfo, Text: fmt.Sprintf("line %d", i)})
	}
	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, s.Log)
	assert.Equal(t, "line 4", s.LastLine())

	s = tr.OnEvent(Unrecognized{Raw: "raw"})
	assert.Equal(t, []string{"line 3", "line 4", "raw"}, s.Log)
}

func TestProgressTrackerSnapshotsAreIndependent(t *testing.T) {
	tr := NewProgressTracker(newFakeClock(), 0)

	first := tr.OnEvent(StatusLine{Text: "one"})
	tr.OnEvent(StatusLine{Text: "two"})
	first.Log[0] = "mutated"

	assert.Equal(t, []string{"one", "two"}, tr.Snapshot().Log)
}

func TestProgressTrackerCompletion(t *testing.T) {
	tr := NewProgressTracker(newFakeClock(), 0)

	tr.OnEvent(PercentUpdate{Percent: 62})
	s := tr.OnEvent(Completed{Success: true, Summary: "speedup is 2.00"})
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, 100, s.Percent)
	assert.Equal(t, "speedup is 2.00", s.LastLine())

	s = tr.OnEvent(PercentUpdate{Percent: 5})
	assert.Equal(t, 100, s.Percent, "terminal tracker ignores percent updates")
	assert.Equal(t, StatusCompleted, s.Status)
}

func TestProgressTrackerReportedFailure(t *testing.T) {
	tr := NewProgressTracker(newFakeClock(), 0)

	tr.OnEvent(PercentUpdate{Percent: 40})
	s := tr.OnEvent(Completed{Success: false, Summary: "rsync error: timeout in data send/receive (code 30)"})
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, 40, s.Percent)
}

func TestProgressTrackerFinish(t *testing.T) {
	tr := NewProgressTracker(newFakeClock(), 0)
	tr.OnEvent(PercentUpdate{Percent: 12})

	s := tr.Finish(StatusTimedOut)
	assert.Equal(t, StatusTimedOut, s.Status)
	assert.Equal(t, 12, s.Percent)

	tr.Reset()
	s = tr.Finish(StatusCompleted)
	assert.Equal(t, 100, s.Percent)
}

func TestProgressTrackerElapsed(t *testing.T) {
	clock := newFakeClock()
	tr := NewProgressTracker(clock, 0)

	clock.Advance(3*time.Minute + 7*time.Second)
	s := tr.OnEvent(PercentUpdate{Percent: 1})
	assert.Equal(t, 187, s.Elapsed)
	assert.Equal(t, "0:03:07", s.ElapsedText())
	assert.Equal(t, clock.Now(), s.LastUpdate)
}

func TestProgressTrackerNilEventIsNoop(t *testing.T) {
	clock := newFakeClock()
	tr := NewProgressTracker(clock, 0)
	before := tr.Snapshot()

	clock.Advance(time.Minute)
	assert.Equal(t, before, tr.OnEvent(nil))
}

func TestProgressTrackerResetReplay(t *testing.T) {
	events := []ProgressEvent{
		StatusLine{Category: CategoryFetching, Text: "Pulling from michadockermisha/backup"},
		PercentUpdate{Percent: 20, Speed: "3MB/s"},
		Unrecognized{Raw: "Hollow Knight/data.unity3d"},
		PercentUpdate{Percent: 80, BytesDone: "800MB"},
		Completed{Success: true, Summary: "speedup is 1.1"},
	}
	clock := newFakeClock()
	tr := NewProgressTracker(clock, 4)

	replay := func() []TransferStats {
		var out []TransferStats
		for _, ev := range events {
			out = append(out, tr.OnEvent(ev))
		}
		return out
	}

	first := replay()
	tr.Reset()
	second := replay()
	require.Len(t, second, len(first))
	assert.Equal(t, first, second)
}

func TestProgressTrackerPullThenComplete(t *testing.T) {
	tr := NewProgressTracker(newFakeClock(), 0)

	var statuses []Status
	var percents []int
	for _, line := range []string{
		"Pulling from michadockermisha/backup",
		"35% 12.4MB/s 0:00:42 (xfr#3, to-chk=10/15)",
		"speedup is 1.8",
	} {
		s := tr.OnEvent(Classify(line))
		statuses = append(statuses, s.Status)
		percents = append(percents, s.Percent)
	}

	assert.Equal(t, []Status{StatusStarting, StatusRunning, StatusCompleted}, statuses)
	assert.Equal(t, []int{0, 35, 100}, percents)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "0:00:00", FormatClock(0))
	assert.Equal(t, "0:00:00", FormatClock(-time.Second))
	assert.Equal(t, "1:01:01", FormatClock(time.Hour+time.Minute+time.Second))
	assert.Equal(t, "27:46:40", FormatClock(100000*time.Second))
}
