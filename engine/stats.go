package engine

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a transfer.
type Status string

const (
	StatusIdle      Status = "Idle"
	StatusStarting  Status = "Starting"
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
	StatusTimedOut  Status = "TimedOut"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// TransferStats is a point-in-time view of one transfer. Values handed to
// callers are copies and are never modified afterwards.
type TransferStats struct {
	Percent     int
	Speed       string
	Transferred string
	Total       string
	ETA         string
	// Elapsed is whole seconds since the transfer started.
	Elapsed    int
	Status     Status
	LastUpdate time.Time
	// Log holds the most recent status lines, oldest first.
	Log []string
}

// ElapsedText formats Elapsed as H:MM:SS.
func (s TransferStats) ElapsedText() string {
	return FormatClock(time.Duration(s.Elapsed) * time.Second)
}

// LastLine returns the newest log line, or "".
func (s TransferStats) LastLine() string {
	if len(s.Log) == 0 {
		return ""
	}
	return s.Log[len(s.Log)-1]
}

// FormatClock renders d as H:MM:SS, the way rsync prints times.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// Clock supplies the current time. Tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
