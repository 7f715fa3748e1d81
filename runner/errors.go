package runner

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSpawn is wrapped by SpawnError.
	ErrSpawn = errors.New("process could not be started")
	// ErrTimeout is wrapped by TimeoutError.
	ErrTimeout = errors.New("process timed out")
)

// SpawnError is returned when the external command could not be launched,
// e.g. the shell is missing, permission was denied or the destination
// directory could not be created.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() []error {
	return []error{ErrSpawn, e.Err}
}

// TimeoutError is returned by WaitTimeout when the process did not exit in
// time. The process is still running when this error is returned.
type TimeoutError struct {
	Pid     int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("process %d still running after %s", e.Pid, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}
