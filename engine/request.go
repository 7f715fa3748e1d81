package engine

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var tagPattern = regexp.MustCompile(`^[a-z0-9_.-]+$`)

// TransferRequest describes one tag to move to one destination. It is built
// by the caller and never modified by the engine.
type TransferRequest struct {
	// ID identifies the transfer in logs and history. Generated when empty.
	ID string

	// Tag is the Docker image tag holding the backup.
	Tag string

	// Provider names the command builder, for history only.
	Provider string

	// DestinationPath is created before the command is spawned.
	DestinationPath string

	// Timeout bounds the whole run, measured from process start. Zero
	// disables it.
	Timeout time.Duration

	// Command is the full shell command line, built by a provider.
	Command string

	// CleanupCommand is run best-effort after a timeout or cancellation to
	// remove whatever the killed command left behind (containers, orphaned
	// docker clients).
	CleanupCommand string
}

// Validate checks the request before anything is spawned.
func (r TransferRequest) Validate() error {
	if !tagPattern.MatchString(r.Tag) {
		return fmt.Errorf("%w: tag %q must match %s", ErrInvalidRequest, r.Tag, tagPattern)
	}
	if r.Command == "" {
		return fmt.Errorf("%w: empty command for tag %q", ErrInvalidRequest, r.Tag)
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidRequest, r.Timeout)
	}
	return nil
}

func (r TransferRequest) withID() TransferRequest {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return r
}

// RequestChannel queues TransferRequests for the worker pool.
type RequestChannel chan TransferRequest
