package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/franksops/tagsync/engine"
)

var (
	// ErrMissingRepository is returned when a docker provider has no repository.
	ErrMissingRepository = errors.New("docker repository not configured")

	// ErrMissingDestination is returned by providers that write into a destination.
	ErrMissingDestination = errors.New("destination path required")
)

// Command is the shell text for one transfer and its best-effort cleanup.
type Command struct {
	Run     string
	Cleanup string
}

// Provider builds the external command that moves one tag to a destination.
// A typical Provider is a docker pull, an rsync out of a container, or a
// user-supplied command line.
type Provider interface {
	// Name identifies the provider in history records.
	Name() string

	// Build returns the command for tag and destination.
	Build(tag, destination string) (Command, error)
}

// NewRequest builds the transfer request for tag using p, with a fresh ID.
func NewRequest(p Provider, tag, destination string, timeout time.Duration) (engine.TransferRequest, error) {
	cmd, err := p.Build(tag, destination)
	if err != nil {
		return engine.TransferRequest{}, fmt.Errorf("%s provider: %w", p.Name(), err)
	}
	return engine.TransferRequest{
		ID:              uuid.NewString(),
		Tag:             tag,
		Provider:        p.Name(),
		DestinationPath: destination,
		Timeout:         timeout,
		Command:         cmd.Run,
		CleanupCommand:  cmd.Cleanup,
	}, nil
}

// quote single-quotes s for a POSIX shell.
func quote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuoting) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=@%+,", r)
}
