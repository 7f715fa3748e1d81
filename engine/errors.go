package engine

import "errors"

var (
	// ErrBusy is returned by Orchestrator.Start while a transfer is running.
	ErrBusy = errors.New("orchestrator already owns a running transfer")

	// ErrInvalidRequest is wrapped by TransferRequest.Validate failures.
	ErrInvalidRequest = errors.New("invalid transfer request")

	// ErrExitStatus is wrapped when the command exits non-zero or reports
	// its own failure.
	ErrExitStatus = errors.New("transfer command failed")

	// ErrCancelled is the outcome error of a cancelled transfer.
	ErrCancelled = errors.New("transfer cancelled")
)
