// Package runner spawns external transfer commands through a shell and
// exposes their merged stdout/stderr as a lazy sequence of lines.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("runner")

// Spec describes one command to run.
type Spec struct {
	// Command is handed verbatim to the shell.
	Command string

	// DestinationPath is created (with parents) before spawning when set.
	DestinationPath string
}

// ExitStatus is the result of a finished process.
type ExitStatus struct {
	// Code is the process exit code, or -1 when it was terminated by a signal.
	Code int
}

// Success reports whether the process exited with code 0.
func (s ExitStatus) Success() bool {
	return s.Code == 0
}

// Runner starts shell commands.
type Runner struct {
	Shell     string
	ShellFlag string
	// Env is appended to the current environment of the child.
	Env     []string
	Buffers *BufferPool
}

// New creates a Runner using the platform shell (/bin/sh -c or cmd /C).
func New() *Runner {
	shell, flag := defaultShell()
	return &Runner{
		Shell:     shell,
		ShellFlag: flag,
		Buffers:   NewBufferPool(DefaultBufferSize),
	}
}

// Start creates the destination directory if needed and spawns the command
// with stdout and stderr merged into a single pipe. It returns as soon as the
// process is running. Cancelling ctx kills the process group.
func (r *Runner) Start(ctx context.Context, spec Spec) (*Process, error) {
	if spec.DestinationPath != "" {
		if err := os.MkdirAll(spec.DestinationPath, 0755); err != nil {
			return nil, &SpawnError{Command: spec.Command, Err: fmt.Errorf("create destination: %w", err)}
		}
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Command: spec.Command, Err: fmt.Errorf("create output pipe: %w", err)}
	}

	cmd := exec.Command(r.Shell, r.ShellFlag, spec.Command)
	cmd.Stdout = pw
	cmd.Stderr = pw
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, &SpawnError{Command: spec.Command, Err: err}
	}
	// The child holds its own copy of the write end; ours must go so that the
	// reader sees EOF once the process tree exits.
	pw.Close()

	buffers := r.Buffers
	if buffers == nil {
		buffers = NewBufferPool(DefaultBufferSize)
	}

	p := &Process{
		cmd:     cmd,
		out:     pr,
		buffers: buffers,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	go p.wait()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				if err := p.Kill(); err != nil {
					log.Warnw("kill on context cancel failed", "pid", p.Pid(), "error", err)
				}
			case <-p.done:
			}
		}()
	}

	log.Debugw("process started", "pid", p.Pid(), "command", spec.Command)
	return p, nil
}

// RunQuiet runs a short command to completion, discarding its output. A
// non-zero exit code or a timeout is reported as an error and the process is
// killed.
func (r *Runner) RunQuiet(ctx context.Context, command string, timeout time.Duration) error {
	p, err := r.Start(ctx, Spec{Command: command})
	if err != nil {
		return err
	}
	defer p.Close()

	go func() {
		for range p.Lines() {
		}
	}()

	status, err := p.WaitTimeout(timeout)
	if err != nil {
		if killErr := p.Kill(); killErr != nil {
			return errors.Join(err, killErr)
		}
		return err
	}
	if !status.Success() {
		return fmt.Errorf("command %q exited with code %d", command, status.Code)
	}
	return nil
}

// Process is one running external command. It is the exclusive owner of the
// OS process handle and of its output pipe.
type Process struct {
	cmd     *exec.Cmd
	out     *os.File
	buffers *BufferPool
	started time.Time

	consumed  atomic.Bool
	closeOnce sync.Once

	done   chan struct{}
	status ExitStatus
	err    error
}

func (p *Process) wait() {
	err := p.cmd.Wait()

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.err = err
	}
	p.status = ExitStatus{Code: code}
	close(p.done)
}

// Pid returns the OS process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// StartedAt returns the time the process was spawned.
func (p *Process) StartedAt() time.Time {
	return p.started
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Lines returns the merged output as a lazy sequence of lines. The sequence
// ends when every process holding the output pipe has closed it. It can be
// consumed only once; later calls yield nothing.
func (p *Process) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !p.consumed.CompareAndSwap(false, true) {
			return
		}
		defer p.Close()

		buf := p.buffers.Get()
		defer p.buffers.Put(buf)

		sc := bufio.NewScanner(p.out)
		sc.Buffer((*buf)[:0], len(*buf))
		sc.Split(splitTransferLines(len(*buf)))
		for sc.Scan() {
			if !yield(sc.Text()) {
				return
			}
		}
		if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
			log.Debugw("output read ended with error", "pid", p.Pid(), "error", err)
		}
	}
}

// Wait blocks until the process exits.
func (p *Process) Wait() (ExitStatus, error) {
	<-p.done
	return p.status, p.err
}

// WaitTimeout waits at most d for the process to exit. On expiry it returns
// a *TimeoutError and leaves the process running; the caller must Kill it.
// A non-positive d waits without limit.
func (p *Process) WaitTimeout(d time.Duration) (ExitStatus, error) {
	if d <= 0 {
		return p.Wait()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.status, p.err
	case <-timer.C:
		return ExitStatus{}, &TimeoutError{Pid: p.Pid(), Timeout: d}
	}
}

// Kill sends SIGKILL to the process group. It is safe to call more than once
// and after the process has exited.
func (p *Process) Kill() error {
	if err := killProcessGroup(p.cmd); err != nil {
		return fmt.Errorf("kill process %d: %w", p.Pid(), err)
	}
	return nil
}

// Close releases the read end of the output pipe.
func (p *Process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.out.Close()
	})
	return err
}
