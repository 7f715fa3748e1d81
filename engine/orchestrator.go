package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/franksops/tagsync/runner"
)

var log = logging.Logger("engine")

// DefaultCleanupTimeout bounds the best-effort cleanup command run after a
// timeout or cancellation.
const DefaultCleanupTimeout = 30 * time.Second

// ProgressFunc receives every snapshot of one transfer, in line order. It is
// called on the transfer's worker goroutine and should return quickly; a
// slow callback stalls output reading for that transfer only. Errors and
// panics are logged and otherwise ignored.
type ProgressFunc func(TransferStats) error

// ProcessRunner spawns external commands.
type ProcessRunner interface {
	Start(ctx context.Context, spec runner.Spec) (*runner.Process, error)
	RunQuiet(ctx context.Context, command string, timeout time.Duration) error
}

// Executor runs a transfer's output loop off the caller's goroutine.
type Executor interface {
	Go(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

// Go implements Executor.
func (f ExecutorFunc) Go(fn func()) { f(fn) }

// GoExecutor starts one goroutine per transfer.
var GoExecutor Executor = ExecutorFunc(func(fn func()) { go fn() })

// Recorder observes transfer lifecycles, e.g. to persist history.
type Recorder interface {
	Begin(req TransferRequest, stats TransferStats)
	Checkpoint(req TransferRequest, stats TransferStats)
	End(req TransferRequest, out Outcome)
}

// Outcome is the terminal result of a transfer.
type Outcome struct {
	Status   Status
	ExitCode int
	Err      error
	Summary  string
	Stats    TransferStats
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used for elapsed time.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithLogSize sets how many status lines snapshots keep.
func WithLogSize(n int) Option {
	return func(o *Orchestrator) { o.logSize = n }
}

// WithExecutor replaces the default goroutine-per-transfer executor.
func WithExecutor(e Executor) Option {
	return func(o *Orchestrator) { o.executor = e }
}

// WithRecorder attaches a Recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithCleanupTimeout bounds the cleanup command run after a timeout or cancellation.
func WithCleanupTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.cleanupTimeout = d }
}

// Orchestrator drives one transfer at a time: it spawns the command, feeds
// every output line through Classify into its ProgressTracker, reports
// snapshots, and decides the terminal status. Run several orchestrators to
// run transfers concurrently; they share nothing.
type Orchestrator struct {
	runner         ProcessRunner
	clock          Clock
	logSize        int
	executor       Executor
	recorder       Recorder
	cleanupTimeout time.Duration

	tracker *ProgressTracker

	mu     sync.Mutex
	state  Status
	active *Handle
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(r ProcessRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:         r,
		clock:          SystemClock,
		executor:       GoExecutor,
		cleanupTimeout: DefaultCleanupTimeout,
		state:          StatusIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.tracker = NewProgressTracker(o.clock, o.logSize)
	return o
}

// State returns the state of the current or most recent transfer.
func (o *Orchestrator) State() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start validates req, spawns its command and returns without waiting for
// output. It fails with ErrBusy while another transfer is running. If the
// command cannot be spawned the returned handle is already finished with a
// Failed outcome carrying the *runner.SpawnError.
func (o *Orchestrator) Start(ctx context.Context, req TransferRequest, onProgress ProgressFunc) (*Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req = req.withID()

	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	h := &Handle{req: req, done: make(chan struct{})}
	o.active = h
	o.state = StatusStarting
	o.mu.Unlock()

	o.tracker.Reset()
	t := &transfer{o: o, h: h, ctx: ctx, onProgress: onProgress}
	if o.recorder != nil {
		o.recorder.Begin(req, o.tracker.Snapshot())
	}

	log.Infow("starting transfer", "id", req.ID, "tag", req.Tag, "destination", req.DestinationPath)
	proc, err := o.runner.Start(ctx, runner.Spec{Command: req.Command, DestinationPath: req.DestinationPath})
	if err != nil {
		log.Errorw("transfer could not be spawned", "id", req.ID, "tag", req.Tag, "error", err)
		t.finish(StatusFailed, -1, err)
		return h, nil
	}

	o.mu.Lock()
	o.state = StatusRunning
	o.mu.Unlock()

	h.attach(proc)
	o.executor.Go(t.run)
	return h, nil
}

func (o *Orchestrator) release(h *Handle, status Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == h {
		o.active = nil
		o.state = status
	}
}

// Handle is the caller's view of one in-flight transfer.
type Handle struct {
	req TransferRequest

	mu        sync.Mutex
	proc      *runner.Process
	cancelled atomic.Bool
	timedOut  atomic.Bool

	done    chan struct{}
	outcome Outcome
}

// ID returns the transfer id.
func (h *Handle) ID() string { return h.req.ID }

// Request returns the request being run.
func (h *Handle) Request() TransferRequest { return h.req }

// Done is closed once the outcome is available.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the transfer finishes.
func (h *Handle) Wait() Outcome {
	<-h.done
	return h.outcome
}

// Outcome returns the terminal outcome if the transfer has finished.
func (h *Handle) Outcome() (Outcome, bool) {
	select {
	case <-h.done:
		return h.outcome, true
	default:
		return Outcome{}, false
	}
}

// Cancel asks the transfer to stop. The process group is killed so that a
// blocked read returns promptly; the final status is Cancelled. Cancelling a
// finished transfer does nothing.
func (h *Handle) Cancel() {
	if h.finished() {
		return
	}
	if !h.cancelled.CompareAndSwap(false, true) {
		return
	}
	h.kill("cancel")
}

func (h *Handle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) attach(p *runner.Process) {
	h.mu.Lock()
	h.proc = p
	h.mu.Unlock()
	if h.cancelled.Load() {
		h.kill("cancel")
	}
}

// kill signals the process group unless the transfer is over; once it has
// been reaped its group id may belong to another process. It reports whether
// a signal was sent.
func (h *Handle) kill(reason string) bool {
	h.mu.Lock()
	p := h.proc
	h.mu.Unlock()
	if p == nil || h.finished() {
		return false
	}
	if err := p.Kill(); err != nil {
		log.Warnw("failed to kill transfer process", "id", h.req.ID, "reason", reason, "error", err)
	}
	return true
}

type transfer struct {
	o          *Orchestrator
	h          *Handle
	ctx        context.Context
	onProgress ProgressFunc
}

func (t *transfer) run() {
	h, req := t.h, t.h.req
	proc := h.proc

	var deadline time.Time
	if req.Timeout > 0 {
		deadline = proc.StartedAt().Add(req.Timeout)
		timer := time.AfterFunc(time.Until(deadline), func() {
			select {
			case <-proc.Done():
				return
			default:
			}
			h.timedOut.Store(true)
			h.kill("timeout")
		})
		defer timer.Stop()
	}

	reportedFailure := false
	for line := range proc.Lines() {
		if ev := Classify(line); ev != nil {
			if c, ok := ev.(Completed); ok && !c.Success {
				reportedFailure = true
			}
			stats := t.o.tracker.OnEvent(ev)
			t.emit(stats)
			if t.o.recorder != nil {
				t.o.recorder.Checkpoint(req, stats)
			}
		}
		if t.stopRequested() {
			h.kill("cancel")
			break
		}
	}

	var (
		exit    runner.ExitStatus
		waitErr error
	)
	if deadline.IsZero() {
		exit, waitErr = proc.Wait()
	} else {
		exit, waitErr = proc.WaitTimeout(max(time.Until(deadline), time.Millisecond))
		if waitErr != nil {
			h.timedOut.Store(true)
			h.kill("timeout")
			exit, waitErr = proc.Wait()
		}
	}

	// A clean exit that raced the deadline still counts as a success.
	switch {
	case h.timedOut.Load() && !exit.Success():
		t.cleanup("timeout")
		t.finish(StatusTimedOut, exit.Code, &runner.TimeoutError{Pid: proc.Pid(), Timeout: req.Timeout})
	case t.stopRequested():
		t.cleanup("cancel")
		t.finish(StatusCancelled, exit.Code, ErrCancelled)
	case waitErr != nil:
		t.finish(StatusFailed, exit.Code, waitErr)
	case exit.Code != 0:
		t.finish(StatusFailed, exit.Code, fmt.Errorf("%w: exit code %d", ErrExitStatus, exit.Code))
	case reportedFailure:
		t.finish(StatusFailed, exit.Code, fmt.Errorf("%w: %s", ErrExitStatus, t.o.tracker.Snapshot().LastLine()))
	default:
		t.finish(StatusCompleted, exit.Code, nil)
	}
}

func (t *transfer) stopRequested() bool {
	return t.h.cancelled.Load() || t.ctx.Err() != nil
}

// cleanup runs the request's cleanup command. Killing the process group
// only reaches local processes; containers keep running under dockerd.
func (t *transfer) cleanup(reason string) {
	cmd := t.h.req.CleanupCommand
	if cmd == "" {
		return
	}
	log.Infow("running cleanup", "id", t.h.req.ID, "reason", reason, "command", cmd)
	if err := t.o.runner.RunQuiet(context.Background(), cmd, t.o.cleanupTimeout); err != nil {
		log.Warnw("cleanup command failed", "id", t.h.req.ID, "error", err)
	}
}

func (t *transfer) finish(status Status, exitCode int, err error) {
	stats := t.o.tracker.Finish(status)
	t.emit(stats)

	out := Outcome{
		Status:   status,
		ExitCode: exitCode,
		Err:      err,
		Summary:  summarize(t.h.req, stats, err),
		Stats:    stats,
	}
	if t.o.recorder != nil {
		t.o.recorder.End(t.h.req, out)
	}

	if err != nil {
		log.Warnw("transfer finished", "id", t.h.req.ID, "tag", t.h.req.Tag, "status", status, "exit_code", exitCode, "error", err)
	} else {
		log.Infow("transfer finished", "id", t.h.req.ID, "tag", t.h.req.Tag, "status", status, "elapsed", stats.ElapsedText())
	}

	t.h.outcome = out
	t.o.release(t.h, status)
	close(t.h.done)
}

func (t *transfer) emit(stats TransferStats) {
	if t.onProgress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warnw("progress callback panicked", "id", t.h.req.ID, "panic", r)
		}
	}()
	if err := t.onProgress(stats); err != nil {
		log.Warnw("progress callback failed", "id", t.h.req.ID, "error", err)
	}
}

func summarize(req TransferRequest, stats TransferStats, err error) string {
	switch stats.Status {
	case StatusCompleted:
		if stats.Transferred != "" {
			return fmt.Sprintf("Sync of %s completed in %s, transferred %s", req.Tag, stats.ElapsedText(), stats.Transferred)
		}
		return fmt.Sprintf("Sync of %s completed in %s", req.Tag, stats.ElapsedText())
	case StatusTimedOut:
		return fmt.Sprintf("Sync of %s timed out after %s", req.Tag, req.Timeout)
	case StatusCancelled:
		return fmt.Sprintf("Sync of %s cancelled after %s", req.Tag, stats.ElapsedText())
	}
	return fmt.Sprintf("Sync of %s failed after %s: %v", req.Tag, stats.ElapsedText(), err)
}
