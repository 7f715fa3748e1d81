package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/franksops/tagsync/engine"
	"github.com/franksops/tagsync/provider"
	"github.com/franksops/tagsync/runner"
	"github.com/franksops/tagsync/store"
	"github.com/franksops/tagsync/ui"
)

func newPullCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pull TAG...",
		Short: "Pull backup image tags into the local docker image store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := provider.NewDockerPull(a.cfg.Docker.Repository)
			p.Platform = a.cfg.Docker.Platform
			p.ExtraArgs = a.cfg.Docker.PullArgs
			return a.runTransfers(cmd.Context(), cmd.OutOrStdout(), a.wrap(p), args, "")
		},
	}
}

func newSyncCmd(a *app) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "sync TAG...",
		Short: "Copy each tag's backup out of its container into DEST/TAG",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := provider.NewContainerRsync(a.cfg.Docker.Repository)
			p.MountPath = a.cfg.Rsync.MountPath
			p.SourcePath = a.cfg.Rsync.SourcePath
			p.RsyncArgs = a.cfg.Rsync.Args
			return a.runTransfers(cmd.Context(), cmd.OutOrStdout(), a.wrap(p), args, dest)
		},
	}
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "destination root; each tag syncs into its own subdirectory (required)")
	cobra.CheckErr(cmd.MarkFlagRequired("dest"))
	return cmd
}

func newExecCmd(a *app) *cobra.Command {
	var dest, command, cleanup string
	cmd := &cobra.Command{
		Use:   "exec TAG...",
		Short: "Run a custom transfer command per tag; {tag} and {dest} are substituted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := provider.NewExec(a.cfg.Exec.Template)
			p.CleanupTemplate = a.cfg.Exec.CleanupTemplate
			if cmd.Flags().Changed("command") {
				p.Template = command
			}
			if cmd.Flags().Changed("cleanup") {
				p.CleanupTemplate = cleanup
			}
			return a.runTransfers(cmd.Context(), cmd.OutOrStdout(), a.wrap(p), args, dest)
		},
	}
	cmd.Flags().StringVarP(&command, "command", "c", "", "command template (overrides exec.template)")
	cmd.Flags().StringVar(&cleanup, "cleanup", "", "cleanup command template run after a timeout")
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "destination root; {dest} is DEST/TAG")
	return cmd
}

func (a *app) wrap(p provider.Provider) provider.Provider {
	if !a.cfg.WSL.Enabled {
		return p
	}
	return provider.WrapWSL(p, a.cfg.WSL.Distribution, a.cfg.WSL.User)
}

// runTransfers runs one transfer per tag on the worker pool and reports them
// on the board or as console progress bars.
func (a *app) runTransfers(parent context.Context, out io.Writer, p provider.Provider, tags []string, destRoot string) error {
	cfg := a.cfg

	reqs := make([]engine.TransferRequest, 0, len(tags))
	for _, tag := range tags {
		dest := ""
		if destRoot != "" {
			dest = filepath.Join(destRoot, tag)
		}
		req, err := provider.NewRequest(p, tag, dest, cfg.Transfer.Timeout)
		if err != nil {
			return err
		}
		if err := req.Validate(); err != nil {
			return err
		}
		reqs = append(reqs, req)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	history, err := store.NewBoltStore(cfg.HistoryPath())
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer history.Close()

	recorder := engine.NewJobTracker(history, engine.CheckpointConfig{
		PercentInterval: cfg.Transfer.CheckpointPercent,
		TimeInterval:    cfg.Transfer.CheckpointInterval,
	})
	procs := runner.New()
	newOrchestrator := func() *engine.Orchestrator {
		return engine.NewOrchestrator(procs,
			engine.WithRecorder(recorder),
			engine.WithLogSize(cfg.Transfer.LogLines),
			engine.WithCleanupTimeout(cfg.Transfer.CleanupTimeout),
		)
	}

	workers := min(cfg.Transfer.Workers, len(reqs))
	board := ui.NewBoard(len(reqs), workers)

	var failed atomic.Int32
	var console io.Writer
	if !a.flags.tui {
		console = os.Stderr
	}
	handler := transferHandler(board, console, &failed)

	requests := make(engine.RequestChannel, len(reqs))
	for _, req := range reqs {
		requests <- req
	}
	close(requests)

	pool := engine.NewWorkerPool(ctx, requests, newOrchestrator, handler)
	pool.SetWorkerCount(workers)
	log.Infow("transfers queued", "count", len(reqs), "workers", workers, "provider", p.Name())

	done := make(chan struct{})
	go func() {
		pool.Wait()
		board.SetDone()
		close(done)
	}()

	if a.flags.tui {
		if err := runBoard(ctx, board, pool, cancel, done); err != nil {
			cancel()
			<-done
			return err
		}
	}
	<-done

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d transfers did not complete", n, len(reqs))
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if !a.flags.tui {
		fmt.Fprintf(out, "%d transfers completed.\n", len(reqs))
	}
	return nil
}

// transferHandler runs one request and reports it on board, and also as a
// progress bar on console when console is non-nil. Transfers that do not
// complete, including ones that never start, are counted in failed.
func transferHandler(board *ui.Board, console io.Writer, failed *atomic.Int32) engine.RequestHandler {
	return func(ctx context.Context, o *engine.Orchestrator, req engine.TransferRequest) error {
		onProgress := board.Track(req)
		var bar *ui.ConsoleReporter
		if console != nil {
			bar = ui.NewConsoleReporter(console, req.Tag)
			onProgress = bar.Progress
		}

		res, err := engine.RunTransfer(ctx, o, req, onProgress)
		if err != nil {
			res = engine.Outcome{
				Status:   engine.StatusFailed,
				ExitCode: -1,
				Err:      err,
				Summary:  fmt.Sprintf("Sync of %s could not start: %v", req.Tag, err),
				Stats:    engine.TransferStats{Status: engine.StatusFailed},
			}
		}
		board.Finish(req.ID, req.Tag, res)
		if bar != nil {
			bar.Summary(res)
		}
		if res.Status != engine.StatusCompleted {
			failed.Add(1)
		}
		return err
	}
}

// runBoard shows the TUI until every transfer is done or the user quits.
func runBoard(ctx context.Context, board *ui.Board, pool *engine.WorkerPool, cancel context.CancelFunc, done <-chan struct{}) error {
	onWorkers := func(delta int) {
		n := max(pool.WorkerCount()+delta, 1)
		pool.SetWorkerCount(n)
		board.SetWorkers(n)
	}
	program := tea.NewProgram(ui.NewTUIModel(board.State(), onWorkers, cancel), tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				program.Send(ui.TUIUpdateMsg{State: board.State()})
				time.Sleep(500 * time.Millisecond)
				program.Quit()
				return
			case <-ticker.C:
				program.Send(ui.TUIUpdateMsg{State: board.State()})
			}
		}
	}()

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
