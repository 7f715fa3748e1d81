package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/franksops/tagsync/config"
)

var log = logging.Logger("tagsync")

type rootFlags struct {
	configFile string
	tui        bool
	workers    int
	timeout    time.Duration
	logLevel   string
}

// app is the state shared by all subcommands once PersistentPreRunE has run.
type app struct {
	flags rootFlags
	cfg   *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "tagsync",
		Short: "Pull Docker Hub backup tags and sync them to local directories",
		Long: `tagsync moves game backups stored as Docker image tags onto local disks.

Each tag runs as an external command (docker pull, or rsync inside the
backup container) whose output is parsed into live progress. Several tags
run concurrently, bounded by --workers, and every transfer is recorded in a
local history database.

Examples:
  tagsync pull celeste hades
  tagsync sync --dest /mnt/games celeste hades tunic
  tagsync exec --command 'rsync -aP /backups/{tag}/ {dest}' --dest /srv celeste
  tagsync history celes
  tagsync history export --target s3://my-bucket/tagsync`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configFile, "config", "", "config file (default is $HOME/.config/tagsync/config.yaml)")
	pf.BoolVar(&a.flags.tui, "tui", term.IsTerminal(int(os.Stdout.Fd())), "show the interactive transfer board")
	pf.IntVar(&a.flags.workers, "workers", 0, "number of concurrent transfers (overrides transfer.workers)")
	pf.DurationVar(&a.flags.timeout, "timeout", 0, "per-transfer timeout, 0 keeps transfer.timeout")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newPullCmd(a),
		newSyncCmd(a),
		newExecCmd(a),
		newHistoryCmd(a),
	)
	return root
}

// init loads the configuration, applies flag overrides and sets up logging.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.configFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Transfer.Workers = a.flags.workers
	}
	if flags.Changed("timeout") {
		cfg.Transfer.Timeout = a.flags.timeout
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.flags.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.State.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	a.cfg = cfg
	return a.setupLogging()
}

// setupLogging sends logs to stderr, or to a file in the state directory
// while the board owns the terminal.
func (a *app) setupLogging() error {
	level, err := logging.LevelFromString(a.cfg.Logging.Level)
	if err != nil {
		return err
	}

	lc := logging.Config{
		Format: logging.PlaintextOutput,
		Level:  level,
		Stderr: true,
	}
	if a.flags.tui {
		lc.Stderr = false
		lc.File = filepath.Join(a.cfg.State.Dir, "tagsync.log")
	}
	logging.SetupLogging(lc)
	return logging.SetLogLevel("*", a.cfg.Logging.Level)
}
