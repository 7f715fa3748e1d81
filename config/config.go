package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var log = logging.Logger("config")

// EnvPrefix prefixes every environment override, e.g. TAGSYNC_TRANSFER_WORKERS.
const EnvPrefix = "TAGSYNC"

var (
	ErrMissingRepository = errors.New("docker.repository must be set")
	ErrInvalidWorkers    = errors.New("transfer.workers must be at least 1")
	ErrInvalidTimeout    = errors.New("transfer.timeout must not be negative")
	ErrInvalidLogLines   = errors.New("transfer.log_lines must be at least 1")
	ErrInvalidCheckpoint = errors.New("transfer checkpoint settings must not be negative")
	ErrInvalidLogLevel   = errors.New("logging.level is not a known level")
	ErrMissingStateDir   = errors.New("state.dir must be set")
	ErrInvalidWSL        = errors.New("wsl.distribution must be set when wsl is enabled")
)

// Config holds all application configuration
type Config struct {
	Docker   DockerConfig   `mapstructure:"docker"`
	WSL      WSLConfig      `mapstructure:"wsl"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Rsync    RsyncConfig    `mapstructure:"rsync"`
	Exec     ExecConfig     `mapstructure:"exec"`
	State    StateConfig    `mapstructure:"state"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

// DockerConfig selects the image repository holding the backups
type DockerConfig struct {
	Repository string   `mapstructure:"repository"`
	Platform   string   `mapstructure:"platform"`
	PullArgs   []string `mapstructure:"pull_args"`
}

// WSLConfig wraps every command in `wsl ... bash -lic` when enabled
type WSLConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Distribution string `mapstructure:"distribution"`
	User         string `mapstructure:"user"`
}

// TransferConfig holds per-transfer limits and worker sizing
type TransferConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	Workers            int           `mapstructure:"workers"`
	LogLines           int           `mapstructure:"log_lines"`
	CheckpointPercent  int           `mapstructure:"checkpoint_percent"`
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"`
	CleanupTimeout     time.Duration `mapstructure:"cleanup_timeout"`
}

// RsyncConfig controls the rsync run inside the backup container
type RsyncConfig struct {
	MountPath  string   `mapstructure:"mount_path"`
	SourcePath string   `mapstructure:"source_path"`
	Args       []string `mapstructure:"args"`
}

// ExecConfig holds the default template for `tagsync exec`
type ExecConfig struct {
	Template        string `mapstructure:"template"`
	CleanupTemplate string `mapstructure:"cleanup_template"`
}

// StateConfig locates the history database
type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// ArchiveConfig holds history export settings
type ArchiveConfig struct {
	Target string `mapstructure:"target"` // directory or s3://bucket/prefix
	Region string `mapstructure:"region"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Docker: DockerConfig{
			Repository: "michadockermisha/backup",
			Platform:   "linux/amd64",
		},
		WSL: WSLConfig{
			Enabled:      runtime.GOOS == "windows",
			Distribution: "ubuntu",
			User:         "root",
		},
		Transfer: TransferConfig{
			Timeout:            2 * time.Hour,
			Workers:            2,
			LogLines:           10,
			CheckpointPercent:  5,
			CheckpointInterval: 5 * time.Second,
			CleanupTimeout:     30 * time.Second,
		},
		Rsync: RsyncConfig{
			MountPath:  "/games",
			SourcePath: "/home/",
			Args:       []string{"-aP", "--numeric-ids", "--inplace", "--info=progress2,stats2", "--no-i-r"},
		},
		State: StateConfig{
			Dir: defaultStateDir(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Archive: ArchiveConfig{
			Target: filepath.Join(defaultStateDir(), "exports"),
		},
	}
}

// defaultStateDir returns the default data directory for the current OS
func defaultStateDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "tagsync")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "tagsync")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "tagsync")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "tagsync")
	}
}

// Load reads the configuration. Values come, lowest priority first, from
// DefaultConfig, the config file, a .env file in the working directory and
// TAGSYNC_* environment variables. An empty path searches the default
// config directory and the working directory for config.yaml. A missing
// config file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case errors.Is(err, fs.ErrNotExist):
			log.Warnw("config file not found, using defaults", "path", path)
		default:
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		log.Debugw("using config file", "path", v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override nested
// values that the config file does not mention.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("docker.repository", d.Docker.Repository)
	v.SetDefault("docker.platform", d.Docker.Platform)
	v.SetDefault("docker.pull_args", d.Docker.PullArgs)

	v.SetDefault("wsl.enabled", d.WSL.Enabled)
	v.SetDefault("wsl.distribution", d.WSL.Distribution)
	v.SetDefault("wsl.user", d.WSL.User)

	v.SetDefault("transfer.timeout", d.Transfer.Timeout)
	v.SetDefault("transfer.workers", d.Transfer.Workers)
	v.SetDefault("transfer.log_lines", d.Transfer.LogLines)
	v.SetDefault("transfer.checkpoint_percent", d.Transfer.CheckpointPercent)
	v.SetDefault("transfer.checkpoint_interval", d.Transfer.CheckpointInterval)
	v.SetDefault("transfer.cleanup_timeout", d.Transfer.CleanupTimeout)

	v.SetDefault("rsync.mount_path", d.Rsync.MountPath)
	v.SetDefault("rsync.source_path", d.Rsync.SourcePath)
	v.SetDefault("rsync.args", d.Rsync.Args)

	v.SetDefault("exec.template", d.Exec.Template)
	v.SetDefault("exec.cleanup_template", d.Exec.CleanupTemplate)

	v.SetDefault("state.dir", d.State.Dir)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("archive.target", d.Archive.Target)
	v.SetDefault("archive.region", d.Archive.Region)
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	if c.Docker.Repository == "" {
		return ErrMissingRepository
	}
	if c.Transfer.Workers < 1 {
		return ErrInvalidWorkers
	}
	if c.Transfer.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if c.Transfer.LogLines < 1 {
		return ErrInvalidLogLines
	}
	if c.Transfer.CheckpointPercent < 0 || c.Transfer.CheckpointInterval < 0 || c.Transfer.CleanupTimeout < 0 {
		return ErrInvalidCheckpoint
	}
	if _, err := logging.LevelFromString(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}
	if c.State.Dir == "" {
		return ErrMissingStateDir
	}
	if c.WSL.Enabled && c.WSL.Distribution == "" {
		return ErrInvalidWSL
	}
	return nil
}

// HistoryPath is the bbolt database inside the state directory.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.State.Dir, "history.db")
}
