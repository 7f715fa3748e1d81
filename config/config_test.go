package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "michadockermisha/backup", cfg.Docker.Repository)
	assert.Equal(t, 2, cfg.Transfer.Workers)
	assert.Equal(t, filepath.Join(cfg.State.Dir, "history.db"), cfg.HistoryPath())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagsync.yaml")
	yaml := `
docker:
  repository: example/saves
  pull_args: ["--quiet"]
wsl:
  enabled: true
  distribution: debian
transfer:
  timeout: 45m
  workers: 6
state:
  dir: /var/lib/tagsync
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "example/saves", cfg.Docker.Repository)
	assert.Equal(t, []string{"--quiet"}, cfg.Docker.PullArgs)
	assert.True(t, cfg.WSL.Enabled)
	assert.Equal(t, "debian", cfg.WSL.Distribution)
	assert.Equal(t, "root", cfg.WSL.User, "unset keys keep their default")
	assert.Equal(t, 45*time.Minute, cfg.Transfer.Timeout)
	assert.Equal(t, 6, cfg.Transfer.Workers)
	assert.Equal(t, 10, cfg.Transfer.LogLines)
	assert.Equal(t, "/var/lib/tagsync", cfg.State.Dir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "linux/amd64", cfg.Docker.Platform)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transfer:\n  workers: 3\n"), 0644))

	t.Setenv("TAGSYNC_TRANSFER_WORKERS", "8")
	t.Setenv("TAGSYNC_TRANSFER_TIMEOUT", "90s")
	t.Setenv("TAGSYNC_ARCHIVE_TARGET", "s3://saves/history")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Transfer.Workers)
	assert.Equal(t, 90*time.Second, cfg.Transfer.Timeout)
	assert.Equal(t, "s3://saves/history", cfg.Archive.Target)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Transfer, cfg.Transfer)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transfer: [unclosed\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"no repository", func(c *Config) { c.Docker.Repository = "" }, ErrMissingRepository},
		{"zero workers", func(c *Config) { c.Transfer.Workers = 0 }, ErrInvalidWorkers},
		{"negative timeout", func(c *Config) { c.Transfer.Timeout = -time.Second }, ErrInvalidTimeout},
		{"no log lines", func(c *Config) { c.Transfer.LogLines = 0 }, ErrInvalidLogLines},
		{"negative checkpoint", func(c *Config) { c.Transfer.CheckpointPercent = -1 }, ErrInvalidCheckpoint},
		{"bad level", func(c *Config) { c.Logging.Level = "chatty" }, ErrInvalidLogLevel},
		{"no state dir", func(c *Config) { c.State.Dir = "" }, ErrMissingStateDir},
		{"wsl without distro", func(c *Config) { c.WSL.Enabled = true; c.WSL.Distribution = "" }, ErrInvalidWSL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}
