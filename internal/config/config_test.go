package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "neurospark.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, &Config{
		DB:           "neurospark.db",
		Addr:         ":8080",
		ReposDir:     "repos",
		DueThreshold: 20,
		SyncWorkers:  4,
		LogLevel:     "info",
	}, cfg)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadLayers(t *testing.T) {
	path := writeConfig(t, "db: from-file.db\naddr: 127.0.0.1:9000\nsync-workers: 8\nlog-level: debug\n")
	t.Setenv("NEUROSPARK_SYNC_WORKERS", "2")
	t.Setenv("NEUROSPARK_REPOS_DIR", "/var/lib/neurospark/repos")

	cfg, err := Load(newFlags(t, "--config", path, "--addr", ":7000"))
	require.NoError(t, err)

	assert.Equal(t, "from-file.db", cfg.DB, "file beats flag defaults")
	assert.Equal(t, 2, cfg.SyncWorkers, "env beats file")
	assert.Equal(t, "/var/lib/neurospark/repos", cfg.ReposDir)
	assert.Equal(t, ":7000", cfg.Addr, "explicit flag beats file")
	assert.Equal(t, 20.0, cfg.DueThreshold)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NEUROSPARK_LOG_LEVEL", "loud")

	_, err := Load(newFlags(t, "--sync-workers=0", "--due-threshold=-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync-workers must be 1 or greater")
	assert.Contains(t, err.Error(), "due-threshold must be greater than 0")
	assert.Contains(t, err.Error(), "log-level must be one of [debug info warn error]")
}
