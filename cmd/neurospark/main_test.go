package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/neurospark/internal/domain"
	"github.com/conorfennell/neurospark/internal/knol"
)

func command(dbPath string, out io.Writer, args ...string) (*cobra.Command, *app) {
	root, a := newRootCommand()
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(append([]string{"--db", dbPath, "--repos-dir", filepath.Join(filepath.Dir(dbPath), "repos")}, args...))
	return root, a
}

func execute(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(command(dbPath, &out, args...))
	return out.String(), err
}

func TestCommands(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()
	t.Chdir(t.TempDir())

	notes := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(notes, "go.md"),
		[]byte("Q: What does defer do?\nA: Runs a call when the function returns\n---\nQ: What is iota?\nA: A constant counter\n"), 0o644))
	dbPath := filepath.Join(t.TempDir(), "neurospark.db")

	out, err := execute(t, dbPath, "add-source", notes)
	require.NoError(t, err)
	assert.Contains(t, out, "Added local source 1")

	_, err = execute(t, dbPath, "add-source", notes)
	assert.ErrorContains(t, err, "already exists")

	out, err = execute(t, dbPath, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Synced 1 sources: 2 cards parsed, 2 new, 0 removed.")

	out, err = execute(t, dbPath, "due", "--deck", "go")
	require.NoError(t, err)
	assert.Contains(t, out, "2 cards due")
	assert.Contains(t, out, "What does defer do?")

	hash := knol.Hash(domain.Card{Question: "What is iota?", Answer: "A constant counter"})
	out, err = execute(t, dbPath, "review", hash, "easy")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded easy.")
	assert.Contains(t, out, "interval 3.00 days, ease 2.50, streak 1")

	_, err = execute(t, dbPath, "review", hash, "perfect")
	assert.Error(t, err)

	_, err = execute(t, dbPath, "review", "missing", "good")
	assert.ErrorContains(t, err, "no card with hash missing")

	out, err = execute(t, dbPath, "due")
	require.NoError(t, err)
	assert.Contains(t, out, "1 cards due")
	assert.NotContains(t, out, "What is iota?")

	out, err = execute(t, dbPath, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "reviews:    1")
	assert.Contains(t, out, "retention:  100%")
	assert.Regexp(t, `go\s+2\n`, out)
}

func TestDatabaseClosedAfterFailedCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	var out bytes.Buffer
	root, a := command(filepath.Join(t.TempDir(), "neurospark.db"), &out, "review", "missing", "good")

	err := run(root, a)
	assert.ErrorContains(t, err, "no card with hash missing")
	require.NotNil(t, a.db)

	_, err = a.db.FindCardByHash("missing")
	assert.ErrorContains(t, err, "database is closed")
}

func TestInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := execute(t, filepath.Join(t.TempDir(), "x.db"), "--log-level", "chatty", "stats")
	assert.ErrorContains(t, err, "log-level must be one of")
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, slog.LevelWarn)
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	slog.Info("hidden")
	slog.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
