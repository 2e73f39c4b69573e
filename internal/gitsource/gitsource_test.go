package gitsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newUpstream creates a local repository with one committed card file.
func newUpstream(t *testing.T) (string, *git.Worktree) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	commitFile(t, dir, wt, "cards.md", "Q: One?\nA: 1\n")
	return dir, wt
}

func commitFile(t *testing.T, dir string, wt *git.Worktree, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	_, err := wt.Add(name)
	require.NoError(t, err)
	_, err = wt.Commit("add "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func TestSyncClonesThenPulls(t *testing.T) {
	upstream, wt := newUpstream(t)
	local := filepath.Join(t.TempDir(), "checkout")

	require.NoError(t, Sync(context.Background(), upstream, local, nil))
	assert.FileExists(t, filepath.Join(local, "cards.md"))

	// Nothing new upstream is not an error.
	require.NoError(t, Sync(context.Background(), upstream, local, nil))

	commitFile(t, upstream, wt, "more.md", "Q: Two?\nA: 2\n")
	require.NoError(t, Sync(context.Background(), upstream, local, nil))
	assert.FileExists(t, filepath.Join(local, "more.md"))
}

func TestSyncCloneFailureCleansUp(t *testing.T) {
	local := filepath.Join(t.TempDir(), "checkout")
	err := Sync(context.Background(), filepath.Join(t.TempDir(), "no-such-repo"), local, nil)
	require.Error(t, err)
	assert.NoDirExists(t, local)
}
