package gitsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
)

// Sync clones url into localPath when it is missing, or pulls the latest
// changes when a checkout is already there. progress may be nil.
func Sync(ctx context.Context, url, localPath string, progress io.Writer) error {
	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return clone(ctx, url, localPath, progress)
	case err != nil:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}
	return pull(ctx, localPath, progress)
}

func clone(ctx context.Context, url, localPath string, progress io.Writer) error {
	slog.Info("Cloning repository", "url", url, "path", localPath)
	_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
		URL:      url,
		Progress: progress,
	})
	if err != nil {
		// Leave nothing half-cloned behind; the next sync retries from scratch.
		os.RemoveAll(localPath)
		return fmt.Errorf("failed to clone repo %s: %w", url, err)
	}
	return nil
}

func pull(ctx context.Context, localPath string, progress io.Writer) error {
	slog.Info("Pulling latest changes", "path", localPath)
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
	}

	err = worktree.PullContext(ctx, &git.PullOptions{
		RemoteName: "origin",
		Progress:   progress,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
	}
	return nil
}
