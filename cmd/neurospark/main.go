package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/neurospark/internal/config"
	"github.com/conorfennell/neurospark/internal/storage"
)

func main() {
	if err := run(newRootCommand()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state every subcommand shares once the root has loaded it.
type app struct {
	cfg *config.Config
	db  *storage.DB
}

// close releases the database, if one was opened.
func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// run executes root and closes the database however the command ends; cobra
// skips post-run hooks when RunE fails.
func run(root *cobra.Command, a *app) (err error) {
	defer func() { err = errors.Join(err, a.close()) }()
	return root.Execute()
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:           "neurospark",
		Short:         "Spaced-repetition study of flashcards kept in markdown",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			setupLogger(cmd.ErrOrStderr(), cfg.SlogLevel())

			db, err := storage.Open(cfg.DB)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			a.db = db
			slog.Debug("Database opened", "path", cfg.DB)
			return nil
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCommand(a),
		newSyncCommand(a),
		newAddSourceCommand(a),
		newDueCommand(a),
		newReviewCommand(a),
		newStatsCommand(a),
	)
	return root, a
}

func setupLogger(w io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
