package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conorfennell/neurospark/internal/srs"
	"github.com/conorfennell/neurospark/internal/study"
	"github.com/conorfennell/neurospark/internal/sync"
)

func (a *app) syncer() *sync.Syncer {
	return &sync.Syncer{
		DB:       a.db,
		ReposDir: a.cfg.ReposDir,
		Workers:  a.cfg.SyncWorkers,
	}
}

func newSyncCommand(a *app) *cobra.Command {
	var progress bool

	command := &cobra.Command{
		Use:   "sync",
		Short: "Pull git sources and reconcile all cards with the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.syncer()
			if progress {
				s.Progress = func(string) io.Writer { return cmd.ErrOrStderr() }
			}
			report, err := s.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Synced %d sources: %d cards parsed, %d new, %d removed.\n",
				report.Sources, report.Parsed, report.Inserted, report.Deleted)
			for _, e := range report.Errors {
				color.New(color.FgRed).Fprintf(out, "- %v\n", e)
			}
			if len(report.Errors) > 0 {
				return fmt.Errorf("%d sources failed to sync", len(report.Errors))
			}
			return nil
		},
	}
	command.Flags().BoolVar(&progress, "progress", false, "Show git progress output")
	return command
}

func newAddSourceCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add-source <path|url>",
		Short: "Register a local directory or git repository of cards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(args[0])
			existing, err := a.db.FindSourceByPath(path)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("source %s already exists with id %d", path, existing.ID)
			}

			sourceType := sync.DetectSourceType(path)
			id, err := a.db.InsertSource(path, sourceType)
			if err != nil {
				return err
			}
			slog.Info("Source added", "id", id, "type", sourceType, "path", path)
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s source %d: %s\n", sourceType, id, path)
			return nil
		},
	}
}

func newDueCommand(a *app) *cobra.Command {
	var deck string

	command := &cobra.Command{
		Use:   "due",
		Short: "List the cards due for review, most urgent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cards, err := a.db.CardsWithLatestReview(deck)
			if err != nil {
				return err
			}
			queue := study.BuildQueue(cards, time.Now(), a.cfg.DueThreshold)

			out := cmd.OutOrStdout()
			if len(queue) == 0 {
				color.New(color.FgGreen).Fprintln(out, "Nothing due.")
				return nil
			}
			bold := color.New(color.Bold)
			bold.Fprintf(out, "%d cards due\n", len(queue))
			for _, e := range queue {
				state := color.New(color.FgYellow).Sprintf("%5.1f %3d%%", e.Urgency, e.Strength)
				if e.Latest == nil {
					state = color.New(color.FgCyan).Sprintf("%10s", "new")
				}
				fmt.Fprintf(out, "%s  %s  %-12s %s\n", e.Card.Hash, state, e.Card.Deck, firstLine(e.Card.Question))
			}
			return nil
		},
	}
	command.Flags().StringVar(&deck, "deck", "", "Only list cards from this deck")
	return command
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func newReviewCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "review <hash> <again|hard|good|easy>",
		Short: "Record how well a card was recalled",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := srs.ParseDifficulty(args[1])
			if err != nil {
				return err
			}

			_, schedule, err := study.NewReviewer(a.db, nil).Record(args[0], d)
			if errors.Is(err, study.ErrUnknownCard) {
				return fmt.Errorf("no card with hash %s", args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			c := color.New(color.FgGreen)
			if !d.Correct() {
				c = color.New(color.FgRed)
			}
			c.Fprintf(out, "Recorded %s.", d)
			fmt.Fprintf(out, " Next review %s (interval %.2f days, ease %.2f, streak %d)\n",
				schedule.NextReviewAt.Local().Format(time.DateTime), schedule.Interval, schedule.EaseFactor, schedule.Streak)
			return nil
		},
	}
}

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show study statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dash, err := study.BuildDashboard(a.db, time.Now(), a.cfg.DueThreshold)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			bold := color.New(color.Bold)
			bold.Fprintln(out, "Overview")
			fmt.Fprintf(out, "  cards:      %d\n", dash.TotalCards)
			fmt.Fprintf(out, "  due:        %d\n", dash.DueCards)
			fmt.Fprintf(out, "  reviews:    %d\n", dash.TotalReviews)
			fmt.Fprintf(out, "  retention:  %d%%\n", dash.RetentionRate)
			fmt.Fprintf(out, "  streak:     %d days\n", dash.StreakDays)

			bold.Fprintln(out, "Decks")
			for _, d := range dash.Decks {
				fmt.Fprintf(out, "  %-16s %d\n", d.Name, d.Cards)
			}

			bold.Fprintln(out, "Last 7 days")
			for _, d := range dash.Retention {
				fmt.Fprintf(out, "  %s  %3d reviews  %3.0f%%\n", d.Day.Format(time.DateOnly), d.Total, d.Rate)
			}
			return nil
		},
	}
}
