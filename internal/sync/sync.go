package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/neurospark/internal/domain"
	"github.com/conorfennell/neurospark/internal/gitsource"
	"github.com/conorfennell/neurospark/internal/knol"
	"github.com/conorfennell/neurospark/internal/parser"
	"github.com/conorfennell/neurospark/internal/storage"
)

const (
	SourceLocal = "local"
	SourceGit   = "git"

	DefaultWorkers = 4
)

// Store is what a sync needs from storage.
type Store interface {
	GetAllSources() ([]storage.Source, error)
	FindCardByHash(hash string) (*domain.Card, error)
	InsertCard(card domain.Card, sourceID int64) error
	GetCardsBySourceID(sourceID int64) ([]domain.Card, error)
	DeleteCardByHash(hash string) error
	ReassignCard(hash string, sourceID int64) error
	UpdateSourceLastScanned(sourceID int64) error
}

// SourceError is a failure confined to one source; the rest still sync.
type SourceError struct {
	SourceID int64
	Path     string
	Err      error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("source %d (%s): %v", e.SourceID, e.Path, e.Err)
}

func (e SourceError) Unwrap() error { return e.Err }

// Report tallies one sync run over every source.
type Report struct {
	Sources  int
	Parsed   int
	Inserted int
	Deleted  int
	Errors   []SourceError
}

// Syncer pulls git sources into ReposDir and reconciles every source's cards
// with the database.
type Syncer struct {
	DB       Store
	ReposDir string
	Workers  int
	Progress func(sourcePath string) io.Writer
}

// Run syncs every configured source. Only failures to list sources are
// returned as an error; per-source problems land in the report.
func (s *Syncer) Run(ctx context.Context) (Report, error) {
	slog.Info("Starting sync process for all sources...")
	sources, err := s.DB.GetAllSources()
	if err != nil {
		return Report{}, fmt.Errorf("failed to get sources: %w", err)
	}

	report := Report{Sources: len(sources)}
	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with add-source <path/or/url.git>")
		return report, nil
	}

	dirs, fetchErrs := s.fetch(ctx, sources)

	var scans []*sourceScan
	for i, source := range sources {
		if fetchErrs[i] != nil {
			slog.Error("Error syncing git repo", "url", source.Path, "error", fetchErrs[i])
			report.Errors = append(report.Errors, SourceError{source.ID, source.Path, fetchErrs[i]})
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if sc := s.scan(source, dirs[i], &report); sc != nil {
			scans = append(scans, sc)
		}
	}
	s.prune(scans, &report)

	for _, sc := range scans {
		if err := s.DB.UpdateSourceLastScanned(sc.source.ID); err != nil {
			slog.Warn("Failed to update last scanned for source", "source_id", sc.source.ID, "error", err)
			sc.problems = append(sc.problems, err)
		}
		if len(sc.problems) > 0 {
			report.Errors = append(report.Errors, SourceError{sc.source.ID, sc.source.Path, errors.Join(sc.problems...)})
		}
		slog.Info("reconciliation complete",
			"path", sc.source.Path,
			"cards", len(sc.found),
			"errors", len(sc.problems),
		)
	}

	slog.Info("Sync process complete.",
		"sources", report.Sources,
		"parsed", report.Parsed,
		"inserted", report.Inserted,
		"deleted", report.Deleted,
		"errors", len(report.Errors),
	)
	return report, nil
}

// fetch resolves each source to a local directory, cloning or pulling git
// sources concurrently. Errors are reported per source index.
func (s *Syncer) fetch(ctx context.Context, sources []storage.Source) ([]string, []error) {
	dirs := make([]string, len(sources))
	errs := make([]error, len(sources))

	workers := s.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, source := range sources {
		if source.Type != SourceGit {
			dirs[i] = source.Path
			continue
		}
		g.Go(func() error {
			dir, err := GitURLToLocalPath(s.ReposDir, source.Path)
			if err != nil {
				errs[i] = err
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(dir), os.ModePerm); err != nil {
				errs[i] = fmt.Errorf("failed to create repos directory: %w", err)
				return nil
			}
			var progress io.Writer
			if s.Progress != nil {
				progress = s.Progress(source.Path)
			}
			if err := gitsource.Sync(gctx, source.Path, dir, progress); err != nil {
				errs[i] = err
				return nil
			}
			dirs[i] = dir
			return nil
		})
	}
	// Workers never return errors; failures are kept per source.
	_ = g.Wait()
	return dirs, errs
}

// sourceScan is one source's walk: the hashes its files hold now and anything that
// went wrong along the way.
type sourceScan struct {
	source   storage.Source
	found    map[string]bool
	problems []error
}

// scan walks dir for source and inserts cards whose hash is not stored yet.
// It returns nil when the directory cannot be walked; such a source keeps its
// stored cards untouched.
func (s *Syncer) scan(source storage.Source, dir string, report *Report) *sourceScan {
	sc := &sourceScan{source: source, found: make(map[string]bool)}

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		cards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			sc.problems = append(sc.problems, fmt.Errorf("parsing %s: %w", path, parseErr))
		}
		for _, card := range cards {
			card.Hash = knol.Hash(card)
			report.Parsed++
			if sc.found[card.Hash] {
				continue
			}
			sc.found[card.Hash] = true

			existing, err := s.DB.FindCardByHash(card.Hash)
			if err != nil {
				sc.problems = append(sc.problems, fmt.Errorf("db check for %s: %w", card.Hash, err))
				continue
			}
			if existing != nil {
				continue
			}
			slog.Info("New card found, inserting...", "hash", card.Hash)
			if err := s.DB.InsertCard(card, source.ID); err != nil {
				sc.problems = append(sc.problems, fmt.Errorf("db insert for %s: %w", card.Hash, err))
				continue
			}
			report.Inserted++
		}
		return nil
	})
	if walkErr != nil {
		slog.Error("Error walking directory", "path", dir, "error", walkErr)
		report.Errors = append(report.Errors, SourceError{source.ID, source.Path, walkErr})
		return nil
	}
	return sc
}

// prune runs once every source has been scanned. A stored card missing from
// its own source moves to the first scanned source that still holds it, with
// its review history; only cards no scanned source holds are deleted.
func (s *Syncer) prune(scans []*sourceScan, report *Report) {
	holder := make(map[string]*sourceScan)
	for _, sc := range scans {
		for hash := range sc.found {
			if _, ok := holder[hash]; !ok {
				holder[hash] = sc
			}
		}
	}

	for _, sc := range scans {
		stored, err := s.DB.GetCardsBySourceID(sc.source.ID)
		if err != nil {
			slog.Error("Error getting cards for source", "source_id", sc.source.ID, "error", err)
			sc.problems = append(sc.problems, err)
			continue
		}
		for _, card := range stored {
			if sc.found[card.Hash] {
				continue
			}
			if to, ok := holder[card.Hash]; ok {
				slog.Info("Card moved, reassigning", "hash", card.Hash, "from", sc.source.ID, "to", to.source.ID)
				if err := s.DB.ReassignCard(card.Hash, to.source.ID); err != nil {
					sc.problems = append(sc.problems, fmt.Errorf("db reassign for %s: %w", card.Hash, err))
				}
				continue
			}
			slog.Info("Orphaned card, deleting", "hash", card.Hash)
			if err := s.DB.DeleteCardByHash(card.Hash); err != nil {
				slog.Warn("Failed to delete orphaned card", "hash", card.Hash, "error", err)
				sc.problems = append(sc.problems, fmt.Errorf("db delete for %s: %w", card.Hash, err))
				continue
			}
			report.Deleted++
		}
	}
}

// DetectSourceType reports whether path names a git remote or a local directory.
func DetectSourceType(path string) string {
	switch {
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"),
		strings.HasPrefix(path, "ssh://"), strings.HasPrefix(path, "git@"),
		strings.HasSuffix(path, ".git"):
		return SourceGit
	}
	return SourceLocal
}

// GitURLToLocalPath maps a remote URL to its checkout directory under baseDir.
// https, http and ssh URLs as well as scp-like user@host:path forms are accepted.
func GitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err == nil && parsedURL.Host != "" &&
		(parsedURL.Scheme == "https" || parsedURL.Scheme == "http" || parsedURL.Scheme == "ssh") {
		return checkoutPath(baseDir, parsedURL.Hostname(), parsedURL.Path)
	}

	userHost, repoPath, ok := strings.Cut(repoURL, ":")
	if ok {
		if _, host, ok := strings.Cut(userHost, "@"); ok && host != "" {
			return checkoutPath(baseDir, host, repoPath)
		}
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}

func checkoutPath(baseDir, host, repoPath string) (string, error) {
	repoPath = strings.Trim(strings.TrimSuffix(repoPath, ".git"), "/")
	if repoPath == "" {
		return "", fmt.Errorf("git URL has no repository path on %s", host)
	}
	p := filepath.Join(baseDir, host, filepath.FromSlash(repoPath))
	// Reject paths like host/../../etc that would escape baseDir.
	if rel, err := filepath.Rel(baseDir, p); err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("git URL escapes repos directory: %s", repoPath)
	}
	return p, nil
}
