package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/neurospark/internal/domain"
	"github.com/conorfennell/neurospark/internal/knol"
	"github.com/conorfennell/neurospark/internal/srs"
	"github.com/conorfennell/neurospark/internal/storage"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunReconcilesLocalSource(t *testing.T) {
	notes := t.TempDir()
	writeFile(t, filepath.Join(notes, "go.md"), "Q: What is a goroutine?\nA: A lightweight thread\n---\nQ: What is a channel?\nA: A typed conduit\n")
	writeFile(t, filepath.Join(notes, "sub", "sql.md"), "Q: What is a join?\nA: Combining rows\n")
	writeFile(t, filepath.Join(notes, "readme.txt"), "Q: ignored\nA: ignored\n")

	db := openDB(t)
	sourceID, err := db.InsertSource(notes, SourceLocal)
	require.NoError(t, err)

	s := &Syncer{DB: db, ReposDir: t.TempDir()}
	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, report.Sources)
	assert.Equal(t, 3, report.Parsed)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, 0, report.Deleted)

	cards, err := db.GetCardsBySourceID(sourceID)
	require.NoError(t, err)
	require.Len(t, cards, 3)

	decks, err := db.ListDecks()
	require.NoError(t, err)
	assert.ElementsMatch(t, []storage.DeckSummary{{Name: "go", Cards: 2}, {Name: "sql", Cards: 1}}, decks)

	sources, err := db.GetAllSources()
	require.NoError(t, err)
	assert.True(t, sources[0].LastScanned.Valid)

	// A second run over unchanged files is a no-op.
	report, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, 0, report.Deleted)
}

func TestRunDeletesOrphansWithHistory(t *testing.T) {
	notes := t.TempDir()
	path := filepath.Join(notes, "deck.md")
	writeFile(t, path, "Q: Keep?\nA: yes\n---\nQ: Drop?\nA: yes\n")

	db := openDB(t)
	_, err := db.InsertSource(notes, SourceLocal)
	require.NoError(t, err)

	s := &Syncer{DB: db, ReposDir: t.TempDir()}
	_, err = s.Run(context.Background())
	require.NoError(t, err)

	dropped := knol.Hash(domain.Card{Question: "Drop?", Answer: "yes"})
	require.NoError(t, db.AppendReview(domain.Review{
		ID:       "r1",
		CardHash: dropped,
		Review: srs.Review{
			ReviewedAt: time.Now(),
			Difficulty: srs.Good,
			Interval:   1,
			EaseFactor: srs.DefaultEaseFactor,
			Streak:     1,
		},
	}))

	// Editing a card changes its hash: the old one is an orphan.
	writeFile(t, path, "Q: Keep?\nA: yes\n")
	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, report.Deleted)

	card, err := db.FindCardByHash(dropped)
	require.NoError(t, err)
	assert.Nil(t, card)

	history, err := db.ReviewHistory(dropped)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRunKeepsHistoryOfCardsHeldByAnotherSource(t *testing.T) {
	const deck = "Q: Shared?\nA: yes\n"
	first, second := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(first, "shared.md"), deck)
	writeFile(t, filepath.Join(second, "shared.md"), deck)

	db := openDB(t)
	firstID, err := db.InsertSource(first, SourceLocal)
	require.NoError(t, err)
	secondID, err := db.InsertSource(second, SourceLocal)
	require.NoError(t, err)

	s := &Syncer{DB: db, ReposDir: t.TempDir()}
	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)

	hash := knol.Hash(domain.Card{Question: "Shared?", Answer: "yes"})
	require.NoError(t, db.AppendReview(domain.Review{
		ID:       "r1",
		CardHash: hash,
		Review: srs.Review{
			ReviewedAt: time.Now(),
			Difficulty: srs.Good,
			Interval:   1,
			EaseFactor: srs.DefaultEaseFactor,
			Streak:     1,
		},
	}))

	require.NoError(t, os.Remove(filepath.Join(first, "shared.md")))
	report, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, 0, report.Deleted)

	history, err := db.ReviewHistory(hash)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	cards, err := db.GetCardsBySourceID(firstID)
	require.NoError(t, err)
	assert.Empty(t, cards)
	cards, err = db.GetCardsBySourceID(secondID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, hash, cards[0].Hash)
}

func TestRunKeepsHistoryOfMovedCards(t *testing.T) {
	from, to := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(from, "deck.md"), "Q: Moving?\nA: yes\n")

	db := openDB(t)
	_, err := db.InsertSource(from, SourceLocal)
	require.NoError(t, err)
	toID, err := db.InsertSource(to, SourceLocal)
	require.NoError(t, err)

	s := &Syncer{DB: db, ReposDir: t.TempDir()}
	_, err = s.Run(context.Background())
	require.NoError(t, err)

	hash := knol.Hash(domain.Card{Question: "Moving?", Answer: "yes"})
	require.NoError(t, db.AppendReview(domain.Review{
		ID:       "r1",
		CardHash: hash,
		Review: srs.Review{
			ReviewedAt: time.Now(),
			Difficulty: srs.Easy,
			Interval:   3,
			EaseFactor: srs.DefaultEaseFactor,
			Streak:     1,
		},
	}))

	writeFile(t, filepath.Join(to, "deck.md"), "Q: Moving?\nA: yes\n")
	require.NoError(t, os.Remove(filepath.Join(from, "deck.md")))
	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, 0, report.Deleted)

	cards, err := db.GetCardsBySourceID(toID)
	require.NoError(t, err)
	require.Len(t, cards, 1)

	history, err := db.ReviewHistory(hash)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRunKeepsGoingAfterSourceErrors(t *testing.T) {
	notes := t.TempDir()
	writeFile(t, filepath.Join(notes, "deck.md"), "Q: Still synced?\nA: yes\n")

	db := openDB(t)
	_, err := db.InsertSource("not a git url", SourceGit)
	require.NoError(t, err)
	_, err = db.InsertSource(filepath.Join(notes, "missing"), SourceLocal)
	require.NoError(t, err)
	_, err = db.InsertSource(notes, SourceLocal)
	require.NoError(t, err)

	report, err := (&Syncer{DB: db, ReposDir: t.TempDir(), Workers: 2}).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Errors, 2)
	assert.Equal(t, 1, report.Inserted)
}

func TestRunWithoutSources(t *testing.T) {
	report, err := (&Syncer{DB: openDB(t)}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestGitURLToLocalPath(t *testing.T) {
	base := filepath.Join("var", "repos")
	cases := []struct {
		url  string
		want string
	}{
		{"https://github.com/user/notes.git", filepath.Join(base, "github.com", "user", "notes")},
		{"http://example.com:8080/team/cards", filepath.Join(base, "example.com", "team", "cards")},
		{"ssh://git@gitlab.com/group/deck.git", filepath.Join(base, "gitlab.com", "group", "deck")},
		{"git@github.com:user/notes.git", filepath.Join(base, "github.com", "user", "notes")},
	}
	for _, tc := range cases {
		got, err := GitURLToLocalPath(base, tc.url)
		require.NoError(t, err, tc.url)
		assert.Equal(t, tc.want, got, tc.url)
	}

	for _, bad := range []string{"not a url", "https://github.com/", "git@github.com:../../etc", "ftp://host/repo"} {
		_, err := GitURLToLocalPath(base, bad)
		assert.Error(t, err, bad)
	}
}

func TestDetectSourceType(t *testing.T) {
	assert.Equal(t, SourceGit, DetectSourceType("https://github.com/user/notes"))
	assert.Equal(t, SourceGit, DetectSourceType("git@github.com:user/notes.git"))
	assert.Equal(t, SourceGit, DetectSourceType("/srv/mirror/notes.git"))
	assert.Equal(t, SourceLocal, DetectSourceType("/home/me/notes"))
	assert.Equal(t, SourceLocal, DetectSourceType("notes"))
}
