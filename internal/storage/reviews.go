package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/neurospark/internal/domain"
	"github.com/conorfennell/neurospark/internal/srs"
)

// CardReview pairs a card with its most recent review, nil if never reviewed.
type CardReview struct {
	Card   domain.Card
	Latest *srs.Review
}

// AppendReview adds a review to its card's history and folds it into the
// user stats, in one transaction.
func (db *DB) AppendReview(r domain.Review) error {
	difficulty, err := r.Difficulty.MarshalText()
	if err != nil {
		return fmt.Errorf("failed to append review for card %s: %w", r.CardHash, err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin review for card %s: %w", r.CardHash, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO reviews (id, card_hash, reviewed_at, difficulty, interval_days, ease_factor, streak)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.CardHash,
		r.ReviewedAt.UnixMilli(),
		string(difficulty),
		r.Interval,
		r.EaseFactor,
		r.Streak,
	); err != nil {
		return fmt.Errorf("failed to insert review for card %s: %w", r.CardHash, err)
	}

	stats, err := getUserStats(tx)
	if err != nil {
		return err
	}
	stats = stats.Record(r.Difficulty, r.ReviewedAt)

	if _, err := tx.Exec(`
		UPDATE user_stats
		SET total_reviews = ?, total_correct = ?, streak_days = ?, last_review_at = ?
		WHERE id = 1
	`, stats.TotalReviews, stats.TotalCorrect, stats.StreakDays, stats.LastReviewAt.UnixMilli()); err != nil {
		return fmt.Errorf("failed to update user stats: %w", err)
	}

	return tx.Commit()
}

// LatestReview returns the most recent review of a card, or nil if the card
// has never been reviewed.
func (db *DB) LatestReview(hash string) (*srs.Review, error) {
	row := db.conn.QueryRow(`
		SELECT reviewed_at, difficulty, interval_days, ease_factor, streak
		FROM reviews WHERE card_hash = ?
		ORDER BY reviewed_at DESC, rowid DESC
		LIMIT 1
	`, hash)

	var (
		reviewedAt int64
		difficulty string
		r          srs.Review
	)
	if err := row.Scan(&reviewedAt, &difficulty, &r.Interval, &r.EaseFactor, &r.Streak); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find latest review for card %s: %w", hash, err)
	}
	if err := r.Difficulty.UnmarshalText([]byte(difficulty)); err != nil {
		return nil, fmt.Errorf("corrupt review for card %s: %w", hash, err)
	}
	r.ReviewedAt = time.UnixMilli(reviewedAt)
	return &r, nil
}

// ReviewHistory returns a card's reviews, oldest first.
func (db *DB) ReviewHistory(hash string) ([]domain.Review, error) {
	return db.queryReviews(`
		SELECT id, card_hash, reviewed_at, difficulty, interval_days, ease_factor, streak
		FROM reviews WHERE card_hash = ?
		ORDER BY reviewed_at, rowid
	`, hash)
}

// ReviewsSince returns every review at or after t, oldest first.
func (db *DB) ReviewsSince(t time.Time) ([]domain.Review, error) {
	return db.queryReviews(`
		SELECT id, card_hash, reviewed_at, difficulty, interval_days, ease_factor, streak
		FROM reviews WHERE reviewed_at >= ?
		ORDER BY reviewed_at, rowid
	`, t.UnixMilli())
}

func (db *DB) queryReviews(query string, args ...any) ([]domain.Review, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []domain.Review
	for rows.Next() {
		var (
			r          domain.Review
			reviewedAt int64
			difficulty string
		)
		if err := rows.Scan(&r.ID, &r.CardHash, &reviewedAt, &difficulty, &r.Interval, &r.EaseFactor, &r.Streak); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		if err := r.Difficulty.UnmarshalText([]byte(difficulty)); err != nil {
			return nil, fmt.Errorf("corrupt review %s: %w", r.ID, err)
		}
		r.ReviewedAt = time.UnixMilli(reviewedAt)
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// CardsWithLatestReview lists every card in deck (all decks when empty)
// together with its most recent review.
func (db *DB) CardsWithLatestReview(deck string) ([]CardReview, error) {
	rows, err := db.conn.Query(`
		SELECT c.hash, c.question, c.answer, c.context, c.deck, c.tags,
		       r.reviewed_at, r.difficulty, r.interval_days, r.ease_factor, r.streak
		FROM cards c
		LEFT JOIN reviews r ON r.rowid = (
			SELECT r2.rowid FROM reviews r2
			WHERE r2.card_hash = c.hash
			ORDER BY r2.reviewed_at DESC, r2.rowid DESC
			LIMIT 1
		)
		WHERE ? = '' OR c.deck = ?
		ORDER BY c.created_at, c.hash
	`, deck, deck)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards for deck %q: %w", deck, err)
	}
	defer rows.Close()

	var out []CardReview
	for rows.Next() {
		var (
			cr         CardReview
			tags       string
			reviewedAt sql.NullInt64
			difficulty sql.NullString
			interval   sql.NullFloat64
			ease       sql.NullFloat64
			streak     sql.NullInt64
		)
		if err := rows.Scan(
			&cr.Card.Hash,
			&cr.Card.Question,
			&cr.Card.Answer,
			&cr.Card.Context,
			&cr.Card.Deck,
			&tags,
			&reviewedAt,
			&difficulty,
			&interval,
			&ease,
			&streak,
		); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cr.Card.Tags = splitTags(tags)

		if reviewedAt.Valid {
			latest := srs.Review{
				ReviewedAt: time.UnixMilli(reviewedAt.Int64),
				Interval:   interval.Float64,
				EaseFactor: ease.Float64,
				Streak:     int(streak.Int64),
			}
			if err := latest.Difficulty.UnmarshalText([]byte(difficulty.String)); err != nil {
				return nil, fmt.Errorf("corrupt review for card %s: %w", cr.Card.Hash, err)
			}
			cr.Latest = &latest
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

// GetUserStats returns the aggregate review stats.
func (db *DB) GetUserStats() (domain.UserStats, error) {
	return getUserStats(db.conn)
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func getUserStats(q queryRower) (domain.UserStats, error) {
	var (
		stats domain.UserStats
		last  sql.NullInt64
	)
	err := q.QueryRow(`
		SELECT total_reviews, total_correct, streak_days, last_review_at
		FROM user_stats WHERE id = 1
	`).Scan(&stats.TotalReviews, &stats.TotalCorrect, &stats.StreakDays, &last)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("failed to read user stats: %w", err)
	}
	if last.Valid {
		t := time.UnixMilli(last.Int64)
		stats.LastReviewAt = &t
	}
	return stats, nil
}

// StartSession opens a study session over deck.
func (db *DB) StartSession(deck string, at time.Time) (domain.Session, error) {
	s := domain.Session{
		ID:        uuid.NewString(),
		Deck:      deck,
		StartedAt: time.UnixMilli(at.UnixMilli()),
	}
	if _, err := db.conn.Exec(`
		INSERT INTO sessions (id, deck, started_at)
		VALUES (?, ?, ?)
	`, s.ID, s.Deck, at.UnixMilli()); err != nil {
		return domain.Session{}, fmt.Errorf("failed to start session for deck %q: %w", deck, err)
	}
	return s, nil
}

// EndSession closes a session with its final counts.
func (db *DB) EndSession(id string, reviewed, correct int, at time.Time) error {
	res, err := db.conn.Exec(`
		UPDATE sessions
		SET ended_at = ?, cards_reviewed = ?, cards_correct = ?
		WHERE id = ?
	`, at.UnixMilli(), reviewed, correct, id)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// FindSession retrieves a session by ID. It returns nil when absent.
func (db *DB) FindSession(id string) (*domain.Session, error) {
	var (
		s       domain.Session
		started int64
		ended   sql.NullInt64
	)
	err := db.conn.QueryRow(`
		SELECT id, deck, started_at, ended_at, cards_reviewed, cards_correct
		FROM sessions WHERE id = ?
	`, id).Scan(&s.ID, &s.Deck, &started, &ended, &s.CardsReviewed, &s.CardsCorrect)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session %s: %w", id, err)
	}
	s.StartedAt = time.UnixMilli(started)
	if ended.Valid {
		t := time.UnixMilli(ended.Int64)
		s.EndedAt = &t
	}
	return &s, nil
}
