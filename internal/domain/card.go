package domain

import (
	"math"
	"time"

	"github.com/conorfennell/neurospark/internal/srs"
)

// Card represents a single question-answer-context entry.
type Card struct {
	Hash     string
	Question string
	Answer   string
	Context  string
	Deck     string
	Tags     []string
}

// Review is one entry of a card's append-only review history.
type Review struct {
	ID       string
	CardHash string
	srs.Review
}

// Session records a study session over one deck (empty Deck means all decks).
type Session struct {
	ID            string
	Deck          string
	StartedAt     time.Time
	EndedAt       *time.Time
	CardsReviewed int
	CardsCorrect  int
}

// UserStats aggregates every review ever recorded.
type UserStats struct {
	TotalReviews int
	TotalCorrect int
	StreakDays   int
	LastReviewAt *time.Time
}

// Record returns the stats after one more review rated d at the given time.
// StreakDays advances once per calendar day that has at least one review.
func (s UserStats) Record(d srs.Difficulty, at time.Time) UserStats {
	next := s
	next.TotalReviews++
	if d.Correct() {
		next.TotalCorrect++
	}
	if s.LastReviewAt == nil || !SameDay(*s.LastReviewAt, at) {
		next.StreakDays++
	}
	next.LastReviewAt = &at
	return next
}

// RetentionRate is the rounded percentage of reviews that were not "again".
func (s UserStats) RetentionRate() int {
	if s.TotalReviews == 0 {
		return 0
	}
	return int(math.Round(float64(s.TotalCorrect) / float64(s.TotalReviews) * 100))
}

// SameDay reports whether a and b fall on the same calendar day in b's location.
func SameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
