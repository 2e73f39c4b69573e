package study

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/neurospark/internal/domain"
	"github.com/conorfennell/neurospark/internal/srs"
)

// ErrUnknownCard is returned when a review names a card that does not exist.
var ErrUnknownCard = errors.New("unknown card")

// ReviewStore is the persistence the Reviewer needs.
type ReviewStore interface {
	FindCardByHash(hash string) (*domain.Card, error)
	LatestReview(hash string) (*srs.Review, error)
	AppendReview(r domain.Review) error
}

// Reviewer records ratings: it schedules each card from its latest review and
// appends the result to the card's history.
type Reviewer struct {
	store ReviewStore
	now   func() time.Time
	locks cardLocks
}

// NewReviewer creates a Reviewer. A nil clock means time.Now.
func NewReviewer(store ReviewStore, now func() time.Time) *Reviewer {
	if now == nil {
		now = time.Now
	}
	return &Reviewer{store: store, now: now}
}

// Record rates the card identified by hash and returns the stored review
// along with the schedule it implies.
func (rv *Reviewer) Record(hash string, d srs.Difficulty) (domain.Review, srs.Schedule, error) {
	if !d.IsValid() {
		return domain.Review{}, srs.Schedule{}, fmt.Errorf("%w: %d", srs.ErrInvalidDifficulty, int(d))
	}

	// Ratings for one card are serialized so none is computed from a stale previous review.
	unlock := rv.locks.lock(hash)
	defer unlock()

	card, err := rv.store.FindCardByHash(hash)
	if err != nil {
		return domain.Review{}, srs.Schedule{}, err
	}
	if card == nil {
		return domain.Review{}, srs.Schedule{}, fmt.Errorf("%w: %s", ErrUnknownCard, hash)
	}

	prev, err := rv.store.LatestReview(hash)
	if err != nil {
		return domain.Review{}, srs.Schedule{}, err
	}

	now := rv.now()
	schedule, err := srs.NextReview(prev, d, now)
	if err != nil {
		return domain.Review{}, srs.Schedule{}, err
	}

	review := domain.Review{
		ID:       uuid.NewString(),
		CardHash: hash,
		Review:   schedule.Record(d, now),
	}
	if err := rv.store.AppendReview(review); err != nil {
		return domain.Review{}, srs.Schedule{}, err
	}

	slog.Debug("review recorded",
		"hash", hash,
		"difficulty", d,
		"interval", schedule.Interval,
		"ease", schedule.EaseFactor,
		"streak", schedule.Streak,
		"next_review", schedule.NextReviewAt,
	)
	return review, schedule, nil
}

// cardLocks hands out one mutex per card hash, dropping it when unused.
type cardLocks struct {
	mu    sync.Mutex
	locks map[string]*cardLock
}

type cardLock struct {
	mu   sync.Mutex
	refs int
}

func (c *cardLocks) lock(key string) (unlock func()) {
	c.mu.Lock()
	if c.locks == nil {
		c.locks = make(map[string]*cardLock)
	}
	l, ok := c.locks[key]
	if !ok {
		l = &cardLock{}
		c.locks[key] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, key)
		}
		c.mu.Unlock()
	}
}
