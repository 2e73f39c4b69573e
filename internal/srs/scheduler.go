package srs

import (
	"fmt"
	"math"
	"time"
)

const (
	// DefaultEaseFactor is the ease given to a card on its first review.
	DefaultEaseFactor = 2.5
	// MinEaseFactor is the floor every computed ease is clamped to.
	MinEaseFactor = 1.3

	streakBonusAfter = 3
	streakBonusStep  = 0.05
	streakBonusCap   = 1.2

	// maxDueDays bounds the due date only; the interval itself is never capped.
	maxDueDays = 1 << 20
)

// Review is one immutable entry of a card's review history.
type Review struct {
	ReviewedAt time.Time  `json:"reviewed_at"`
	Difficulty Difficulty `json:"difficulty"`
	Interval   float64    `json:"interval"` // days, may be fractional
	EaseFactor float64    `json:"ease_factor"`
	Streak     int        `json:"streak"`
}

// Schedule is the outcome of rating a card.
type Schedule struct {
	Interval     float64
	EaseFactor   float64
	Streak       int
	NextReviewAt time.Time
}

// Record turns the schedule into the review that produced it.
func (s Schedule) Record(d Difficulty, reviewedAt time.Time) Review {
	return Review{
		ReviewedAt: reviewedAt,
		Difficulty: d,
		Interval:   s.Interval,
		EaseFactor: s.EaseFactor,
		Streak:     s.Streak,
	}
}

// NextReview computes the next interval, ease and streak for a card rated d
// at now. prev is the card's most recent review, or nil for a new card.
func NextReview(prev *Review, d Difficulty, now time.Time) (Schedule, error) {
	if !d.IsValid() {
		return Schedule{}, fmt.Errorf("%w: %d", ErrInvalidDifficulty, int(d))
	}

	if prev == nil {
		interval := initialInterval(d)
		streak := 1
		if d == Again {
			streak = 0
		}
		return Schedule{
			Interval:     interval,
			EaseFactor:   DefaultEaseFactor,
			Streak:       streak,
			NextReviewAt: AddDays(now, interval),
		}, nil
	}

	streak := prev.Streak + 1
	if d == Again {
		streak = 0
	}

	ease := prev.EaseFactor + easeDelta(d)
	if !(ease >= MinEaseFactor) {
		ease = MinEaseFactor
	}

	var interval float64
	switch {
	case d == Again:
		// Relearning starts over no matter how mature the card was.
		interval = initialInterval(Again)
	case prev.Interval < 1:
		// Still learning; the card graduates once an interval reaches a day.
		interval = initialInterval(d)
	default:
		interval = prev.Interval * ease * intervalModifier(d)
		if streak > streakBonusAfter && d != Hard {
			interval *= streakBonus(streak)
		}
	}

	return Schedule{
		Interval:     interval,
		EaseFactor:   ease,
		Streak:       streak,
		NextReviewAt: AddDays(now, interval),
	}, nil
}

// AddDays adds a possibly fractional number of days to t. Whole days are
// calendar days; the remainder is added as a duration.
func AddDays(t time.Time, days float64) time.Time {
	if !(days < maxDueDays) {
		days = maxDueDays
	}
	if days <= 0 {
		return t
	}
	whole := math.Floor(days)
	frac := days - whole
	return t.AddDate(0, 0, int(whole)).Add(time.Duration(frac * float64(24*time.Hour)))
}

func streakBonus(streak int) float64 {
	return math.Min(streakBonusCap, 1+float64(streak-streakBonusAfter)*streakBonusStep)
}

func initialInterval(d Difficulty) float64 {
	switch d {
	case Again:
		return 0.1
	case Hard:
		return 0.5
	case Good:
		return 1
	case Easy:
		return 3
	}
	panic(fmt.Sprintf("srs: no initial interval for %v", d))
}

func easeDelta(d Difficulty) float64 {
	switch d {
	case Again:
		return -0.2
	case Hard:
		return -0.15
	case Good:
		return 0
	case Easy:
		return 0.15
	}
	panic(fmt.Sprintf("srs: no ease delta for %v", d))
}

func intervalModifier(d Difficulty) float64 {
	switch d {
	case Again:
		return 0
	case Hard:
		return 0.7
	case Good:
		return 1
	case Easy:
		return 1.5
	}
	panic(fmt.Sprintf("srs: no interval modifier for %v", d))
}
