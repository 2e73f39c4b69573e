package study

import (
	"math"
	"slices"
	"time"

	"github.com/conorfennell/neurospark/internal/domain"
	"github.com/conorfennell/neurospark/internal/srs"
	"github.com/conorfennell/neurospark/internal/storage"
)

// DueThreshold is the urgency below which a card counts as due now.
const DueThreshold = 20.0

// Entry is one card in a review queue.
type Entry struct {
	Card     domain.Card
	Latest   *srs.Review
	Urgency  float64
	Strength int
}

// BuildQueue keeps the cards whose urgency is below threshold and orders them
// most urgent first. Ties keep their input order.
func BuildQueue(cards []storage.CardReview, now time.Time, threshold float64) []Entry {
	queue := make([]Entry, 0, len(cards))
	for _, c := range cards {
		urgency := srs.Urgency(c.Latest, now)
		if urgency >= threshold {
			continue
		}
		queue = append(queue, Entry{
			Card:     c.Card,
			Latest:   c.Latest,
			Urgency:  urgency,
			Strength: Strength(c.Latest, now),
		})
	}
	slices.SortStableFunc(queue, func(a, b Entry) int {
		switch {
		case a.Urgency < b.Urgency:
			return -1
		case a.Urgency > b.Urgency:
			return 1
		}
		return 0
	})
	return queue
}

// Strength is memory strength rounded to a whole percent, for display.
func Strength(r *srs.Review, now time.Time) int {
	return int(math.Round(srs.MemoryStrength(r, now)))
}
