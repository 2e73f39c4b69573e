package srs

import (
	"math"
	"time"
)

const (
	notDueBaseline = 100
	urgencyCeiling = 10
	overdueDivisor = 3

	// strengthAtDue is the memory strength modelled at the scheduled review time.
	strengthAtDue = 20
)

// Urgency scores how pressing a review is; lower is more urgent. New cards
// (nil review) score 0. Cards not yet due score above 100, growing with how
// far away they are. Due cards score (10-ease)*(1+daysOverdue/3).
func Urgency(r *Review, now time.Time) float64 {
	if r == nil {
		return 0
	}

	daysOverdue := daysBetween(r.ReviewedAt, now) - r.Interval
	if daysOverdue < 0 {
		return notDueBaseline + math.Abs(daysOverdue)
	}
	return (urgencyCeiling - r.EaseFactor) * (1 + daysOverdue/overdueDivisor)
}

// MemoryStrength estimates recall as a percentage in [0, 100]: 100 at review
// time decaying exponentially to 20 at the end of the interval.
func MemoryStrength(r *Review, now time.Time) float64 {
	if r == nil {
		return 0
	}

	daysSince := daysBetween(r.ReviewedAt, now)
	if daysSince <= 0 {
		return 100
	}
	// A zero interval has no decay constant; the memory is already at the floor.
	if !(r.Interval > 0) {
		return 0
	}

	k := math.Log(100/strengthAtDue) / r.Interval
	strength := 100 * math.Exp(-k*daysSince)
	return math.Max(0, math.Min(100, strength))
}

const millisPerDay = float64(24 * time.Hour / time.Millisecond)

// daysBetween works on unix milliseconds; time.Time.Sub saturates after
// roughly 292 years.
func daysBetween(from, to time.Time) float64 {
	return float64(to.UnixMilli()-from.UnixMilli()) / millisPerDay
}
