package study

import (
	"fmt"
	"time"

	"github.com/conorfennell/neurospark/internal/domain"
	"github.com/conorfennell/neurospark/internal/storage"
)

const (
	RetentionDays = 7
	HeatmapDays   = 49
)

// DayRetention is how many reviews on one day were recalled.
type DayRetention struct {
	Day     time.Time
	Total   int
	Correct int
	Rate    float64 // percent, 0 when there were no reviews
}

// DayCount is the number of reviews on one day.
type DayCount struct {
	Day       time.Time
	Count     int
	Intensity int // 0..5
}

func dayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// lastDays returns the start of each of the last n days ending today, oldest first.
func lastDays(now time.Time, n int) []time.Time {
	today := domain.StartOfDay(now)
	days := make([]time.Time, n)
	for i := 0; i < n; i++ {
		days[n-1-i] = today.AddDate(0, 0, -i)
	}
	return days
}

// RetentionByDay buckets reviews into the last n calendar days of now's
// location, oldest first.
func RetentionByDay(reviews []domain.Review, now time.Time, n int) []DayRetention {
	total := make(map[string]int)
	correct := make(map[string]int)
	for _, r := range reviews {
		k := dayKey(r.ReviewedAt.In(now.Location()))
		total[k]++
		if r.Difficulty.Correct() {
			correct[k]++
		}
	}

	out := make([]DayRetention, 0, n)
	for _, day := range lastDays(now, n) {
		k := dayKey(day)
		d := DayRetention{Day: day, Total: total[k], Correct: correct[k]}
		if d.Total > 0 {
			d.Rate = float64(d.Correct) / float64(d.Total) * 100
		}
		out = append(out, d)
	}
	return out
}

// Heatmap counts reviews over the last n days and groups them into weeks of
// seven, oldest first.
func Heatmap(reviews []domain.Review, now time.Time, n int) [][]DayCount {
	counts := make(map[string]int)
	for _, r := range reviews {
		counts[dayKey(r.ReviewedAt.In(now.Location()))]++
	}

	var weeks [][]DayCount
	for i, day := range lastDays(now, n) {
		if i%7 == 0 {
			weeks = append(weeks, make([]DayCount, 0, 7))
		}
		c := counts[dayKey(day)]
		weeks[len(weeks)-1] = append(weeks[len(weeks)-1], DayCount{Day: day, Count: c, Intensity: Intensity(c)})
	}
	return weeks
}

// Intensity buckets a daily review count for the heatmap.
func Intensity(count int) int {
	switch {
	case count <= 0:
		return 0
	case count < 5:
		return 1
	case count < 10:
		return 2
	case count < 20:
		return 3
	case count < 30:
		return 4
	default:
		return 5
	}
}

// DashboardStore is the read side the dashboard needs.
type DashboardStore interface {
	CardsWithLatestReview(deck string) ([]storage.CardReview, error)
	ListDecks() ([]storage.DeckSummary, error)
	GetUserStats() (domain.UserStats, error)
	ReviewsSince(t time.Time) ([]domain.Review, error)
}

// Dashboard summarizes study progress.
type Dashboard struct {
	TotalCards    int
	DueCards      int
	TotalReviews  int
	RetentionRate int
	StreakDays    int
	Decks         []storage.DeckSummary
	Retention     []DayRetention
	Heatmap       [][]DayCount
}

// BuildDashboard gathers the dashboard figures as of now.
func BuildDashboard(store DashboardStore, now time.Time, threshold float64) (Dashboard, error) {
	cards, err := store.CardsWithLatestReview("")
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard cards: %w", err)
	}
	decks, err := store.ListDecks()
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard decks: %w", err)
	}
	stats, err := store.GetUserStats()
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard stats: %w", err)
	}

	since := domain.StartOfDay(now).AddDate(0, 0, -(HeatmapDays - 1))
	reviews, err := store.ReviewsSince(since)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard reviews: %w", err)
	}

	return Dashboard{
		TotalCards:    len(cards),
		DueCards:      len(BuildQueue(cards, now, threshold)),
		TotalReviews:  stats.TotalReviews,
		RetentionRate: stats.RetentionRate(),
		StreakDays:    stats.StreakDays,
		Decks:         decks,
		Retention:     RetentionByDay(reviews, now, RetentionDays),
		Heatmap:       Heatmap(reviews, now, HeatmapDays),
	}, nil
}
