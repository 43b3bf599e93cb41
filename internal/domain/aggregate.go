package domain

import "time"

// DashboardAggregate is the per-(source, day) rollup backing dashboard
// reads. Never authored directly; always recomputed from reviews.
type DashboardAggregate struct {
	SourceID     int64
	Day          time.Time // midnight UTC
	Total        int
	AvgRating    float64
	Positive     int
	Neutral      int
	Negative     int
	CalculatedAt time.Time
}

// Day truncates t to its UTC day bucket.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
