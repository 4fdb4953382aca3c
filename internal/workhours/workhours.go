// Package workhours turns raw timestamps into business-hours durations.
// Whole non-working days are excluded; partial hours count on the boundary
// days; interior working days contribute a full 24 hours.
package workhours

import (
	"math"
	"time"

	"stageline/internal/calendar"
)

// Parts decomposes an hour total into whole 24-hour days plus remainder.
// This is a display decomposition, not a calendar computation: it is applied
// to an already-computed working-hours total and does not skip weekends.
type Parts struct {
	Days  int     `json:"days"`
	Hours float64 `json:"hours"`
}

// Between computes working hours in [start, end) against a holiday
// snapshot. Returns 0 when start >= end; never negative. Result is rounded
// half-up to two decimals.
func Between(start, end time.Time, hs calendar.Set) float64 {
	start = start.UTC()
	end = end.UTC()
	if !start.Before(end) {
		return 0
	}

	hours := 0.0
	day := dayStart(start)
	for day.Before(end) {
		if !hs.NonWorking(day) {
			hours += overlapHours(day, start, end)
		}
		day = day.AddDate(0, 0, 1)
	}
	return Round2(hours)
}

// ToParts splits a non-negative hour total into whole days and remainder
// hours, remainder rounded to two decimals.
func ToParts(total float64) Parts {
	days := int(math.Floor(total / 24))
	return Parts{Days: days, Hours: Round2(total - float64(days)*24)}
}

// dayStart is midnight UTC of the day containing t.
func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// overlapHours is the overlap, in hours, between [start, end) and the
// 24-hour window beginning at day.
func overlapHours(day, start, end time.Time) float64 {
	next := day.AddDate(0, 0, 1)
	from := start
	if day.After(from) {
		from = day
	}
	to := end
	if next.Before(to) {
		to = next
	}
	if !from.Before(to) {
		return 0
	}
	return to.Sub(from).Hours()
}

// Round2 rounds half-up at the hundredths digit, the precision every hour
// figure is reported at.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
