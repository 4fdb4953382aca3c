package calendar

import "time"

// DayKey is the canonical calendar-day form used for holiday matching:
// YYYY-MM-DD in UTC. The hour-of-day component of the input is irrelevant.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Set is a snapshot of active holiday dates, built once per calculation so
// every day scanned in one pass sees the same calendar.
type Set map[string]struct{}

// NewSet builds a snapshot from day keys. Malformed keys are kept verbatim;
// they simply never match a real date.
func NewSet(dates []string) Set {
	s := make(Set, len(dates))
	for _, d := range dates {
		s[d] = struct{}{}
	}
	return s
}

// Holiday reports whether the calendar day containing t is a declared
// holiday in this snapshot.
func (s Set) Holiday(t time.Time) bool {
	_, ok := s[DayKey(t)]
	return ok
}

// NonWorking reports whether the calendar day containing t is non-working:
// Saturday, Sunday, or an active holiday. Weekend days are fixed, not
// configurable.
func (s Set) NonWorking(t time.Time) bool {
	switch t.UTC().Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return s.Holiday(t)
}
