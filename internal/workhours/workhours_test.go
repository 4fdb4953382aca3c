package workhours_test

import (
	"testing"
	"time"

	"stageline/internal/calendar"
	"stageline/internal/workhours"
)

func at(day string, hour, min int) time.Time {
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	return d.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func TestBetween(t *testing.T) {
	none := calendar.NewSet(nil)
	tueHoliday := calendar.NewSet([]string{"2026-03-03"})

	// 2026-03-02 is a Monday, 2026-03-07/08 the following weekend.
	cases := []struct {
		name       string
		start, end time.Time
		hs         calendar.Set
		want       float64
	}{
		{"inside one saturday", at("2026-03-07", 9, 0), at("2026-03-07", 17, 0), none, 0},
		{"whole weekend", at("2026-03-07", 0, 0), at("2026-03-09", 0, 0), none, 0},
		{"one full working day", at("2026-03-02", 9, 0), at("2026-03-03", 9, 0), none, 24},
		{"two full working days", at("2026-03-02", 0, 0), at("2026-03-04", 0, 0), none, 48},
		{"spanning a weekend", at("2026-03-06", 12, 0), at("2026-03-09", 12, 0), none, 24},
		{"start equals end", at("2026-03-02", 9, 0), at("2026-03-02", 9, 0), none, 0},
		{"end before start", at("2026-03-03", 9, 0), at("2026-03-02", 9, 0), none, 0},
		{"holiday excluded", at("2026-03-02", 9, 0), at("2026-03-04", 9, 0), tueHoliday, 24},
		{"interval inside holiday", at("2026-03-03", 9, 0), at("2026-03-03", 17, 0), tueHoliday, 0},
		{"partial hours round", at("2026-03-02", 9, 0), at("2026-03-02", 9, 20), none, 0.33},
		{"ninety minutes", at("2026-03-02", 9, 0), at("2026-03-02", 10, 30), none, 1.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := workhours.Between(tc.start, tc.end, tc.hs)
			if got != tc.want {
				t.Fatalf("Between = %v, want %v", got, tc.want)
			}
			if got < 0 {
				t.Fatalf("Between returned negative %v", got)
			}
		})
	}
}

func TestToParts(t *testing.T) {
	cases := []struct {
		total float64
		days  int
		hours float64
	}{
		{0, 0, 0},
		{5.25, 0, 5.25},
		{24, 1, 0},
		{26.5, 1, 2.5},
		{72.01, 3, 0.01},
	}
	for _, tc := range cases {
		got := workhours.ToParts(tc.total)
		if got.Days != tc.days || got.Hours != tc.hours {
			t.Fatalf("ToParts(%v) = %+v, want {%d %v}", tc.total, got, tc.days, tc.hours)
		}
		// Recomposition stays within rounding tolerance.
		recomposed := float64(got.Days)*24 + got.Hours
		if diff := recomposed - tc.total; diff > 0.005 || diff < -0.005 {
			t.Fatalf("ToParts(%v) recomposes to %v", tc.total, recomposed)
		}
	}
}

func TestRound2HalfUp(t *testing.T) {
	if got := workhours.Round2(1.006); got != 1.01 {
		t.Fatalf("Round2(1.006) = %v, want 1.01", got)
	}
	if got := workhours.Round2(2.004); got != 2.0 {
		t.Fatalf("Round2(2.004) = %v, want 2", got)
	}
}
