package calendar_test

import (
	"testing"
	"time"

	"stageline/internal/calendar"
)

func TestDayKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 02:30 local on March 3rd is still March 2nd in UTC.
	local := time.Date(2026, 3, 3, 2, 30, 0, 0, loc)
	if got := calendar.DayKey(local); got != "2026-03-02" {
		t.Fatalf("DayKey = %q, want 2026-03-02", got)
	}
}

func TestNonWorkingWeekends(t *testing.T) {
	hs := calendar.NewSet(nil)
	sat := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	sun := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	mon := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	if !hs.NonWorking(sat) || !hs.NonWorking(sun) {
		t.Fatal("weekend days should be non-working")
	}
	if hs.NonWorking(mon) {
		t.Fatal("Monday with no holiday should be working")
	}
}

func TestHolidayMembership(t *testing.T) {
	hs := calendar.NewSet([]string{"2026-03-03"})
	tue := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	wed := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	if !hs.Holiday(tue) || !hs.NonWorking(tue) {
		t.Fatal("declared day should be a non-working holiday")
	}
	if hs.Holiday(wed) || hs.NonWorking(wed) {
		t.Fatal("undeclared weekday should be working")
	}
}
