package cycle_test

import (
	"testing"
	"time"

	"launchline/internal/cycle"
)

func TestWeekWindow(t *testing.T) {
	// Wednesday
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	start, end := cycle.Window(now, cycle.GrainWeek, 0)
	if start.Day() != 7 || start.Month() != time.January || start.Weekday() != time.Sunday {
		t.Fatalf("expected week start Sunday Jan 7, got %s", start)
	}
	if end.Day() != 13 || end.Hour() != 23 || end.Minute() != 59 {
		t.Fatalf("expected week end Jan 13 EOD, got %s", end)
	}
	prevStart, _ := cycle.Window(now, cycle.GrainWeek, -1)
	if prevStart.Day() != 31 || prevStart.Month() != time.December || prevStart.Year() != 2023 {
		t.Fatalf("expected previous week start Dec 31 2023, got %s", prevStart)
	}
}

func TestMonthWindow(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	start, end := cycle.Window(now, cycle.GrainMonth, 0)
	if start.Day() != 1 || start.Month() != time.January {
		t.Fatalf("expected Jan 1, got %s", start)
	}
	if end.Day() != 31 || end.Month() != time.January {
		t.Fatalf("expected Jan 31 EOD, got %s", end)
	}
	prevStart, prevEnd := cycle.Window(now, cycle.GrainMonth, -1)
	if prevStart.Month() != time.December || prevStart.Year() != 2023 {
		t.Fatalf("expected Dec 2023, got %s", prevStart)
	}
	if prevEnd.Day() != 31 || prevEnd.Month() != time.December {
		t.Fatalf("expected Dec 31 EOD, got %s", prevEnd)
	}
}

func TestWeekKeyStableAcrossDays(t *testing.T) {
	// every day of the same week must produce the same key
	start, _ := cycle.Window(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), cycle.GrainWeek, 0)
	want := cycle.WeekKey(start)
	for d := 0; d < 7; d++ {
		day := time.Date(2024, 1, 7+d, 15, 0, 0, 0, time.UTC)
		s, _ := cycle.Window(day, cycle.GrainWeek, 0)
		if got := cycle.WeekKey(s); got != want {
			t.Fatalf("day %s: key %s, want %s", day, got, want)
		}
	}
}

func TestDaysOverdue(t *testing.T) {
	deadline := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

	// still inside the deadline day
	if _, overdue := cycle.DaysOverdue(time.Date(2024, 1, 5, 23, 0, 0, 0, time.UTC), deadline); overdue {
		t.Fatalf("expected not overdue on deadline day")
	}
	// the morning after is one calendar day late, regardless of the hour
	days, overdue := cycle.DaysOverdue(time.Date(2024, 1, 6, 8, 0, 0, 0, time.UTC), deadline)
	if !overdue || days != 1 {
		t.Fatalf("expected overdue with 1 day, got %v %d", overdue, days)
	}
	days, overdue = cycle.DaysOverdue(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC), deadline)
	if !overdue || days != 5 {
		t.Fatalf("expected 5 days overdue, got %v %d", overdue, days)
	}
	// the count advances every midnight, never stalls
	days, _ = cycle.DaysOverdue(time.Date(2024, 1, 11, 12, 0, 0, 0, time.UTC), deadline)
	if days != 6 {
		t.Fatalf("expected 6 days overdue the next day, got %d", days)
	}
}

func TestPenaltyBucket(t *testing.T) {
	cases := []struct {
		days, interval, want int
	}{
		{0, 3, 0},
		{2, 3, 0},
		{3, 3, 1},
		{5, 3, 1},
		{6, 3, 2},
		{-1, 3, 0},
		{6, 0, 2}, // zero interval falls back to 3
	}
	for _, c := range cases {
		if got := cycle.PenaltyBucket(c.days, c.interval); got != c.want {
			t.Fatalf("PenaltyBucket(%d,%d)=%d, want %d", c.days, c.interval, got, c.want)
		}
	}
	if cycle.BucketKey(2) != "bucket-2" {
		t.Fatalf("unexpected bucket key %s", cycle.BucketKey(2))
	}
}
