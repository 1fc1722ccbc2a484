// Package cycle holds the pure calendar math for goal evaluation windows
// and overdue penalty buckets. Everything here is deterministic in its
// inputs so evaluation runs can repeat at any cadence.
package cycle

import (
	"fmt"
	"time"
)

// Grain selects the evaluation window size.
type Grain string

const (
	GrainWeek  Grain = "week"
	GrainMonth Grain = "month"
)

func (g Grain) Valid() bool { return g == GrainWeek || g == GrainMonth }

// Window returns the inclusive [start, end] range for a grain, offset whole
// windows from the one containing now. Weeks start on Sunday. The end bound
// is the last instant of the window's final day.
func Window(now time.Time, grain Grain, offset int) (time.Time, time.Time) {
	switch grain {
	case GrainMonth:
		first := time.Date(now.Year(), now.Month()+time.Month(offset), 1, 0, 0, 0, 0, now.Location())
		last := first.AddDate(0, 1, -1)
		return first, EndOfDay(last)
	default:
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		start := day.AddDate(0, 0, -int(day.Weekday())+offset*7)
		return start, EndOfDay(start.AddDate(0, 0, 6))
	}
}

// WeekKey derives a stable dedup key from a week window's start day.
// Two evaluations of the same week always produce the same key.
func WeekKey(start time.Time) string {
	return fmt.Sprintf("W%d-%d", start.Year(), (start.Day()+12)/7)
}

// EndOfDay returns the last instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// DaysOverdue reports the whole-day calendar difference between now's day
// and the deadline's day, and whether the deadline has passed at all. A goal
// only counts as overdue once the end of its deadline day is behind us; the
// day count itself is date arithmetic, so it ticks at midnight.
func DaysOverdue(now, deadline time.Time) (int, bool) {
	if !now.After(EndOfDay(deadline)) {
		return 0, false
	}
	nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	deadlineDay := time.Date(deadline.Year(), deadline.Month(), deadline.Day(), 0, 0, 0, 0, deadline.Location())
	return int(nowDay.Sub(deadlineDay).Hours() / 24), true
}

// PenaltyBucket maps whole days overdue onto a repeating penalty bucket:
// days 0..interval-1 land in bucket 0, the next interval in bucket 1, and
// so on. A new bucket means a new penalty may fire.
func PenaltyBucket(daysOverdue, intervalDays int) int {
	if intervalDays <= 0 {
		intervalDays = 3
	}
	if daysOverdue < 0 {
		return 0
	}
	return daysOverdue / intervalDays
}

// BucketKey is the ledger cycle key for a penalty bucket.
func BucketKey(bucket int) string {
	return fmt.Sprintf("bucket-%d", bucket)
}
