package analytics

import (
	"fmt"
	"time"
)

// WindowStart resolves the start instant of a trailing reporting window.
//
// The two branches use different reference points on purpose, matching
// how the dashboard has always sliced data:
//   - days == 1 ("today") starts at local midnight in the reference zone;
//   - days > 1 starts exactly days*24h before now.
//
// The asymmetry means days=1 and days=2 do not differ by a clean day of
// data. Known, documented, and load-bearing for historical comparisons;
// do not unify without an operations sign-off.
func WindowStart(now time.Time, days int, loc *time.Location) time.Time {
	local := now.In(loc)
	if days <= 1 {
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	}
	return local.Add(-time.Duration(days) * 24 * time.Hour)
}

// DayKey buckets an instant into its calendar date in the reference zone.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// PeriodLabel renders the window the way the dashboard displays it.
func PeriodLabel(days int) string {
	return fmt.Sprintf("%d days", days)
}

// DaysFromRange converts an explicit start/end range into the equivalent
// trailing-day count the aggregator understands, rounding partial days up
// and never returning less than 1.
func DaysFromRange(start, end time.Time) int {
	if !end.After(start) {
		return 1
	}
	d := int((end.Sub(start) + 24*time.Hour - 1) / (24 * time.Hour))
	if d < 1 {
		return 1
	}
	return d
}
