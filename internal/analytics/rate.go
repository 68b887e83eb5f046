package analytics

import (
	"fmt"
	"time"

	"github.com/xaenox/habit-coach/internal/models"
)

const (
	// DashboardWindowDays is the window used for habit listings.
	DashboardWindowDays = 30
	// CoachWindowDays is the window used when building coach context.
	CoachWindowDays = 7
)

const day = 24 * time.Hour

// wallUTC keeps t's wall clock but moves it to UTC, so it can be compared with
// calendar days produced by models.Day.
func wallUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d, hh, mm, ss, t.Nanosecond(), time.UTC)
}

// ElapsedDays is the habit age in whole days, rounded up. Both times are read
// as wall clocks, so the result does not depend on the zone now is in.
func ElapsedDays(start, now time.Time) int {
	elapsed := wallUTC(now).Sub(wallUTC(start))
	days := int(elapsed / day)
	if elapsed%day > 0 {
		days++
	}
	return days
}

// inWindow reports whether d falls within the windowDays calendar days ending on today.
func inWindow(d, today time.Time, windowDays int) bool {
	from := today.AddDate(0, 0, -(windowDays - 1))
	entryDay := models.Day(d)
	return !entryDay.Before(from) && !entryDay.After(today)
}

// CompletionRate returns the percentage of the trailing window completed, with the
// denominator bounded by the habit's age. The result is not clamped to 100.
func CompletionRate(entries []models.HabitEntry, start time.Time, windowDays int, now time.Time) (int, error) {
	if windowDays < 0 {
		return 0, fmt.Errorf("%w: negative window %d", ErrInvalidInput, windowDays)
	}
	if start.IsZero() || now.IsZero() {
		return 0, fmt.Errorf("%w: zero start or reference time", ErrInvalidInput)
	}

	today := models.Day(now)
	completed := 0
	for i, e := range entries {
		if e.Date.IsZero() {
			return 0, fmt.Errorf("%w: entry %d has no date", ErrInvalidInput, i)
		}
		if e.Completed && inWindow(e.Date, today, windowDays) {
			completed++
		}
	}

	return percent(completed, min(windowDays, ElapsedDays(start, now))), nil
}

// percent rounds n/d*100 half up; non-positive denominators yield 0.
func percent(n, d int) int {
	if d <= 0 {
		return 0
	}
	return (n*200 + d) / (2 * d)
}
