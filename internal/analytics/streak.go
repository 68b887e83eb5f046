// Package analytics derives streaks, completion rates and per-habit summaries
// from already-fetched habit entries. Nothing here reads the clock or touches storage.
package analytics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xaenox/habit-coach/internal/models"
)

// ErrInvalidInput is returned for malformed input such as an entry without a date
// or a negative window.
var ErrInvalidInput = errors.New("invalid input")

// indexCompleted maps calendar days to whether that day was completed.
func indexCompleted(entries []models.HabitEntry) (map[string]bool, error) {
	days := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Date.IsZero() {
			return nil, fmt.Errorf("%w: entry %d has no date", ErrInvalidInput, i)
		}
		key := e.Key()
		days[key] = days[key] || e.Completed
	}
	return days, nil
}

// Streak counts consecutive completed days walking backward from today.
// The walk stops at the first day that is not completed, today included:
// an open today contributes nothing and hides the run behind it.
func Streak(entries []models.HabitEntry, today time.Time) (int, error) {
	if today.IsZero() {
		return 0, fmt.Errorf("%w: zero reference day", ErrInvalidInput)
	}
	days, err := indexCompleted(entries)
	if err != nil {
		return 0, err
	}

	streak := 0
	for d := models.Day(today); days[models.DateKey(d)]; d = d.AddDate(0, 0, -1) {
		streak++
	}
	return streak, nil
}

// LongestStreak returns the longest run of consecutive completed days in the history.
func LongestStreak(entries []models.HabitEntry) (int, error) {
	days, err := indexCompleted(entries)
	if err != nil {
		return 0, err
	}

	var completed []time.Time
	for key, done := range days {
		if !done {
			continue
		}
		d, err := time.Parse(models.DateLayout, key)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		completed = append(completed, d)
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].Before(completed[j]) })

	longest, run := 0, 0
	for i, d := range completed {
		if i > 0 && completed[i-1].AddDate(0, 0, 1).Equal(d) {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}
	return longest, nil
}
