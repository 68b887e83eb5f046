package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/xaenox/habit-coach/internal/models"
)

// Summarize combines streak and completion rate for one habit. entries must
// already be fetched by the caller; the function is pure.
func Summarize(habit models.Habit, entries []models.HabitEntry, now time.Time, windowDays int) (models.HabitSummary, error) {
	streak, err := Streak(entries, now)
	if err != nil {
		return models.HabitSummary{}, fmt.Errorf("habit %s streak: %w", habit.ID, err)
	}
	longest, err := LongestStreak(entries)
	if err != nil {
		return models.HabitSummary{}, fmt.Errorf("habit %s longest streak: %w", habit.ID, err)
	}
	rate, err := CompletionRate(entries, habit.StartDate, windowDays, now)
	if err != nil {
		return models.HabitSummary{}, fmt.Errorf("habit %s completion rate: %w", habit.ID, err)
	}

	today := models.Day(now)
	recent := make([]models.HabitEntry, 0, len(entries))
	completed := 0
	for _, e := range entries {
		if !inWindow(e.Date, today, windowDays) {
			continue
		}
		recent = append(recent, e)
		if e.Completed {
			completed++
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Date.After(recent[j].Date) })

	return models.HabitSummary{
		Habit:             habit,
		CurrentStreak:     streak,
		LongestStreak:     longest,
		CompletionRate:    rate,
		CompletedInWindow: completed,
		WindowDays:        windowDays,
		RecentEntries:     recent,
	}, nil
}

// SummarizeAll summarizes habits in order, looking up each habit's entries by habit ID.
func SummarizeAll(habits []models.Habit, entries map[string][]models.HabitEntry, now time.Time, windowDays int) ([]models.HabitSummary, error) {
	summaries := make([]models.HabitSummary, 0, len(habits))
	for _, h := range habits {
		s, err := Summarize(h, entries[h.ID], now, windowDays)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// DashboardStats aggregates today's progress across a user's habits.
type DashboardStats struct {
	TotalHabits    int `json:"total_habits"`
	CompletedToday int `json:"completed_today"`
	TodayRate      int `json:"today_rate"`
	TotalStreak    int `json:"total_streak"`
	BestStreak     int `json:"best_streak"`
}

func Dashboard(summaries []models.HabitSummary, now time.Time) DashboardStats {
	todayKey := models.DateKey(models.Day(now))
	stats := DashboardStats{TotalHabits: len(summaries)}
	for _, s := range summaries {
		for _, e := range s.RecentEntries {
			if e.Key() == todayKey && e.Completed {
				stats.CompletedToday++
				break
			}
		}
		stats.TotalStreak += s.CurrentStreak
		stats.BestStreak = max(stats.BestStreak, s.CurrentStreak)
	}
	stats.TodayRate = percent(stats.CompletedToday, stats.TotalHabits)
	return stats
}
