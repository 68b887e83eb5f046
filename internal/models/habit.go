package models

import (
	"fmt"
	"time"
)

type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
	FrequencyCustom Frequency = "custom"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyCustom:
		return true
	}
	return false
}

// Habit is owned by exactly one user. IsActive=false marks a soft-deleted habit.
type Habit struct {
	ID          string     `json:"id"`
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Frequency   Frequency  `json:"frequency"`
	Tags        []string   `json:"tags"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// HabitEntry records one calendar day of a habit. (HabitID, UserID, Date) is unique.
type HabitEntry struct {
	ID        string    `json:"id"`
	HabitID   string    `json:"habit_id"`
	UserID    int64     `json:"user_id"`
	Date      time.Time `json:"date"`
	Completed bool      `json:"completed"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the calendar day of the entry in YYYY-MM-DD form.
func (e HabitEntry) Key() string {
	return DateKey(e.Date)
}

func (e HabitEntry) Validate() error {
	if e.HabitID == "" {
		return fmt.Errorf("habit entry has no habit id")
	}
	if e.Date.IsZero() {
		return fmt.Errorf("habit entry for habit %s has no date", e.HabitID)
	}
	return nil
}

// HabitSummary is derived on every read and never persisted.
type HabitSummary struct {
	Habit             Habit        `json:"habit"`
	CurrentStreak     int          `json:"current_streak"`
	LongestStreak     int          `json:"longest_streak"`
	CompletionRate    int          `json:"completion_rate"`
	CompletedInWindow int          `json:"completed_in_window"`
	WindowDays        int          `json:"window_days"`
	RecentEntries     []HabitEntry `json:"recent_entries"`
}
