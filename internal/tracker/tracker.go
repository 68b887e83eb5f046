// Package tracker holds the habit and entry use-cases that sit between a
// front-end and storage: validation, ownership checks and summary assembly.
package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xaenox/habit-coach/internal/analytics"
	"github.com/xaenox/habit-coach/internal/models"
	"github.com/xaenox/habit-coach/internal/storage"
)

const (
	MaxTitleLength     = 100
	DefaultEntriesDays = 30
)

var ErrInvalidInput = analytics.ErrInvalidInput

type NewHabit struct {
	Title       string
	Description string
	Frequency   models.Frequency
	Tags        []string
	EndDate     string
}

// HabitPatch updates only the non-nil fields.
type HabitPatch struct {
	Title       *string
	Description *string
	Frequency   *models.Frequency
	Tags        []string
	IsActive    *bool
	EndDate     *string
}

type Tracker struct {
	store  storage.Storage
	now    func() time.Time
	logger *zap.Logger
}

func New(store storage.Storage, logger *zap.Logger) *Tracker {
	return &Tracker{store: store, now: time.Now, logger: logger}
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("%w: title is longer than %d characters", ErrInvalidInput, MaxTitleLength)
	}
	return nil
}

func parseEndDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return &d, nil
}

func (t *Tracker) CreateHabit(ctx context.Context, userID int64, in NewHabit) (*models.Habit, error) {
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if in.Frequency == "" {
		in.Frequency = models.FrequencyDaily
	}
	if !in.Frequency.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, in.Frequency)
	}
	endDate, err := parseEndDate(in.EndDate)
	if err != nil {
		return nil, err
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	habit := &models.Habit{
		UserID:      userID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Frequency:   in.Frequency,
		Tags:        tags,
		StartDate:   models.Day(t.now()),
		EndDate:     endDate,
		IsActive:    true,
	}
	if err := t.store.CreateHabit(ctx, habit); err != nil {
		return nil, fmt.Errorf("failed to create habit: %w", err)
	}

	t.logger.Info("Habit created",
		zap.Int64("user_id", userID),
		zap.String("habit_id", habit.ID),
		zap.String("frequency", string(habit.Frequency)))
	return habit, nil
}

func (t *Tracker) UpdateHabit(ctx context.Context, userID int64, habitID string, patch HabitPatch) (*models.Habit, error) {
	habit, err := t.store.GetHabit(ctx, habitID, userID)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		if err := validateTitle(*patch.Title); err != nil {
			return nil, err
		}
		habit.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		habit.Description = *patch.Description
	}
	if patch.Frequency != nil {
		if !patch.Frequency.Valid() {
			return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, *patch.Frequency)
		}
		habit.Frequency = *patch.Frequency
	}
	if patch.Tags != nil {
		habit.Tags = patch.Tags
	}
	if patch.IsActive != nil {
		habit.IsActive = *patch.IsActive
	}
	if patch.EndDate != nil {
		endDate, err := parseEndDate(*patch.EndDate)
		if err != nil {
			return nil, err
		}
		habit.EndDate = endDate
	}

	if err := t.store.UpdateHabit(ctx, habit); err != nil {
		return nil, fmt.Errorf("failed to update habit: %w", err)
	}
	return habit, nil
}

// DeleteHabit soft-deletes; history stays for analytics.
func (t *Tracker) DeleteHabit(ctx context.Context, userID int64, habitID string) error {
	inactive := false
	if _, err := t.UpdateHabit(ctx, userID, habitID, HabitPatch{IsActive: &inactive}); err != nil {
		return err
	}
	t.logger.Info("Habit deleted", zap.Int64("user_id", userID), zap.String("habit_id", habitID))
	return nil
}

// MarkEntry sets the completion state of one day, creating the entry on first toggle.
func (t *Tracker) MarkEntry(ctx context.Context, userID int64, habitID, date string, completed bool, notes *string) (*models.HabitEntry, error) {
	day, err := models.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := t.store.GetHabit(ctx, habitID, userID); err != nil {
		return nil, err
	}

	entry := &models.HabitEntry{
		HabitID:   habitID,
		UserID:    userID,
		Date:      day,
		Completed: completed,
		Notes:     notes,
	}
	if err := t.store.UpsertEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save entry: %w", err)
	}

	t.logger.Debug("Habit entry saved",
		zap.Int64("user_id", userID),
		zap.String("habit_id", habitID),
		zap.String("date", date),
		zap.Bool("completed", completed))
	return entry, nil
}

// Entries returns the habit's entries for the trailing days, newest first.
func (t *Tracker) Entries(ctx context.Context, userID int64, habitID string, days int) ([]models.HabitEntry, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: negative day count %d", ErrInvalidInput, days)
	}
	if days == 0 {
		days = DefaultEntriesDays
	}
	if _, err := t.store.GetHabit(ctx, habitID, userID); err != nil {
		return nil, err
	}
	return t.store.FindEntriesForHabit(ctx, habitID, windowStart(t.now(), days))
}

func windowStart(now time.Time, days int) time.Time {
	return models.Day(now).AddDate(0, 0, -(days - 1))
}

// Summaries aggregates every active habit over the dashboard window.
func (t *Tracker) Summaries(ctx context.Context, userID int64) ([]models.HabitSummary, error) {
	now := t.now()
	habits, err := t.store.ListActiveHabits(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load habits: %w", err)
	}

	// The streak walk may reach past the window, so load from the habit's start.
	entries := make(map[string][]models.HabitEntry, len(habits))
	for _, h := range habits {
		found, err := t.store.FindEntriesForHabit(ctx, h.ID, h.StartDate)
		if err != nil {
			return nil, fmt.Errorf("failed to load entries for habit %s: %w", h.ID, err)
		}
		entries[h.ID] = found
	}

	return analytics.SummarizeAll(habits, entries, now, analytics.DashboardWindowDays)
}

func (t *Tracker) Dashboard(ctx context.Context, userID int64) (analytics.DashboardStats, error) {
	summaries, err := t.Summaries(ctx, userID)
	if err != nil {
		return analytics.DashboardStats{}, err
	}
	return analytics.Dashboard(summaries, t.now()), nil
}
