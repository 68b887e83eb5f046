package analytics

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/xaenox/habit-coach/internal/models"
)

func TestCompletionRate(t *testing.T) {
	now := time.Date(2024, 2, 13, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		entries func(t *testing.T) []models.HabitEntry
		start   time.Time
		window  int
		want    int
	}{
		{
			name: "scenario D: young habit uses its age",
			entries: func(t *testing.T) []models.HabitEntry {
				return []models.HabitEntry{
					entry(t, "2024-02-13", true),
					entry(t, "2024-02-11", true),
					entry(t, "2024-02-10", true),
					entry(t, "2024-02-09", false),
				}
			},
			start:  now.AddDate(0, 0, -5),
			window: 30,
			want:   60,
		},
		{
			name:    "no entries",
			entries: func(t *testing.T) []models.HabitEntry { return nil },
			start:   now.AddDate(0, 0, -40),
			window:  30,
			want:    0,
		},
		{
			name: "zero elapsed days",
			entries: func(t *testing.T) []models.HabitEntry {
				return []models.HabitEntry{entry(t, "2024-02-13", true)}
			},
			start:  now,
			window: 30,
			want:   0,
		},
		{
			name: "partial day rounds age up",
			entries: func(t *testing.T) []models.HabitEntry {
				return []models.HabitEntry{entry(t, "2024-02-13", true)}
			},
			start:  now.Add(-time.Hour),
			window: 30,
			want:   100,
		},
		{
			name: "entries outside the window are ignored",
			entries: func(t *testing.T) []models.HabitEntry {
				return []models.HabitEntry{
					entry(t, "2024-02-13", true),
					entry(t, "2024-02-07", true),
					entry(t, "2024-02-06", true),
				}
			},
			start:  now.AddDate(0, 0, -60),
			window: 7,
			want:   29,
		},
		{
			name: "rounds half up",
			entries: func(t *testing.T) []models.HabitEntry {
				return []models.HabitEntry{entry(t, "2024-02-13", true)}
			},
			start:  now.AddDate(0, 0, -8),
			window: 8,
			want:   13,
		},
		{
			name: "duplicate days overflow past 100",
			entries: func(t *testing.T) []models.HabitEntry {
				return []models.HabitEntry{
					entry(t, "2024-02-13", true),
					entry(t, "2024-02-13", true),
					entry(t, "2024-02-12", true),
				}
			},
			start:  now.AddDate(0, 0, -2),
			window: 30,
			want:   150,
		},
		{
			name: "zero window",
			entries: func(t *testing.T) []models.HabitEntry {
				return []models.HabitEntry{entry(t, "2024-02-13", true)}
			},
			start:  now.AddDate(0, 0, -10),
			window: 0,
			want:   0,
		},
		{
			name:    "start in the future",
			entries: func(t *testing.T) []models.HabitEntry { return nil },
			start:   now.AddDate(0, 0, 3),
			window:  30,
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompletionRate(tt.entries(t), tt.start, tt.window, now)
			if err != nil {
				t.Fatalf("CompletionRate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CompletionRate() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCompletionRate_InvalidInput(t *testing.T) {
	now := time.Date(2024, 2, 13, 12, 0, 0, 0, time.UTC)

	if _, err := CompletionRate(nil, now, -1, now); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative window error = %v, want ErrInvalidInput", err)
	}
	if _, err := CompletionRate(nil, time.Time{}, 7, now); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero start error = %v, want ErrInvalidInput", err)
	}
	bad := []models.HabitEntry{{HabitID: "h1", Completed: true}}
	if _, err := CompletionRate(bad, now.AddDate(0, 0, -3), 7, now); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero entry date error = %v, want ErrInvalidInput", err)
	}
}

func TestCompletionRate_ZoneIndependent(t *testing.T) {
	zones := []*time.Location{
		time.UTC,
		time.FixedZone("UTC+10", 10*60*60),
		time.FixedZone("UTC-5", -5*60*60),
	}

	for _, loc := range zones {
		t.Run(loc.String(), func(t *testing.T) {
			created := time.Date(2024, 2, 8, 8, 0, 0, 0, loc)
			start := models.Day(created)

			got, err := CompletionRate([]models.HabitEntry{entry(t, "2024-02-08", true)}, start, DashboardWindowDays, created)
			if err != nil {
				t.Fatalf("CompletionRate() error = %v", err)
			}
			if got != 100 {
				t.Errorf("creation day rate = %d, want 100", got)
			}

			entries := []models.HabitEntry{
				entry(t, "2024-02-08", true),
				entry(t, "2024-02-10", true),
				entry(t, "2024-02-13", true),
			}
			got, err = CompletionRate(entries, start, DashboardWindowDays, created.AddDate(0, 0, 5))
			if err != nil {
				t.Fatalf("CompletionRate() error = %v", err)
			}
			// 3 completions over 6 started days.
			if got != 50 {
				t.Errorf("rate after five days = %d, want 50", got)
			}
		})
	}
}

func TestElapsedDays_LateEvening(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	start := models.Day(time.Date(2024, 2, 8, 8, 0, 0, 0, loc))
	now := time.Date(2024, 2, 8, 23, 30, 0, 0, loc)
	if got := ElapsedDays(start, now); got != 1 {
		t.Errorf("ElapsedDays() = %d, want 1", got)
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2024, 2, 13, 18, 0, 0, 0, time.UTC)
	habit := models.Habit{ID: "h1", UserID: 1, Title: "Read", StartDate: now.AddDate(0, 0, -10), IsActive: true}
	entries := []models.HabitEntry{
		entry(t, "2024-02-05", true),
		entry(t, "2024-02-12", true),
		entry(t, "2024-02-13", true),
		entry(t, "2024-02-10", false),
		entry(t, "2024-02-11", true),
	}

	got, err := Summarize(habit, entries, now, CoachWindowDays)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got.CurrentStreak != 3 {
		t.Errorf("CurrentStreak = %d, want 3", got.CurrentStreak)
	}
	if got.LongestStreak != 3 {
		t.Errorf("LongestStreak = %d, want 3", got.LongestStreak)
	}
	// 3 completions in the 7 day window, habit older than the window.
	if got.CompletionRate != 43 {
		t.Errorf("CompletionRate = %d, want 43", got.CompletionRate)
	}
	if got.CompletedInWindow != 3 {
		t.Errorf("CompletedInWindow = %d, want 3", got.CompletedInWindow)
	}
	wantOrder := []string{"2024-02-13", "2024-02-12", "2024-02-11", "2024-02-10"}
	if len(got.RecentEntries) != len(wantOrder) {
		t.Fatalf("len(RecentEntries) = %d, want %d", len(got.RecentEntries), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got.RecentEntries[i].Key() != want {
			t.Errorf("RecentEntries[%d] = %s, want %s", i, got.RecentEntries[i].Key(), want)
		}
	}

	again, err := Summarize(habit, entries, now, CoachWindowDays)
	if err != nil {
		t.Fatalf("second Summarize() error = %v", err)
	}
	if !reflect.DeepEqual(got, again) {
		t.Error("Summarize() is not idempotent")
	}
}

func TestSummarize_NoEntries(t *testing.T) {
	now := time.Date(2024, 2, 13, 18, 0, 0, 0, time.UTC)
	habit := models.Habit{ID: "h1", StartDate: now.AddDate(0, 0, -3)}

	got, err := Summarize(habit, nil, now, DashboardWindowDays)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got.CurrentStreak != 0 || got.CompletionRate != 0 || len(got.RecentEntries) != 0 {
		t.Errorf("Summarize() = %+v, want zero streak, rate and entries", got)
	}
}

func TestSummarizeAll_And_Dashboard(t *testing.T) {
	now := time.Date(2024, 2, 13, 18, 0, 0, 0, time.UTC)
	habits := []models.Habit{
		{ID: "h1", StartDate: now.AddDate(0, 0, -30)},
		{ID: "h2", StartDate: now.AddDate(0, 0, -30)},
		{ID: "h3", StartDate: now.AddDate(0, 0, -30)},
	}
	h2 := func(date string, done bool) models.HabitEntry {
		e := entry(t, date, done)
		e.HabitID = "h2"
		return e
	}
	byHabit := map[string][]models.HabitEntry{
		"h1": {entry(t, "2024-02-13", true), entry(t, "2024-02-12", true)},
		"h2": {h2("2024-02-13", true), h2("2024-02-12", true), h2("2024-02-11", true), h2("2024-02-10", true)},
		"h3": {entry(t, "2024-02-12", true)},
	}

	summaries, err := SummarizeAll(habits, byHabit, now, DashboardWindowDays)
	if err != nil {
		t.Fatalf("SummarizeAll() error = %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("len(summaries) = %d, want 3", len(summaries))
	}

	stats := Dashboard(summaries, now)
	want := DashboardStats{TotalHabits: 3, CompletedToday: 2, TodayRate: 67, TotalStreak: 6, BestStreak: 4}
	if stats != want {
		t.Errorf("Dashboard() = %+v, want %+v", stats, want)
	}

	if empty := Dashboard(nil, now); empty != (DashboardStats{}) {
		t.Errorf("Dashboard(nil) = %+v, want zero value", empty)
	}
}
