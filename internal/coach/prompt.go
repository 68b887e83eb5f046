package coach

import (
	"encoding/json"
	"fmt"

	"github.com/xaenox/habit-coach/internal/models"
)

// NoActiveHabitsMarker replaces the habit list when no habit had activity this week.
const NoActiveHabitsMarker = "no active habits yet"

const systemPromptTemplate = `You are a personal habit-building coach. Your job is to motivate the user, give useful advice and help them reach their goals.

User context:
- Active habits: %s

Rules:
1. Reply in the language the user writes in
2. Be motivating and supportive
3. Give concrete, practical advice
4. Use the user's habit data to personalize your answers
5. If the user has no habits yet, suggest starting small
6. Celebrate progress, even small progress
7. Suggest evidence-based habit-building techniques`

// contextHabit is the shape each habit takes inside the system prompt.
type contextHabit struct {
	Name                  string           `json:"name"`
	Description           string           `json:"description,omitempty"`
	Frequency             models.Frequency `json:"frequency"`
	WeeklyCompletionRate  int              `json:"weeklyCompletionRate"`
	CompletedDaysThisWeek int              `json:"completedDaysThisWeek"`
	CurrentStreak         int              `json:"currentStreak"`
}

func renderSystemPrompt(summaries []models.HabitSummary) (string, error) {
	if len(summaries) == 0 {
		return fmt.Sprintf(systemPromptTemplate, NoActiveHabitsMarker), nil
	}

	habits := make([]contextHabit, 0, len(summaries))
	for _, s := range summaries {
		habits = append(habits, contextHabit{
			Name:                  s.Habit.Title,
			Description:           s.Habit.Description,
			Frequency:             s.Habit.Frequency,
			WeeklyCompletionRate:  s.CompletionRate,
			CompletedDaysThisWeek: s.CompletedInWindow,
			CurrentStreak:         s.CurrentStreak,
		})
	}

	data, err := json.MarshalIndent(habits, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode habit context: %w", err)
	}
	return fmt.Sprintf(systemPromptTemplate, data), nil
}
