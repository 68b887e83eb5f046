package coach

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/xaenox/habit-coach/internal/analytics"
	"github.com/xaenox/habit-coach/internal/models"
)

var testNow = time.Date(2024, 2, 13, 12, 0, 0, 0, time.UTC)

func priorTurns(n int) []models.Message {
	messages := make([]models.Message, 0, n)
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		messages = append(messages, models.Message{
			Role:      role,
			Content:   fmt.Sprintf("turn %d", i),
			Timestamp: testNow.Add(time.Duration(i-n) * time.Minute),
		})
	}
	return messages
}

func TestBuildContext_TruncatesPromptButNotHistory(t *testing.T) {
	// 10 stored turns plus the new one.
	got, err := BuildContext(nil, priorTurns(10), "eleventh", testNow)
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}

	if len(got.UpdatedMessages) != 11 {
		t.Errorf("len(UpdatedMessages) = %d, want 11", len(got.UpdatedMessages))
	}
	if len(got.PromptMessages) != 11 {
		t.Fatalf("len(PromptMessages) = %d, want 11 (system + 10)", len(got.PromptMessages))
	}
	if got.PromptMessages[0].Role != models.RoleSystem {
		t.Errorf("PromptMessages[0].Role = %q, want system", got.PromptMessages[0].Role)
	}
	if got.PromptMessages[1].Content != "turn 1" {
		t.Errorf("oldest prompt turn = %q, want %q", got.PromptMessages[1].Content, "turn 1")
	}
	last := got.PromptMessages[len(got.PromptMessages)-1]
	if last.Role != models.RoleUser || last.Content != "eleventh" {
		t.Errorf("last prompt turn = %+v, want the new user message", last)
	}

	newTurn := got.UpdatedMessages[10]
	if newTurn.Role != models.RoleUser || !newTurn.Timestamp.Equal(testNow) {
		t.Errorf("new turn = %+v, want user turn stamped with now", newTurn)
	}
}

func TestBuildContext_ShortHistory(t *testing.T) {
	got, err := BuildContext(nil, priorTurns(2), "hello", testNow)
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	if len(got.PromptMessages) != 4 || len(got.UpdatedMessages) != 3 {
		t.Errorf("prompt = %d, history = %d, want 4 and 3", len(got.PromptMessages), len(got.UpdatedMessages))
	}
}

func TestBuildContext_DoesNotMutatePrior(t *testing.T) {
	prior := priorTurns(3)[:2]
	if _, err := BuildContext(nil, prior, "hello", testNow); err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	if len(prior) != 2 || prior[1].Content != "turn 1" {
		t.Errorf("prior history was modified: %+v", prior)
	}
}

func TestBuildContext_FiltersInactiveHabits(t *testing.T) {
	summaries := []models.HabitSummary{
		{Habit: models.Habit{Title: "Morning run", Frequency: models.FrequencyDaily}, CompletionRate: 43, CompletedInWindow: 3, CurrentStreak: 2},
		{Habit: models.Habit{Title: "Journal", Frequency: models.FrequencyWeekly}, CompletionRate: 0, CompletedInWindow: 0},
	}

	got, err := BuildContext(summaries, nil, "how am I doing?", testNow)
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}

	system := got.PromptMessages[0].Content
	if !strings.Contains(system, `"name": "Morning run"`) {
		t.Errorf("system prompt is missing the active habit:\n%s", system)
	}
	if !strings.Contains(system, `"weeklyCompletionRate": 43`) || !strings.Contains(system, `"completedDaysThisWeek": 3`) {
		t.Errorf("system prompt is missing habit stats:\n%s", system)
	}
	if strings.Contains(system, "Journal") {
		t.Errorf("system prompt should not mention the inactive habit:\n%s", system)
	}
	if strings.Contains(system, NoActiveHabitsMarker) {
		t.Errorf("system prompt should not carry the empty marker:\n%s", system)
	}
}

func TestBuildContext_NoActiveHabitsMarker(t *testing.T) {
	summaries := []models.HabitSummary{{Habit: models.Habit{Title: "Journal"}}}

	got, err := BuildContext(summaries, nil, "hi", testNow)
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	if !strings.Contains(got.PromptMessages[0].Content, NoActiveHabitsMarker) {
		t.Errorf("expected %q in system prompt:\n%s", NoActiveHabitsMarker, got.PromptMessages[0].Content)
	}
}

func TestBuildContext_InvalidMessage(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "whitespace", text: "  \n\t"},
		{name: "too long", text: strings.Repeat("я", MaxMessageLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildContext(nil, nil, tt.text, testNow)
			if !errors.Is(err, analytics.ErrInvalidInput) {
				t.Errorf("BuildContext() error = %v, want ErrInvalidInput", err)
			}
		})
	}

	if _, err := BuildContext(nil, nil, strings.Repeat("я", MaxMessageLength), testNow); err != nil {
		t.Errorf("message at the limit should be accepted: %v", err)
	}
}
