package coach

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xaenox/habit-coach/internal/analytics"
	"github.com/xaenox/habit-coach/internal/models"
)

const (
	// HistoryWindow is how many trailing turns are sent to the model, not counting the system message.
	HistoryWindow = 10
	// MaxMessageLength bounds a single user message, in runes.
	MaxMessageLength = 1000
)

// Context is the result of assembling one coach turn.
type Context struct {
	// PromptMessages is the system message followed by at most HistoryWindow turns.
	PromptMessages []models.PromptMessage
	// UpdatedMessages is the full history including the new user turn, for persistence.
	UpdatedMessages []models.Message
}

func validateUserMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty message", analytics.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(text); n > MaxMessageLength {
		return fmt.Errorf("%w: message is %d characters, limit is %d", analytics.ErrInvalidInput, n, MaxMessageLength)
	}
	return nil
}

// activeThisWeek keeps habits that carry some personalization signal.
func activeThisWeek(summaries []models.HabitSummary) []models.HabitSummary {
	active := make([]models.HabitSummary, 0, len(summaries))
	for _, s := range summaries {
		if s.CompletionRate > 0 || s.CompletedInWindow > 0 {
			active = append(active, s)
		}
	}
	return active
}

// BuildContext assembles the model prompt for a new user message. Truncation only
// shapes the prompt; UpdatedMessages keeps the whole history.
func BuildContext(summaries []models.HabitSummary, prior []models.Message, text string, now time.Time) (Context, error) {
	if err := validateUserMessage(text); err != nil {
		return Context{}, err
	}

	system, err := renderSystemPrompt(activeThisWeek(summaries))
	if err != nil {
		return Context{}, err
	}

	history := make([]models.Message, 0, len(prior)+1)
	history = append(history, prior...)
	history = append(history, models.Message{
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: now,
	})

	window := history[max(0, len(history)-HistoryWindow):]
	prompt := make([]models.PromptMessage, 0, len(window)+1)
	prompt = append(prompt, models.PromptMessage{Role: models.RoleSystem, Content: system})
	for _, m := range window {
		prompt = append(prompt, models.PromptMessage{Role: m.Role, Content: m.Content})
	}

	return Context{PromptMessages: prompt, UpdatedMessages: history}, nil
}
