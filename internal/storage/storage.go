package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/habit-coach/internal/models"
)

var ErrNotFound = errors.New("not found")

type Storage interface {
	HabitStore
	EntryStore
	ConversationStore
	Close() error
}

type HabitStore interface {
	CreateHabit(ctx context.Context, habit *models.Habit) error
	// GetHabit returns ErrNotFound when the habit does not exist or belongs to another user.
	GetHabit(ctx context.Context, id string, userID int64) (*models.Habit, error)
	// ListActiveHabits returns the user's active habits, newest first.
	ListActiveHabits(ctx context.Context, userID int64) ([]models.Habit, error)
	UpdateHabit(ctx context.Context, habit *models.Habit) error
}

// EntryStore enforces one entry per (habit, user, calendar day).
type EntryStore interface {
	// FindEntriesForHabit returns entries dated on or after since, newest first.
	FindEntriesForHabit(ctx context.Context, habitID string, since time.Time) ([]models.HabitEntry, error)
	// UpsertEntry updates the entry for (HabitID, UserID, Date) if it exists, else inserts it.
	// ID and CreatedAt are filled from the stored row.
	UpsertEntry(ctx context.Context, entry *models.HabitEntry) error
}

type ConversationStore interface {
	// FindConversation returns nil without error when the conversation is missing or foreign.
	FindConversation(ctx context.Context, id string, userID int64) (*models.Conversation, error)
	CreateConversation(ctx context.Context, userID int64) (*models.Conversation, error)
	// PersistMessages replaces the stored history of a conversation.
	PersistMessages(ctx context.Context, conversationID string, messages []models.Message) error
	// ListConversations returns the most recently updated conversations first.
	ListConversations(ctx context.Context, userID int64, limit int) ([]models.Conversation, error)
}

// validateMessages guards the storage boundary in both directions.
func validateMessages(messages []models.Message) error {
	for i, m := range messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}
