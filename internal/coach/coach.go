package coach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/habit-coach/internal/analytics"
	"github.com/xaenox/habit-coach/internal/models"
	"github.com/xaenox/habit-coach/internal/storage"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000

	// conversationListLimit caps Conversations.
	conversationListLimit = 10
)

// Config tunes the model call. A negative Temperature selects DefaultTemperature;
// zero is a valid, deterministic setting.
type Config struct {
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Coach runs one conversation turn at a time: it enriches the user's active habits,
// persists the user's turn, asks the model and appends the reply only on success.
// Concurrent turns on the same conversation are not serialized here.
type Coach struct {
	store  storage.Storage
	model  Model
	config Config
	now    func() time.Time
	logger *zap.Logger
}

func New(store storage.Storage, model Model, config Config, logger *zap.Logger) *Coach {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Temperature < 0 {
		config.Temperature = DefaultTemperature
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	return &Coach{
		store:  store,
		model:  model,
		config: config,
		now:    time.Now,
		logger: logger,
	}
}

// Reply carries the conversation the turn was stored in, even when the model failed.
type Reply struct {
	ConversationID string
	Content        string
}

func (c *Coach) Chat(ctx context.Context, userID int64, conversationID string, text string) (Reply, error) {
	if err := validateUserMessage(text); err != nil {
		return Reply{}, err
	}
	now := c.now()

	summaries, err := c.weeklySummaries(ctx, userID, now)
	if err != nil {
		return Reply{}, err
	}

	conv, err := c.conversation(ctx, userID, conversationID)
	if err != nil {
		return Reply{}, err
	}

	built, err := BuildContext(summaries, conv.Messages, text, now)
	if err != nil {
		return Reply{}, err
	}

	// The user's turn is kept regardless of what the model does next.
	if err := c.store.PersistMessages(ctx, conv.ID, built.UpdatedMessages); err != nil {
		return Reply{}, fmt.Errorf("failed to persist user message: %w", err)
	}
	reply := Reply{ConversationID: conv.ID}

	modelCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	content, err := c.model.Complete(modelCtx, ModelRequest{
		Messages:    built.PromptMessages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		if !errors.Is(err, ErrEmptyModelResponse) && !errors.Is(err, ErrModelUnavailable) {
			err = fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		c.logger.Warn("Coach turn failed, user message kept",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("conversation_id", conv.ID))
		return reply, err
	}

	history := append(built.UpdatedMessages, models.Message{
		Role:      models.RoleAssistant,
		Content:   content,
		Timestamp: c.now(),
	})
	if err := c.store.PersistMessages(ctx, conv.ID, history); err != nil {
		return reply, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	c.logger.Info("Coach turn completed",
		zap.Int64("user_id", userID),
		zap.String("conversation_id", conv.ID),
		zap.Int("history", len(history)),
		zap.Int("prompt_messages", len(built.PromptMessages)))

	reply.Content = content
	return reply, nil
}

// weeklySummaries aggregates every active habit over the coach window.
func (c *Coach) weeklySummaries(ctx context.Context, userID int64, now time.Time) ([]models.HabitSummary, error) {
	habits, err := c.store.ListActiveHabits(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load habits: %w", err)
	}

	since := models.Day(now).AddDate(0, 0, -(analytics.CoachWindowDays - 1))
	entries := make(map[string][]models.HabitEntry, len(habits))
	for _, h := range habits {
		found, err := c.store.FindEntriesForHabit(ctx, h.ID, since)
		if err != nil {
			return nil, fmt.Errorf("failed to load entries for habit %s: %w", h.ID, err)
		}
		entries[h.ID] = found
	}

	return analytics.SummarizeAll(habits, entries, now, analytics.CoachWindowDays)
}

// conversation returns the referenced conversation when the user owns it, else a new one.
func (c *Coach) conversation(ctx context.Context, userID int64, id string) (*models.Conversation, error) {
	if id != "" {
		conv, err := c.store.FindConversation(ctx, id, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
		if conv != nil {
			return conv, nil
		}
		c.logger.Info("Conversation not found for user, starting a new one",
			zap.Int64("user_id", userID),
			zap.String("conversation_id", id))
	}

	conv, err := c.store.CreateConversation(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (c *Coach) Conversation(ctx context.Context, userID int64, id string) (*models.Conversation, error) {
	conv, err := c.store.FindConversation(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}
	return conv, nil
}

func (c *Coach) Conversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	return c.store.ListConversations(ctx, userID, conversationListLimit)
}

// FallbackMessage is what the user sees when a turn produced no reply.
func FallbackMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyModelResponse):
		return "I couldn't come up with a reply this time. Please try asking again."
	case errors.Is(err, ErrModelUnavailable):
		return "Sorry, the coach is temporarily unavailable. Please try again later."
	case errors.Is(err, analytics.ErrInvalidInput):
		return fmt.Sprintf("Please send a non-empty message of at most %d characters.", MaxMessageLength)
	default:
		return "Something went wrong while talking to the coach."
	}
}
