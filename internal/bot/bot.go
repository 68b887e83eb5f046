package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/habit-coach/internal/coach"
	"github.com/xaenox/habit-coach/internal/models"
	"github.com/xaenox/habit-coach/internal/storage"
	"github.com/xaenox/habit-coach/internal/tracker"
)

type Bot struct {
	api     *tgbotapi.BotAPI
	tracker *tracker.Tracker
	coach   *coach.Coach
	logger  *zap.Logger

	mu sync.Mutex
	// conversations maps a Telegram user to the coach conversation in progress.
	conversations map[int64]string
}

func New(token string, tr *tracker.Tracker, c *coach.Coach, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:           api,
		tracker:       tr,
		coach:         c,
		logger:        logger,
		conversations: make(map[int64]string),
	}, nil
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	b.handleChat(ctx, message, content)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "habits":
		b.handleHabits(ctx, message)
	case "add":
		b.handleAdd(ctx, message)
	case "done":
		b.handleMark(ctx, message, true)
	case "undo":
		b.handleMark(ctx, message, false)
	case "log":
		b.handleLog(ctx, message)
	case "delete":
		b.handleDelete(ctx, message)
	case "stats":
		b.handleStats(ctx, message)
	case "history":
		b.handleHistory(ctx, message)
	case "newchat":
		b.handleNewChat(message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to Habit Coach! 🌱
I track your daily habits and coach you based on how your week is going.

Add a habit with /add, mark it with /done, and just write to me whenever you want advice.
Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/habits - List your habits with streaks
/add Title | description - Add a habit
/done N [YYYY-MM-DD] - Mark habit N as done (today by default)
/undo N [YYYY-MM-DD] - Mark habit N as not done
/log N [days] - Show habit N's recent days (30 by default)
/delete N - Remove habit N
/stats - Today's progress
/history - Recent coach conversations
/newchat - Start a fresh conversation with the coach

Any other message goes to your coach.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleHabits(ctx context.Context, message *tgbotapi.Message) {
	summaries, err := b.tracker.Summaries(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to get habit summaries",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't load your habits. Please try again later.")
		return
	}

	b.sendMarkdown(message.Chat.ID, formatHabits(summaries, models.DateKey(models.Day(time.Now()))))
}

func (b *Bot) handleAdd(ctx context.Context, message *tgbotapi.Message) {
	title, description, tags := parseAddArgs(message.CommandArguments())
	habit, err := b.tracker.CreateHabit(ctx, message.From.ID, tracker.NewHabit{
		Title:       title,
		Description: description,
		Tags:        tags,
	})
	if errors.Is(err, tracker.ErrInvalidInput) {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("Usage: /add Title | description (title up to %d characters)", tracker.MaxTitleLength))
		return
	}
	if err != nil {
		b.logger.Error("Failed to create habit",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't save your habit. Please try again.")
		return
	}

	b.sendMarkdown(message.Chat.ID, fmt.Sprintf("Added *%s*\\. Mark it with /done when you've done it today\\.", escapeMarkdown(habit.Title)))
}

// habitAt resolves the 1-based position used by /habits.
func (b *Bot) habitAt(ctx context.Context, message *tgbotapi.Message, index int) (models.Habit, bool) {
	summaries, err := b.tracker.Summaries(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to get habit summaries",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't load your habits. Please try again later.")
		return models.Habit{}, false
	}
	habit, ok := pickHabit(summaries, index)
	if !ok {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("There is no habit number %d. Use /habits to see the list.", index))
	}
	return habit, ok
}

func (b *Bot) handleMark(ctx context.Context, message *tgbotapi.Message, completed bool) {
	index, date, err := parseDayArgs(message.CommandArguments())
	if err != nil {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("%s. Usage: /%s N [YYYY-MM-DD]", err, message.Command()))
		return
	}
	if date == "" {
		date = models.DateKey(models.Day(time.Now()))
	}

	habit, ok := b.habitAt(ctx, message, index)
	if !ok {
		return
	}

	_, err = b.tracker.MarkEntry(ctx, message.From.ID, habit.ID, date, completed, nil)
	if errors.Is(err, storage.ErrNotFound) {
		b.sendMessage(message.Chat.ID, "That habit no longer exists. Use /habits to see the list.")
		return
	}
	if err != nil {
		b.logger.Error("Failed to save habit entry",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID),
			zap.String("habit_id", habit.ID),
			zap.String("date", date))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't update your habit. Please try again.")
		return
	}

	verb := "done ✅"
	if !completed {
		verb = "not done"
	}
	b.sendMarkdown(message.Chat.ID, fmt.Sprintf("*%s* marked as %s for %s",
		escapeMarkdown(habit.Title), escapeMarkdown(verb), escapeMarkdown(date)))
}

func (b *Bot) handleLog(ctx context.Context, message *tgbotapi.Message) {
	index, days, err := parseLogArgs(message.CommandArguments())
	if err != nil {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("%s. Usage: /log N [days]", err))
		return
	}

	habit, ok := b.habitAt(ctx, message, index)
	if !ok {
		return
	}

	entries, err := b.tracker.Entries(ctx, message.From.ID, habit.ID, days)
	if err != nil {
		b.logger.Error("Failed to get habit entries",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID),
			zap.String("habit_id", habit.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't load the history of this habit.")
		return
	}

	b.sendMarkdown(message.Chat.ID, formatEntries(habit.Title, entries))
}

func (b *Bot) handleDelete(ctx context.Context, message *tgbotapi.Message) {
	index, date, err := parseDayArgs(message.CommandArguments())
	if err != nil || date != "" {
		b.sendMessage(message.Chat.ID, "Usage: /delete N")
		return
	}

	habit, ok := b.habitAt(ctx, message, index)
	if !ok {
		return
	}

	if err := b.tracker.DeleteHabit(ctx, message.From.ID, habit.ID); err != nil {
		b.logger.Error("Failed to delete habit",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID),
			zap.String("habit_id", habit.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't delete your habit. Please try again.")
		return
	}

	b.sendMarkdown(message.Chat.ID, fmt.Sprintf("Removed *%s*\\.", escapeMarkdown(habit.Title)))
}

func (b *Bot) handleStats(ctx context.Context, message *tgbotapi.Message) {
	stats, err := b.tracker.Dashboard(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to get dashboard stats",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't load your stats. Please try again later.")
		return
	}

	b.sendMarkdown(message.Chat.ID, formatStats(stats))
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	conversations, err := b.coach.Conversations(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to get conversations",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your conversation history.")
		return
	}

	b.sendMarkdown(message.Chat.ID, formatHistory(conversations))
}

func (b *Bot) handleNewChat(message *tgbotapi.Message) {
	b.setConversation(message.From.ID, "")
	b.sendMessage(message.Chat.ID, "Starting a fresh conversation. What's on your mind?")
}

func (b *Bot) handleChat(ctx context.Context, message *tgbotapi.Message, content string) {
	userID := message.From.ID
	if strings.TrimSpace(content) == "" {
		b.sendMessage(message.Chat.ID, "I can only read text messages for now.")
		return
	}

	b.sendTyping(message.Chat.ID)

	reply, err := b.coach.Chat(ctx, userID, b.conversation(userID), content)
	if reply.ConversationID != "" {
		b.setConversation(userID, reply.ConversationID)
	}
	if err != nil {
		if !errors.Is(err, coach.ErrModelUnavailable) && !errors.Is(err, coach.ErrEmptyModelResponse) &&
			!errors.Is(err, tracker.ErrInvalidInput) {
			b.logger.Error("Coach turn failed",
				zap.Error(err),
				zap.Int64("user_id", userID))
		}
		b.sendErrorMessage(message.Chat.ID, coach.FallbackMessage(err))
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, reply.Content)
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send coach reply",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) conversation(userID int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) setConversation(userID int64, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id == "" {
		delete(b.conversations, userID)
		return
	}
	b.conversations[userID] = id
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

// sendMarkdown expects text that is already MarkdownV2-escaped.
func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendTyping(chatID int64) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("Failed to send typing action", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
