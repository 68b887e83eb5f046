package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/habit-coach/internal/models"
)

type entryKey struct {
	habitID string
	userID  int64
	date    string
}

type MemoryStorage struct {
	mu            sync.RWMutex
	habits        map[string]*models.Habit
	entries       map[entryKey]*models.HabitEntry
	conversations map[string]*models.Conversation
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		habits:        make(map[string]*models.Habit),
		entries:       make(map[entryKey]*models.HabitEntry),
		conversations: make(map[string]*models.Conversation),
	}
}

func copyHabit(h *models.Habit) models.Habit {
	c := *h
	c.Tags = slices.Clone(h.Tags)
	return c
}

func copyConversation(c *models.Conversation) models.Conversation {
	out := *c
	out.Messages = slices.Clone(c.Messages)
	return out
}

// Habit methods
func (s *MemoryStorage) CreateHabit(ctx context.Context, habit *models.Habit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if habit.ID == "" {
		habit.ID = uuid.New().String()
	}
	now := time.Now()
	if habit.CreatedAt.IsZero() {
		habit.CreatedAt = now
	}
	habit.UpdatedAt = now

	stored := copyHabit(habit)
	s.habits[habit.ID] = &stored
	return nil
}

func (s *MemoryStorage) GetHabit(ctx context.Context, id string, userID int64) (*models.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.habits[id]
	if !exists || h.UserID != userID {
		return nil, fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}
	c := copyHabit(h)
	return &c, nil
}

func (s *MemoryStorage) ListActiveHabits(ctx context.Context, userID int64) ([]models.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	habits := []models.Habit{}
	for _, h := range s.habits {
		if h.UserID == userID && h.IsActive {
			habits = append(habits, copyHabit(h))
		}
	}
	sort.Slice(habits, func(i, j int) bool { return habits[i].CreatedAt.After(habits[j].CreatedAt) })
	return habits, nil
}

func (s *MemoryStorage) UpdateHabit(ctx context.Context, habit *models.Habit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.habits[habit.ID]
	if !exists || existing.UserID != habit.UserID {
		return fmt.Errorf("habit %s: %w", habit.ID, ErrNotFound)
	}
	habit.CreatedAt = existing.CreatedAt
	habit.UpdatedAt = time.Now()

	stored := copyHabit(habit)
	s.habits[habit.ID] = &stored
	return nil
}

// Entry methods
func (s *MemoryStorage) FindEntriesForHabit(ctx context.Context, habitID string, since time.Time) ([]models.HabitEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := models.Day(since)
	entries := []models.HabitEntry{}
	for key, e := range s.entries {
		if key.habitID == habitID && !e.Date.Before(from) {
			entries = append(entries, *e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Date.After(entries[j].Date) })
	return entries, nil
}

func (s *MemoryStorage) UpsertEntry(ctx context.Context, entry *models.HabitEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Date = models.Day(entry.Date)
	key := entryKey{habitID: entry.HabitID, userID: entry.UserID, date: entry.Key()}
	now := time.Now()

	if existing, exists := s.entries[key]; exists {
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	} else {
		entry.ID = uuid.New().String()
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	stored := *entry
	s.entries[key] = &stored
	return nil
}

// Conversation methods
func (s *MemoryStorage) FindConversation(ctx context.Context, id string, userID int64) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.conversations[id]
	if !exists || c.UserID != userID {
		return nil, nil
	}
	out := copyConversation(c)
	return &out, nil
}

func (s *MemoryStorage) CreateConversation(ctx context.Context, userID int64) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	c := &models.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[c.ID] = c

	out := copyConversation(c)
	return &out, nil
}

func (s *MemoryStorage) PersistMessages(ctx context.Context, conversationID string, messages []models.Message) error {
	if err := validateMessages(messages); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.conversations[conversationID]
	if !exists {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	c.Messages = slices.Clone(messages)
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) ListConversations(ctx context.Context, userID int64, limit int) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversations := []models.Conversation{}
	for _, c := range s.conversations {
		if c.UserID == userID {
			conversations = append(conversations, copyConversation(c))
		}
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})
	if limit > 0 && len(conversations) > limit {
		conversations = conversations[:limit]
	}
	return conversations, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
