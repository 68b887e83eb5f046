package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/habit-coach/internal/models"
)

// timestampLayout sorts lexicographically, which SQLite relies on for ORDER BY.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// SQLStorage implements Storage on database/sql for both PostgreSQL and SQLite.
// Queries are written with ? placeholders and rebound for PostgreSQL.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

func (s *SQLStorage) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStorage) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStorage) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStorage) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *SQLStorage) initializeSchema(schema string) error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// dbTime scans a timestamp stored natively (PostgreSQL) or as text (SQLite).
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (t *dbTime) parse(s string) error {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, models.DateLayout} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}

func (t dbTime) day() time.Time {
	return models.Day(t.Time)
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: models.DateKey(*t), Valid: true}
}

// Habit methods

const habitColumns = `id, user_id, title, description, frequency, tags, start_date, end_date, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHabit(row rowScanner) (models.Habit, error) {
	var h models.Habit
	var tags []byte
	var frequency string
	var startDate, endDate, createdAt, updatedAt dbTime

	err := row.Scan(&h.ID, &h.UserID, &h.Title, &h.Description, &frequency, &tags,
		&startDate, &endDate, &h.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return models.Habit{}, err
	}

	h.Frequency = models.Frequency(frequency)
	if err := json.Unmarshal(tags, &h.Tags); err != nil {
		return models.Habit{}, fmt.Errorf("failed to decode tags for habit %s: %w", h.ID, err)
	}
	h.StartDate = startDate.day()
	if endDate.Valid {
		d := endDate.day()
		h.EndDate = &d
	}
	h.CreatedAt = createdAt.Time
	h.UpdatedAt = updatedAt.Time
	return h, nil
}

func (s *SQLStorage) CreateHabit(ctx context.Context, habit *models.Habit) error {
	if habit.ID == "" {
		habit.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if habit.CreatedAt.IsZero() {
		habit.CreatedAt = now
	}
	habit.UpdatedAt = now
	if habit.Tags == nil {
		habit.Tags = []string{}
	}

	tags, err := json.Marshal(habit.Tags)
	if err != nil {
		return fmt.Errorf("error encoding tags: %w", err)
	}

	_, err = s.exec(ctx, `
		INSERT INTO habits (`+habitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		habit.ID, habit.UserID, habit.Title, habit.Description, string(habit.Frequency), string(tags),
		models.DateKey(habit.StartDate), nullDate(habit.EndDate), habit.IsActive,
		formatTime(habit.CreatedAt), formatTime(habit.UpdatedAt))
	if err != nil {
		return fmt.Errorf("error creating habit: %w", err)
	}
	return nil
}

func (s *SQLStorage) GetHabit(ctx context.Context, id string, userID int64) (*models.Habit, error) {
	row := s.queryRow(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = ? AND user_id = ?`, id, userID)
	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error querying habit: %w", err)
	}
	return &h, nil
}

func (s *SQLStorage) ListActiveHabits(ctx context.Context, userID int64) ([]models.Habit, error) {
	rows, err := s.query(ctx, `
		SELECT `+habitColumns+`
		FROM habits
		WHERE user_id = ? AND is_active = ?
		ORDER BY created_at DESC`, userID, true)
	if err != nil {
		return nil, fmt.Errorf("error querying habits: %w", err)
	}
	defer rows.Close()

	habits := []models.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning habit: %w", err)
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

func (s *SQLStorage) UpdateHabit(ctx context.Context, habit *models.Habit) error {
	habit.UpdatedAt = time.Now().UTC()
	tags, err := json.Marshal(habit.Tags)
	if err != nil {
		return fmt.Errorf("error encoding tags: %w", err)
	}

	result, err := s.exec(ctx, `
		UPDATE habits
		SET title = ?, description = ?, frequency = ?, tags = ?, end_date = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		habit.Title, habit.Description, string(habit.Frequency), string(tags),
		nullDate(habit.EndDate), habit.IsActive, formatTime(habit.UpdatedAt),
		habit.ID, habit.UserID)
	if err != nil {
		return fmt.Errorf("error updating habit: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("habit %s: %w", habit.ID, ErrNotFound)
	}
	return nil
}

// Entry methods

func (s *SQLStorage) FindEntriesForHabit(ctx context.Context, habitID string, since time.Time) ([]models.HabitEntry, error) {
	rows, err := s.query(ctx, `
		SELECT id, habit_id, user_id, date, completed, notes, created_at, updated_at
		FROM habit_entries
		WHERE habit_id = ? AND date >= ?
		ORDER BY date DESC`, habitID, models.DateKey(models.Day(since)))
	if err != nil {
		return nil, fmt.Errorf("error querying entries: %w", err)
	}
	defer rows.Close()

	entries := []models.HabitEntry{}
	for rows.Next() {
		var e models.HabitEntry
		var date, createdAt, updatedAt dbTime
		var notes sql.NullString

		if err := rows.Scan(&e.ID, &e.HabitID, &e.UserID, &date, &e.Completed, &notes, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("error scanning entry: %w", err)
		}
		e.Date = date.day()
		if notes.Valid {
			n := notes.String
			e.Notes = &n
		}
		e.CreatedAt = createdAt.Time
		e.UpdatedAt = updatedAt.Time
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLStorage) UpsertEntry(ctx context.Context, entry *models.HabitEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	entry.Date = models.Day(entry.Date)
	now := time.Now().UTC()
	var notes sql.NullString
	if entry.Notes != nil {
		notes = sql.NullString{String: *entry.Notes, Valid: true}
	}

	var createdAt dbTime
	err := s.queryRow(ctx, `
		INSERT INTO habit_entries (id, habit_id, user_id, date, completed, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (habit_id, user_id, date) DO UPDATE SET
			completed = excluded.completed,
			notes = excluded.notes,
			updated_at = excluded.updated_at
		RETURNING id, created_at`,
		uuid.New().String(), entry.HabitID, entry.UserID, entry.Key(), entry.Completed, notes,
		formatTime(now), formatTime(now),
	).Scan(&entry.ID, &createdAt)
	if err != nil {
		return fmt.Errorf("error upserting entry: %w", err)
	}

	entry.CreatedAt = createdAt.Time
	entry.UpdatedAt = now
	return nil
}

// Conversation methods

func decodeMessages(raw []byte) ([]models.Message, error) {
	messages := []models.Message{}
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("error decoding messages: %w", err)
	}
	if err := validateMessages(messages); err != nil {
		return nil, fmt.Errorf("stored history is malformed: %w", err)
	}
	return messages, nil
}

func scanConversation(row rowScanner) (models.Conversation, error) {
	var c models.Conversation
	var raw []byte
	var createdAt, updatedAt dbTime

	if err := row.Scan(&c.ID, &c.UserID, &raw, &createdAt, &updatedAt); err != nil {
		return models.Conversation{}, err
	}
	messages, err := decodeMessages(raw)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("conversation %s: %w", c.ID, err)
	}
	c.Messages = messages
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time
	return c, nil
}

func (s *SQLStorage) FindConversation(ctx context.Context, id string, userID int64) (*models.Conversation, error) {
	row := s.queryRow(ctx, `
		SELECT id, user_id, messages, created_at, updated_at
		FROM conversations WHERE id = ? AND user_id = ?`, id, userID)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying conversation: %w", err)
	}
	return &c, nil
}

func (s *SQLStorage) CreateConversation(ctx context.Context, userID int64) (*models.Conversation, error) {
	now := time.Now().UTC()
	c := &models.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.exec(ctx, `
		INSERT INTO conversations (id, user_id, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, "[]", formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("error creating conversation: %w", err)
	}
	return c, nil
}

func (s *SQLStorage) PersistMessages(ctx context.Context, conversationID string, messages []models.Message) error {
	if err := validateMessages(messages); err != nil {
		return err
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("error encoding messages: %w", err)
	}

	result, err := s.exec(ctx, `
		UPDATE conversations SET messages = ?, updated_at = ? WHERE id = ?`,
		string(raw), formatTime(time.Now()), conversationID)
	if err != nil {
		return fmt.Errorf("error persisting messages: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	s.logger.Debug("Persisted conversation history",
		zap.String("conversation_id", conversationID),
		zap.Int("messages", len(messages)))
	return nil
}

func (s *SQLStorage) ListConversations(ctx context.Context, userID int64, limit int) ([]models.Conversation, error) {
	query := `
		SELECT id, user_id, messages, created_at, updated_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}
