package models

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single stored conversation turn. Only user and assistant turns are stored.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (m Message) Validate() error {
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return fmt.Errorf("invalid message role %q", m.Role)
	}
	if m.Content == "" {
		return fmt.Errorf("empty %s message", m.Role)
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("%s message has no timestamp", m.Role)
	}
	return nil
}

// Conversation represents an AI coach conversation owned by one user
type Conversation struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PromptMessage is one turn sent to the language model.
type PromptMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
