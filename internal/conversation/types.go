// Package conversation persists conversations, their turns and running
// summaries in SQLite.
package conversation

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrNotOwner is returned when turns are appended to a conversation
	// that belongs to another user.
	ErrNotOwner = errors.New("conversation belongs to another user")
)

// Role of a turn's author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Conversation is one chat thread owned by a user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is one message of a conversation. Seq starts at 1 and is dense.
type Turn struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Seq            int            `json:"seq"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Summary condenses the first Covered turns of a conversation.
type Summary struct {
	Text      string    `json:"summary"`
	Covered   int       `json:"covered"`
	UpdatedAt time.Time `json:"updated_at"`
}

const titleMaxChars = 50

// Title derives a conversation title from its first user message.
func Title(firstMessage string) string {
	s := strings.Join(strings.Fields(firstMessage), " ")
	r := []rune(s)
	if len(r) <= titleMaxChars {
		return s
	}
	return string(r[:titleMaxChars]) + "..."
}
