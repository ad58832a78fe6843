// Package session persists conversations and serializes the messages sent
// into each of them.
package session

import (
	"context"
	"time"

	"github.com/ebrain-io/ebrain/pkg/protocol"
)

// Session is one conversation with the assistant.
type Session struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Channel   string          `json:"channel,omitempty"`
	ChatID    string          `json:"chat_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Turns     []protocol.Turn `json:"turns,omitempty"`
}

// Store is the persistence interface for sessions and their turns.
type Store interface {
	// Save creates or updates a session row. Turns are not written.
	Save(ctx context.Context, s *Session) error
	// Get retrieves a session by ID, including its turns in order.
	Get(ctx context.Context, id string) (*Session, error)
	// List returns sessions matching the filter, most recently updated first.
	// Turns are not loaded.
	List(ctx context.Context, filter Filter) ([]*Session, error)
	// Latest returns the most recently updated session bound to a chat.
	Latest(ctx context.Context, channel, chatID string) (*Session, error)
	// AppendTurns adds turns to the end of a session and bumps UpdatedAt.
	AppendTurns(ctx context.Context, id string, turns ...protocol.Turn) error
	// Delete removes a session and its turns.
	Delete(ctx context.Context, id string) error
	Close() error
}

// Filter constrains session list queries.
type Filter struct {
	Channel string
	ChatID  string
	Limit   int // 0 = no limit
}
