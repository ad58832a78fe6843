// Package connector links chat platforms to assistant sessions.
package connector

import "context"

// Sender delivers outbound messages to one platform.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// Connector is the interface for chat platforms (Telegram, Slack).
type Connector interface {
	Sender
	// Name returns the connector type, which is also the session channel.
	Name() string
	// Start begins listening for inbound messages. Blocks until context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
}

// OutboundMessage is a message sent to a chat.
type OutboundMessage struct {
	ChatID  string // Platform-specific chat identifier
	Content string // Message text (Markdown)
}

// InboundMessage is a message received from a chat.
type InboundMessage struct {
	Channel  string // Connector name (e.g., "telegram")
	SenderID string // Platform-specific sender identifier
	ChatID   string // Platform-specific chat identifier
	Content  string // Message text
}

// InboundHandler processes messages received from chat platforms.
type InboundHandler func(ctx context.Context, msg InboundMessage) error
