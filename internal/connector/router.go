package connector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/ebrain-io/ebrain/internal/session"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

// HelpText answers /help and /start.
const HelpText = `I answer questions about Redmine issues and ServiceNow records, and can create or update them for you.

Commands:
/new - Start a new conversation
/help - Show this help message

Just send me a message, for example "open P1 incidents assigned to the network team".`

const busyText = "I'm still working on your previous message. Please wait for the answer."

// Chats is what the router needs from the session service.
type Chats interface {
	SendChat(ctx context.Context, channel, chatID, content string) (protocol.Reply, error)
	Reset(ctx context.Context, channel, chatID string) (*session.Session, error)
}

// Router turns inbound chat messages into session messages and delivers
// the replies through the connector they came from.
type Router struct {
	chats  Chats
	logger *slog.Logger

	mu      sync.RWMutex
	senders map[string]Sender
}

// NewRouter creates a Router. A nil logger uses slog.Default.
func NewRouter(chats Chats, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{chats: chats, logger: logger, senders: make(map[string]Sender)}
}

// Attach registers the sender for a channel.
func (r *Router) Attach(channel string, s Sender) {
	r.mu.Lock()
	r.senders[channel] = s
	r.mu.Unlock()
}

// Deliver posts content to a chat on channel.
func (r *Router) Deliver(ctx context.Context, channel, chatID, content string) error {
	r.mu.RLock()
	s, ok := r.senders[channel]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connector: no sender for channel %q", channel)
	}
	return s.Send(ctx, OutboundMessage{ChatID: chatID, Content: content})
}

// Handle is the InboundHandler for every connector.
func (r *Router) Handle(ctx context.Context, msg InboundMessage) error {
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return nil
	}
	log := r.logger.With("channel", msg.Channel, "chat_id", msg.ChatID, "sender", msg.SenderID)

	if cmd, ok := command(text); ok {
		switch cmd {
		case "new":
			if _, err := r.chats.Reset(ctx, msg.Channel, msg.ChatID); err != nil {
				return fmt.Errorf("connector: reset session: %w", err)
			}
			log.Info("session reset")
			return r.Deliver(ctx, msg.Channel, msg.ChatID, "Started a new conversation.")
		case "start", "help":
			return r.Deliver(ctx, msg.Channel, msg.ChatID, HelpText)
		}
		// Unknown commands go to the assistant as text.
	}

	reply, err := r.chats.SendChat(ctx, msg.Channel, msg.ChatID, text)
	switch {
	case apperr.Is(err, apperr.CodeBusy):
		return r.Deliver(ctx, msg.Channel, msg.ChatID, busyText)
	case err != nil:
		return fmt.Errorf("connector: send to session: %w", err)
	}

	if reply.Failed() {
		log.Warn("assistant reply failed", "error", reply.Error)
		return r.Deliver(ctx, msg.Channel, msg.ChatID, "Error: "+reply.Error)
	}
	return r.Deliver(ctx, msg.Channel, msg.ChatID, reply.Text)
}

// command extracts the name from "/name args" or "/name@bot".
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name, _, _ := strings.Cut(text[1:], " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), name != ""
}
