package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

const titleLimit = 60

// Asker answers a conversation. *agent.Boundary implements it.
type Asker interface {
	Ask(ctx context.Context, turns []protocol.Turn) protocol.Reply
}

// Service sends user messages into sessions. A session accepts one message
// at a time; a second message while the first is being answered fails with
// a busy error.
type Service struct {
	store  Store
	asker  Asker
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	busy map[string]struct{}
}

// NewService creates a Service. A nil logger uses slog.Default.
func NewService(store Store, asker Asker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		asker:  asker,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		busy:   make(map[string]struct{}),
	}
}

// Create starts an empty session, optionally bound to a connector chat.
func (s *Service) Create(ctx context.Context, title, channel, chatID string) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		Title:     title,
		Channel:   channel,
		ChatID:    chatID,
		CreatedAt: now,
		UpdatedAt: now,
		Turns:     []protocol.Turn{},
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("session created", "session", sess.ID, "channel", channel, "chat_id", chatID)
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]*Session, error) {
	return s.store.List(ctx, filter)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Send appends content as a user turn, asks the assistant with the whole
// conversation and records the reply. The returned error covers only
// session problems (not found, busy, storage); assistant failures come back
// in the Reply and are stored as error turns.
func (s *Service) Send(ctx context.Context, id, content string) (protocol.Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return protocol.Reply{}, apperr.InvalidInput([]string{"content"}, "message is empty")
	}
	if !s.acquire(id) {
		return protocol.Reply{}, apperr.Busy(fmt.Sprintf("session %s is still answering the previous message", id))
	}
	defer s.release(id)

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return protocol.Reply{}, err
	}

	user := protocol.Turn{Role: protocol.RoleUser, Content: content, CreatedAt: s.now()}
	start := time.Now()
	reply := s.asker.Ask(ctx, append(sess.Turns, user))
	s.logger.Info("session reply",
		"session", id,
		"turns", len(sess.Turns)+1,
		"failed", reply.Failed(),
		"duration", time.Since(start),
	)

	if err := s.store.AppendTurns(ctx, id, user, reply.Turn()); err != nil {
		return reply, err
	}
	if sess.Title == "" {
		sess.Title = titleFrom(content)
		sess.UpdatedAt = s.now()
		if err := s.store.Save(ctx, sess); err != nil {
			return reply, err
		}
	}
	return reply, nil
}

// ForChat returns the current session of a connector chat, creating one on
// first contact.
func (s *Service) ForChat(ctx context.Context, channel, chatID string) (*Session, error) {
	sess, err := s.store.Latest(ctx, channel, chatID)
	if err == nil {
		return sess, nil
	}
	if !apperr.Is(err, apperr.CodeNotFound) {
		return nil, err
	}
	return s.Create(ctx, "", channel, chatID)
}

// SendChat sends content into the current session of a connector chat.
func (s *Service) SendChat(ctx context.Context, channel, chatID, content string) (protocol.Reply, error) {
	sess, err := s.ForChat(ctx, channel, chatID)
	if err != nil {
		return protocol.Reply{}, err
	}
	return s.Send(ctx, sess.ID, content)
}

// Reset starts a fresh session for a connector chat. Earlier sessions are
// kept and stay listable.
func (s *Service) Reset(ctx context.Context, channel, chatID string) (*Session, error) {
	return s.Create(ctx, "", channel, chatID)
}

func (s *Service) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.busy[id]; ok {
		return false
	}
	s.busy[id] = struct{}{}
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.busy, id)
	s.mu.Unlock()
}

// titleFrom derives a session title from the first message.
func titleFrom(content string) string {
	line, _, _ := strings.Cut(content, "\n")
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) <= titleLimit {
		return line
	}
	r := []rune(line)
	return string(r[:titleLimit]) + "..."
}
