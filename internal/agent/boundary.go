package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

const (
	historyHeader  = "[Conversation history]"
	questionHeader = "[Current question]"
)

// Runner answers a single prompt. *Agent implements it.
type Runner interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// Boundary is the single entry point user surfaces use to ask the
// assistant. It never returns an error or panics: every failure comes back
// as a Reply with Error set.
type Boundary struct {
	runner Runner
	logger *slog.Logger
}

// NewBoundary wraps runner. A nil logger uses slog.Default.
func NewBoundary(runner Runner, logger *slog.Logger) *Boundary {
	if logger == nil {
		logger = slog.Default()
	}
	return &Boundary{runner: runner, logger: logger}
}

// Ask answers the last turn of the conversation, with the earlier turns as
// context.
func (b *Boundary) Ask(ctx context.Context, turns []protocol.Turn) (reply protocol.Reply) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("agent panic", "panic", r)
			reply = protocol.Reply{Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	prompt, err := FoldHistory(turns)
	if err != nil {
		return protocol.Reply{Error: err.Error()}
	}

	text, err := b.runner.Run(ctx, prompt)
	if err != nil {
		b.logger.Error("agent failed", "code", apperr.CodeOf(err), "error", err)
		msg := err.Error()
		if msg == "" {
			msg = "Unknown error occurred"
		}
		return protocol.Reply{Error: msg}
	}
	return protocol.Reply{Text: text}
}

// FoldHistory turns a conversation into one prompt. The last turn must come
// from the user; earlier user and assistant turns are rendered in order
// under a history header. Error turns are left out.
func FoldHistory(turns []protocol.Turn) (string, error) {
	if len(turns) == 0 {
		return "", apperr.InvalidInput([]string{"messages"}, "conversation is empty")
	}
	last := turns[len(turns)-1]
	if last.Role != protocol.RoleUser {
		return "", apperr.InvalidInput([]string{"messages"}, "last message must come from the user")
	}

	var lines []string
	for _, t := range turns[:len(turns)-1] {
		switch t.Role {
		case protocol.RoleUser:
			lines = append(lines, "User: "+t.Content)
		case protocol.RoleAssistant:
			lines = append(lines, "Assistant: "+t.Content)
		}
	}
	if len(lines) == 0 {
		return last.Content, nil
	}
	return historyHeader + "\n" + strings.Join(lines, "\n\n") + "\n\n" + questionHeader + "\n" + last.Content, nil
}
