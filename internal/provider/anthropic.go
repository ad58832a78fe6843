package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ebrain-io/ebrain/pkg/protocol"
)

const (
	anthropicVersion = "2023-06-01"
	// The Messages API refuses requests without max_tokens.
	anthropicMaxTokens = 4096
)

// Anthropic talks to the Anthropic Messages API.
type Anthropic struct {
	endpoint
}

// NewAnthropic returns a provider for api.anthropic.com using Claude Sonnet 4
// unless options say otherwise.
func NewAnthropic(apiKey string, opts ...Option) *Anthropic {
	header := http.Header{}
	header.Set("x-api-key", apiKey)
	header.Set("anthropic-version", anthropicVersion)
	return &Anthropic{newEndpoint("anthropic", "https://api.anthropic.com", "claude-sonnet-4-20250514", header, opts)}
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	system, turns := toAnthropicTurns(req.Messages)
	body := messagesRequest{
		Model:     p.modelFor(req),
		System:    system,
		Messages:  turns,
		MaxTokens: anthropicMaxTokens,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	for _, d := range req.Tools {
		body.Tools = append(body.Tools, messagesTool{Name: d.Name, Description: d.Description, InputSchema: d.Parameters})
	}

	var out messagesResponse
	if err := p.post(ctx, "/v1/messages", body, &out); err != nil {
		return nil, err
	}

	resp := &protocol.ChatResponse{
		Usage: protocol.TokenUsage{Input: out.Usage.InputTokens, Output: out.Usage.OutputTokens},
	}
	var text strings.Builder
	for _, b := range out.Content {
		switch b.Type {
		case "text":
			text.WriteString(b.Text)
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, protocol.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: decodeArguments(string(b.Input)),
			})
		}
	}
	resp.Content = text.String()
	return resp, nil
}

type messagesRequest struct {
	Model       string         `json:"model"`
	System      string         `json:"system,omitempty"`
	Messages    []messagesTurn `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature *float64       `json:"temperature,omitempty"`
	Tools       []messagesTool `json:"tools,omitempty"`
}

type messagesTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type messagesTurn struct {
	Role    string          `json:"role"`
	Content []messagesBlock `json:"content"`
}

// messagesBlock covers the text, tool_use and tool_result block types. Input
// stays raw so an empty object still goes out as {}.
type messagesBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type messagesResponse struct {
	Content    []messagesBlock `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// toAnthropicTurns lifts system messages into the top-level system prompt
// and folds the results of one tool round into a single user turn, which is
// how the Messages API expects them.
func toAnthropicTurns(msgs []protocol.ChatMessage) (string, []messagesTurn) {
	var system []string
	var turns []messagesTurn
	for _, m := range msgs {
		switch m.Role {
		case protocol.ChatSystem:
			system = append(system, m.Content)
		case protocol.ChatTool:
			block := messagesBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
				IsError:   strings.HasPrefix(m.Content, "Error: "),
			}
			if n := len(turns); n > 0 && turns[n-1].Role == "user" && turns[n-1].Content[0].Type == "tool_result" {
				turns[n-1].Content = append(turns[n-1].Content, block)
				continue
			}
			turns = append(turns, messagesTurn{Role: "user", Content: []messagesBlock{block}})
		case protocol.ChatAssistant:
			var blocks []messagesBlock
			if m.Content != "" {
				blocks = append(blocks, messagesBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, messagesBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: json.RawMessage(encodeArguments(tc.Arguments)),
				})
			}
			turns = append(turns, messagesTurn{Role: "assistant", Content: blocks})
		default:
			turns = append(turns, messagesTurn{Role: "user", Content: []messagesBlock{{Type: "text", Text: m.Content}}})
		}
	}
	return strings.Join(system, "\n\n"), turns
}
