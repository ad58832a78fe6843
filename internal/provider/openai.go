package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

// OpenAI talks to any chat completions API: OpenAI itself, Azure OpenAI
// proxies, OpenRouter or a local gateway.
type OpenAI struct {
	endpoint
}

// NewOpenAI returns a provider for api.openai.com using gpt-4o unless
// options say otherwise.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	return &OpenAI{newEndpoint("openai", "https://api.openai.com/v1", "gpt-4o", header, opts)}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	body := completionRequest{
		Model:    p.modelFor(req),
		Messages: make([]completionMessage, len(req.Messages)),
	}
	for i, m := range req.Messages {
		body.Messages[i] = toCompletionMessage(m)
	}
	for _, d := range req.Tools {
		body.Tools = append(body.Tools, completionTool{
			Type:     "function",
			Function: completionFunction{Name: d.Name, Description: d.Description, Parameters: d.Parameters},
		})
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	var out completionResponse
	if err := p.post(ctx, "/chat/completions", body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, apperr.UpstreamAgent(fmt.Errorf("openai: answer has no choices"))
	}

	msg := out.Choices[0].Message
	resp := &protocol.ChatResponse{
		Content: msg.Content,
		Usage:   protocol.TokenUsage{Input: out.Usage.PromptTokens, Output: out.Usage.CompletionTokens},
	}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, protocol.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: decodeArguments(tc.Function.Arguments),
		})
	}
	return resp, nil
}

type completionRequest struct {
	Model       string              `json:"model"`
	Messages    []completionMessage `json:"messages"`
	Tools       []completionTool    `json:"tools,omitempty"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
}

type completionTool struct {
	Type     string             `json:"type"`
	Function completionFunction `json:"function"`
}

type completionFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	// Arguments is set on calls, never on definitions.
	Arguments string `json:"arguments,omitempty"`
}

type completionMessage struct {
	Role       string               `json:"role"`
	Content    string               `json:"content"`
	ToolCalls  []completionToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	Name       string               `json:"name,omitempty"`
}

type completionToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function completionFunction `json:"function"`
}

type completionResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func toCompletionMessage(m protocol.ChatMessage) completionMessage {
	out := completionMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, completionToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: completionFunction{Name: tc.Name, Arguments: encodeArguments(tc.Arguments)},
		})
	}
	return out
}

func encodeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// decodeArguments parses the JSON string a model sent. Malformed or empty
// arguments become an empty map so schema validation names what is missing.
func decodeArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
