package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/ebrain-io/ebrain/pkg/protocol"
	"google.golang.org/genai"
)

// GeminiProvider implements Provider for the Gemini API through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini provider. baseURL may be empty.
func NewGemini(ctx context.Context, apiKey, model, baseURL string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	system, contents := toGeminiContents(req.Messages)
	cfg := &genai.GenerateContentConfig{Tools: toGeminiTools(req.Tools)}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, apiError("gemini", apiErr.Code, apiErr.Message)
		}
		return nil, apperr.UpstreamAgent(fmt.Errorf("gemini: %w", err))
	}
	return parseGeminiResponse(resp)
}

// toGeminiContents extracts system messages and converts the rest. Tool
// results following one model turn are grouped into a single user content.
func toGeminiContents(msgs []protocol.ChatMessage) (string, []*genai.Content) {
	var system []string
	var out []*genai.Content
	callNames := map[string]string{}

	for _, m := range msgs {
		switch m.Role {
		case protocol.ChatSystem:
			system = append(system, m.Content)
		case protocol.ChatAssistant:
			c := &genai.Content{Role: genai.RoleModel}
			if m.Content != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				callNames[tc.ID] = tc.Name
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Arguments,
				}})
			}
			out = append(out, c)
		case protocol.ChatTool:
			name := m.Name
			if name == "" {
				name = callNames[m.ToolCallID]
			}
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     name,
				Response: map[string]any{"output": m.Content},
			}}
			if n := len(out); n > 0 && out[n-1].Role == genai.RoleUser && isFunctionResponses(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
		default:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), out
}

func isFunctionResponses(c *genai.Content) bool {
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return len(c.Parts) > 0
}

func toGeminiTools(defs []protocol.ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(defs))
	for i, d := range defs {
		decls[i] = &genai.FunctionDeclaration{
			Name:                 d.Name,
			Description:          d.Description,
			ParametersJsonSchema: d.Parameters,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func parseGeminiResponse(resp *genai.GenerateContentResponse) (*protocol.ChatResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, apperr.UpstreamAgent(fmt.Errorf("gemini: answer has no candidates"))
	}

	out := &protocol.ChatResponse{}
	var text strings.Builder
	for i, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			out.ToolCalls = append(out.ToolCalls, protocol.ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		case part.Text != "" && !part.Thought:
			text.WriteString(part.Text)
		}
	}
	out.Content = text.String()

	if u := resp.UsageMetadata; u != nil {
		out.Usage = protocol.TokenUsage{Input: int(u.PromptTokenCount), Output: int(u.CandidatesTokenCount)}
	}
	return out, nil
}
