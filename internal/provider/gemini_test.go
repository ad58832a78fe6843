package provider

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/ebrain-io/ebrain/pkg/protocol"
	"google.golang.org/genai"
)

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]protocol.ChatMessage{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "Open incidents?"},
		{Role: "assistant", ToolCalls: []protocol.ToolCall{
			{ID: "c1", Name: "getServiceNowIncidents", Arguments: map[string]any{"limit": 5}},
			{ID: "c2", Name: "getRedmineIssues", Arguments: map[string]any{}},
		}},
		{Role: "tool", ToolCallID: "c1", Content: `{"result":[]}`},
		{Role: "tool", ToolCallID: "c2", Content: `{"issues":[]}`},
	})

	if system != "You are helpful." {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[0].Role != genai.RoleUser || contents[0].Parts[0].Text != "Open incidents?" {
		t.Errorf("contents[0] = %+v", contents[0])
	}
	model := contents[1]
	if model.Role != genai.RoleModel || len(model.Parts) != 2 {
		t.Fatalf("model content = %+v", model)
	}
	if fc := model.Parts[0].FunctionCall; fc == nil || fc.Name != "getServiceNowIncidents" || fc.ID != "c1" {
		t.Errorf("function call = %+v", model.Parts[0].FunctionCall)
	}

	results := contents[2]
	if results.Role != genai.RoleUser || len(results.Parts) != 2 {
		t.Fatalf("tool results should be grouped, got %+v", results)
	}
	fr := results.Parts[1].FunctionResponse
	if fr == nil || fr.Name != "getRedmineIssues" || fr.Response["output"] != `{"issues":[]}` {
		t.Errorf("function response = %+v", fr)
	}
}

func TestToGeminiTools(t *testing.T) {
	if toGeminiTools(nil) != nil {
		t.Error("expected nil tools for no definitions")
	}
	params := map[string]any{"type": "object"}
	tools := toGeminiTools([]protocol.ToolDefinition{
		{Name: "getRedmineIssues", Description: "Get issues from Redmine", Parameters: params},
	})
	if len(tools) != 1 || len(tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("tools = %+v", tools)
	}
	d := tools[0].FunctionDeclarations[0]
	if d.Name != "getRedmineIssues" || d.ParametersJsonSchema == nil {
		t.Errorf("declaration = %+v", d)
	}
}

func TestParseGeminiResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "Checking "},
				{Text: "now."},
				{FunctionCall: &genai.FunctionCall{Name: "getServiceNowRecords", Args: map[string]any{"table": "problem"}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 12, CandidatesTokenCount: 4},
	}

	got, err := parseGeminiResponse(resp)
	if err != nil {
		t.Fatalf("parseGeminiResponse: %v", err)
	}
	if got.Content != "Checking now." {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].ID != "call_3" || got.ToolCalls[0].Arguments["table"] != "problem" {
		t.Errorf("tool calls = %+v", got.ToolCalls)
	}
	if got.Usage.Total() != 16 {
		t.Errorf("usage = %+v", got.Usage)
	}

	if _, err := parseGeminiResponse(&genai.GenerateContentResponse{}); !apperr.Is(err, apperr.CodeUpstreamAgent) {
		t.Errorf("expected upstream failure for empty response, got %v", err)
	}
}

func TestGemini_QuotaIsUpstreamFailure(t *testing.T) {
	ex := &exchange{
		status: http.StatusTooManyRequests,
		answer: `{"error": {"code": 429, "message": "Quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`,
	}
	srv := scripted(t, ex)
	p, err := NewGemini(context.Background(), "g-key", "", srv.URL)
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}

	_, err = p.Chat(context.Background(), protocol.ChatRequest{
		Messages: []protocol.ChatMessage{protocol.UserMessage("Open problems in ServiceNow?")},
		Tools:    assistantTools(t),
	})
	got := apperr.As(err)
	if got == nil || got.Code != apperr.CodeUpstreamAgent || got.Status != http.StatusTooManyRequests {
		t.Fatalf("expected upstream failure with status 429, got %v", err)
	}
	if !strings.Contains(err.Error(), "Quota exceeded") {
		t.Errorf("err = %v", err)
	}
	if len(ex.body["tools"].([]any)) != 1 {
		t.Errorf("declarations should travel as one tool, got %v", ex.body["tools"])
	}
}
