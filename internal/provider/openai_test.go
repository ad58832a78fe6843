package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/ebrain-io/ebrain/pkg/protocol"
	"github.com/google/go-cmp/cmp"
)

func TestOpenAI_ServiceNowRoundTrip(t *testing.T) {
	ask := &exchange{answer: `{
		"choices": [{"message": {"role": "assistant", "content": "", "tool_calls": [{
			"id": "call_1", "type": "function",
			"function": {"name": "getServiceNowRecords", "arguments": "{\"table\":\"incident\",\"query\":\"priority=1\",\"limit\":5}"}
		}]}}],
		"usage": {"prompt_tokens": 310, "completion_tokens": 22}
	}`}
	answer := &exchange{answer: `{
		"choices": [{"message": {"role": "assistant", "content": "INC0010023 is the only P1 incident."}}],
		"usage": {"prompt_tokens": 420, "completion_tokens": 12}
	}`}
	srv := scripted(t, ask, answer)
	p := NewOpenAI("sk-test", WithBaseURL(srv.URL))
	tools := assistantTools(t)

	messages := []protocol.ChatMessage{
		protocol.SystemMessage("You answer questions about Redmine and ServiceNow."),
		protocol.UserMessage("Which P1 incidents are open?"),
	}
	first, err := p.Chat(context.Background(), protocol.ChatRequest{Messages: messages, Tools: tools})
	if err != nil {
		t.Fatalf("first Chat: %v", err)
	}
	if first.Final() {
		t.Fatal("expected a tool call")
	}
	wantCall := protocol.ToolCall{
		ID:        "call_1",
		Name:      "getServiceNowRecords",
		Arguments: map[string]any{"table": "incident", "query": "priority=1", "limit": 5.0},
	}
	if diff := cmp.Diff([]protocol.ToolCall{wantCall}, first.ToolCalls); diff != "" {
		t.Errorf("tool calls (-want +got):\n%s", diff)
	}
	if first.Usage.Total() != 332 {
		t.Errorf("usage = %+v", first.Usage)
	}

	if got := ask.header.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got)
	}
	if ask.body["model"] != "gpt-4o" {
		t.Errorf("model = %v", ask.body["model"])
	}
	sent := ask.body["tools"].([]any)
	if len(sent) != len(tools) {
		t.Fatalf("sent %d tools, want %d", len(sent), len(tools))
	}
	fn := sent[0].(map[string]any)
	if fn["type"] != "function" || fn["function"].(map[string]any)["name"] != tools[0].Name {
		t.Errorf("tool definition = %v", fn)
	}

	messages = append(messages,
		protocol.AssistantMessage(first),
		protocol.ToolResult(first.ToolCalls[0], `{"result":[{"number":"INC0010023","priority":"1"}]}`),
	)
	final, err := p.Chat(context.Background(), protocol.ChatRequest{Messages: messages, Tools: tools})
	if err != nil {
		t.Fatalf("second Chat: %v", err)
	}
	if !final.Final() || final.Content != "INC0010023 is the only P1 incident." {
		t.Errorf("final = %+v", final)
	}

	sentMsgs := answer.body["messages"].([]any)
	if len(sentMsgs) != 4 {
		t.Fatalf("sent %d messages, want 4", len(sentMsgs))
	}
	call := sentMsgs[2].(map[string]any)["tool_calls"].([]any)[0].(map[string]any)["function"].(map[string]any)
	var args map[string]any
	if err := json.Unmarshal([]byte(call["arguments"].(string)), &args); err != nil {
		t.Fatalf("arguments are not JSON: %v", err)
	}
	if diff := cmp.Diff(wantCall.Arguments, args); diff != "" {
		t.Errorf("echoed arguments (-want +got):\n%s", diff)
	}
	result := sentMsgs[3].(map[string]any)
	if result["role"] != "tool" || result["tool_call_id"] != "call_1" || result["name"] != "getServiceNowRecords" {
		t.Errorf("tool result message = %v", result)
	}
}

func TestOpenAI_RequestOverrides(t *testing.T) {
	ex := &exchange{answer: `{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`}
	srv := scripted(t, ex)
	p := NewOpenAI("k", WithBaseURL(srv.URL), WithModel("gpt-4o-mini"))

	_, err := p.Chat(context.Background(), protocol.ChatRequest{
		Model:       "gpt-4.1",
		Messages:    []protocol.ChatMessage{protocol.UserMessage("Summarise issue #42")},
		MaxTokens:   512,
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if ex.body["model"] != "gpt-4.1" || ex.body["max_tokens"] != 512.0 || ex.body["temperature"] != 0.2 {
		t.Errorf("request = %v", ex.body)
	}
	if _, ok := ex.body["tools"]; ok {
		t.Error("tools should be omitted when none are offered")
	}
}

func TestOpenAI_RateLimitIsUpstreamFailure(t *testing.T) {
	srv := scripted(t, &exchange{status: http.StatusTooManyRequests, answer: `{"error": {"message": "rate limited"}}`})
	p := NewOpenAI("k", WithBaseURL(srv.URL))

	_, err := p.Chat(context.Background(), protocol.ChatRequest{
		Messages: []protocol.ChatMessage{protocol.UserMessage("Open issues in project 3?")},
	})
	got := apperr.As(err)
	if got == nil || got.Code != apperr.CodeUpstreamAgent || got.Status != http.StatusTooManyRequests {
		t.Fatalf("expected upstream failure with status 429, got %v", err)
	}
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := scripted(t, &exchange{answer: `{"choices": []}`})
	p := NewOpenAI("k", WithBaseURL(srv.URL))

	_, err := p.Chat(context.Background(), protocol.ChatRequest{
		Messages: []protocol.ChatMessage{protocol.UserMessage("hi")},
	})
	if !apperr.Is(err, apperr.CodeUpstreamAgent) {
		t.Fatalf("expected upstream failure, got %v", err)
	}
}
