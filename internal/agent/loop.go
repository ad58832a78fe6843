package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

// Run executes the ReAct loop: send messages to the LLM, execute any requested
// tool calls, and loop until the LLM returns a final text response or the
// iteration limit is reached.
func (a *Agent) Run(ctx context.Context, userMessage string) (string, error) {
	messages := []protocol.ChatMessage{
		protocol.SystemMessage(a.BuildSystemPrompt()),
		protocol.UserMessage(userMessage),
	}
	return a.runLoop(ctx, messages)
}

func (a *Agent) runLoop(ctx context.Context, messages []protocol.ChatMessage) (string, error) {
	maxIter := a.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	toolDefs := a.Tools.Definitions()

	for i := 0; i < maxIter; i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("agent %s: context cancelled: %w", a.Spec.ID, err)
		}

		req := protocol.ChatRequest{
			Model:       a.Spec.Model,
			Messages:    messages,
			Tools:       toolDefs,
			MaxTokens:   a.MaxTokens,
			Temperature: a.Temperature,
		}

		a.Logger.Debug("agent chat request",
			"agent", a.Spec.ID,
			"iteration", i+1,
			"messages", len(messages),
		)

		resp, err := a.Provider.Chat(ctx, req)
		if err != nil {
			// Providers classify their own failures; anything else is still
			// the model's side failing.
			if apperr.As(err) == nil {
				err = apperr.UpstreamAgent(fmt.Errorf("provider %s: %w", a.Provider.Name(), err))
			}
			return "", err
		}

		if resp.Final() {
			a.Logger.Debug("agent final response",
				"agent", a.Spec.ID,
				"iteration", i+1,
				"content_len", len(resp.Content),
				"tokens", resp.Usage.Total(),
			)
			return resp.Content, nil
		}

		messages = append(messages, protocol.AssistantMessage(resp))

		for _, tc := range resp.ToolCalls {
			content, err := a.callTool(ctx, tc)
			if err != nil {
				return "", err
			}
			messages = append(messages, protocol.ToolResult(tc, content))
		}
	}

	return "", apperr.UpstreamAgent(fmt.Errorf("agent %s: exceeded max iterations (%d)", a.Spec.ID, maxIter))
}

// callTool runs one tool call and renders its result for the model. Errors
// the model can act on (bad arguments, missing records, unknown tools) are
// returned as tool output; a failed remote request ends the run.
func (a *Agent) callTool(ctx context.Context, tc protocol.ToolCall) (string, error) {
	start := time.Now()
	a.Logger.Info("tool call", "agent", a.Spec.ID, "tool", tc.Name, "call_id", tc.ID)

	result, err := a.Tools.Execute(ctx, tc.Name, tc.Arguments)
	if err != nil {
		if apperr.Is(err, apperr.CodeRequestFailed) {
			a.Logger.Error("tool request failed", "agent", a.Spec.ID, "tool", tc.Name, "error", err)
			return "", fmt.Errorf("tool %s: %w", tc.Name, err)
		}
		a.Logger.Warn("tool error", "agent", a.Spec.ID, "tool", tc.Name, "error", err)
		return fmt.Sprintf("Error: %v", err), nil
	}

	content, err := encodeResult(result)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	a.Logger.Info("tool result",
		"agent", a.Spec.ID,
		"tool", tc.Name,
		"result_len", len(content),
		"duration", time.Since(start),
	)
	return content, nil
}

// encodeResult renders a structured tool result as compact JSON. Strings
// pass through as-is.
func encodeResult(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(b), nil
}
