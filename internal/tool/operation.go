package tool

import (
	"context"
	"fmt"

	"github.com/ebrain-io/ebrain/pkg/protocol"
)

// HandlerFunc performs an operation with validated arguments.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Operation is one capability of the assistant, declared once and bound to
// both the agent's tool loop and the MCP server.
type Operation struct {
	// Name is the snake_case name exposed over MCP. Gating rules refer to it.
	Name string
	// AgentName is the camelCase name offered to the model.
	AgentName   string
	Description string
	Schema      Schema
	// ReadOnly operations never change remote state.
	ReadOnly bool
	Handler  HandlerFunc
}

// Invoke validates args and runs the handler. Invalid arguments never reach
// the handler; handler errors are returned unchanged.
func (o Operation) Invoke(ctx context.Context, args map[string]any) (any, error) {
	valid, err := o.Schema.Validate(args)
	if err != nil {
		return nil, err
	}
	return o.Handler(ctx, valid)
}

// Filter returns the operations the AgentSpec permits, in their original order.
// Read-only specs drop every operation that writes.
func Filter(ops []Operation, spec protocol.AgentSpec) []Operation {
	var out []Operation
	for _, op := range ops {
		if spec.ReadOnly && !op.ReadOnly {
			continue
		}
		if !spec.ToolAllowed(op.Name) {
			continue
		}
		out = append(out, op)
	}
	return out
}

// agentTool exposes an Operation under its camelCase name.
type agentTool struct {
	op Operation
}

// AgentTool adapts op to the Tool interface used by the agent loop.
func AgentTool(op Operation) Tool {
	return &agentTool{op: op}
}

func (t *agentTool) Name() string               { return t.op.AgentName }
func (t *agentTool) Description() string        { return t.op.Description }
func (t *agentTool) Parameters() map[string]any { return t.op.Schema.JSONSchema() }

func (t *agentTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	return t.op.Invoke(ctx, params)
}

// RegisterOperations adds every operation to r under its agent name.
func RegisterOperations(r *Registry, ops []Operation) error {
	for _, op := range ops {
		if err := r.Register(AgentTool(op)); err != nil {
			return fmt.Errorf("tool: register %s: %w", op.Name, err)
		}
	}
	return nil
}
