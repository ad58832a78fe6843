// Package mcpserver exposes the assistant's operations to other agent hosts
// over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/ebrain-io/ebrain/internal/tool"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Name identifies the server during the MCP handshake.
const Name = "ebrain"

// Version is set at build time via ldflags.
var Version = "dev"

const instructions = `Tools for the Redmine issue tracker and ServiceNow tables (incident, problem, change_request, ...).
Use get_servicenow_records with an encoded query to search any table; results are JSON.`

// New creates an MCP server with one tool per operation, registered under
// the operation's snake_case name.
func New(ops []tool.Operation, logger *slog.Logger) (*server.MCPServer, error) {
	s := server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	for _, op := range ops {
		schema, err := json.Marshal(op.Schema.JSONSchema())
		if err != nil {
			return nil, fmt.Errorf("mcpserver: schema for %s: %w", op.Name, err)
		}
		s.AddTool(mcp.NewToolWithRawSchema(op.Name, op.Description, schema), handler(op, logger))
	}
	return s, nil
}

func handler(op tool.Operation, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := op.Invoke(ctx, req.GetArguments())
		if err != nil {
			logger.Warn("tool failed", "tool", op.Name, "error", err, "duration", time.Since(start))
			res := mcp.NewToolResultError(err.Error())
			if e := apperr.As(err); e != nil {
				res.Meta = e.Meta()
			}
			return res, nil
		}
		text, err := Format(result)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		logger.Debug("tool done", "tool", op.Name, "bytes", len(text), "duration", time.Since(start))
		return mcp.NewToolResultText(text), nil
	}
}

// Format renders a tool result the way MCP clients receive it: JSON
// indented by two spaces.
func Format(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return string(b), nil
}

// Serve runs the protocol over in/out until in is closed or ctx is done.
// Nothing but protocol messages may be written to out.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, logger *slog.Logger) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	logger.Info("mcp server listening on stdio", "name", Name, "version", Version)
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcpserver: %w", err)
	}
	return nil
}
