package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPServerConfig holds configuration for connecting to an MCP server.
type MCPServerConfig struct {
	Name      string   `json:"name" mapstructure:"name"`
	Transport string   `json:"transport" mapstructure:"transport"` // "stdio" or "http"
	Command   string   `json:"command,omitempty" mapstructure:"command"`
	Args      []string `json:"args,omitempty" mapstructure:"args"`
	// Env is appended to the inherited environment of a stdio server.
	Env     []string          `json:"env,omitempty" mapstructure:"env"`
	URL     string            `json:"url,omitempty" mapstructure:"url"`
	Headers map[string]string `json:"headers,omitempty" mapstructure:"headers"`
}

// MCPClient is an initialized connection to one MCP server and the tools
// it offered at connect time.
type MCPClient struct {
	name  string
	conn  *client.Client
	tools []*MCPToolWrapper
}

// MCPToolWrapper exposes a remote MCP tool as a local Tool under its remote name.
type MCPToolWrapper struct {
	toolName    string
	description string
	schema      map[string]any
	client      *MCPClient
}

func (w *MCPToolWrapper) Name() string               { return w.toolName }
func (w *MCPToolWrapper) Description() string        { return w.description }
func (w *MCPToolWrapper) Parameters() map[string]any { return w.schema }

func (w *MCPToolWrapper) Execute(ctx context.Context, params map[string]any) (any, error) {
	return w.client.CallTool(ctx, w.toolName, params)
}

// NewStdioTransport describes a server run as a child process speaking MCP
// on its stdin and stdout. The process starts when the client connects.
func NewStdioTransport(command string, args, env []string) *transport.Stdio {
	return transport.NewStdio(command, env, args...)
}

// NewStreamTransport speaks MCP over an existing reader and writer pair.
// Closing the client closes w.
func NewStreamTransport(r io.Reader, w io.WriteCloser) *transport.Stdio {
	return transport.NewIO(r, w, io.NopCloser(strings.NewReader("")))
}

// NewMCPClient starts t, performs the initialize handshake and lists the
// server's tools. A stdio child is bound to ctx and its stderr is copied
// to ours.
func NewMCPClient(ctx context.Context, name string, t transport.Interface) (*MCPClient, error) {
	conn := client.NewClient(t)
	if err := conn.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp: start %q: %w", name, err)
	}
	if stderr, ok := client.GetStderr(conn); ok {
		go io.Copy(os.Stderr, stderr)
	}

	c := &MCPClient{name: name, conn: conn}
	if err := c.connect(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *MCPClient) connect(ctx context.Context) error {
	hello := mcp.InitializeRequest{}
	hello.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	hello.Params.ClientInfo = mcp.Implementation{Name: "ebrain", Version: "0.1.0"}
	if _, err := c.conn.Initialize(ctx, hello); err != nil {
		return fmt.Errorf("mcp: initialize %q: %w", c.name, err)
	}

	list, err := c.conn.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("mcp: tools/list %q: %w", c.name, err)
	}
	for _, td := range list.Tools {
		schema, err := inputSchema(td)
		if err != nil {
			return fmt.Errorf("mcp: %q tool %s: %w", c.name, td.Name, err)
		}
		c.tools = append(c.tools, &MCPToolWrapper{
			toolName:    td.Name,
			description: td.Description,
			schema:      schema,
			client:      c,
		})
	}
	return nil
}

// inputSchema turns the typed schema of a listed tool back into the plain
// JSON Schema map the registry hands to providers.
func inputSchema(td mcp.Tool) (map[string]any, error) {
	raw, err := json.Marshal(td.InputSchema)
	if err != nil {
		return nil, err
	}
	schema := map[string]any{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	if schema["type"] == nil || schema["type"] == "" {
		schema["type"] = "object"
	}
	return schema, nil
}

// CallTool invokes a remote tool and returns its text output. A failed call
// comes back as an *apperr.Error when the server said which kind it was, so
// a remote request_failed still ends an agent run.
func (c *MCPClient) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments
	res, err := c.conn.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp: %q tool %s: %w", c.name, name, err)
	}

	var parts []string
	for _, content := range res.Content {
		if text, ok := mcp.AsTextContent(content); ok && text.Text != "" {
			parts = append(parts, text.Text)
		}
	}
	output := strings.Join(parts, "\n")

	if res.IsError {
		if e := apperr.FromMeta(res.Meta, output); e != nil {
			return "", e
		}
		return "", fmt.Errorf("mcp tool %q: %s", name, output)
	}
	return output, nil
}

// Tools returns the discovered tool wrappers.
func (c *MCPClient) Tools() []*MCPToolWrapper {
	return c.tools
}

// Close shuts the connection down and waits for a stdio child to exit.
func (c *MCPClient) Close() error {
	return c.conn.Close()
}

// RegisterMCPTools connects to MCP servers and registers their tools in a registry.
func RegisterMCPTools(ctx context.Context, registry *Registry, servers []MCPServerConfig) ([]*MCPClient, error) {
	var clients []*MCPClient
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	for _, srv := range servers {
		var t transport.Interface
		switch srv.Transport {
		case "stdio":
			t = NewStdioTransport(srv.Command, srv.Args, srv.Env)
		case "http":
			var err error
			t, err = transport.NewStreamableHTTP(srv.URL, transport.WithHTTPHeaders(srv.Headers))
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("mcp: server %q: %w", srv.Name, err)
			}
		default:
			closeAll()
			return nil, fmt.Errorf("mcp: unknown transport %q for server %q", srv.Transport, srv.Name)
		}

		c, err := NewMCPClient(ctx, srv.Name, t)
		if err != nil {
			closeAll()
			return nil, err
		}
		clients = append(clients, c)

		for _, tool := range c.Tools() {
			if err := registry.Register(tool); err != nil {
				closeAll()
				return nil, fmt.Errorf("mcp: server %q: %w", srv.Name, err)
			}
		}
	}

	return clients, nil
}
