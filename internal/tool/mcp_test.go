package tool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// trackerServer is a small MCP server with one working and one failing tool.
func trackerServer() *server.MCPServer {
	s := server.NewMCPServer("tracker", "1.0.0", server.WithToolCapabilities(false))
	s.AddTool(mcp.NewTool("get_redmine_issues",
		mcp.WithDescription("Get issues from Redmine."),
		mcp.WithNumber("project_id", mcp.Description("Numeric project id")),
		mcp.WithString("status_id", mcp.Required()),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("{\n  \"issues\": [],\n  \"status\": \"" + req.GetArguments()["status_id"].(string) + "\"\n}"), nil
	})
	s.AddTool(mcp.NewTool("get_servicenow_incidents",
		mcp.WithDescription("Get incidents from ServiceNow."),
	), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := mcp.NewToolResultError("servicenow: GET /incident: status 503: maintenance")
		res.Meta = apperr.RequestFailed(503, "servicenow: GET /incident: status 503: maintenance", nil).Meta()
		return res, nil
	})
	s.AddTool(mcp.NewTool("legacy_tool"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("something went wrong"), nil
	})
	return s
}

func connectInProcess(t *testing.T) *MCPClient {
	t.Helper()
	c, err := NewMCPClient(context.Background(), "tracker", transport.NewInProcessTransport(trackerServer()))
	if err != nil {
		t.Fatalf("NewMCPClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMCPClient_DiscoverTools(t *testing.T) {
	c := connectInProcess(t)

	tools := c.Tools()
	if len(tools) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(tools))
	}
	byName := map[string]*MCPToolWrapper{}
	for _, tl := range tools {
		byName[tl.Name()] = tl
	}
	issues := byName["get_redmine_issues"]
	if issues == nil || issues.Description() != "Get issues from Redmine." {
		t.Fatalf("get_redmine_issues = %+v", issues)
	}
	schema := issues.Parameters()
	if schema["type"] != "object" {
		t.Errorf("schema type = %v", schema["type"])
	}
	props, _ := schema["properties"].(map[string]any)
	if _, ok := props["project_id"]; !ok {
		t.Errorf("properties = %v", schema["properties"])
	}
	required, _ := schema["required"].([]any)
	if len(required) != 1 || required[0] != "status_id" {
		t.Errorf("required = %v", schema["required"])
	}
	if byName["legacy_tool"].Parameters()["type"] != "object" {
		t.Errorf("schema without properties = %v", byName["legacy_tool"].Parameters())
	}
}

func TestMCPToolWrapper_Execute(t *testing.T) {
	c := connectInProcess(t)
	reg := NewRegistry()
	for _, tl := range c.Tools() {
		if err := reg.Register(tl); err != nil {
			t.Fatal(err)
		}
	}

	got, err := reg.Execute(context.Background(), "get_redmine_issues", map[string]any{"status_id": "open"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "{\n  \"issues\": [],\n  \"status\": \"open\"\n}" {
		t.Errorf("result = %q", got)
	}
}

func TestMCPClient_CallToolErrorKinds(t *testing.T) {
	c := connectInProcess(t)

	_, err := c.CallTool(context.Background(), "get_servicenow_incidents", nil)
	e := apperr.As(err)
	if e == nil || e.Code != apperr.CodeRequestFailed || e.Status != 503 {
		t.Fatalf("expected request_failed 503, got %#v", err)
	}
	if e.Error() != "servicenow: GET /incident: status 503: maintenance" {
		t.Errorf("message = %q", e.Error())
	}

	_, err = c.CallTool(context.Background(), "legacy_tool", nil)
	if err == nil || apperr.As(err) != nil {
		t.Fatalf("a result without a kind should stay a plain error, got %#v", err)
	}
	if err.Error() != `mcp tool "legacy_tool": something went wrong` {
		t.Errorf("err = %v", err)
	}
}

func TestMCPClient_UnknownTool(t *testing.T) {
	c := connectInProcess(t)
	if _, err := c.CallTool(context.Background(), "delete_everything", nil); err == nil {
		t.Fatal("expected error for a tool the server does not have")
	}
}

func TestRegisterMCPTools_HTTP(t *testing.T) {
	var mu sync.Mutex
	var auth []string
	mcpHTTP := server.NewStreamableHTTPServer(trackerServer())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		mcpHTTP.ServeHTTP(w, r)
	}))
	defer srv.Close()

	registry := NewRegistry()
	clients, err := RegisterMCPTools(context.Background(), registry, []MCPServerConfig{
		{Name: "tracker", Transport: "http", URL: srv.URL + "/mcp", Headers: map[string]string{"Authorization": "Bearer tracker-token"}},
	})
	if err != nil {
		t.Fatalf("RegisterMCPTools: %v", err)
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	if registry.Len() != 3 || !registry.Has("get_redmine_issues") {
		t.Fatalf("registered %v", registry.List())
	}
	result, err := registry.Execute(context.Background(), "get_redmine_issues", map[string]any{"status_id": "closed"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "{\n  \"issues\": [],\n  \"status\": \"closed\"\n}" {
		t.Errorf("result = %q", result)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range auth {
		if got != "Bearer tracker-token" {
			t.Errorf("request %d Authorization = %q", i, got)
		}
	}
}

func TestRegisterMCPTools_DuplicateName(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{name: "get_redmine_issues"})
	srv := server.NewTestStreamableHTTPServer(trackerServer())
	defer srv.Close()

	_, err := RegisterMCPTools(context.Background(), registry, []MCPServerConfig{
		{Name: "tracker", Transport: "http", URL: srv.URL},
	})
	if err == nil {
		t.Fatal("expected error for a name clash")
	}
}

func TestRegisterMCPTools_UnknownTransport(t *testing.T) {
	registry := NewRegistry()
	_, err := RegisterMCPTools(context.Background(), registry, []MCPServerConfig{
		{Name: "bad", Transport: "websocket"},
	})
	if err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestRegisterMCPTools_MissingCommand(t *testing.T) {
	registry := NewRegistry()
	_, err := RegisterMCPTools(context.Background(), registry, []MCPServerConfig{
		{Name: "gone", Transport: "stdio", Command: "/nonexistent/ebrain-mcp"},
	})
	if err == nil {
		t.Fatal("expected error for a command that cannot start")
	}
	if registry.Len() != 0 {
		t.Errorf("nothing should be registered, got %v", registry.List())
	}
}

func TestRegisterMCPTools_HTTPServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := RegisterMCPTools(context.Background(), NewRegistry(), []MCPServerConfig{
		{Name: "broken", Transport: "http", URL: srv.URL},
	})
	if err == nil {
		t.Fatal("expected error for a server answering 500")
	}
}
