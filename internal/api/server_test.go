package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ebrain-io/ebrain/internal/logbuf"
	"github.com/ebrain-io/ebrain/internal/session"
	"github.com/ebrain-io/ebrain/internal/tool"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type askerFunc func(ctx context.Context, turns []protocol.Turn) protocol.Reply

func (f askerFunc) Ask(ctx context.Context, turns []protocol.Turn) protocol.Reply { return f(ctx, turns) }

// lastTurnAsker answers with the text of the last turn, or an error for an
// empty conversation.
var lastTurnAsker = askerFunc(func(_ context.Context, turns []protocol.Turn) protocol.Reply {
	if len(turns) == 0 {
		return protocol.Reply{Error: "invalid input (messages): conversation is empty"}
	}
	return protocol.Reply{Text: "echo: " + turns[len(turns)-1].Content}
})

func newTestServer(t *testing.T, key string, asker Asker) *httptest.Server {
	t.Helper()
	store, err := session.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	logs := logbuf.New(10)
	logs.Add(logbuf.Entry{Time: time.Now(), Level: slog.LevelInfo, Message: "tool call", Component: "agent"})
	logs.Add(logbuf.Entry{Time: time.Now(), Level: slog.LevelError, Message: "tool request failed", Component: "agent"})

	srv := NewServer(Deps{
		Asker:      asker,
		Sessions:   session.NewService(store, asker, quiet),
		Operations: tool.Operations(nil, nil),
		Logs:       logs,
	}, Config{Key: key}, quiet)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, key, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}

func TestHealth_NoAuth(t *testing.T) {
	ts := newTestServer(t, "secret", lastTurnAsker)
	resp, body := do(t, "GET", ts.URL+"/api/health", "", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"ok"`) {
		t.Errorf("health = %d %s", resp.StatusCode, body)
	}
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, "secret", lastTurnAsker)

	if resp, _ := do(t, "GET", ts.URL+"/api/tools", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no key: status %d", resp.StatusCode)
	}
	if resp, _ := do(t, "GET", ts.URL+"/api/tools", "wrong", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: status %d", resp.StatusCode)
	}
	if resp, _ := do(t, "GET", ts.URL+"/api/tools", "secret", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("right key: status %d", resp.StatusCode)
	}
}

func TestAsk(t *testing.T) {
	var got []protocol.Turn
	ts := newTestServer(t, "", askerFunc(func(_ context.Context, turns []protocol.Turn) protocol.Reply {
		got = turns
		return protocol.Reply{Text: "Two open issues."}
	}))

	resp, body := do(t, "POST", ts.URL+"/api/ask", "", `{"messages":[{"role":"user","content":"A"},{"role":"assistant","content":"X"},{"role":"user","content":"B"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if diff := cmp.Diff(protocol.Reply{Text: "Two open issues."}, decode[protocol.Reply](t, body)); diff != "" {
		t.Errorf("reply (-want +got):\n%s", diff)
	}
	want := []protocol.Turn{
		{Role: protocol.RoleUser, Content: "A"},
		{Role: protocol.RoleAssistant, Content: "X"},
		{Role: protocol.RoleUser, Content: "B"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("turns (-want +got):\n%s", diff)
	}
}

func TestAsk_ErrorReply(t *testing.T) {
	ts := newTestServer(t, "", lastTurnAsker)

	resp, body := do(t, "POST", ts.URL+"/api/ask", "", `{"messages":[]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	reply := decode[map[string]string](t, body)
	if _, hasText := reply["text"]; hasText || !strings.Contains(reply["error"], "conversation is empty") {
		t.Errorf("reply = %v", reply)
	}

	if resp, _ := do(t, "POST", ts.URL+"/api/ask", "", `{not json`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid JSON: status %d", resp.StatusCode)
	}
}

func TestTools(t *testing.T) {
	ts := newTestServer(t, "", lastTurnAsker)
	_, body := do(t, "GET", ts.URL+"/api/tools", "", "")
	tools := decode[[]toolInfo](t, body)
	if len(tools) != 11 {
		t.Fatalf("expected 11 tools, got %d", len(tools))
	}
	first := tools[0]
	if first.Name != "get_redmine_issues" || first.AgentName != "getRedmineIssues" || !first.ReadOnly {
		t.Errorf("first tool = %+v", first)
	}
	if first.InputSchema["type"] != "object" {
		t.Errorf("input schema = %v", first.InputSchema)
	}
}

func TestFields(t *testing.T) {
	ts := newTestServer(t, "", lastTurnAsker)

	_, body := do(t, "GET", ts.URL+"/api/fields", "", "")
	all := decode[[]tableFields](t, body)
	var tables []string
	for _, tf := range all {
		tables = append(tables, tf.Table)
	}
	if diff := cmp.Diff([]string{"incident", "problem", "change_request"}, tables); diff != "" {
		t.Errorf("tables (-want +got):\n%s", diff)
	}
	if all[0].Fields[0] != "number" {
		t.Errorf("incident fields start with %q", all[0].Fields[0])
	}

	_, body = do(t, "GET", ts.URL+"/api/fields?table=sc_request", "", "")
	one := decode[[]tableFields](t, body)
	if len(one) != 1 || one[0].Fields == nil || len(one[0].Fields) != 0 {
		t.Errorf("unknown table = %+v", one)
	}
}

func TestLogs(t *testing.T) {
	ts := newTestServer(t, "", lastTurnAsker)
	_, body := do(t, "GET", ts.URL+"/api/logs?level=error&component=agent", "", "")
	entries := decode[[]logbuf.Entry](t, body)
	if len(entries) != 1 || entries[0].Message != "tool request failed" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestSessions_Lifecycle(t *testing.T) {
	ts := newTestServer(t, "", lastTurnAsker)

	resp, body := do(t, "POST", ts.URL+"/api/sessions", "", `{"title":"Weekly report"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, body)
	}
	sess := decode[session.Session](t, body)
	if sess.ID == "" || sess.Title != "Weekly report" {
		t.Fatalf("session = %+v", sess)
	}

	resp, body = do(t, "POST", ts.URL+"/api/sessions/"+sess.ID+"/messages", "", `{"content":"open incidents?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("message: %d %s", resp.StatusCode, body)
	}
	if reply := decode[protocol.Reply](t, body); reply.Text != "echo: open incidents?" {
		t.Errorf("reply = %+v", reply)
	}

	_, body = do(t, "GET", ts.URL+"/api/sessions/"+sess.ID, "", "")
	got := decode[session.Session](t, body)
	if len(got.Turns) != 2 || got.Turns[0].Role != protocol.RoleUser || got.Turns[1].Role != protocol.RoleAssistant {
		t.Errorf("turns = %+v", got.Turns)
	}

	_, body = do(t, "GET", ts.URL+"/api/sessions", "", "")
	if list := decode[[]session.Session](t, body); len(list) != 1 {
		t.Errorf("list = %+v", list)
	}

	if resp, _ := do(t, "DELETE", ts.URL+"/api/sessions/"+sess.ID, "", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: %d", resp.StatusCode)
	}
	resp, body = do(t, "GET", ts.URL+"/api/sessions/"+sess.ID, "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete: %d", resp.StatusCode)
	}
	if e := decode[errorBody](t, body); e.Code != "not_found" {
		t.Errorf("error body = %+v", e)
	}
}

func TestSessions_UntitledAndInvalid(t *testing.T) {
	ts := newTestServer(t, "", lastTurnAsker)

	resp, body := do(t, "POST", ts.URL+"/api/sessions", "", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create without body: %d %s", resp.StatusCode, body)
	}
	sess := decode[session.Session](t, body)

	resp, body = do(t, "POST", ts.URL+"/api/sessions/"+sess.ID+"/messages", "", `{"content":"  "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty content: %d", resp.StatusCode)
	}
	if e := decode[errorBody](t, body); e.Code != "invalid_input" || len(e.Fields) != 1 || e.Fields[0] != "content" {
		t.Errorf("error body = %+v", e)
	}
}

func TestSessions_Busy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	ts := newTestServer(t, "", askerFunc(func(context.Context, []protocol.Turn) protocol.Reply {
		once.Do(func() { close(entered) })
		<-release
		return protocol.Reply{Text: "done"}
	}))

	_, body := do(t, "POST", ts.URL+"/api/sessions", "", "")
	sess := decode[session.Session](t, body)
	url := ts.URL + "/api/sessions/" + sess.ID + "/messages"

	done := make(chan int)
	go func() {
		resp, err := http.Post(url, "application/json", strings.NewReader(`{"content":"slow"}`))
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	<-entered

	resp, body := do(t, "POST", url, "", `{"content":"again"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d %s", resp.StatusCode, body)
	}
	close(release)
	if status := <-done; status != http.StatusOK {
		t.Errorf("first message status %d", status)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, "secret", lastTurnAsker)
	resp, _ := do(t, "OPTIONS", ts.URL+"/api/ask", "", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow origin = %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}
