package session

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/ebrain-io/ebrain/internal/apperr"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type askerFunc func(ctx context.Context, turns []protocol.Turn) protocol.Reply

func (f askerFunc) Ask(ctx context.Context, turns []protocol.Turn) protocol.Reply { return f(ctx, turns) }

func echoAsker(seen *[][]protocol.Turn) Asker {
	return askerFunc(func(_ context.Context, turns []protocol.Turn) protocol.Reply {
		*seen = append(*seen, turns)
		return protocol.Reply{Text: "answer to " + turns[len(turns)-1].Content}
	})
}

func newTestService(t *testing.T, asker Asker) *Service {
	t.Helper()
	return NewService(newTestStore(t), asker, quietLogger())
}

func TestSend_RecordsConversation(t *testing.T) {
	var seen [][]protocol.Turn
	svc := newTestService(t, echoAsker(&seen))
	ctx := context.Background()

	sess, err := svc.Create(ctx, "", "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Send(ctx, sess.ID, "open incidents?"); err != nil {
		t.Fatalf("send: %v", err)
	}
	reply, err := svc.Send(ctx, sess.ID, "  and problems?  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Text != "answer to and problems?" {
		t.Errorf("reply = %+v", reply)
	}

	if len(seen) != 2 || len(seen[1]) != 3 {
		t.Fatalf("expected the second ask to carry 3 turns, got %v", seen)
	}
	if seen[1][0].Content != "open incidents?" || seen[1][1].Role != protocol.RoleAssistant {
		t.Errorf("history = %+v", seen[1])
	}

	got, _ := svc.Get(ctx, sess.ID)
	if len(got.Turns) != 4 {
		t.Fatalf("expected 4 stored turns, got %d", len(got.Turns))
	}
	if got.Title != "open incidents?" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestSend_FailedReplyStoredAsErrorTurn(t *testing.T) {
	svc := newTestService(t, askerFunc(func(context.Context, []protocol.Turn) protocol.Reply {
		return protocol.Reply{Error: "redmine: GET /issues.json: status 500: boom"}
	}))
	ctx := context.Background()
	sess, _ := svc.Create(ctx, "Reports", "", "")

	reply, err := svc.Send(ctx, sess.ID, "issues?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !reply.Failed() {
		t.Fatalf("expected failed reply")
	}
	got, _ := svc.Get(ctx, sess.ID)
	last := got.Turns[len(got.Turns)-1]
	if last.Role != protocol.RoleError || !strings.Contains(last.Content, "status 500") {
		t.Errorf("last turn = %+v", last)
	}
	if got.Title != "Reports" {
		t.Errorf("explicit title should be kept, got %q", got.Title)
	}
}

func TestSend_Errors(t *testing.T) {
	var seen [][]protocol.Turn
	svc := newTestService(t, echoAsker(&seen))
	ctx := context.Background()

	if _, err := svc.Send(ctx, "missing", "hi"); !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
	sess, _ := svc.Create(ctx, "", "", "")
	if _, err := svc.Send(ctx, sess.ID, "   "); !apperr.Is(err, apperr.CodeInvalidInput) {
		t.Errorf("expected invalid_input, got %v", err)
	}
	if len(seen) != 0 {
		t.Error("asker must not be called for rejected messages")
	}
}

func TestSend_BusySession(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	svc := newTestService(t, askerFunc(func(context.Context, []protocol.Turn) protocol.Reply {
		close(entered)
		<-release
		return protocol.Reply{Text: "done"}
	}))
	ctx := context.Background()
	sess, _ := svc.Create(ctx, "", "", "")
	other, _ := svc.Create(ctx, "", "", "")

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = svc.Send(ctx, sess.ID, "slow question")
	}()
	<-entered

	_, err := svc.Send(ctx, sess.ID, "impatient question")
	if !apperr.Is(err, apperr.CodeBusy) {
		t.Errorf("expected busy, got %v", err)
	}
	if !svc.acquire(other.ID) {
		t.Error("other sessions must not be blocked")
	}
	svc.release(other.ID)

	close(release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first send: %v", firstErr)
	}
	if !svc.acquire(sess.ID) {
		t.Error("session should be free after the reply")
	}
}

func TestForChatAndReset(t *testing.T) {
	var seen [][]protocol.Turn
	svc := newTestService(t, echoAsker(&seen))
	ctx := context.Background()

	first, err := svc.ForChat(ctx, "telegram", "42")
	if err != nil {
		t.Fatalf("for chat: %v", err)
	}
	again, _ := svc.ForChat(ctx, "telegram", "42")
	if again.ID != first.ID {
		t.Errorf("expected the same session, got %s and %s", first.ID, again.ID)
	}

	if _, err := svc.SendChat(ctx, "telegram", "42", "hello"); err != nil {
		t.Fatalf("send chat: %v", err)
	}

	fresh, err := svc.Reset(ctx, "telegram", "42")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if fresh.ID == first.ID {
		t.Fatal("reset should start a new session")
	}
	current, _ := svc.ForChat(ctx, "telegram", "42")
	if current.ID != fresh.ID || len(current.Turns) != 0 {
		t.Errorf("expected the fresh empty session, got %s with %d turns", current.ID, len(current.Turns))
	}

	list, _ := svc.List(ctx, Filter{Channel: "telegram", ChatID: "42"})
	if len(list) != 2 {
		t.Errorf("expected 2 sessions for the chat, got %d", len(list))
	}
}

func TestTitleFrom(t *testing.T) {
	if got := titleFrom("short\nsecond line"); got != "short" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("é", 70)
	got := titleFrom(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != titleLimit+3 {
		t.Errorf("got %q", got)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
