package slackconn

import (
	"strings"
	"testing"

	"github.com/ebrain-io/ebrain/internal/connector"
)

// Verify Connector implements connector.Connector at compile time.
var _ connector.Connector = (*Connector)(nil)

func TestMarkdownToMrkdwn(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bold", "This is **bold** text", "This is *bold* text"},
		{"italic", "This is *italic* text", "This is _italic_ text"},
		{"bold and italic", "**bold** and *italic*", "*bold* and _italic_"},
		{"strikethrough", "~~deleted~~ text", "~deleted~ text"},
		{"links", "Click [here](https://example.com) now", "Click <https://example.com|here> now"},
		{"heading", "## Open incidents", "*Open incidents*"},
		{"inline code untouched", "Use `**not bold**` here", "Use `**not bold**` here"},
		{"code block untouched", "```\n**x** [a](b)\n```", "```\n**x** [a](b)\n```"},
		{"plain", "Nothing to see.", "Nothing to see."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarkdownToMrkdwn(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarkdownToMrkdwn_Table(t *testing.T) {
	got := MarkdownToMrkdwn("| Number | Priority |\n|---|---|\n| PRB0040002 | **1** |")
	if !strings.HasPrefix(got, "```\n") || !strings.HasSuffix(got, "\n```") {
		t.Errorf("expected a code block, got %q", got)
	}
	if !strings.Contains(got, "PRB0040002") {
		t.Errorf("cell missing: %q", got)
	}
}

func TestStripMention(t *testing.T) {
	if got := StripMention("<@U123> list open incidents", "U123"); got != "list open incidents" {
		t.Errorf("got %q", got)
	}
	if got := StripMention("no mention", "U123"); got != "no mention" {
		t.Errorf("got %q", got)
	}
}

func TestChatID(t *testing.T) {
	id := JoinChatID("C42", "1712345678.000100")
	if id != "C42:1712345678.000100" {
		t.Errorf("JoinChatID = %q", id)
	}
	if ch, th := SplitChatID(id); ch != "C42" || th != "1712345678.000100" {
		t.Errorf("SplitChatID = %q %q", ch, th)
	}
	if ch, th := SplitChatID("D7"); ch != "D7" || th != "" {
		t.Errorf("SplitChatID = %q %q", ch, th)
	}
	if JoinChatID("D7", "") != "D7" {
		t.Error("no thread should give the bare channel")
	}
}

func TestThreadOf(t *testing.T) {
	if threadOf("111.1", "222.2") != "111.1" {
		t.Error("existing thread wins")
	}
	if threadOf("", "222.2") != "222.2" {
		t.Error("a top-level mention starts a thread")
	}
}

func TestSlashText(t *testing.T) {
	for in, want := range map[string]string{
		"":                  "/help",
		" NEW ":             "/new",
		"help":              "/help",
		"open P1 incidents": "open P1 incidents",
	} {
		if got := SlashText(in); got != want {
			t.Errorf("SlashText(%q) = %q, want %q", in, got, want)
		}
	}
}
