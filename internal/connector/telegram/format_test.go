package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestMarkdownToTelegramHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Just plain text, nothing special.", "Just plain text, nothing special."},
		{"bold", "This is **bold** text", "This is <b>bold</b> text"},
		{"italic", "This is *italic* text", "This is <i>italic</i> text"},
		{"bold and italic", "**bold** and *italic*", "<b>bold</b> and <i>italic</i>"},
		{"strike", "~~closed~~ reopened", "<s>closed</s> reopened"},
		{"inline code", "Query `state=1^priority=1` now", "Query <code>state=1^priority=1</code> now"},
		{"code keeps stars", "`a*b*c`", "<code>a*b*c</code>"},
		{"link", "See [INC0010001](https://acme.service-now.com/incident.do)", `See <a href="https://acme.service-now.com/incident.do">INC0010001</a>`},
		{"escaping", "Use <script> & tags", "Use &lt;script&gt; &amp; tags"},
		{"heading", "## Open incidents", "<b>Open incidents</b>"},
		{"bullets", "- INC1\n* INC2", "• INC1\n• INC2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarkdownToTelegramHTML(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCodeBlocks(t *testing.T) {
	got := MarkdownToTelegramHTML("```html\n<div>test</div>\n```")
	if got != `<pre><code class="language-html">&lt;div&gt;test&lt;/div&gt;</code></pre>` {
		t.Errorf("got %q", got)
	}
	got = MarkdownToTelegramHTML("```\nhello\n```")
	if got != "<pre><code>hello</code></pre>" {
		t.Errorf("got %q", got)
	}
	got = MarkdownToTelegramHTML("```\nunterminated")
	if !strings.HasSuffix(got, "</code></pre>") {
		t.Errorf("unterminated block should be closed, got %q", got)
	}
}

func TestTablesBecomePre(t *testing.T) {
	got := MarkdownToTelegramHTML("| # | Subject |\n|---|---|\n| 12 | VPN <down> |")
	if !strings.HasPrefix(got, "<pre><code>") || !strings.HasSuffix(got, "</code></pre>") {
		t.Errorf("expected a pre block, got %q", got)
	}
	if !strings.Contains(got, "VPN &lt;down&gt;") {
		t.Errorf("table cells should be escaped, got %q", got)
	}
}

func TestStripMarkdown(t *testing.T) {
	got := StripMarkdown("# Report\n**bold** and *italic* with `code` and [link](https://example.com)")
	want := "Report\nbold and italic with code and link (https://example.com)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSplitMessage(t *testing.T) {
	if got := SplitMessage("short", 100); len(got) != 1 || got[0] != "short" {
		t.Errorf("got %q", got)
	}

	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, strings.Repeat("x", 9))
	}
	chunks := SplitMessage(strings.Join(lines, "\n"), 50)
	if len(chunks) != 6 {
		t.Fatalf("expected 6 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 50 {
			t.Errorf("chunk too long: %d", utf8.RuneCountInString(c))
		}
	}
	if got := strings.Join(chunks, "\n"); got != strings.Join(lines, "\n") {
		t.Error("chunks should rejoin to the original text")
	}
}

func TestSplitMessage_ReopensFence(t *testing.T) {
	md := "```\n" + strings.Repeat("row\n", 20) + "```"
	chunks := SplitMessage(md, 30)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if strings.Count(c, "```")%2 != 0 {
			t.Errorf("chunk %d has an unbalanced fence: %q", i, c)
		}
	}
}

func TestSplitMessage_LongLine(t *testing.T) {
	chunks := SplitMessage(strings.Repeat("é", 25), 10)
	if len(chunks) != 3 || chunks[2] != strings.Repeat("é", 5) {
		t.Errorf("got %q", chunks)
	}
}
