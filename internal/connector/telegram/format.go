package telegram

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ebrain-io/ebrain/internal/connector"
)

// maxChunk keeps converted messages under Telegram's 4096 character limit,
// leaving room for the HTML tags added by conversion.
const maxChunk = 3500

var (
	reInlineCode = regexp.MustCompile("`([^`\n]+)`")
	reBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic     = regexp.MustCompile(`(^|[^*\w])\*([^*\s][^*]*?)\*`)
	reStrike     = regexp.MustCompile(`~~(.+?)~~`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	reHeading    = regexp.MustCompile(`^#{1,6}\s+(.*)$`)
	reBullet     = regexp.MustCompile(`^(\s*)[-*+]\s+`)
)

// MarkdownToTelegramHTML converts the assistant's Markdown to Telegram's HTML
// subset. Tables become preformatted blocks, headings become bold lines.
func MarkdownToTelegramHTML(md string) string {
	lines := strings.Split(connector.FenceTables(md), "\n")
	out := make([]string, 0, len(lines))
	var code []string
	inCode := false
	lang := ""

	for _, line := range lines {
		if fence, ok := strings.CutPrefix(strings.TrimSpace(line), "```"); ok {
			if !inCode {
				inCode, lang, code = true, strings.TrimSpace(fence), nil
				continue
			}
			out = append(out, preBlock(lang, code))
			inCode = false
			continue
		}
		if inCode {
			code = append(code, line)
			continue
		}
		out = append(out, inlineHTML(line))
	}
	if inCode {
		out = append(out, preBlock(lang, code))
	}
	return strings.Join(out, "\n")
}

func preBlock(lang string, code []string) string {
	body := html.EscapeString(strings.Join(code, "\n"))
	if lang == "" {
		return "<pre><code>" + body + "</code></pre>"
	}
	return `<pre><code class="language-` + html.EscapeString(lang) + `">` + body + "</code></pre>"
}

func inlineHTML(line string) string {
	if m := reHeading.FindStringSubmatch(line); m != nil {
		return "<b>" + inlineHTML(m[1]) + "</b>"
	}
	line = reBullet.ReplaceAllString(line, "${1}• ")

	// Code spans are cut out first so their content is not formatted.
	var spans []string
	line = reInlineCode.ReplaceAllStringFunc(line, func(m string) string {
		spans = append(spans, "<code>"+html.EscapeString(reInlineCode.FindStringSubmatch(m)[1])+"</code>")
		return "\x00" + string(rune('0'+len(spans)-1)) + "\x00"
	})

	line = escape(line)
	line = reBold.ReplaceAllString(line, "<b>$1</b>")
	line = reItalic.ReplaceAllString(line, "$1<i>$2</i>")
	line = reStrike.ReplaceAllString(line, "<s>$1</s>")
	line = reLink.ReplaceAllString(line, `<a href="$2">$1</a>`)

	for i, s := range spans {
		line = strings.Replace(line, "\x00"+string(rune('0'+i))+"\x00", s, 1)
	}
	return line
}

// escape escapes the characters Telegram's HTML parser requires. Quotes are
// left alone so plain text reads naturally.
func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

// StripMarkdown removes Markdown formatting, for the plain-text fallback.
func StripMarkdown(md string) string {
	md = connector.FenceTables(md)
	var out []string
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		if m := reHeading.FindStringSubmatch(line); m != nil {
			line = m[1]
		}
		line = reInlineCode.ReplaceAllString(line, "$1")
		line = reBold.ReplaceAllString(line, "$1")
		line = reItalic.ReplaceAllString(line, "$1$2")
		line = reStrike.ReplaceAllString(line, "$1")
		line = reLink.ReplaceAllString(line, "$1 ($2)")
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// SplitMessage cuts md into chunks of at most limit runes at line
// boundaries. A code fence open at a cut is closed and reopened so each
// chunk renders on its own. A single line longer than limit is hard-split.
func SplitMessage(md string, limit int) []string {
	if utf8.RuneCountInString(md) <= limit {
		return []string{md}
	}

	var chunks []string
	var cur []string
	size := 0
	fence := "" // opening fence line while inside a code block

	flush := func() {
		if len(cur) == 0 {
			return
		}
		if fence != "" {
			cur = append(cur, "```")
		}
		chunks = append(chunks, strings.Join(cur, "\n"))
		cur, size = nil, 0
		if fence != "" {
			cur, size = []string{fence}, utf8.RuneCountInString(fence)+1
		}
	}

	for _, line := range strings.Split(md, "\n") {
		for utf8.RuneCountInString(line) > limit {
			r := []rune(line)
			flush()
			chunks = append(chunks, string(r[:limit]))
			line = string(r[limit:])
		}
		n := utf8.RuneCountInString(line) + 1
		reserve := 0
		if fence != "" {
			reserve = len("\n```")
		}
		if size+n+reserve > limit {
			flush()
		}
		cur = append(cur, line)
		size += n
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if fence == "" {
				fence = strings.TrimSpace(line)
			} else {
				fence = ""
			}
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, "\n"))
	}
	return chunks
}
