package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/ebrain-io/ebrain/internal/catalog"
	"github.com/ebrain-io/ebrain/internal/tool"
)

// BuildSystemPrompt assembles the system prompt: identity and instructions,
// current time, answer language, tools, and ServiceNow reference material.
func (a *Agent) BuildSystemPrompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Assistant: %s\n\n", a.Spec.ID)
	instructions := a.Spec.Instructions
	if instructions == "" {
		instructions = DefaultInstructions
	}
	b.WriteString(instructions)
	b.WriteString("\n\n")

	now := a.Now
	if now == nil {
		now = time.Now
	}
	fmt.Fprintf(&b, "# Current Time\n%s\n\n", now().Format("2006-01-02 15:04:05 MST"))

	if a.Spec.Language != "" {
		fmt.Fprintf(&b, "# Language\nAlways answer in %s.\n\n", a.Spec.Language)
	}

	if a.Tools.Len() > 0 {
		b.WriteString("# Available Tools\n")
		for _, d := range a.Tools.Definitions() {
			desc, _, _ := strings.Cut(d.Description, "\n")
			fmt.Fprintf(&b, "- **%s**: %s\n", d.Name, desc)
		}
		b.WriteString("\n")
	}

	b.WriteString("# ServiceNow\n")
	b.WriteString(tool.QuerySyntax)
	b.WriteString("\n\nCommon fields per table:\n")
	b.WriteString(catalog.DescribeAll())
	b.WriteString("\n\n")

	b.WriteString("# Rules\n")
	b.WriteString("- Use tools to look up facts instead of guessing record numbers or states.\n")
	b.WriteString("- Before creating, updating or deleting anything, make sure the user asked for it.\n")
	b.WriteString("- Quote ticket numbers (INC..., PRB..., CHG..., #id) exactly as returned.\n")
	b.WriteString("- Be concise. Use Markdown lists or tables for multiple records.\n")

	return b.String()
}
