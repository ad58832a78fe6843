package connector

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// FenceTables replaces Markdown pipe tables with fenced code blocks holding
// an aligned plain-text rendering. Chat platforms show neither pipe tables
// nor HTML tables, but both keep code blocks monospaced.
func FenceTables(md string) string {
	lines := strings.Split(md, "\n")
	var out []string
	inFence := false

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}
		if inFence || i+1 >= len(lines) || !isTableRow(line) || !isDelimiterRow(lines[i+1]) {
			out = append(out, line)
			continue
		}

		header := splitRow(line)
		var rows [][]string
		j := i + 2
		for ; j < len(lines) && isTableRow(lines[j]); j++ {
			rows = append(rows, splitRow(lines[j]))
		}
		out = append(out, "```", renderTable(header, rows), "```")
		i = j - 1
	}
	return strings.Join(out, "\n")
}

func renderTable(header []string, rows [][]string) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(toRow(header))
	for _, r := range rows {
		t.AppendRow(toRow(r))
	}
	return t.Render()
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

func isTableRow(line string) bool {
	s := strings.TrimSpace(line)
	return strings.HasPrefix(s, "|") && strings.Count(s, "|") >= 2
}

func isDelimiterRow(line string) bool {
	if !isTableRow(line) {
		return false
	}
	for _, cell := range splitRow(line) {
		c := strings.Trim(cell, ":")
		if c == "" || strings.Trim(c, "-") != "" {
			return false
		}
	}
	return true
}

func splitRow(line string) []string {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, "|")
	s = strings.TrimSuffix(s, "|")
	cells := strings.Split(s, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}
