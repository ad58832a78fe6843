package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ebrain-io/ebrain/internal/catalog"
	"github.com/ebrain-io/ebrain/internal/scheduler"
	"github.com/ebrain-io/ebrain/internal/servicenow"
	"github.com/ebrain-io/ebrain/internal/session"
	"github.com/ebrain-io/ebrain/internal/tool"
)

// defaultColumns are shown by "ebrain records" when --columns is not given.
var defaultColumns = []string{"number", "short_description", "state", "priority", "assigned_to"}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	return tw
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderOperations(w io.Writer, ops []tool.Operation) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Name", "Agent name", "Access", "Description"})
	for _, op := range ops {
		access := "write"
		if op.ReadOnly {
			access = "read"
		}
		tw.AppendRow(table.Row{op.Name, op.AgentName, access, op.Description})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 60}})
	tw.Render()
}

func renderFields(w io.Writer, tables []string) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Table", "Fields", "Names"})
	for _, t := range tables {
		fields := catalog.FieldsFor(t)
		tw.AppendRow(table.Row{t, len(fields), strings.Join(fields, ", ")})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 80}})
	tw.Render()
}

func renderRecords(w io.Writer, records []servicenow.Record, columns []string) {
	tw := newTable(w)
	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	tw.AppendHeader(header)
	for _, r := range records {
		row := make(table.Row, len(columns))
		for i, c := range columns {
			v, _ := r.Get(c)
			row[i] = v
		}
		tw.AppendRow(row)
	}
	tw.AppendFooter(table.Row{fmt.Sprintf("%d records", len(records))})
	tw.Render()
}

func renderSessions(w io.Writer, sessions []*session.Session) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Title", "Channel", "Chat", "Updated"})
	for _, s := range sessions {
		tw.AppendRow(table.Row{s.ID, s.Title, s.Channel, s.ChatID, s.UpdatedAt.Local().Format(time.DateTime)})
	}
	tw.Render()
}

func renderEntries(w io.Writer, entries []scheduler.Entry) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Name", "Schedule", "Channel", "Chat", "Next run"})
	for _, e := range entries {
		next := ""
		if !e.Next.IsZero() {
			next = e.Next.Local().Format(time.DateTime)
		}
		tw.AppendRow(table.Row{e.Name, e.Spec, e.Channel, e.ChatID, next})
	}
	tw.Render()
}
