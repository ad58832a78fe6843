package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ebrain-io/ebrain/internal/catalog"
	"github.com/ebrain-io/ebrain/internal/connector"
	"github.com/ebrain-io/ebrain/internal/scheduler"
	"github.com/ebrain-io/ebrain/internal/servicenow"
	"github.com/ebrain-io/ebrain/internal/session"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the operations the assistant may use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ops := operations(cfg)
			if flags.json {
				out := make([]map[string]any, 0, len(ops))
				for _, op := range ops {
					out = append(out, map[string]any{
						"name":         op.Name,
						"agent_name":   op.AgentName,
						"description":  op.Description,
						"read_only":    op.ReadOnly,
						"input_schema": op.Schema.JSONSchema(),
					})
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			renderOperations(cmd.OutOrStdout(), ops)
			return nil
		},
	}
}

func fieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields [table...]",
		Short: "Show the catalogued ServiceNow fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			tables := args
			if len(tables) == 0 {
				tables = catalog.Tables()
			}
			if flags.json {
				out := make(map[string][]string, len(tables))
				for _, t := range tables {
					out[t] = catalog.FieldsFor(t)
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			renderFields(cmd.OutOrStdout(), tables)
			return nil
		},
	}
}

func recordsCmd() *cobra.Command {
	var (
		query   string
		limit   int
		fields  string
		columns string
		display bool
	)
	cmd := &cobra.Command{
		Use:   "records <table>",
		Short: "Query a ServiceNow table",
		Example: `  ebrain records incident --query "active=true^priority=1"
  ebrain records change_request --limit 5 --columns number,short_description,risk`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			table := args[0]
			q := servicenow.Query{Query: query, Limit: limit, DisplayValue: &display}
			if fields != "" {
				q.Fields = splitList(fields)
			} else {
				q.Fields = catalog.FieldsFor(table)
			}

			client := servicenow.New(servicenow.Config{
				Instance:    cfg.ServiceNow.Instance,
				Username:    cfg.ServiceNow.Username,
				Password:    cfg.ServiceNow.Password,
				AccessToken: cfg.ServiceNow.AccessToken,
			})
			payload, err := client.GetRecords(cmd.Context(), table, q)
			if err != nil {
				return err
			}
			records, err := servicenow.DecodeRecords(payload)
			if err != nil {
				return err
			}
			if flags.json {
				return printJSON(cmd.OutOrStdout(), records)
			}

			cols := defaultColumns
			switch {
			case columns != "":
				cols = splitList(columns)
			case fields != "":
				cols = q.Fields
			}
			renderRecords(cmd.OutOrStdout(), records, cols)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "encoded query, e.g. active=true^priority=1")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of records")
	cmd.Flags().StringVar(&fields, "fields", "", "comma-separated fields to fetch (default: catalog fields)")
	cmd.Flags().StringVar(&columns, "columns", "", "comma-separated columns to show")
	cmd.Flags().BoolVar(&display, "display-value", true, "resolve reference and choice fields")
	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored conversations",
	}

	var filter session.Filter
	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(func(store *session.SQLiteStore) error {
				sessions, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if flags.json {
					return printJSON(cmd.OutOrStdout(), sessions)
				}
				renderSessions(cmd.OutOrStdout(), sessions)
				return nil
			})
		},
	}
	list.Flags().StringVar(&filter.Channel, "channel", "", "only this channel (cli, telegram, slack, api)")
	list.Flags().StringVar(&filter.ChatID, "chat", "", "only this chat id")
	list.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "maximum number of sessions")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *session.SQLiteStore) error {
				sess, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if flags.json {
					return printJSON(cmd.OutOrStdout(), sess)
				}
				printTranscript(newTerminal(cmd.OutOrStdout()), sess)
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *session.SQLiteStore) error {
				if err := store.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func withStore(fn func(*session.SQLiteStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := session.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func printTranscript(term *terminal, sess *session.Session) {
	title := sess.Title
	if title == "" {
		title = "(untitled)"
	}
	term.note(fmt.Sprintf("%s  %s  %s/%s", sess.ID, title, sess.Channel, sess.ChatID))
	for _, t := range sess.Turns {
		switch t.Role {
		case protocol.RoleUser:
			fmt.Fprintln(term.out, term.style(promptStyle, "you> ")+t.Content)
		case protocol.RoleError:
			term.reply(protocol.Reply{Error: t.Content})
		default:
			term.markdown(t.Content)
		}
	}
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect and trigger scheduled reports",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List configured schedules and their next run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, _ := newLogger(cfg.Log, io.Discard, "text")
			sched, err := newScheduler(cfg, nil, nil, logger)
			if err != nil {
				return err
			}
			if flags.json {
				return printJSON(cmd.OutOrStdout(), sched.Entries())
			}
			renderEntries(cmd.OutOrStdout(), sched.Entries())
			return nil
		},
	}

	var deliver bool
	run := &cobra.Command{
		Use:   "run <name>",
		Short: "Run a schedule now and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger, _ := newLogger(cfg.Log, os.Stderr, "text")

			asst, err := newAssistant(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer asst.Close()

			out := &printDeliverer{term: newTerminal(cmd.OutOrStdout())}
			var target scheduler.Deliverer = out
			if deliver {
				if err := cfg.ValidateSchedules(); err != nil {
					return err
				}
				router := connector.NewRouter(nil, logger.With("component", "router"))
				connectors, err := newConnectors(cfg, router.Handle, logger)
				if err != nil {
					return err
				}
				for _, c := range connectors {
					router.Attach(c.Name(), c)
				}
				target = router
			}

			sched, err := newScheduler(cfg, asst.boundary, target, logger)
			if err != nil {
				return err
			}
			return sched.RunNamed(ctx, args[0])
		},
	}
	run.Flags().BoolVar(&deliver, "deliver", false, "post the report to its chat instead of printing it")

	cmd.AddCommand(list, run)
	return cmd
}

// printDeliverer writes reports to the terminal instead of a chat.
type printDeliverer struct {
	term *terminal
}

func (p *printDeliverer) Deliver(_ context.Context, channel, chatID, content string) error {
	p.term.note(fmt.Sprintf("-> %s %s", channel, chatID))
	p.term.markdown(content)
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Check the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateProvider(); err != nil {
				return err
			}
			if err := cfg.ValidateSchedules(); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "configuration OK\n")
			fmt.Fprintf(w, "  assistant:   %s (%s %s)\n", cfg.Assistant.ID, cfg.Provider.Type, cfg.Provider.Model)
			fmt.Fprintf(w, "  redmine:     %s\n", cfg.Redmine.URL)
			fmt.Fprintf(w, "  servicenow:  %s\n", servicenow.BaseURL(cfg.ServiceNow.Instance))
			fmt.Fprintf(w, "  operations:  %d\n", len(operations(cfg)))
			fmt.Fprintf(w, "  schedules:   %d\n", len(cfg.Schedules))
			fmt.Fprintf(w, "  telegram:    %t, slack: %t\n", cfg.Connectors.Telegram.Enabled(), cfg.Connectors.Slack.Enabled())
			return nil
		},
	})
	return cmd
}
