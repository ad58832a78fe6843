package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ebrain-io/ebrain/internal/session"
	"github.com/ebrain-io/ebrain/pkg/protocol"
)

// cliChannel is the session channel of terminal conversations.
const cliChannel = "cli"

const chatHelp = `Commands:
  /new    start a new conversation
  /help   show this help
  /exit   quit`

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// chatSessions is the part of session.Service the REPL uses.
type chatSessions interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	ForChat(ctx context.Context, channel, chatID string) (*session.Session, error)
	Reset(ctx context.Context, channel, chatID string) (*session.Session, error)
	Send(ctx context.Context, id, content string) (protocol.Reply, error)
}

// terminal renders assistant output. Markdown goes through glamour; error
// turns are styled with lipgloss.
type terminal struct {
	out    io.Writer
	md     *glamour.TermRenderer
	styled bool
}

func newTerminal(out io.Writer) *terminal {
	t := &terminal{out: out, styled: isTerminal(out)}
	style := glamour.WithStandardStyle("notty")
	if t.styled {
		style = glamour.WithAutoStyle()
	}
	if r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(100)); err == nil {
		t.md = r
	}
	return t
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

func (t *terminal) style(s lipgloss.Style, text string) string {
	if !t.styled {
		return text
	}
	return s.Render(text)
}

func (t *terminal) reply(r protocol.Reply) {
	if r.Failed() {
		fmt.Fprintln(t.out, t.style(errorStyle, "Error: "+r.Error))
		return
	}
	t.markdown(r.Text)
}

func (t *terminal) markdown(text string) {
	if t.md != nil {
		if out, err := t.md.Render(text); err == nil {
			fmt.Fprint(t.out, out)
			return
		}
	}
	fmt.Fprintln(t.out, text)
}

func (t *terminal) note(text string) {
	fmt.Fprintln(t.out, t.style(dimStyle, text))
}

func (t *terminal) prompt() {
	fmt.Fprint(t.out, t.style(promptStyle, "you> "))
}

func chatCmd() *cobra.Command {
	var sessionID string
	var fresh bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in the terminal",
		Long: `chat keeps a conversation in the session store. Without --session it resumes
the latest terminal conversation of the current user.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			// Keep the conversation readable: only warnings unless -v.
			logCfg := cfg.Log
			if !flags.verbose {
				logCfg.Level = "warn"
			}
			logger, _ := newLogger(logCfg, os.Stderr, "text")

			asst, err := newAssistant(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer asst.Close()
			sessions, store, err := openSessions(cfg, asst.boundary, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			return runChat(ctx, sessions, cmd.InOrStdin(), newTerminal(cmd.OutOrStdout()), chatUser(), sessionID, fresh)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "resume this session id")
	cmd.Flags().BoolVar(&fresh, "new", false, "start a new conversation")
	return cmd
}

func chatUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

// runChat reads lines from in until EOF or /exit and sends each one into
// the session.
func runChat(ctx context.Context, sessions chatSessions, in io.Reader, term *terminal, user, sessionID string, fresh bool) error {
	var sess *session.Session
	var err error
	switch {
	case sessionID != "":
		sess, err = sessions.Get(ctx, sessionID)
	case fresh:
		sess, err = sessions.Reset(ctx, cliChannel, user)
	default:
		sess, err = sessions.ForChat(ctx, cliChannel, user)
	}
	if err != nil {
		return err
	}
	if n := len(sess.Turns); n > 0 {
		term.note(fmt.Sprintf("Resuming %s (%d turns). /new starts over.", sess.ID, n))
	} else {
		term.note("New conversation. /help lists commands.")
	}

	scanner := bufio.NewScanner(in)
	for {
		term.prompt()
		if !scanner.Scan() {
			fmt.Fprintln(term.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/help":
			term.note(chatHelp)
			continue
		case "/new":
			if sess, err = sessions.Reset(ctx, cliChannel, user); err != nil {
				return err
			}
			term.note("Started a new conversation.")
			continue
		}

		reply, err := sessions.Send(ctx, sess.ID, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			term.reply(protocol.Reply{Error: err.Error()})
			continue
		}
		term.reply(reply)
	}
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
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

			reply := asst.boundary.Ask(ctx, []protocol.Turn{{
				Role:    protocol.RoleUser,
				Content: strings.Join(args, " "),
			}})
			if reply.Failed() {
				return errors.New(reply.Error)
			}
			newTerminal(cmd.OutOrStdout()).markdown(reply.Text)
			return nil
		},
	}
}
