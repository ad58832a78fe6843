package slackconn

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/ebrain-io/ebrain/internal/connector"
)

// Name is the connector and session channel name.
const Name = "slack"

// Config holds Slack connector configuration.
type Config struct {
	BotToken  string   // xoxb-... Bot User OAuth Token
	AppToken  string   // xapp-... App-Level Token (for Socket Mode)
	AllowFrom []string // Optional: only answer these user IDs (empty = all)
}

// Connector implements connector.Connector for Slack via Socket Mode.
type Connector struct {
	api     *slack.Client
	socket  *socketmode.Client
	config  Config
	handler connector.InboundHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
	botID   string
}

// New creates a new Slack connector.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: app_token is required (Socket Mode)")
	}
	if logger == nil {
		logger = slog.Default()
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}
	logger.Info("slack bot authorized", "user", authResp.User, "team", authResp.Team)

	return &Connector{
		api:     api,
		socket:  socketmode.New(api),
		config:  cfg,
		handler: handler,
		logger:  logger,
		botID:   authResp.UserID,
	}, nil
}

func (c *Connector) Name() string { return Name }

// Start begins listening for events via Socket Mode. Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	go c.handleEvents(ctx)

	c.logger.Info("slack connector started (socket mode)")
	return c.socket.RunContext(ctx)
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send posts a message to a channel, or into a thread when the chat ID
// carries a thread timestamp ("C123:1712345678.000100").
func (c *Connector) Send(ctx context.Context, msg connector.OutboundMessage) error {
	channel, thread := SplitChatID(msg.ChatID)
	opts := []slack.MsgOption{slack.MsgOptionText(MarkdownToMrkdwn(msg.Content), false)}
	if thread != "" {
		opts = append(opts, slack.MsgOptionTS(thread))
	}
	if _, _, err := c.api.PostMessageContext(ctx, channel, opts...); err != nil {
		return fmt.Errorf("slack: send message: %w", err)
	}
	return nil
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.socket.Events:
			switch event.Type {
			case socketmode.EventTypeEventsAPI:
				c.handleEventsAPI(ctx, event)
			case socketmode.EventTypeSlashCommand:
				c.handleSlashCommand(ctx, event)
			}
		}
	}
}

func (c *Connector) handleEventsAPI(ctx context.Context, event socketmode.Event) {
	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	c.socket.Ack(*event.Request)

	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Only direct messages; channel traffic must mention the bot.
		if ev.ChannelType != "im" || ev.BotID != "" || ev.SubType != "" || ev.User == c.botID {
			return
		}
		c.dispatch(ctx, ev.User, ev.Channel, ev.ThreadTimeStamp, ev.Text)
	case *slackevents.AppMentionEvent:
		if ev.User == c.botID {
			return
		}
		c.dispatch(ctx, ev.User, ev.Channel, threadOf(ev.ThreadTimeStamp, ev.TimeStamp), StripMention(ev.Text, c.botID))
	}
}

func (c *Connector) handleSlashCommand(ctx context.Context, event socketmode.Event) {
	cmd, ok := event.Data.(slack.SlashCommand)
	if !ok {
		return
	}
	c.socket.Ack(*event.Request)
	c.dispatch(ctx, cmd.UserID, cmd.ChannelID, "", SlashText(cmd.Text))
}

// dispatch hands a message to the inbound handler on its own goroutine.
// Socket Mode expects the event loop to keep draining.
func (c *Connector) dispatch(ctx context.Context, user, channel, thread, text string) {
	if text == "" || user == "" {
		return
	}
	if len(c.config.AllowFrom) > 0 && !slices.Contains(c.config.AllowFrom, user) {
		c.logger.Warn("unauthorized user", "user", user, "channel", channel)
		return
	}
	msg := connector.InboundMessage{
		Channel:  Name,
		SenderID: user,
		ChatID:   JoinChatID(channel, thread),
		Content:  text,
	}
	go func() {
		if err := c.handler(ctx, msg); err != nil {
			c.logger.Error("slack inbound handler error", "chat_id", msg.ChatID, "user", user, "error", err)
		}
	}()
}

// threadOf picks the thread a mention should be answered in: the existing
// thread, or a new one under the mention itself.
func threadOf(threadTS, ts string) string {
	if threadTS != "" {
		return threadTS
	}
	return ts
}

// JoinChatID builds the session chat ID for a channel and optional thread.
func JoinChatID(channel, thread string) string {
	if thread == "" {
		return channel
	}
	return channel + ":" + thread
}

// SplitChatID reverses JoinChatID.
func SplitChatID(chatID string) (channel, thread string) {
	channel, thread, _ = strings.Cut(chatID, ":")
	return channel, thread
}

// SlashText maps "/ebrain new" style arguments onto router commands. Plain
// arguments are questions; no arguments asks for help.
func SlashText(args string) string {
	args = strings.TrimSpace(args)
	switch strings.ToLower(args) {
	case "":
		return "/help"
	case "new", "help":
		return "/" + strings.ToLower(args)
	}
	return args
}

// StripMention removes the <@BOTID> mention from message text.
func StripMention(text, botID string) string {
	return strings.TrimSpace(strings.Replace(text, "<@"+botID+">", "", 1))
}

var (
	reBold    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic  = regexp.MustCompile(`(^|[^*\w])\*([^*\s][^*]*?)\*`)
	reStrike  = regexp.MustCompile(`~~(.+?)~~`)
	reLink    = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	reHeading = regexp.MustCompile(`^#{1,6}\s+(.*)$`)
	reCode    = regexp.MustCompile("`[^`\n]+`")
)

// MarkdownToMrkdwn converts the assistant's Markdown to Slack mrkdwn.
// Tables become code blocks and headings become bold lines; code is left
// untouched.
func MarkdownToMrkdwn(md string) string {
	lines := strings.Split(connector.FenceTables(md), "\n")
	inCode := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCode = !inCode
			continue
		}
		if inCode {
			continue
		}
		lines[i] = mrkdwnLine(line)
	}
	return strings.Join(lines, "\n")
}

func mrkdwnLine(line string) string {
	heading := false
	if m := reHeading.FindStringSubmatch(line); m != nil {
		line, heading = m[1], true
	}

	// Format only the text between code spans.
	var b strings.Builder
	last := 0
	for _, loc := range reCode.FindAllStringIndex(line, -1) {
		b.WriteString(mrkdwnText(line[last:loc[0]]))
		b.WriteString(line[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(mrkdwnText(line[last:]))

	if heading {
		return "*" + strings.Trim(b.String(), "*") + "*"
	}
	return b.String()
}

func mrkdwnText(s string) string {
	// Italic first: bold markers would otherwise look like italic ones.
	s = reItalic.ReplaceAllString(s, "${1}_${2}_")
	s = reBold.ReplaceAllString(s, "*$1*")
	s = reStrike.ReplaceAllString(s, "~$1~")
	s = reLink.ReplaceAllString(s, "<$2|$1>")
	return s
}
