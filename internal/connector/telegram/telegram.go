package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ebrain-io/ebrain/internal/connector"
)

// Name is the connector and session channel name.
const Name = "telegram"

// Config holds Telegram connector configuration.
type Config struct {
	Token     string  // Bot token from @BotFather
	AllowFrom []int64 // Allowed Telegram user IDs (empty = allow all)
}

// Connector implements the connector.Connector interface for Telegram.
type Connector struct {
	bot     *tgbotapi.BotAPI
	config  Config
	handler connector.InboundHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// New creates a new Telegram connector.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("telegram bot authorized", "username", bot.Self.UserName)

	return &Connector{
		bot:     bot,
		config:  cfg,
		handler: handler,
		logger:  logger,
	}, nil
}

func (c *Connector) Name() string { return Name }

// Start begins long-polling for updates. Blocks until context is cancelled.
// Each message is answered on its own goroutine so a slow answer in one chat
// does not hold up the others.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := c.bot.GetUpdatesChan(u)

	c.logger.Info("telegram connector started", "bot", c.bot.Self.UserName)
	for {
		select {
		case update := <-updates:
			msg, ok := c.inbound(update)
			if !ok {
				continue
			}
			c.bot.Send(tgbotapi.NewChatAction(update.Message.Chat.ID, tgbotapi.ChatTyping))
			go func() {
				if err := c.handler(ctx, msg); err != nil {
					c.logger.Error("inbound handler error", "chat_id", msg.ChatID, "error", err)
				}
			}()

		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.logger.Info("telegram connector stopped")
			return ctx.Err()
		}
	}
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send delivers a message to a Telegram chat, split into chunks that fit
// the message size limit.
func (c *Connector) Send(_ context.Context, msg connector.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat_id %q: %w", msg.ChatID, err)
	}
	if strings.TrimSpace(msg.Content) == "" {
		c.logger.Warn("skipping empty message", "chat_id", msg.ChatID)
		return nil
	}

	for _, chunk := range SplitMessage(msg.Content, maxChunk) {
		tgMsg := tgbotapi.NewMessage(chatID, MarkdownToTelegramHTML(chunk))
		tgMsg.ParseMode = tgbotapi.ModeHTML
		tgMsg.DisableWebPagePreview = true

		if _, err := c.bot.Send(tgMsg); err != nil {
			c.logger.Warn("HTML send failed, falling back to plain text", "chat_id", msg.ChatID, "error", err)
			tgMsg.Text = StripMarkdown(chunk)
			tgMsg.ParseMode = ""
			if _, err := c.bot.Send(tgMsg); err != nil {
				return fmt.Errorf("telegram: send: %w", err)
			}
		}
	}
	return nil
}

// inbound converts an update into an InboundMessage. Updates without text
// and senders outside AllowFrom are dropped.
func (c *Connector) inbound(update tgbotapi.Update) (connector.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.From == nil {
		return connector.InboundMessage{}, false
	}
	if !allowed(c.config.AllowFrom, m.From.ID) {
		c.logger.Warn("unauthorized user", "user_id", m.From.ID, "username", m.From.UserName)
		return connector.InboundMessage{}, false
	}
	text := messageText(m)
	if text == "" {
		return connector.InboundMessage{}, false
	}
	return connector.InboundMessage{
		Channel:  Name,
		SenderID: strconv.FormatInt(m.From.ID, 10),
		ChatID:   strconv.FormatInt(m.Chat.ID, 10),
		Content:  text,
	}, true
}

// messageText returns the text or caption of m. Commands keep their
// leading slash; the router interprets them.
func messageText(m *tgbotapi.Message) string {
	if m.Text != "" {
		return strings.TrimSpace(m.Text)
	}
	return strings.TrimSpace(m.Caption)
}

func allowed(ids []int64, id int64) bool {
	return len(ids) == 0 || slices.Contains(ids, id)
}
