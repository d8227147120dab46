// Package telegram implements the Telegram channel: a long-poll source
// that normalizes group updates into chat events, and a sender with
// quote references and the native typing action.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/groupparrot/adapter"
	"github.com/hrygo/groupparrot/bot"
)

const pollTimeoutSeconds = 30

// Config holds the Telegram channel configuration.
type Config struct {
	BotToken string
}

// Channel is both an adapter.Source and a pipeline.Sender for Telegram.
type Channel struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

// New creates a Telegram channel.
func New(cfg Config, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	logger.Info("telegram bot authorized", slog.String("username", api.Self.UserName))
	return &Channel{bot: api, logger: logger}, nil
}

// Run long-polls updates and forwards group messages to the handler
// until ctx is cancelled.
func (c *Channel) Run(ctx context.Context, h adapter.EventHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds
	updates := c.bot.GetUpdatesChan(u)
	defer c.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			e := c.normalize(update)
			if e == nil {
				continue
			}
			h.HandleEvent(e)
		}
	}
}

// normalize maps one update to a chat event, or nil when it is not a
// group text message.
func (c *Channel) normalize(update tgbotapi.Update) *bot.ChatEvent {
	msg := update.Message
	if msg == nil {
		msg = update.EditedMessage
	}
	if msg == nil || msg.From == nil || msg.Text == "" {
		return nil
	}
	// Private chats are out of scope; the orchestrator speaks group.
	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
		return nil
	}

	fromBot := msg.From.ID == c.bot.Self.ID
	return &bot.ChatEvent{
		Platform:    bot.PlatformTelegram,
		GroupID:     strconv.FormatInt(msg.Chat.ID, 10),
		UserID:      strconv.FormatInt(msg.From.ID, 10),
		UserName:    displayName(msg.From),
		MessageID:   strconv.Itoa(msg.MessageID),
		RawText:     msg.Text,
		Timestamp:   time.Unix(int64(msg.Date), 0),
		MentionsBot: c.mentionsSelf(msg),
		FromBot:     fromBot,
	}
}

// mentionsSelf checks @username entities and direct reply-to-bot.
func (c *Channel) mentionsSelf(msg *tgbotapi.Message) bool {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil &&
		msg.ReplyToMessage.From.ID == c.bot.Self.ID {
		return true
	}
	self := "@" + c.bot.Self.UserName
	for _, ent := range msg.Entities {
		if ent.Type != "mention" {
			continue
		}
		mention := entityText(msg.Text, ent)
		if strings.EqualFold(mention, self) {
			return true
		}
	}
	return false
}

// entityText slices the entity out of the text. Telegram offsets are
// UTF-16 code units.
func entityText(text string, ent tgbotapi.MessageEntity) string {
	units := utf16.Encode([]rune(text))
	if ent.Offset < 0 || ent.Offset+ent.Length > len(units) {
		return ""
	}
	return string(utf16.Decode(units[ent.Offset : ent.Offset+ent.Length]))
}

// SendText sends one message, optionally quoting replyTo.
func (c *Channel) SendText(ctx context.Context, groupID, text, replyTo string) error {
	chatID, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", groupID, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if replyTo != "" {
		if id, err := strconv.Atoi(replyTo); err == nil {
			msg.ReplyToMessageID = id
		}
	}
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// NotifyTyping fires the native "typing" chat action; failures are only
// logged, typing is cosmetic.
func (c *Channel) NotifyTyping(ctx context.Context, groupID string) {
	chatID, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return
	}
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := c.bot.Request(action); err != nil {
		c.logger.Debug("telegram typing action failed", slog.String("error", err.Error()))
	}
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}
