package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// PushGateway delivers push notifications as Telegram bot messages.
type PushGateway struct {
	bot    sender
	chats  map[string]int64
	logger *slog.Logger
}

var _ ports.ChannelGateway = (*PushGateway)(nil)

// NewPushGateway authenticates the bot. chats maps recipient identifiers to
// Telegram chat ids; recipients that are numeric are used as chat ids directly.
func NewPushGateway(token string, chats map[string]int64, logger *slog.Logger) (*PushGateway, error) {
	if token == "" {
		return nil, errors.New("telegram push: bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newPushGateway(bot, chats, logger), nil
}

func newPushGateway(bot sender, chats map[string]int64, logger *slog.Logger) *PushGateway {
	if chats == nil {
		chats = map[string]int64{}
	}
	return &PushGateway{bot: bot, chats: chats, logger: logger}
}

func (g *PushGateway) Channel() domain.Channel { return domain.ChannelPush }

// Deliver sends the notification to every recipient with a known chat.
func (g *PushGateway) Deliver(ctx context.Context, n domain.Notification, recipients []string) (int, error) {
	text := formatMessage(n)

	sent := 0
	var errs []error
	for _, recipient := range recipients {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		chatID, ok := g.chatFor(recipient)
		if !ok {
			errs = append(errs, fmt.Errorf("no chat for recipient %s", recipient))
			continue
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if _, err := g.bot.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", recipient, err))
			continue
		}
		sent++
	}

	if len(errs) > 0 && g.logger != nil {
		g.logger.Warn("telegram delivery incomplete", "sent", sent, "failed", len(errs))
	}
	return sent, errors.Join(errs...)
}

func (g *PushGateway) chatFor(recipient string) (int64, bool) {
	if id, ok := g.chats[recipient]; ok {
		return id, true
	}
	id, err := strconv.ParseInt(recipient, 10, 64)
	return id, err == nil
}

func formatMessage(n domain.Notification) string {
	var b strings.Builder
	b.WriteString(n.Title)
	if n.Message != "" {
		b.WriteString("\n\n")
		b.WriteString(n.Message)
	}
	return b.String()
}
