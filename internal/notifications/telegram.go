package notifications

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender posts plain-text messages to one chat.
type TelegramSender struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	botName string
}

// NewTelegramSender authenticates the bot token (one getMe call). endpoint
// overrides the Bot API URL template; empty uses api.telegram.org.
func NewTelegramSender(token string, chatID int64, botName, endpoint string) (*TelegramSender, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if botName == "" {
		botName = DefaultBotName
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID, botName: botName}, nil
}

func (t *TelegramSender) Name() string  { return "telegram" }
func (t *TelegramSender) Enabled() bool { return t.chatID != 0 }

// Send ignores ctx cancellation mid-request; the client timeout bounds it.
func (t *TelegramSender) Send(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("[%s] %s", t.botName, msg))
	m.DisableWebPagePreview = true
	if _, err := t.bot.Send(m); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
