package notificator

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/pkg/logger"
)

// TelegramNotificator talks to the Telegram Bot API. Updates are received
// through the webhook served by the HTTP API, so the bot is never started
// in polling mode.
type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot
}

func NewTelegramNotificator(logger *logger.Logger, token string, opts ...bot.Option) (*TelegramNotificator, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotificator{logger: logger, bot: b}, nil
}

var _ models.Messenger = (*TelegramNotificator)(nil)

// Send sends a text message to the chat.
func (t *TelegramNotificator) Send(ctx context.Context, chatID, text string) error {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("%w: telegram send message: %w", models.ErrDelivery, err)
	}
	t.logger.Debug("Telegram message sent", "chat", chatID)
	return nil
}

// RegisterWebhook points the bot at url.
func (t *TelegramNotificator) RegisterWebhook(ctx context.Context, url string) error {
	ok, err := t.bot.SetWebhook(ctx, &bot.SetWebhookParams{URL: url})
	if err != nil {
		return fmt.Errorf("failed to set telegram webhook: %w", err)
	}
	if !ok {
		return fmt.Errorf("telegram refused the webhook")
	}
	t.logger.Info("Telegram webhook registered")
	return nil
}
