package notify

import (
	"context"
	"errors"
	"fmt"

	"hairstudio/internal/config"
	"hairstudio/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier posts admin notices to the configured chats.
type TelegramNotifier struct {
	bot     domain.TelegramSender
	chatIDs []int64
}

func NewTelegramNotifier(bot domain.TelegramSender, chatIDs []int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs}
}

// NewTelegramBot connects to the Bot API; it returns nil when no token is configured.
func NewTelegramBot(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	if cfg.BotToken == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

func (n *TelegramNotifier) Enabled() bool {
	return n != nil && n.bot != nil && len(n.chatIDs) > 0
}

// Notify sends text to every admin chat and joins the per-chat errors.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if !n.Enabled() {
		return nil
	}

	var errs []error
	for _, chatID := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if _, err := n.bot.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}
