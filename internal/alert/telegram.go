package alert

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tradeops/pgvault/internal/config"
)

// TelegramMirror forwards rendered alert text to an operations chat.
type TelegramMirror struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(cfg *config.AlertConfig) (*TelegramMirror, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	var chatID int64
	if _, err := fmt.Sscanf(cfg.TelegramChatID, "%d", &chatID); err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", cfg.TelegramChatID, err)
	}

	return &TelegramMirror{bot: bot, chatID: chatID}, nil
}

func (t *TelegramMirror) Notify(message string) error {
	msg := tgbotapi.NewMessage(t.chatID, message)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}
