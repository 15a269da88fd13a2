// Package notifications tells admins and authors about feedback activity
package notifications

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
)

// TelegramNotifier posts messages to the moderators' chat
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger echo.Logger
}

// NewTelegramNotifier returns nil, nil when the bot isn't configured
func NewTelegramNotifier(botToken, chatID string, logger echo.Logger) (*TelegramNotifier, error) {
	if botToken == "" || chatID == "" {
		logger.Warn("Telegram bot token or chat id not set, moderator notifications are disabled")
		return nil, nil
	}

	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID should be numeric, got: %s", chatID)
	}

	botAPI, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}
	logger.Infof("Telegram bot authorized as %s", botAPI.Self.UserName)

	return &TelegramNotifier{api: botAPI, chatID: id, logger: logger}, nil
}

// SendAsync posts text to the moderators' chat without blocking the caller
func (t *TelegramNotifier) SendAsync(text string) {
	if t == nil {
		return
	}

	go func() {
		msg := tgbotapi.NewMessage(t.chatID, text)
		msg.DisableWebPagePreview = true
		if _, err := t.api.Send(msg); err != nil {
			t.logger.Errorf("Failed to send Telegram notification: %v", err)
		}
	}()
}
