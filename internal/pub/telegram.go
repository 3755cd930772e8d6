package pub

import (
	"context"
	"fmt"
	"kwrelay/internal/types"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender is the subset of *tgbotapi.BotAPI used to send messages.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type telegramPub struct{ bot TelegramSender }

// NewTelegram sends notifications as plain text messages to the chat ID given as target.
func NewTelegram(bot TelegramSender) *telegramPub { return &telegramPub{bot: bot} }

func (t *telegramPub) Publish(ctx context.Context, target string, n types.Notification) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram target %q is not a chat id: %w", target, err)
	}
	msg := tgbotapi.NewMessage(chatID, n.Format())
	msg.DisableWebPagePreview = true
	_, err = t.bot.Send(msg)
	return err
}
