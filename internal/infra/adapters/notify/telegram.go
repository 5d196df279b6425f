package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
)

var _ adapter.RunNotifier = (*TelegramNotifier)(nil)

// TelegramNotifier posts terminal run results to the configured operator
// chats. Delivery is best effort; a failed send is reported, never retried.
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
	log     *zerolog.Logger
}

func NewTelegramNotifier(token string, chatIDs []int64, log *zerolog.Logger) (*TelegramNotifier, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if len(chatIDs) == 0 {
		return nil, errors.New("no telegram chat ids configured")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs, log: log}, nil
}

func (n *TelegramNotifier) NotifyRunFinished(ctx context.Context, job *model.Job) error {
	text := fmt.Sprintf("Course generation %s for employee %s finished: %s", job.ID, job.EmployeeID, job.Status)
	if job.Status == model.JobStatusFailed && job.Error != "" {
		text += "\nCause: " + job.Error
	}

	var firstErr error
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram notification failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
