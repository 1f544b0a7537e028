package telegram

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/ports/adapter"
	"video-batch-orchestrator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.Publisher = (*ChannelPublisher)(nil)

// ChannelPublisher posts approved videos to a Telegram channel. Telegram
// fetches the video from the durable URL itself, so nothing is re-uploaded
// from this process.
type ChannelPublisher struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zerolog.Logger
}

func NewChannelPublisher(token string, chatID int64, logger *zerolog.Logger) (*ChannelPublisher, error) {
	if token == "" {
		return nil, errors.New("telegram token empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	sub := logger.With().Str("component", "telegram_publisher").Logger()
	return &ChannelPublisher{bot: bot, chatID: chatID, logger: &sub}, nil
}

func (p *ChannelPublisher) Publish(ctx context.Context, req adapter.PublishRequest) error {
	if req.VideoURL == "" {
		return errors.New("publish: empty video url")
	}

	msg := tgbotapi.NewVideo(p.chatID, tgbotapi.FileURL(req.VideoURL))
	msg.Caption = req.Caption

	start := time.Now()
	_, err := p.bot.Send(msg)
	metrics.ObserveExternalCall("telegram", time.Since(start).Seconds())
	if err != nil {
		metrics.IncExternalCall("telegram", "error")
		return &domain.TransientExternalError{Service: "telegram", Err: err}
	}
	metrics.IncExternalCall("telegram", "ok")
	p.logger.Info().Str("mode", req.Mode).Msg("published video to channel")
	return nil
}
