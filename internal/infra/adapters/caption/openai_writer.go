package caption

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/ports/adapter"
	"video-batch-orchestrator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.CaptionWriter = (*OpenAIWriter)(nil)

const systemPrompt = "You write short, punchy social media captions for short-form videos. " +
	"Reply with the caption text only, no quotes, at most two sentences, with at most three hashtags."

// OpenAIWriter drafts publish captions with the Chat Completions API.
type OpenAIWriter struct {
	client openai.Client
	model  string
	logger *zerolog.Logger
}

func NewOpenAIWriter(apiKey, base, model string, logger *zerolog.Logger) (*OpenAIWriter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	sub := logger.With().Str("component", "caption_writer").Logger()
	return &OpenAIWriter{
		client: openai.NewClient(opts...),
		model:  model,
		logger: &sub,
	}, nil
}

func (w *OpenAIWriter) Draft(ctx context.Context, topic string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", errors.New("caption topic empty")
	}

	start := time.Now()
	resp, err := w.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(w.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage("Write a caption for a video about: " + topic),
		},
	})
	metrics.ObserveExternalCall("openai", time.Since(start).Seconds())
	if err != nil {
		metrics.IncExternalCall("openai", "error")
		return "", &domain.TransientExternalError{Service: "openai", Err: err}
	}
	metrics.IncExternalCall("openai", "ok")

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &domain.PermanentExternalError{Service: "openai", Reason: "no caption in response"}
	}
	caption := strings.TrimSpace(resp.Choices[0].Message.Content)
	w.logger.Debug().Int("len", len(caption)).Msg("drafted caption")
	return caption, nil
}
