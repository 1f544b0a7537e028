package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/ports/adapter"
	"video-batch-orchestrator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.GenerationBackend = (*VeoBackend)(nil)

// VeoBackend generates video through Google's Veo models using the official
// SDK. The long-running operation name is the correlation id: it alone is
// enough to re-attach to a run after a crash, which is exactly what callers
// persist before waiting.
type VeoBackend struct {
	client       *genai.Client
	defaultModel string
	pollInterval time.Duration
	logger       *zerolog.Logger
}

func NewVeoBackend(ctx context.Context, apiKey, baseURL, defaultModel string, pollInterval time.Duration, logger *zerolog.Logger) (*VeoBackend, error) {
	if apiKey == "" {
		return nil, errors.New("veo: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "veo-3.0-generate-001"
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	sub := logger.With().Str("component", "veo_backend").Logger()
	return &VeoBackend{client: c, defaultModel: defaultModel, pollInterval: pollInterval, logger: &sub}, nil
}

func (v *VeoBackend) Name() string { return "veo" }

// Submit starts a Veo generation. The endpoint identifier doubles as the
// model name; empty means the configured default.
func (v *VeoBackend) Submit(ctx context.Context, endpoint string, input adapter.GenerationInput) (string, error) {
	var image *genai.Image
	if input.FaceImageURL != "" {
		image = &genai.Image{GCSURI: input.FaceImageURL}
	}
	cfg := &genai.GenerateVideosConfig{}
	if input.MaxSeconds > 0 {
		d := int32(input.MaxSeconds)
		cfg.DurationSeconds = &d
	}

	start := time.Now()
	op, err := v.client.Models.GenerateVideos(ctx, modelOrDefault(endpoint, v.defaultModel), input.Prompt, image, cfg)
	metrics.ObserveExternalCall("veo", time.Since(start).Seconds())
	if err != nil {
		metrics.IncExternalCall("veo", "error")
		return "", classifyVeoErr(err)
	}
	metrics.IncExternalCall("veo", "ok")
	v.logger.Info().Str("operation", op.Name).Msg("started veo generation")
	return op.Name, nil
}

func (v *VeoBackend) SubscribeStatus(ctx context.Context, endpoint, requestID string, onPhase func(adapter.Phase)) error {
	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()

	reported := false
	for {
		op, err := v.getOperation(ctx, requestID)
		if err != nil {
			if domain.IsTransient(err) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					continue
				}
			}
			return err
		}
		if op.Done {
			return nil
		}
		// Veo operations expose no queue position, only running/done.
		if onPhase != nil && !reported {
			onPhase(adapter.Phase{State: adapter.PhaseInProgress})
			reported = true
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (v *VeoBackend) FetchResult(ctx context.Context, endpoint, requestID string) (adapter.GenerationResult, error) {
	op, err := v.getOperation(ctx, requestID)
	if err != nil {
		return adapter.GenerationResult{}, err
	}
	if !op.Done {
		return adapter.GenerationResult{}, &domain.TransientExternalError{
			Service: "veo",
			Err:     errors.New("operation still running"),
		}
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return adapter.GenerationResult{}, &domain.PermanentExternalError{Service: "veo", Reason: "operation finished with no video"}
	}
	return adapter.GenerationResult{OutputURL: op.Response.GeneratedVideos[0].Video.URI}, nil
}

func (v *VeoBackend) getOperation(ctx context.Context, name string) (*genai.GenerateVideosOperation, error) {
	start := time.Now()
	op, err := v.client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: name}, nil)
	metrics.ObserveExternalCall("veo", time.Since(start).Seconds())
	if err != nil {
		metrics.IncExternalCall("veo", "error")
		return nil, classifyVeoErr(err)
	}
	metrics.IncExternalCall("veo", "ok")
	return op, nil
}

// classifyVeoErr separates retryable provider trouble from requests the API
// rejects outright. 429 and 5xx come back as transient; any other API status
// (bad key, invalid argument, missing model) cannot succeed by retrying.
// Errors without an API status at all are treated as network trouble.
func classifyVeoErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return &domain.TransientExternalError{Service: "veo", StatusCode: apiErr.Code, Err: err}
		}
		reason := apiErr.Message
		if reason == "" {
			reason = fmt.Sprintf("request rejected with status %d", apiErr.Code)
		}
		return &domain.PermanentExternalError{Service: "veo", StatusCode: apiErr.Code, Reason: reason}
	}
	return &domain.TransientExternalError{Service: "veo", Err: err}
}

func modelOrDefault(model, def string) string {
	if model != "" {
		return model
	}
	return def
}
