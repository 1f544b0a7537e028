package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/ports/adapter"
	"video-batch-orchestrator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time assurance this adapter satisfies the ports
var _ adapter.GenerationBackend = (*QueueBackend)(nil)
var _ adapter.MediaTrimmer = (*QueueBackend)(nil)
var _ adapter.MediaEditor = (*QueueBackend)(nil)

// QueueBackend talks to a queue-based generation provider: submit returns a
// request id, status is polled until terminal, and the result is fetched by
// id. The same queue also hosts the media-editing endpoints, so the one
// adapter covers generation, trimming, and pipeline edit steps.
type QueueBackend struct {
	apiKey       string
	base         string // e.g., https://queue.fal.run
	pollInterval time.Duration
	client       *http.Client
	logger       *zerolog.Logger
}

func NewQueueBackend(apiKey, base string, pollInterval time.Duration, logger *zerolog.Logger) (*QueueBackend, error) {
	if apiKey == "" {
		return nil, errors.New("generation api key empty")
	}
	if base == "" {
		return nil, errors.New("generation base url empty")
	}
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	sub := logger.With().Str("component", "queue_backend").Logger()
	return &QueueBackend{
		apiKey:       apiKey,
		base:         strings.TrimRight(base, "/"),
		pollInterval: pollInterval,
		client:       &http.Client{Timeout: 90 * time.Second},
		logger:       &sub,
	}, nil
}

func (b *QueueBackend) Name() string { return "queue" }

func (b *QueueBackend) Submit(ctx context.Context, endpoint string, input adapter.GenerationInput) (string, error) {
	body := map[string]interface{}{
		"video_url": input.VideoURL,
		"prompt":    input.Prompt,
	}
	if input.FaceImageURL != "" {
		body["image_url"] = input.FaceImageURL
	}
	if input.MaxSeconds > 0 {
		body["max_seconds"] = input.MaxSeconds
	}

	var resp struct {
		RequestID string `json:"request_id"`
	}
	if err := b.call(ctx, http.MethodPost, b.base+"/"+strings.Trim(endpoint, "/"), body, &resp); err != nil {
		return "", err
	}
	if resp.RequestID == "" {
		return "", &domain.PermanentExternalError{Service: "generation", Reason: "submit returned no request id"}
	}
	b.logger.Info().Str("endpoint", endpoint).Str("request_id", resp.RequestID).Msg("submitted generation request")
	return resp.RequestID, nil
}

func (b *QueueBackend) SubscribeStatus(ctx context.Context, endpoint, requestID string, onPhase func(adapter.Phase)) error {
	statusURL := fmt.Sprintf("%s/%s/requests/%s/status", b.base, strings.Trim(endpoint, "/"), requestID)

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	var last adapter.Phase
	for {
		var st struct {
			Status        string `json:"status"`
			QueuePosition int    `json:"queue_position"`
			Error         string `json:"error"`
		}
		if err := b.call(ctx, http.MethodGet, statusURL, nil, &st); err != nil {
			if domain.IsTransient(err) {
				// One flaky poll must not kill a running request.
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					continue
				}
			}
			return err
		}

		switch st.Status {
		case "IN_QUEUE":
			phase := adapter.Phase{State: adapter.PhaseQueued, QueuePosition: st.QueuePosition}
			if onPhase != nil && phase != last {
				onPhase(phase)
				last = phase
			}
		case "IN_PROGRESS":
			phase := adapter.Phase{State: adapter.PhaseInProgress}
			if onPhase != nil && phase != last {
				onPhase(phase)
				last = phase
			}
		case "COMPLETED":
			return nil
		case "FAILED", "ERROR":
			reason := st.Error
			if reason == "" {
				reason = "generation failed"
			}
			return &domain.PermanentExternalError{Service: "generation", Reason: reason}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *QueueBackend) FetchResult(ctx context.Context, endpoint, requestID string) (adapter.GenerationResult, error) {
	resultURL := fmt.Sprintf("%s/%s/requests/%s", b.base, strings.Trim(endpoint, "/"), requestID)

	var resp struct {
		Video struct {
			URL string `json:"url"`
		} `json:"video"`
	}
	if err := b.call(ctx, http.MethodGet, resultURL, nil, &resp); err != nil {
		return adapter.GenerationResult{}, err
	}
	if resp.Video.URL == "" {
		return adapter.GenerationResult{}, &domain.PermanentExternalError{Service: "generation", Reason: "result has no video url"}
	}
	return adapter.GenerationResult{OutputURL: resp.Video.URL}, nil
}

func (b *QueueBackend) Trim(ctx context.Context, videoURL string, maxSeconds int) (string, error) {
	return b.runEdit(ctx, "media/trim", map[string]interface{}{
		"video_url":   videoURL,
		"max_seconds": maxSeconds,
	})
}

func (b *QueueBackend) OverlayText(ctx context.Context, videoURL, text, position string) (string, error) {
	return b.runEdit(ctx, "media/overlay-text", map[string]interface{}{
		"video_url": videoURL,
		"text":      text,
		"position":  position,
	})
}

func (b *QueueBackend) AddMusic(ctx context.Context, videoURL, trackURL string, volume float64) (string, error) {
	return b.runEdit(ctx, "media/add-music", map[string]interface{}{
		"video_url": videoURL,
		"track_url": trackURL,
		"volume":    volume,
	})
}

func (b *QueueBackend) AttachVideo(ctx context.Context, videoURL, otherURL, placement string) (string, error) {
	return b.runEdit(ctx, "media/attach", map[string]interface{}{
		"video_url": videoURL,
		"other_url": otherURL,
		"placement": placement,
	})
}

func (b *QueueBackend) Compose(ctx context.Context, videoURLs []string, layout string) (string, error) {
	return b.runEdit(ctx, "media/compose", map[string]interface{}{
		"video_urls": videoURLs,
		"layout":     layout,
	})
}

// runEdit drives an editing endpoint through the same submit/poll/fetch cycle
// as generation. Edit requests finish in seconds, so there is no correlation
// id persistence here.
func (b *QueueBackend) runEdit(ctx context.Context, endpoint string, body map[string]interface{}) (string, error) {
	var submitted struct {
		RequestID string `json:"request_id"`
	}
	if err := b.call(ctx, http.MethodPost, b.base+"/"+endpoint, body, &submitted); err != nil {
		return "", err
	}
	if submitted.RequestID == "" {
		return "", &domain.PermanentExternalError{Service: "generation", Reason: "edit submit returned no request id"}
	}
	if err := b.SubscribeStatus(ctx, endpoint, submitted.RequestID, nil); err != nil {
		return "", err
	}
	res, err := b.FetchResult(ctx, endpoint, submitted.RequestID)
	if err != nil {
		return "", err
	}
	return res.OutputURL, nil
}

func (b *QueueBackend) call(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+b.apiKey)

	start := time.Now()
	resp, err := b.client.Do(req)
	metrics.ObserveExternalCall("generation", time.Since(start).Seconds())
	if err != nil {
		metrics.IncExternalCall("generation", "error")
		return &domain.TransientExternalError{Service: "generation", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.IncExternalCall("generation", fmt.Sprintf("http_%d", resp.StatusCode))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &domain.TransientExternalError{
				Service:    "generation",
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("generation http %d", resp.StatusCode),
			}
		}
		return &domain.PermanentExternalError{
			Service:    "generation",
			StatusCode: resp.StatusCode,
			Reason:     "generation request rejected",
		}
	}

	metrics.IncExternalCall("generation", "ok")
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
