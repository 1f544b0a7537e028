package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/ports/adapter"
	"video-batch-orchestrator/internal/infra/metrics"
	"video-batch-orchestrator/internal/infra/ratelimit"

	"github.com/rs/zerolog"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.SourceResolverClient = (*HTTPClient)(nil)

// HTTPClient resolves share links into direct download URLs through an
// external resolver API. Every upstream call passes through the process-wide
// limiter first, so concurrent batch fan-out cannot exceed the provider's
// request budget.
type HTTPClient struct {
	apiKey  string
	base    string // e.g., https://api.resolver.example/v1
	limiter *ratelimit.Limiter
	client  *http.Client
	logger  *zerolog.Logger
}

func NewHTTPClient(apiKey, base string, limiter *ratelimit.Limiter, logger *zerolog.Logger) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, errors.New("resolver api key empty")
	}
	if base == "" {
		return nil, errors.New("resolver base url empty")
	}
	sub := logger.With().Str("component", "resolver_client").Logger()
	return &HTTPClient{
		apiKey:  apiKey,
		base:    strings.TrimRight(base, "/"),
		limiter: limiter,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  &sub,
	}, nil
}

func (c *HTTPClient) Resolve(ctx context.Context, sourceURL string) (adapter.ResolvedSource, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return adapter.ResolvedSource{}, err
	}

	endpoint := c.base + "/resolve?url=" + url.QueryEscape(sourceURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return adapter.ResolvedSource{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ObserveExternalCall("resolver", time.Since(start).Seconds())
	if err != nil {
		metrics.IncExternalCall("resolver", "error")
		// Network failures are worth another attempt.
		return adapter.ResolvedSource{}, &domain.TransientExternalError{Service: "resolver", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.IncExternalCall("resolver", fmt.Sprintf("http_%d", resp.StatusCode))
		return adapter.ResolvedSource{}, classifyStatus(resp.StatusCode)
	}

	var payload struct {
		DownloadURL     string  `json:"download_url"`
		DurationSeconds float64 `json:"duration_seconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.IncExternalCall("resolver", "decode_error")
		return adapter.ResolvedSource{}, &domain.TransientExternalError{Service: "resolver", Err: err}
	}
	if payload.DownloadURL == "" {
		metrics.IncExternalCall("resolver", "empty")
		return adapter.ResolvedSource{}, &domain.PermanentExternalError{
			Service: "resolver", Reason: "no download url in response",
		}
	}

	metrics.IncExternalCall("resolver", "ok")
	c.logger.Debug().Str("source", sourceURL).Float64("duration_s", payload.DurationSeconds).Msg("resolved source")
	return adapter.ResolvedSource{
		DownloadURL:     payload.DownloadURL,
		DurationSeconds: payload.DurationSeconds,
	}, nil
}

// classifyStatus separates retryable provider trouble from dead links.
// 429 and 5xx come back as transient; 403/404/410 mean the post is gone or
// private and retrying cannot help.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests || code >= 500:
		return &domain.TransientExternalError{
			Service:    "resolver",
			StatusCode: code,
			Err:        fmt.Errorf("resolver http %d", code),
		}
	case code == http.StatusForbidden || code == http.StatusNotFound || code == http.StatusGone:
		return &domain.PermanentExternalError{
			Service:    "resolver",
			StatusCode: code,
			Reason:     "source unavailable",
		}
	default:
		return &domain.PermanentExternalError{
			Service:    "resolver",
			StatusCode: code,
			Reason:     "unexpected resolver response",
		}
	}
}
