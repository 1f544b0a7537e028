package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/ports/adapter"
	"video-batch-orchestrator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.BlobStorage = (*HTTPStore)(nil)

// HTTPStore stores media on an S3-compatible gateway over its HTTP upload
// API. Uploaded objects get stable public URLs, which is what the rest of
// the system persists as durable media references.
type HTTPStore struct {
	apiKey string
	base   string // e.g., https://storage.example.com
	bucket string
	client *http.Client
	logger *zerolog.Logger
}

func NewHTTPStore(apiKey, base, bucket string, logger *zerolog.Logger) (*HTTPStore, error) {
	if base == "" {
		return nil, errors.New("storage base url empty")
	}
	if bucket == "" {
		bucket = "media"
	}
	sub := logger.With().Str("component", "blob_storage").Logger()
	return &HTTPStore{
		apiKey: apiKey,
		base:   strings.TrimRight(base, "/"),
		bucket: bucket,
		client: &http.Client{Timeout: 5 * time.Minute},
		logger: &sub,
	}, nil
}

func (s *HTTPStore) Upload(ctx context.Context, data []byte, contentType, suggestedName string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/%s/objects?name=%s", s.base, s.bucket, url.QueryEscape(suggestedName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	metrics.ObserveExternalCall("storage", time.Since(start).Seconds())
	if err != nil {
		metrics.IncExternalCall("storage", "error")
		return "", &domain.TransientExternalError{Service: "storage", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.IncExternalCall("storage", fmt.Sprintf("http_%d", resp.StatusCode))
		return "", classifyStatus("storage", resp.StatusCode)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.IncExternalCall("storage", "decode_error")
		return "", &domain.TransientExternalError{Service: "storage", Err: err}
	}
	if payload.URL == "" {
		return "", &domain.PermanentExternalError{Service: "storage", Reason: "upload returned no url"}
	}

	metrics.IncExternalCall("storage", "ok")
	s.logger.Debug().Str("name", suggestedName).Int("bytes", len(data)).Msg("uploaded object")
	return payload.URL, nil
}

// Download fetches any URL, not only objects this store wrote. Source media
// and backend outputs both come down through here before re-upload.
func (s *HTTPStore) Download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if s.apiKey != "" && strings.HasPrefix(rawURL, s.base) {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	metrics.ObserveExternalCall("storage", time.Since(start).Seconds())
	if err != nil {
		metrics.IncExternalCall("storage", "error")
		return nil, &domain.TransientExternalError{Service: "storage", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.IncExternalCall("storage", fmt.Sprintf("http_%d", resp.StatusCode))
		return nil, classifyStatus("storage", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncExternalCall("storage", "read_error")
		return nil, &domain.TransientExternalError{Service: "storage", Err: err}
	}
	metrics.IncExternalCall("storage", "ok")
	return data, nil
}

func classifyStatus(service string, code int) error {
	if code == http.StatusTooManyRequests || code >= 500 {
		return &domain.TransientExternalError{
			Service:    service,
			StatusCode: code,
			Err:        fmt.Errorf("%s http %d", service, code),
		}
	}
	return &domain.PermanentExternalError{
		Service:    service,
		StatusCode: code,
		Reason:     "request rejected",
	}
}
