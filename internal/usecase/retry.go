package usecase

import (
	"context"
	"math/rand"
	"time"

	"video-batch-orchestrator/internal/domain"
)

// RetryPolicy drives exponential backoff for transient external failures.
// Permanent failures are never retried.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       4,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Backoff returns the sleep before the given attempt (1-based), with up to
// 25% jitter so synchronized workers don't hammer a recovering service.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.BackoffMultiplier)
		if d >= p.MaxBackoff {
			d = p.MaxBackoff
			break
		}
	}
	if q := int64(d) / 4; q > 0 {
		d += time.Duration(rand.Int63n(q))
	}
	return d
}

// retryTransient runs fn up to MaxAttempts times, sleeping between attempts.
// Only domain.TransientExternalError is retried; anything else returns
// immediately. The last transient error is returned once attempts run out.
func retryTransient(ctx context.Context, p RetryPolicy, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !domain.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff(attempt)):
		}
	}
	return lastErr
}
