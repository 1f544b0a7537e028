package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is token-bucket admission control for outbound calls to a
// quota-limited external service. Capacity replenishes continuously at the
// configured rate; x/time/rate computes refill lazily from elapsed wall-clock
// time, so there is no background timer. Inject a configured instance where
// needed; a module-level singleton would make tests nondeterministic and
// force unrelated callers to share one budget.
type Limiter struct {
	l *rate.Limiter
}

// New builds a limiter allowing ratePerSec sustained requests with the given
// burst capacity. A burst below 1 is clamped to 1 so Acquire can ever succeed.
func New(ratePerSec float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{l: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Acquire blocks until a unit of capacity is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.l.Wait(ctx)
}

// TryAcquire takes a token if one is free right now.
func (l *Limiter) TryAcquire() bool {
	return l.l.Allow()
}
