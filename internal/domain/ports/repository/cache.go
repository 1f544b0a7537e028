package repository

import "context"

// SourceCache maps an original third-party source URL to the durable copy we
// already made of it. It is a store-backed cache with explicit invalidation,
// not a process-global map, so every worker sees the same entries.
type SourceCache interface {
	// GetDurableURL returns domain.ErrNotFound when no entry exists.
	GetDurableURL(ctx context.Context, sourceURL string) (string, error)
	PutDurableURL(ctx context.Context, sourceURL, durableURL string) error
	Invalidate(ctx context.Context, sourceURL string) error
}
