package redis

import (
	"context"
	"time"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/ports/repository"
)

var _ repository.SourceCache = (*SourceCache)(nil)

// SourceCache maps original source URLs to their durable copies. Redis-backed
// so every worker process shares one view; entries expire so a re-uploaded
// source eventually refreshes.
type SourceCache struct {
	client *redClient
	ttl    time.Duration
}

func NewSourceCache(client *redClient, ttl time.Duration) *SourceCache {
	return &SourceCache{client: client, ttl: ttl}
}

func (c *SourceCache) GetDurableURL(ctx context.Context, sourceURL string) (string, error) {
	v, err := c.client.Get(ctx, sourceKey(sourceURL))
	if err != nil {
		if IsNotFound(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return v, nil
}

func (c *SourceCache) PutDurableURL(ctx context.Context, sourceURL, durableURL string) error {
	return c.client.Set(ctx, sourceKey(sourceURL), durableURL, c.ttl)
}

func (c *SourceCache) Invalidate(ctx context.Context, sourceURL string) error {
	return c.client.Del(ctx, sourceKey(sourceURL))
}

func sourceKey(sourceURL string) string {
	return "durable_source:" + sourceURL
}
