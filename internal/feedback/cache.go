package feedback

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// FeedCache holds the rendered anonymous feed. Failures are logged and
// treated as misses, the store stays the source of truth.
type FeedCache interface {
	Get(ctx context.Context) ([]byte, bool)
	Set(ctx context.Context, payload []byte)
	Invalidate(ctx context.Context)
}

const publicFeedKey = "feedboard:public-feed"

type RedisFeedCache struct {
	client *redis.Client
	ttl    time.Duration
	logger echo.Logger
}

func NewRedisFeedCache(client *redis.Client, ttl time.Duration, logger echo.Logger) *RedisFeedCache {
	return &RedisFeedCache{client: client, ttl: ttl, logger: logger}
}

func (r *RedisFeedCache) Get(ctx context.Context) ([]byte, bool) {
	payload, err := r.client.Get(ctx, publicFeedKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warnf("Failed to read public feed cache: %v", err)
		}
		return nil, false
	}
	return payload, true
}

func (r *RedisFeedCache) Set(ctx context.Context, payload []byte) {
	if err := r.client.Set(ctx, publicFeedKey, payload, r.ttl).Err(); err != nil {
		r.logger.Warnf("Failed to write public feed cache: %v", err)
	}
}

func (r *RedisFeedCache) Invalidate(ctx context.Context) {
	if err := r.client.Del(ctx, publicFeedKey).Err(); err != nil {
		r.logger.Warnf("Failed to invalidate public feed cache: %v", err)
	}
}
