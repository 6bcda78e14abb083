package cache

import (
	"context"
	"time"
)

// InsightsCache holds serialized insight payloads (forecasts, product
// recommendations) for a bounded TTL.
type InsightsCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

type NoopInsightsCache struct{}

func (NoopInsightsCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopInsightsCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}
