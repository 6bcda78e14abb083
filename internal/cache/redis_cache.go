package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisInsightsCache struct {
	client *redis.Client
}

func NewRedisInsightsCache(addr string, password string, db int) *RedisInsightsCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisInsightsCache{client: client}
}

func (c *RedisInsightsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisInsightsCache) Close() error {
	return c.client.Close()
}

func (c *RedisInsightsCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisInsightsCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if len(payload) == 0 {
		return nil
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
