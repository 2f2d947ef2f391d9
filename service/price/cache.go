package price

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a RateCache backed by Redis string keys with expiry.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the Redis instance at url and verifies it with a ping.
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get returns the cached rate for key. ok is false on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (float64, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	rate, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached rate %q: %w", val, err)
	}
	return rate, true, nil
}

// Set stores rate under key for ttl.
func (c *RedisCache) Set(ctx context.Context, key string, rate float64, ttl time.Duration) error {
	return c.client.Set(ctx, key, strconv.FormatFloat(rate, 'f', -1, 64), ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
