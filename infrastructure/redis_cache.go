package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheNamespace = "pipeline:"

// RedisCache keeps read models as JSON values with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &RedisCache{rdb: redis.NewClient(opts), ttl: cfg.TTL}, nil
}

func NewRedisCacheFromClient(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.rdb.Get(ctx, cacheNamespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheNamespace+key, body, c.ttl).Err()
}

// Generation returns the current generation of scope, zero when it was never invalidated.
func (c *RedisCache) Generation(ctx context.Context, scope string) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey(scope)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Invalidate bumps the generation of scope and drops the values cached under it.
func (c *RedisCache) Invalidate(ctx context.Context, scope string) error {
	if err := c.rdb.Incr(ctx, generationKey(scope)).Err(); err != nil {
		return err
	}

	iter := c.rdb.Scan(ctx, 0, cacheNamespace+scope+"#*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func generationKey(scope string) string {
	return cacheNamespace + "gen:" + scope
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
