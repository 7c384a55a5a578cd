package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeliveryGuard claims keys with SET NX and a TTL.
type RedisDeliveryGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDeliveryGuard connects to Redis at addr. Keys are stored as prefix+key.
func NewRedisDeliveryGuard(addr, prefix string, ttl time.Duration) *RedisDeliveryGuard {
	return NewRedisDeliveryGuardWithClient(redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}), prefix, ttl)
}

// NewRedisDeliveryGuardWithClient wraps an existing client.
func NewRedisDeliveryGuardWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisDeliveryGuard {
	return &RedisDeliveryGuard{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks connectivity.
func (g *RedisDeliveryGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

// Claim sets prefix+key if absent.
func (g *RedisDeliveryGuard) Claim(ctx context.Context, key string) (bool, error) {
	return g.client.SetNX(ctx, g.prefix+key, "1", g.ttl).Result()
}

// Close closes the Redis client.
func (g *RedisDeliveryGuard) Close() error {
	return g.client.Close()
}
