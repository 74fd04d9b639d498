package contextstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisBackend stores conversation documents in Redis.
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend connects using a redis:// or rediss:// URL.
func NewRedisBackend(redisURL string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return &RedisBackend{client: redis.NewClient(opts)}, nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	val, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "redis get")
	}
	return val, nil
}

func (b *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (b *RedisBackend) Del(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
