// Package cache memoizes capability decisions. Invalidation is epoch based:
// bumping a counter makes every key that embedded the old counter value
// unreachable, so nothing ever has to be enumerated or deleted. A TTL bounds
// staleness when an invalidation call is missed, and any store failure
// degrades to direct evaluation, never to a more permissive answer.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the key-value dependency of the decision cache. Epoch keys are
// written without expiry; decision keys always carry a TTL.
type Store interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// GetMulti returns one value per key, "" for absent keys.
	GetMulti(ctx context.Context, keys []string) ([]string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Incr atomically increments a counter key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
}

// RedisStore is the production Store for distributed deployments where
// every instance must observe the same epochs.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) GetMulti(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raw, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	vals := make([]string, len(keys))
	for i, v := range raw {
		if str, ok := v.(string); ok {
			vals[i] = str
		}
	}
	return vals, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}
