package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/hospital-admin/internal/repository"
	"github.com/jwalitptl/hospital-admin/pkg/circuitbreaker"
)

// RedisStore keeps staging collections in Redis so every API replica sees the
// same pending list. Keys are namespaced with prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
	cb     *circuitbreaker.CircuitBreaker
}

func NewRedisStore(client *redis.Client, prefix string) repository.KeyValueStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-staging",
			MaxFailures: 5,
			Timeout:     10 * time.Second,
		}),
	}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found = true
	)
	err := s.cb.Execute(func() error {
		v, err := s.client.Get(ctx, s.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		value = v
		return err
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, found, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	err := s.cb.Execute(func() error {
		return s.client.Set(ctx, s.key(key), value, 0).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
