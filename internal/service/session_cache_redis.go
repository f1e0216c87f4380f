package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/altairlabs/gatekeep/internal/domain"

	"github.com/redis/go-redis/v9"
)

const sessionNegativeSentinel = "__absent__"

type RedisSessionCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionCacheStore(client redis.UniversalClient, prefix string) *RedisSessionCacheStore {
	if prefix == "" {
		prefix = "session_cache"
	}
	return &RedisSessionCacheStore{client: client, prefix: prefix}
}

func (s *RedisSessionCacheStore) Get(ctx context.Context, sessionID string) (*domain.SessionProjection, bool, error) {
	if s.client == nil {
		return nil, false, nil
	}
	raw, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if raw == sessionNegativeSentinel {
		return nil, true, nil
	}
	var p domain.SessionProjection
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

func (s *RedisSessionCacheStore) Set(ctx context.Context, projection *domain.SessionProjection, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(projection)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(projection.ID), payload, ttl).Err()
}

func (s *RedisSessionCacheStore) SetNegative(ctx context.Context, sessionID string, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key(sessionID), sessionNegativeSentinel, ttl).Err()
}

// Evict removes whatever entry exists; positive and negative entries share
// one key, so a single delete clears both.
func (s *RedisSessionCacheStore) Evict(ctx context.Context, sessionID string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *RedisSessionCacheStore) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, sessionID)
}
