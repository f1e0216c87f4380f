package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/altairlabs/gatekeep/internal/domain"

	"github.com/redis/go-redis/v9"
)

type RedisUsageCounterStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisUsageCounterStore(client redis.UniversalClient, prefix string) *RedisUsageCounterStore {
	if prefix == "" {
		prefix = "usage"
	}
	return &RedisUsageCounterStore{client: client, prefix: prefix}
}

// Incr bumps both counters in one pipeline round trip. INCRBY is atomic on
// the server, so concurrent recorders never lose updates. The EXPIRE resets
// each write, which only matters for abandoned periods; live periods keep
// their counters until well after rollover.
func (s *RedisUsageCounterStore) Incr(ctx context.Context, userID, periodKey string, requests, computeUnits int64, ttl time.Duration) error {
	if s.client == nil {
		return nil
	}
	reqKey := s.key(userID, periodKey, "requests")
	cuKey := s.key(userID, periodKey, "compute")
	pipe := s.client.TxPipeline()
	if requests != 0 {
		pipe.IncrBy(ctx, reqKey, requests)
	}
	if computeUnits != 0 {
		pipe.IncrBy(ctx, cuKey, computeUnits)
	}
	if ttl > 0 {
		pipe.Expire(ctx, reqKey, ttl)
		pipe.Expire(ctx, cuKey, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisUsageCounterStore) Get(ctx context.Context, userID, periodKey string) (domain.UsageTotals, error) {
	if s.client == nil {
		return domain.UsageTotals{}, nil
	}
	vals, err := s.client.MGet(ctx,
		s.key(userID, periodKey, "requests"),
		s.key(userID, periodKey, "compute"),
	).Result()
	if err != nil {
		return domain.UsageTotals{}, err
	}
	totals := domain.UsageTotals{}
	totals.Requests = parseCounter(vals[0])
	totals.ComputeUnits = parseCounter(vals[1])
	return totals, nil
}

func parseCounter(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (s *RedisUsageCounterStore) key(userID, periodKey, field string) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, userID, periodKey, field)
}
