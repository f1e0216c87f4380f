package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFixedWindowLimiter shares one admission budget across replicas. The
// bucket number is baked into the key, so a plain INCR is race-free: every
// concurrent caller in the same window increments the same counter and sees
// its own post-increment value.
type RedisFixedWindowLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisFixedWindowLimiter(client redis.UniversalClient, prefix string) *RedisFixedWindowLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisFixedWindowLimiter{client: client, prefix: prefix}
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	policy = policy.normalize()
	now := time.Now()
	bucket, resetAt := windowBucket(now, policy.Window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	// Setting the expiry on every request is redundant after the first, but
	// it guarantees the key dies even if the creating request's pipeline was
	// interrupted between INCR and EXPIRE.
	pipe.Expire(ctx, redisKey, policy.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}
	return decide(incr.Val(), policy, now, resetAt), nil
}
