package admission

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window limiter shared across orchestrator
// instances. The first Record of a window creates the counter key with the
// window as its TTL; the key's remaining TTL is the reset bound.
type RedisRateLimiter struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ RateLimiter = (*RedisRateLimiter)(nil)

func NewRedisRateLimiter(client goredis.Cmdable, keyPrefix string) *RedisRateLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RedisRateLimiter{client: client, keyPrefix: keyPrefix}
}

var recordScript = goredis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

func (l *RedisRateLimiter) Check(ctx context.Context, providerKey string, cap int, window time.Duration) (Decision, error) {
	key := l.keyPrefix + providerKey
	count, err := l.client.Get(ctx, key).Int()
	if err == goredis.Nil {
		return Decision{Allowed: true, Remaining: cap, ResetIn: window}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("admission: rate check %s: %w", providerKey, err)
	}
	ttl, err := l.client.PTTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	if count >= cap {
		return Decision{Allowed: false, Remaining: 0, ResetIn: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: cap - count, ResetIn: ttl}, nil
}

func (l *RedisRateLimiter) Record(ctx context.Context, providerKey string, window time.Duration) error {
	key := l.keyPrefix + providerKey
	if err := recordScript.Run(ctx, l.client, []string{key}, window.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("admission: rate record %s: %w", providerKey, err)
	}
	return nil
}
