package quota

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisTracker keeps daily counters in Redis, one key per user per day.
// Keys expire two days after creation so stale days clean themselves up.
type RedisTracker struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ Tracker = (*RedisTracker)(nil)

func NewRedisTracker(client goredis.Cmdable, keyPrefix string) *RedisTracker {
	if keyPrefix == "" {
		keyPrefix = "quota:"
	}
	return &RedisTracker{client: client, keyPrefix: keyPrefix}
}

func (t *RedisTracker) key(userID, day string) string {
	return t.keyPrefix + userID + ":" + day
}

func (t *RedisTracker) Usage(ctx context.Context, userID, day string) (int, error) {
	n, err := t.client.Get(ctx, t.key(userID, day)).Int()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota: usage for %s: %w", userID, err)
	}
	return n, nil
}

func (t *RedisTracker) Add(ctx context.Context, userID, day string, units int) (int, error) {
	key := t.key(userID, day)
	pipe := t.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, int64(units))
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("quota: add for %s: %w", userID, err)
	}
	return int(incr.Val()), nil
}

func (t *RedisTracker) Remove(ctx context.Context, userID, day string, units int) error {
	if err := t.client.DecrBy(ctx, t.key(userID, day), int64(units)).Err(); err != nil {
		return fmt.Errorf("quota: remove for %s: %w", userID, err)
	}
	return nil
}
