package admission

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"server/internal/domain"
)

// RedisConcurrency shares the processing counters across instances. Both
// checks and both increments run in one Lua script so the global and
// per-user bounds hold at every observable instant.
type RedisConcurrency struct {
	client      goredis.Cmdable
	keyPrefix   string
	globalLimit int
}

var _ ConcurrencyController = (*RedisConcurrency)(nil)

func NewRedisConcurrency(client goredis.Cmdable, keyPrefix string, globalLimit int) *RedisConcurrency {
	if keyPrefix == "" {
		keyPrefix = "processing:"
	}
	return &RedisConcurrency{client: client, keyPrefix: keyPrefix, globalLimit: globalLimit}
}

func (c *RedisConcurrency) globalKey() string           { return c.keyPrefix + "global" }
func (c *RedisConcurrency) userKey(userID string) string { return c.keyPrefix + "user:" + userID }

// acquireScript returns {1} on success, {0, "user", n} or {0, "global", n}
// when the respective cap is already met.
var acquireScript = goredis.NewScript(`
local user = tonumber(redis.call('GET', KEYS[1]) or '0')
local global = tonumber(redis.call('GET', KEYS[2]) or '0')
local user_limit = tonumber(ARGV[1])
local global_limit = tonumber(ARGV[2])
if user_limit > 0 and user >= user_limit then
  return {0, 'user', user}
end
if global_limit > 0 and global >= global_limit then
  return {0, 'global', global}
end
redis.call('INCR', KEYS[1])
redis.call('INCR', KEYS[2])
return {1}
`)

var releaseScript = goredis.NewScript(`
for i = 1, 2 do
  local n = tonumber(redis.call('GET', KEYS[i]) or '0')
  if n > 0 then
    redis.call('DECR', KEYS[i])
  end
end
return 1
`)

func (c *RedisConcurrency) Acquire(ctx context.Context, userID string, userLimit int) error {
	raw, err := acquireScript.Run(ctx, c.client,
		[]string{c.userKey(userID), c.globalKey()}, userLimit, c.globalLimit).Result()
	if err != nil {
		return fmt.Errorf("admission: acquire for %s: %w", userID, err)
	}
	vals, ok := raw.([]interface{})
	if !ok || len(vals) == 0 {
		return fmt.Errorf("admission: unexpected acquire reply %v", raw)
	}
	if n, _ := vals[0].(int64); n == 1 {
		return nil
	}
	if len(vals) < 3 {
		return fmt.Errorf("admission: unexpected acquire reply %v", raw)
	}
	which, _ := vals[1].(string)
	count, _ := vals[2].(int64)
	if which == "user" {
		return &domain.UserConcurrencyExceededError{Processing: int(count), Limit: userLimit}
	}
	return &domain.GlobalConcurrencyExceededError{Processing: int(count), Limit: c.globalLimit}
}

func (c *RedisConcurrency) Release(ctx context.Context, userID string) error {
	if err := releaseScript.Run(ctx, c.client, []string{c.userKey(userID), c.globalKey()}).Err(); err != nil {
		return fmt.Errorf("admission: release for %s: %w", userID, err)
	}
	return nil
}

func (c *RedisConcurrency) Processing(ctx context.Context, userID string) (int, int, error) {
	user, err := c.client.Get(ctx, c.userKey(userID)).Int()
	if err != nil && err != goredis.Nil {
		return 0, 0, fmt.Errorf("admission: processing for %s: %w", userID, err)
	}
	global, err := c.client.Get(ctx, c.globalKey()).Int()
	if err != nil && err != goredis.Nil {
		return 0, 0, fmt.Errorf("admission: processing global: %w", err)
	}
	return user, global, nil
}
