package credits

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"server/internal/domain"
)

// RedisLedger stores each user's pools in a Redis hash and runs reserve as
// a Lua script so the check and the deduction are one atomic step even
// across multiple orchestrator instances.
type RedisLedger struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ Ledger = (*RedisLedger)(nil)

// NewRedisLedger wraps a connected client. The prefix defaults to
// "credits:".
func NewRedisLedger(client goredis.Cmdable, keyPrefix string) *RedisLedger {
	if keyPrefix == "" {
		keyPrefix = "credits:"
	}
	return &RedisLedger{client: client, keyPrefix: keyPrefix}
}

func (l *RedisLedger) key(userID string) string {
	return l.keyPrefix + userID
}

// reserveScript draws amount from the hash {base, bonus}, base pool first.
// Returns {1, drawn_base, drawn_bonus, base, bonus} on success or
// {0, available} when the total cannot cover the amount.
var reserveScript = goredis.NewScript(`
local base = tonumber(redis.call('HGET', KEYS[1], 'base') or '0')
local bonus = tonumber(redis.call('HGET', KEYS[1], 'bonus') or '0')
local amount = tonumber(ARGV[1])
if base + bonus < amount then
  return {0, base + bonus}
end
local from_base = math.min(base, amount)
local from_bonus = amount - from_base
redis.call('HSET', KEYS[1], 'base', base - from_base, 'bonus', bonus - from_bonus)
return {1, from_base, from_bonus, base - from_base, bonus - from_bonus}
`)

func (l *RedisLedger) Reserve(ctx context.Context, userID string, amount int64) (Reservation, Balances, error) {
	raw, err := reserveScript.Run(ctx, l.client, []string{l.key(userID)}, amount).Result()
	if err != nil {
		return Reservation{}, Balances{}, fmt.Errorf("credits: reserve for %s: %w", userID, err)
	}
	vals, ok := raw.([]interface{})
	if !ok || len(vals) < 2 {
		return Reservation{}, Balances{}, fmt.Errorf("credits: unexpected reserve reply %v", raw)
	}
	if asInt64(vals[0]) == 0 {
		return Reservation{}, Balances{}, &domain.InsufficientCreditsError{
			Needed:    amount,
			Available: asInt64(vals[1]),
		}
	}
	if len(vals) < 5 {
		return Reservation{}, Balances{}, fmt.Errorf("credits: unexpected reserve reply %v", raw)
	}
	res := Reservation{Base: asInt64(vals[1]), Bonus: asInt64(vals[2])}
	bal := Balances{Base: asInt64(vals[3]), Bonus: asInt64(vals[4])}
	return res, bal, nil
}

func (l *RedisLedger) Refund(ctx context.Context, userID string, res Reservation) (Balances, error) {
	pipe := l.client.TxPipeline()
	baseCmd := pipe.HIncrBy(ctx, l.key(userID), "base", res.Base)
	bonusCmd := pipe.HIncrBy(ctx, l.key(userID), "bonus", res.Bonus)
	if _, err := pipe.Exec(ctx); err != nil {
		return Balances{}, fmt.Errorf("credits: refund for %s: %w", userID, err)
	}
	return Balances{Base: baseCmd.Val(), Bonus: bonusCmd.Val()}, nil
}

func (l *RedisLedger) Balance(ctx context.Context, userID string) (Balances, error) {
	fields, err := l.client.HGetAll(ctx, l.key(userID)).Result()
	if err != nil {
		return Balances{}, fmt.Errorf("credits: balance for %s: %w", userID, err)
	}
	var b Balances
	b.Base = parseField(fields, "base")
	b.Bonus = parseField(fields, "bonus")
	return b, nil
}

func (l *RedisLedger) Grant(ctx context.Context, userID string, base, bonus int64) (Balances, error) {
	pipe := l.client.TxPipeline()
	baseCmd := pipe.HIncrBy(ctx, l.key(userID), "base", base)
	bonusCmd := pipe.HIncrBy(ctx, l.key(userID), "bonus", bonus)
	if _, err := pipe.Exec(ctx); err != nil {
		return Balances{}, fmt.Errorf("credits: grant for %s: %w", userID, err)
	}
	return Balances{Base: baseCmd.Val(), Bonus: bonusCmd.Val()}, nil
}

func parseField(fields map[string]string, name string) int64 {
	v, ok := fields[name]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}
