package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDailyLimit caps each metered action class per calendar day.
const DefaultDailyLimit = 5

// consumeScript checks the counter against the cap and increments in one
// atomic step, so concurrent requests cannot push past the cap. Returns
// the remaining quota after consuming, or -1 when the cap is already
// reached (no mutation in that case).
var consumeScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= limit then
	return -1
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return limit - count
`)

// refundScript returns one use without letting the counter go negative.
var refundScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count <= 0 then
	return 0
end
return redis.call('DECR', KEYS[1])
`)

// DailyLimiter maintains per (account, action, local calendar day) use
// counters in Redis. The day is part of the key, so a date rollover in
// the account's time zone starts a fresh counter and stale counters from
// prior days never count toward today; their TTL only reclaims memory.
type DailyLimiter struct {
	rdb       *redis.Client
	keyPrefix string
}

// NewDailyLimiter creates a daily action limiter backed by Redis
func NewDailyLimiter(rdb *redis.Client) *DailyLimiter {
	return &DailyLimiter{rdb: rdb, keyPrefix: "admingate:daily"}
}

// TryConsume attempts to record one use of actionKey for the account
// today. Returns the remaining quota after the attempt and whether the
// use was allowed. A rejected attempt consumes nothing.
func (l *DailyLimiter) TryConsume(ctx context.Context, accountID int64, actionKey string, limit int, loc *time.Location, now time.Time) (int, bool, error) {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	key := l.counterKey(accountID, actionKey, now, loc)
	ttl := millisUntilNextMidnight(now, loc)

	res, err := consumeScript.Run(ctx, l.rdb, []string{key}, limit, ttl).Int()
	if err != nil {
		return 0, false, fmt.Errorf("failed to consume daily quota: %w", err)
	}
	if res < 0 {
		return 0, false, nil
	}
	return res, true, nil
}

// Refund returns a use consumed by TryConsume. Called when a later gate
// rejects the request, so the rejected attempt leaves no use recorded.
func (l *DailyLimiter) Refund(ctx context.Context, accountID int64, actionKey string, loc *time.Location, now time.Time) error {
	key := l.counterKey(accountID, actionKey, now, loc)
	if err := refundScript.Run(ctx, l.rdb, []string{key}).Err(); err != nil {
		return fmt.Errorf("failed to refund daily quota: %w", err)
	}
	return nil
}

// Remaining reports today's remaining quota without consuming.
func (l *DailyLimiter) Remaining(ctx context.Context, accountID int64, actionKey string, limit int, loc *time.Location, now time.Time) (int, error) {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	key := l.counterKey(accountID, actionKey, now, loc)

	count, err := l.rdb.Get(ctx, key).Int()
	if err != nil {
		if err == redis.Nil {
			return limit, nil
		}
		return 0, fmt.Errorf("failed to read daily quota: %w", err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *DailyLimiter) counterKey(accountID int64, actionKey string, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	day := now.In(loc).Format("2006-01-02")
	return fmt.Sprintf("%s:%d:%s:%s", l.keyPrefix, accountID, actionKey, day)
}

// millisUntilNextMidnight computes the counter TTL: expiry shortly after
// the next local midnight, when the key stops mattering anyway.
func millisUntilNextMidnight(now time.Time, loc *time.Location) int64 {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return midnight.Sub(local).Milliseconds() + time.Minute.Milliseconds()
}
