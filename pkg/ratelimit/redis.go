package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/StricklySoft/accessgate/pkg/clients/redis"
	sserr "github.com/StricklySoft/accessgate/pkg/errors"
)

// DefaultKeyPrefix namespaces counters in Redis.
const DefaultKeyPrefix = "accessgate:ratelimit:"

// fixedWindowScript applies one call to the counter at KEYS[1].
// ARGV[1] is the limit, ARGV[2] the window in milliseconds. It returns
// {allowed, count, pttl}.
var fixedWindowScript = goredis.NewScript(`
local limit = tonumber(ARGV[1])
local current = redis.call('GET', KEYS[1])
if not current then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[2])
  return {1, 1, tonumber(ARGV[2])}
end
current = tonumber(current)
if current >= limit then
  return {0, current, redis.call('PTTL', KEYS[1])}
end
current = redis.call('INCR', KEYS[1])
return {1, current, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter is a [Limiter] whose counters live in Redis, shared by every
// gateway instance using the same server and prefix. Windows expire with
// the key, so a window resets once its full length has passed.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter returns a limiter backed by client. An empty prefix uses
// [DefaultKeyPrefix].
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

// Allow implements [Limiter].
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := l.Take(ctx, key, limit, window)
	return res.Allowed, err
}

// Take implements [Limiter]. Store failures are returned with the code
// the Redis client assigned, normally [sserr.CodeUnavailable].
func (l *RedisLimiter) Take(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	if err := checkWindow(window); err != nil {
		return Result{}, err
	}
	if limit <= 0 {
		return denyAll(limit, window), nil
	}

	windowMS := window.Milliseconds()
	if windowMS < 1 {
		windowMS = 1
	}

	raw, err := l.client.RunScript(ctx, fixedWindowScript, []string{l.prefix + key}, limit, windowMS)
	if err != nil {
		return Result{}, err
	}
	allowed, count, pttl, err := parseReply(raw)
	if err != nil {
		return Result{}, sserr.Wrap(err, sserr.CodeInternal, "ratelimit: unexpected script reply")
	}

	res := Result{Allowed: allowed, Limit: limit, Remaining: max(limit-int(count), 0)}
	if !allowed {
		res.Remaining = 0
		res.RetryAfter = time.Duration(max(pttl, 0)) * time.Millisecond
	}
	return res, nil
}

// Reset implements [Limiter].
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	_, err := l.client.Del(ctx, l.prefix+key)
	return err
}

func parseReply(raw any) (allowed bool, count, pttl int64, err error) {
	vals, ok := raw.([]any)
	if !ok || len(vals) != 3 {
		return false, 0, 0, fmt.Errorf("want 3-element array, got %T", raw)
	}
	var nums [3]int64
	for i, v := range vals {
		n, ok := v.(int64)
		if !ok {
			return false, 0, 0, fmt.Errorf("element %d is %T, want integer", i, v)
		}
		nums[i] = n
	}
	return nums[0] == 1, nums[1], nums[2], nil
}
