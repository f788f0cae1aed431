package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/accessgate/internal/testutil"
	"github.com/StricklySoft/accessgate/pkg/clients/redis"
	sserr "github.com/StricklySoft/accessgate/pkg/errors"
)

func newRedis(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLimiter(redis.NewFromClient(rdb, nil), ""), mr
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	t.Parallel()
	l, mr := newRedis(t)

	got := []bool{
		allow(t, l, "k", 3, time.Minute),
		allow(t, l, "k", 3, time.Minute),
		allow(t, l, "k", 3, time.Minute),
		allow(t, l, "k", 3, time.Minute),
	}
	assert.Equal(t, []bool{true, true, true, false}, got)
	assert.Equal(t, "3", mustGet(t, mr, DefaultKeyPrefix+"k"), "blocked calls are not counted")

	mr.FastForward(61 * time.Second)
	assert.True(t, allow(t, l, "k", 3, time.Minute))
}

func TestRedisLimiter_TakeReportsState(t *testing.T) {
	t.Parallel()
	l, mr := newRedis(t)
	ctx := context.Background()

	res, err := l.Take(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Result{Allowed: true, Limit: 2, Remaining: 1}, res)

	res, err = l.Take(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Remaining)

	mr.FastForward(20 * time.Second)
	res, err = l.Take(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 40*time.Second, res.RetryAfter)
}

func TestRedisLimiter_NonPositiveLimitDoesNotTouchRedis(t *testing.T) {
	t.Parallel()
	l, mr := newRedis(t)

	assert.False(t, allow(t, l, "k", 0, time.Minute))
	assert.False(t, mr.Exists(DefaultKeyPrefix+"k"))

	_, err := l.Allow(context.Background(), "k", 1, -time.Second)
	testutil.RequireErrorCode(t, err, sserr.CodeValidation)
}

func TestRedisLimiter_Reset(t *testing.T) {
	t.Parallel()
	l, mr := newRedis(t)

	require.True(t, allow(t, l, "k", 1, time.Minute))
	require.NoError(t, l.Reset(context.Background(), "k"))
	assert.False(t, mr.Exists(DefaultKeyPrefix+"k"))
	assert.True(t, allow(t, l, "k", 1, time.Minute))
}

func TestRedisLimiter_CustomPrefix(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewRedisLimiter(redis.NewFromClient(rdb, nil), "svc:")

	require.True(t, allow(t, l, "login:1.2.3.4", 1, time.Minute))
	assert.True(t, mr.Exists("svc:login:1.2.3.4"))
}

func TestRedisLimiter_InstancesShareCounters(t *testing.T) {
	t.Parallel()
	first, mr := newRedis(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	second := NewRedisLimiter(redis.NewFromClient(rdb, nil), "")

	total := 0
	for _, l := range []Limiter{first, second} {
		for i := 0; i < 5; i++ {
			if allow(t, l, "k", 3, time.Minute) {
				total++
			}
		}
	}
	assert.Equal(t, 3, total)
}

func TestRedisLimiter_StoreDownIsUnavailable(t *testing.T) {
	t.Parallel()
	l, mr := newRedis(t)
	mr.Close()

	ok, err := l.Allow(context.Background(), "k", 3, time.Minute)
	assert.False(t, ok)
	testutil.RequireErrorCode(t, err, sserr.CodeUnavailable)
}

// TestLimiters_AgreeOnSequence runs the same schedule through both stores.
func TestLimiters_AgreeOnSequence(t *testing.T) {
	t.Parallel()

	type step struct {
		advance time.Duration
		key     string
		want    bool
	}
	schedule := []step{
		{0, "a", true}, {0, "a", true}, {0, "b", true}, {0, "a", false},
		{10 * time.Second, "a", false}, {0, "b", true}, {0, "b", false},
		{55 * time.Second, "a", true}, {0, "b", true}, {0, "a", true}, {0, "a", false},
	}

	mem, clock := newMemory(0)
	rl, mr := newRedis(t)

	for i, s := range schedule {
		clock.Advance(s.advance)
		mr.FastForward(s.advance)
		assert.Equal(t, s.want, allow(t, mem, s.key, 2, time.Minute), "memory step %d", i)
		assert.Equal(t, s.want, allow(t, rl, s.key, 2, time.Minute), "redis step %d", i)
	}
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
