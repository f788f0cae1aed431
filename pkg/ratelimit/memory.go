package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Defaults for [MemoryConfig].
const (
	DefaultMaxKeys         = 10000
	DefaultCleanupInterval = time.Minute
)

// expirySlack keeps a counter in the store a little past its window so the
// janitor never drops it before the window has logically reset.
const expirySlack = time.Second

// MemoryConfig configures a [MemoryLimiter]. The zero value is usable.
type MemoryConfig struct {
	// MaxKeys caps live counters. When the cap is reached, expired counters
	// are purged; if the store is still full, calls for new keys are
	// refused. Defaults to [DefaultMaxKeys].
	MaxKeys int

	// CleanupInterval is the janitor period. Defaults to
	// [DefaultCleanupInterval].
	CleanupInterval time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

type counter struct {
	windowStart time.Time
	window      time.Duration
	count       int
}

func (c *counter) expired(now time.Time) bool {
	return now.Sub(c.windowStart) > c.window
}

// MemoryLimiter is a process-local [Limiter]. Counters live in a go-cache
// map with a per-entry TTL of the window, swept by a background janitor.
type MemoryLimiter struct {
	mu      sync.Mutex
	items   *cache.Cache
	maxKeys int
	now     func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns an empty in-memory limiter.
func NewMemoryLimiter(cfg MemoryConfig) *MemoryLimiter {
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultMaxKeys
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &MemoryLimiter{
		items:   cache.New(cache.NoExpiration, cfg.CleanupInterval),
		maxKeys: cfg.MaxKeys,
		now:     cfg.Clock,
	}
}

// Allow implements [Limiter].
func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := l.Take(ctx, key, limit, window)
	return res.Allowed, err
}

// Take implements [Limiter].
func (l *MemoryLimiter) Take(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	if err := checkWindow(window); err != nil {
		return Result{}, err
	}
	if limit <= 0 {
		return denyAll(limit, window), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if v, ok := l.items.Get(key); ok {
		c := v.(*counter)
		if !c.expired(now) {
			return c.take(now, limit), nil
		}
	} else if l.items.ItemCount() >= l.maxKeys && !l.makeRoom(now) {
		slog.WarnContext(ctx, "ratelimit: memory store full, refusing new key",
			"max_keys", l.maxKeys,
		)
		return Result{Allowed: false, Limit: limit, RetryAfter: window}, nil
	}

	c := &counter{windowStart: now, window: window, count: 1}
	l.items.Set(key, c, window+expirySlack)
	return Result{Allowed: true, Limit: limit, Remaining: limit - 1}, nil
}

// take applies one call to a counter whose window is still open.
func (c *counter) take(now time.Time, limit int) Result {
	if c.count >= limit {
		return Result{
			Allowed:    false,
			Limit:      limit,
			RetryAfter: c.windowStart.Add(c.window).Sub(now),
		}
	}
	c.count++
	return Result{Allowed: true, Limit: limit, Remaining: limit - c.count}
}

// makeRoom drops every counter whose window has passed and reports
// whether the store is now below its cap. Callers hold l.mu.
func (l *MemoryLimiter) makeRoom(now time.Time) bool {
	l.items.DeleteExpired()
	for key, item := range l.items.Items() {
		if item.Object.(*counter).expired(now) {
			l.items.Delete(key)
		}
	}
	return l.items.ItemCount() < l.maxKeys
}

// Reset implements [Limiter].
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items.Delete(key)
	return nil
}

// Len returns the number of counters currently stored, including any the
// janitor has not yet swept.
func (l *MemoryLimiter) Len() int {
	return l.items.ItemCount()
}
