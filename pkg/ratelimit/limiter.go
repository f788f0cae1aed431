// Package ratelimit implements fixed-window request counting per key.
//
// A window opens on the first call for a key, with count 1. Later calls
// inside the window are allowed and counted while the count is below the
// limit; once the limit is reached calls are refused without being
// counted. When more than the window has elapsed since it opened, the next
// call starts a new window.
//
// Two stores are provided. [MemoryLimiter] keeps counters in process and
// is the default; with N gateway instances a client can make up to
// N × limit calls per window. [RedisLimiter] keeps counters in Redis so
// every instance shares them.
package ratelimit

import (
	"context"
	"time"

	sserr "github.com/StricklySoft/accessgate/pkg/errors"
)

// Limiter decides whether a call identified by key may proceed.
// Implementations are safe for concurrent use.
type Limiter interface {
	// Allow reports whether the call is within limit for the current
	// window, counting it if so.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Take is Allow with the counter state that produced the decision.
	Take(ctx context.Context, key string, limit int, window time.Duration) (Result, error)

	// Reset forgets key's counter.
	Reset(ctx context.Context, key string) error
}

// Result is the outcome of a single [Limiter.Take].
type Result struct {
	Allowed bool
	Limit   int

	// Remaining is how many more calls the current window admits.
	Remaining int

	// RetryAfter is how long until the window resets. It is zero when the
	// call was allowed.
	RetryAfter time.Duration
}

// Backend names accepted by [Config.Backend].
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and tunes the limiter store. Env names are relative to
// the enclosing prefix (RATELIMIT in the gateway).
type Config struct {
	// Backend is "memory" or "redis". Empty means memory.
	Backend string `env:"BACKEND" envDefault:"memory" json:"backend" yaml:"backend"`

	// MaxKeys caps the number of live counters in the memory store.
	MaxKeys int `env:"MAX_KEYS" envDefault:"10000" json:"max_keys" yaml:"max_keys"`

	// CleanupInterval is how often the memory store sweeps expired
	// counters.
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1m" json:"cleanup_interval" yaml:"cleanup_interval"`

	// KeyPrefix namespaces counters in Redis.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"accessgate:ratelimit:" json:"key_prefix" yaml:"key_prefix"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendMemory, BackendRedis:
	default:
		return sserr.Newf(sserr.CodeValidation,
			"ratelimit: backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.Backend).
			WithDetail("field", "Backend")
	}
	if c.MaxKeys < 0 {
		return sserr.New(sserr.CodeValidation, "ratelimit: max_keys must not be negative").
			WithDetail("field", "MaxKeys")
	}
	return nil
}

// checkWindow rejects windows that can never elapse or never open.
func checkWindow(window time.Duration) error {
	if window <= 0 {
		return sserr.Newf(sserr.CodeValidation, "ratelimit: window must be positive, got %s", window)
	}
	return nil
}

// denyAll is the result for limit <= 0.
func denyAll(limit int, window time.Duration) Result {
	return Result{Allowed: false, Limit: limit, RetryAfter: window}
}
