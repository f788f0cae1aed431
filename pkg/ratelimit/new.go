package ratelimit

import (
	"github.com/StricklySoft/accessgate/pkg/clients/redis"
	sserr "github.com/StricklySoft/accessgate/pkg/errors"
)

// New builds the limiter cfg selects. The redis backend requires client;
// the memory backend ignores it.
func New(cfg Config, client *redis.Client) (Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendRedis:
		if client == nil {
			return nil, sserr.Configuration("ratelimit: redis backend selected but no redis client configured")
		}
		return NewRedisLimiter(client, cfg.KeyPrefix), nil
	default:
		return NewMemoryLimiter(MemoryConfig{
			MaxKeys:         cfg.MaxKeys,
			CleanupInterval: cfg.CleanupInterval,
		}), nil
	}
}
