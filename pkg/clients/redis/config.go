// Package redis provides the traced Redis client behind the shared
// rate-limit store.
//
// # Connection Management
//
// The client wraps go-redis (github.com/redis/go-redis/v9) and adds
// tracing and error classification to the small command set the gateway
// needs: Lua script execution, key reads and deletes, and health pings.
// Connection pooling, reconnection, and retry are handled by go-redis.
//
// # Configuration
//
// Create a client using [NewClient] with a [Config]:
//
//	cfg := redis.DefaultConfig()
//	cfg.URI = "redis://:secret@redis:6379/0"
//	client, err := redis.NewClient(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// For tests, [NewFromClient] accepts any [Cmdable], including a go-redis
// client pointed at miniredis.
//
// # OpenTelemetry Tracing
//
// Every command creates a client span with db.system,
// db.redis.database_index, and db.statement attributes. Statements are
// truncated to 100 characters and never include argument values.
package redis

import (
	"fmt"
	"net/url"
	"time"

	"github.com/StricklySoft/accessgate/pkg/config"
)

// maxStatementTruncateLen bounds db.statement in spans.
const maxStatementTruncateLen = 100

// Default connection pool and timeout settings. Rate-limit scripts are
// short, so read and write timeouts are tighter than a general-purpose
// cache client would use.
const (
	DefaultHost          = "localhost"
	DefaultPort          = 6379
	DefaultDB            = 0
	DefaultPoolSize      = 25
	DefaultMinIdleConns  = 5
	DefaultMaxRetries    = 3
	DefaultDialTimeout   = 5 * time.Second
	DefaultReadTimeout   = 2 * time.Second
	DefaultWriteTimeout  = 2 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// Config holds the Redis connection configuration. When [Config.URI] is
// set it takes precedence over Host, Port, DB, and Password.
//
// Env names are relative to the enclosing prefix; the gateway nests this
// struct under REDIS, so URI is read from ACCESSGATE_REDIS_URI.
type Config struct {
	// URI is a Redis connection string, e.g. "redis://:pw@host:6379/0" or
	// "rediss://..." for TLS.
	URI string `json:"uri,omitempty" yaml:"uri,omitempty" env:"URI"`

	// Host is the Redis server hostname or IP address.
	// Default: "localhost"
	Host string `json:"host,omitempty" yaml:"host,omitempty" env:"HOST"`

	// Port is the Redis server port.
	// Default: 6379
	Port int `json:"port,omitempty" yaml:"port,omitempty" env:"PORT"`

	// DB is the Redis database index.
	DB int `json:"db" yaml:"db" env:"DB"`

	// Password is the Redis password.
	Password config.Secret `json:"-" yaml:"-" env:"PASSWORD"`

	// PoolSize is the maximum number of connections in the pool.
	PoolSize int `json:"pool_size,omitempty" yaml:"pool_size,omitempty" env:"POOL_SIZE"`

	// MinIdleConns is the minimum number of idle connections kept open.
	MinIdleConns int `json:"min_idle_conns,omitempty" yaml:"min_idle_conns,omitempty" env:"MIN_IDLE_CONNS"`

	// MaxRetries is the maximum number of retries before giving up on a
	// command. Set to -1 to disable retries.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty" env:"MAX_RETRIES"`

	DialTimeout  time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout,omitempty" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty" env:"WRITE_TIMEOUT"`

	// TLSEnabled turns on TLS for structured configuration. A "rediss://"
	// URI enables TLS on its own.
	TLSEnabled bool `json:"tls_enabled,omitempty" yaml:"tls_enabled,omitempty" env:"TLS_ENABLED"`
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		DB:           DefaultDB,
		PoolSize:     DefaultPoolSize,
		MinIdleConns: DefaultMinIdleConns,
		MaxRetries:   DefaultMaxRetries,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Enabled reports whether any connection target is configured. The
// gateway falls back to the in-memory limiter when it is not.
func (c *Config) Enabled() bool {
	return c.URI != "" || c.Host != ""
}

// Validate applies defaults to zero-valued fields and checks the rest.
//
// Validation rules:
//   - URI (if set) must have redis:// or rediss:// scheme
//   - Port must be between 1 and 65535
//   - PoolSize must be >= MinIdleConns and >= 1
//   - Duration fields must not be negative
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: config URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: config URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("redis: config pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.MinIdleConns < 0 {
		return fmt.Errorf("redis: config min_idle_conns must be >= 0, got %d", c.MinIdleConns)
	}
	if c.PoolSize < c.MinIdleConns {
		return fmt.Errorf("redis: config pool_size (%d) must be >= min_idle_conns (%d)", c.PoolSize, c.MinIdleConns)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("redis: config timeouts must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = DefaultMinIdleConns
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// truncateStatement truncates s to [maxStatementTruncateLen] runes,
// appending "..." when it cuts.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
