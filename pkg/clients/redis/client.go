package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	sserr "github.com/StricklySoft/accessgate/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the OpenTelemetry instrumentation scope for this package.
const tracerName = "github.com/StricklySoft/accessgate/pkg/clients/redis"

// Cmdable is the subset of go-redis commands the gateway uses. It embeds
// [redis.Scripter] so a [*redis.Script] can run against it with EVALSHA
// and fall back to EVAL on NOSCRIPT.
type Cmdable interface {
	redis.Scripter
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ Cmdable = (*redis.Client)(nil)

// Client is a Redis client with OpenTelemetry tracing and coded errors.
// It is safe for concurrent use.
type Client struct {
	cmdable Cmdable
	config  *Config
	tracer  trace.Tracer
	dbIndex int
}

// NewClient validates cfg, opens a pooled go-redis client, and verifies
// connectivity with a ping.
//
// Error codes returned:
//   - [sserr.CodeConfiguration]: invalid configuration
//   - [sserr.CodeUnavailable]: cannot connect to Redis
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeConfiguration, "redis: invalid configuration")
	}

	var opts *redis.Options
	if cfg.URI != "" {
		var err error
		opts, err = redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, sserr.Wrap(err, sserr.CodeConfiguration, "redis: failed to parse connection URI")
		}
		opts.PoolSize = cfg.PoolSize
		opts.MinIdleConns = cfg.MinIdleConns
		opts.MaxRetries = cfg.MaxRetries
		opts.DialTimeout = cfg.DialTimeout
		opts.ReadTimeout = cfg.ReadTimeout
		opts.WriteTimeout = cfg.WriteTimeout
	} else {
		opts = &redis.Options{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password:     cfg.Password.Value(),
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}
		if cfg.TLSEnabled {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailable, "redis: failed to connect to server")
	}

	return &Client{
		cmdable: rdb,
		config:  &cfg,
		tracer:  otel.Tracer(tracerName),
		dbIndex: opts.DB,
	}, nil
}

// NewFromClient wraps an existing [Cmdable]. cfg is stored but not
// validated; nil is treated as a zero Config.
func NewFromClient(cmdable Cmdable, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		cmdable: cmdable,
		config:  cfg,
		tracer:  otel.Tracer(tracerName),
		dbIndex: cfg.DB,
	}
}

// RunScript executes script with EVALSHA, loading it on a NOSCRIPT reply.
// Only the script hash and key count are recorded on the span.
//
// Example:
//
//	res, err := client.RunScript(ctx, script, []string{"rl:login:1.2.3.4"}, 5, 60000)
func (c *Client) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	ctx, span := c.startSpan(ctx, "RunScript", fmt.Sprintf("EVALSHA %s %d", script.Hash(), len(keys)))
	res, err := script.Run(ctx, c.cmdable, keys, args...).Result()
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "redis: script failed")
	}
	return res, nil
}

// Del removes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	ctx, span := c.startSpan(ctx, "Del", "DEL "+strings.Join(keys, " "))
	n, err := c.cmdable.Del(ctx, keys...).Result()
	finishSpan(span, err)
	if err != nil {
		return 0, wrapError(err, "redis: del failed")
	}
	return n, nil
}

// Health pings Redis, applying [DefaultHealthTimeout] when ctx has no
// deadline. Failures carry [sserr.CodeUnavailable].
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "PING")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.cmdable.Ping(ctx).Err()
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailable, "redis: health check failed")
	}
	return nil
}

// Close releases all connection resources.
func (c *Client) Close() error {
	return c.cmdable.Close()
}

func (c *Client) startSpan(ctx context.Context, operationName, statement string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "redis."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.Int("db.redis.database_index", c.dbIndex),
		attribute.String("db.statement", truncateStatement(statement)),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// wrapError classifies a go-redis error. Replies from the server (script
// errors, WRONGTYPE, nil) and caller cancellation are internal; anything
// else means the store could not be reached in time and is
// [sserr.CodeUnavailable].
func wrapError(err error, message string) *sserr.Error {
	if err == nil {
		return nil
	}
	var reply redis.Error
	if errors.As(err, &reply) || errors.Is(err, context.Canceled) {
		return sserr.Wrap(err, sserr.CodeInternal, message)
	}
	return sserr.Wrap(err, sserr.CodeUnavailable, message)
}
