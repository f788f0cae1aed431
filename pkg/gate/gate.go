// Package gate is the request-time authorization boundary.
//
// A [Gate] turns an inbound request's headers into either a verified
// [auth.Principal] or a [Denial]. Denials use a small public vocabulary:
//
//	401 unauthorized            no well-formed "Bearer <token>" header
//	401 invalid_token           any verification failure
//	403 forbidden               authenticated, but the role is too low
//	429 rate_limited            the rate-limit key exceeded its window
//	503 rate_limit_unavailable  the shared rate-limit store is down
//
// The public message is fixed per code. The internal reason travels in
// details.reason and details.message, and every denial carries a
// details.request_id for log correlation.
//
// [Gate.Middleware] and [Gate.UnaryServerInterceptor] apply a [Policy] to
// HTTP and gRPC servers respectively.
package gate

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/StricklySoft/accessgate/pkg/auth"
	sserr "github.com/StricklySoft/accessgate/pkg/errors"
	"github.com/StricklySoft/accessgate/pkg/ratelimit"
	"github.com/StricklySoft/accessgate/pkg/roles"
)

// Result is the outcome of a Require* check. Exactly one of Principal
// and Denial is set.
type Result struct {
	OK        bool
	Principal *auth.Principal
	Denial    *Denial
}

// Gate authorizes requests. It is safe for concurrent use.
type Gate struct {
	authn     auth.TokenAuthenticator
	limiter   ratelimit.Limiter
	logger    *slog.Logger
	requestID func() string
	clientIP  func(http.Header) string
	metrics   *metrics
}

// Option configures a [Gate].
type Option func(*Gate)

// WithLimiter sets the limiter used by [Gate.Limit]. The default is a
// process-local [ratelimit.MemoryLimiter].
func WithLimiter(l ratelimit.Limiter) Option {
	return func(g *Gate) { g.limiter = l }
}

// WithRegisterer registers the gate's metrics with reg. Without it the
// metrics are collected but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(g *Gate) { g.metrics = newMetrics(reg) }
}

// WithLogger sets the logger for denial records. The default is
// [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithRequestID overrides the request ID generator (UUIDv4 by default).
func WithRequestID(fn func() string) Option {
	return func(g *Gate) { g.requestID = fn }
}

// WithClientIP sets how [Gate.Check] derives the IP part of rate-limit
// keys. The default is [ClientIP]; deployments behind a proxy that appends
// to X-Forwarded-For should use [LastHopClientIP].
func WithClientIP(fn func(http.Header) string) Option {
	return func(g *Gate) { g.clientIP = fn }
}

// New returns a Gate that verifies tokens with authn.
func New(authn auth.TokenAuthenticator, opts ...Option) *Gate {
	g := &Gate{authn: authn}
	for _, opt := range opts {
		opt(g)
	}
	if g.limiter == nil {
		g.limiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{})
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.requestID == nil {
		g.requestID = uuid.NewString
	}
	if g.clientIP == nil {
		g.clientIP = ClientIP
	}
	if g.metrics == nil {
		g.metrics = newMetrics(nil)
	}
	return g
}

// ---------------------------------------------------------------------------
// Authentication and role checks
// ---------------------------------------------------------------------------

// RequireAuth verifies the bearer token in header. A missing or
// ill-formed header is refused with 401 unauthorized before any
// verification work; any verification failure becomes 401 invalid_token.
func (g *Gate) RequireAuth(ctx context.Context, header http.Header) Result {
	res := g.authenticate(ctx, header)
	g.record(ctx, res.Denial)
	return res
}

// RequireRole is RequireAuth followed by a 403 forbidden unless the
// principal holds minRole or a heavier role.
func (g *Gate) RequireRole(ctx context.Context, header http.Header, minRole roles.Role) Result {
	res := g.requireRole(ctx, header, minRole)
	g.record(ctx, res.Denial)
	return res
}

// RequireAnyRole is RequireAuth followed by a 403 forbidden unless the
// principal meets at least one candidate's threshold. With no candidates
// every caller is refused.
func (g *Gate) RequireAnyRole(ctx context.Context, header http.Header, candidates ...roles.Role) Result {
	res := g.requireAnyRole(ctx, header, candidates...)
	g.record(ctx, res.Denial)
	return res
}

// Non-recording variants used by Check.

func (g *Gate) requireRole(ctx context.Context, header http.Header, minRole roles.Role) Result {
	res := g.authenticate(ctx, header)
	if res.OK && !res.Principal.HasAtLeast(minRole) {
		res = g.forbid(res.Principal, minRole)
	}
	return res
}

func (g *Gate) requireAnyRole(ctx context.Context, header http.Header, candidates ...roles.Role) Result {
	res := g.authenticate(ctx, header)
	if res.OK && !res.Principal.HasAny(candidates...) {
		res = g.forbid(res.Principal, candidates...)
	}
	return res
}

func (g *Gate) authenticate(ctx context.Context, header http.Header) Result {
	tok, ok := auth.BearerFromHeader(header)
	if !ok {
		return g.deny(&Denial{
			Status:  http.StatusUnauthorized,
			Code:    CodeUnauthorized,
			Message: msgUnauthorized,
			Details: map[string]any{"reason": string(sserr.CodeUnauthorized)},
		})
	}

	p, err := g.authn.Authenticate(ctx, tok)
	if err != nil {
		return g.deny(&Denial{
			Status:  http.StatusUnauthorized,
			Code:    CodeInvalidToken,
			Message: msgInvalidToken,
			Details: map[string]any{"reason": reasonOf(err), "message": err.Error()},
			Err:     err,
		})
	}
	return Result{OK: true, Principal: p}
}

func (g *Gate) forbid(p *auth.Principal, required ...roles.Role) Result {
	return g.deny(&Denial{
		Status:  http.StatusForbidden,
		Code:    CodeForbidden,
		Message: msgForbidden,
		Details: map[string]any{
			"reason":   string(sserr.CodeForbidden),
			"required": roles.Strings(required),
			"roles":    roles.Strings(p.Roles),
		},
		Err: sserr.Forbidden("gate: principal lacks required role"),
	})
}

func (g *Gate) deny(d *Denial) Result {
	if d.Details == nil {
		d.Details = map[string]any{}
	}
	d.Details["request_id"] = g.requestID()
	return Result{Denial: d}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

// Limit counts one call against key and returns a denial when the call is
// over limit (429 rate_limited with Retry-After) or the limiter's store
// failed (503 rate_limit_unavailable). It returns nil when the call may
// proceed. Only denials are recorded.
func (g *Gate) Limit(ctx context.Context, key string, limit int, window time.Duration) *Denial {
	d := g.take(ctx, key, limit, window)
	if d != nil {
		g.record(ctx, d)
	}
	return d
}

func (g *Gate) take(ctx context.Context, key string, limit int, window time.Duration) *Denial {
	res, err := g.limiter.Take(ctx, key, limit, window)
	if err != nil {
		return g.deny(&Denial{
			Status:     http.StatusServiceUnavailable,
			Code:       CodeRateLimitUnavailable,
			Message:    msgRateLimitUnavailable,
			Details:    map[string]any{"reason": reasonOf(err), "message": err.Error()},
			RetryAfter: time.Second,
			Err:        err,
		}).Denial
	}
	if res.Allowed {
		return nil
	}

	retry := res.RetryAfter
	if retry <= 0 {
		retry = time.Second
	}
	return g.deny(&Denial{
		Status:  http.StatusTooManyRequests,
		Code:    CodeRateLimited,
		Message: msgRateLimited,
		Details: map[string]any{
			"reason":              string(sserr.CodeRateLimited),
			"limit":               limit,
			"window_seconds":      window.Seconds(),
			"retry_after_seconds": retryAfterSeconds(retry),
		},
		RetryAfter: retry,
		Err:        sserr.RateLimited("gate: rate limit exceeded"),
	}).Denial
}

// ---------------------------------------------------------------------------
// Observation
// ---------------------------------------------------------------------------

func (g *Gate) record(ctx context.Context, d *Denial) {
	if d == nil {
		g.metrics.decisions.WithLabelValues(outcomeAllow, "ok").Inc()
		return
	}
	g.metrics.decisions.WithLabelValues(outcomeDeny, d.Code).Inc()

	attrs := []any{
		"code", d.Code,
		"status", d.Status,
		"request_id", d.Details["request_id"],
	}
	if reason, ok := d.Details["reason"]; ok {
		attrs = append(attrs, "reason", reason)
	}
	if traceID, ok := auth.TraceIDFromContext(ctx); ok {
		attrs = append(attrs, "trace_id", traceID)
	}
	if d.Err != nil {
		attrs = append(attrs, "error", d.Err)
	}

	level := slog.LevelInfo
	if d.Code == CodeInvalidToken || d.Code == CodeRateLimitUnavailable {
		level = slog.LevelWarn
	}
	g.logger.Log(ctx, level, "gate: request denied", attrs...)
}

func reasonOf(err error) string {
	if code := sserr.GetCode(err); code != "" {
		return string(code)
	}
	return string(sserr.CodeInternal)
}
