package gate

import (
	"context"
	"net/http"
	"time"

	"github.com/StricklySoft/accessgate/pkg/auth"
	"github.com/StricklySoft/accessgate/pkg/roles"
)

// RateRule limits a route to Limit calls per Window for each rate-limit
// key.
type RateRule struct {
	Limit  int
	Window time.Duration
}

// Policy is what a protected route requires.
//
// With neither MinRole nor AnyOf set, any authenticated caller passes.
// When both are set MinRole wins. RateLimit, if set, is applied after
// authentication so the key carries the caller's subject.
type Policy struct {
	// Route names the route in rate-limit keys. Defaults to the matched
	// ServeMux pattern, then the request path (HTTP), or the full method
	// name (gRPC).
	Route string

	MinRole   roles.Role
	AnyOf     []roles.Role
	RateLimit *RateRule
}

// Check applies policy to a request described by header. It returns the
// verified principal, or the denial to send. Exactly one decision is
// recorded per call.
func (g *Gate) Check(ctx context.Context, header http.Header, policy Policy) (*auth.Principal, *Denial) {
	var res Result
	switch {
	case policy.MinRole != "":
		res = g.requireRole(ctx, header, policy.MinRole)
	case len(policy.AnyOf) > 0:
		res = g.requireAnyRole(ctx, header, policy.AnyOf...)
	default:
		res = g.authenticate(ctx, header)
	}

	d := res.Denial
	if rule := policy.RateLimit; d == nil && rule != nil {
		key := rateLimitKey(policy.Route, res.Principal, g.clientIP(header))
		d = g.take(ctx, key, rule.Limit, rule.Window)
	}
	g.record(ctx, d)
	if d != nil {
		return nil, d
	}
	return res.Principal, nil
}

// Middleware returns HTTP middleware enforcing policy. Denied requests get
// the JSON denial body; admitted requests reach next with the principal
// available through [auth.PrincipalFromContext].
//
// Example:
//
//	mux.Handle("POST /admin/roles", g.Middleware(gate.Policy{
//	    MinRole:   roles.CLevel,
//	    RateLimit: &gate.RateRule{Limit: 10, Window: time.Minute},
//	})(rolesHandler))
func (g *Gate) Middleware(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := policy
			if p.Route == "" {
				p.Route = r.Pattern
			}
			if p.Route == "" {
				p.Route = r.URL.Path
			}
			principal, denial := g.Check(r.Context(), r.Header, p)
			if denial != nil {
				denial.Render(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}
