package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type contextKey int

const principalKey contextKey = iota

// ContextWithPrincipal returns a copy of ctx carrying p.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by the gate, if any.
//
// Example:
//
//	p, ok := auth.PrincipalFromContext(r.Context())
//	if !ok {
//	    // route is not behind the gate
//	}
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// MustPrincipalFromContext is PrincipalFromContext for handlers that are
// only ever mounted behind the gate. It panics if no principal is present.
func MustPrincipalFromContext(ctx context.Context) *Principal {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		panic("auth: no principal in context; is the handler behind the gate?")
	}
	return p
}

// TraceIDFromContext returns the active OpenTelemetry trace ID, if any.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return "", false
	}
	return sc.TraceID().String(), true
}
