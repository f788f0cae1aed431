// Package auth turns a bearer token into an authenticated [Principal].
//
// An [Authenticator] is built once per process from a [ProviderConfig] and
// shared by every request. Authenticate composes the token codec, the JWKS
// cache, RS256 verification, claims validation and role extraction:
//
//	authn, err := auth.NewAuthenticator(cfg) // CFG_001 if cfg is incomplete
//	principal, err := authn.Authenticate(ctx, rawToken)
//
// Every failure is an *errors.Error with a specific code. Nothing is
// retried and principals are never cached: every request is verified
// again.
//
// Request-level concerns (bearer extraction, role gates, denial responses)
// live in the gate package, which stores the principal in the request
// context with [ContextWithPrincipal].
package auth
