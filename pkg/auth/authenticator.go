package auth

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/accessgate/pkg/errors"
	"github.com/StricklySoft/accessgate/pkg/jwks"
	"github.com/StricklySoft/accessgate/pkg/roles"
	"github.com/StricklySoft/accessgate/pkg/token"
)

const tracerName = "github.com/StricklySoft/accessgate/pkg/auth"

// TokenAuthenticator verifies a raw bearer token.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*Principal, error)
}

// KeySource resolves a signing key by issuer and kid. *jwks.Cache
// satisfies it.
type KeySource interface {
	Key(ctx context.Context, issuer, kid string) (jwks.Key, error)
}

// Authenticator verifies tokens for one identity provider. It is safe for
// concurrent use and should be shared for the life of the process.
type Authenticator struct {
	issuer   string
	audience string
	skew     time.Duration
	sources  []string
	keys     KeySource
	now      func() time.Time
	tracer   trace.Tracer
}

var _ TokenAuthenticator = (*Authenticator)(nil)

// NewAuthenticator validates cfg and returns an Authenticator backed by a
// new JWKS cache. An incomplete configuration yields a CFG_001 error; call
// this at startup and treat the error as fatal.
//
// A zero ClockSkew or JWKSCacheTTL is replaced by its default.
func NewAuthenticator(cfg ProviderConfig) (*Authenticator, error) {
	return NewAuthenticatorWithKeys(cfg, jwks.New(cfg.jwksConfig()))
}

// NewAuthenticatorWithKeys is NewAuthenticator with a caller-supplied key
// source, for sharing one JWKS cache between components.
func NewAuthenticatorWithKeys(cfg ProviderConfig, keys KeySource) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, sserr.Configuration("auth: key source must not be nil")
	}

	a := &Authenticator{
		issuer:   cfg.Issuer(),
		audience: cfg.Audience,
		skew:     cfg.ClockSkew,
		sources:  cfg.Sources(),
		keys:     keys,
		now:      cfg.Clock,
		tracer:   otel.Tracer(tracerName),
	}
	if a.skew == 0 {
		a.skew = token.DefaultClockSkew
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Issuer returns the canonical issuer tokens must carry.
func (a *Authenticator) Issuer() string { return a.issuer }

// Authenticate verifies rawToken and builds its principal:
//
//  1. decode the token (AUTH_003)
//  2. require alg RS256 (AUTH_009)
//  3. resolve the signing key by kid (AUTH_008, or UPSTREAM_001/002 when
//     the key set cannot be fetched)
//  4. verify the signature (AUTH_004)
//  5. validate iss, aud, exp, nbf (AUTH_005, AUTH_006, AUTH_002, AUTH_007)
//  6. extract and sanitize roles from the configured sources
//
// The algorithm is checked before the key lookup so a token with a
// foreign alg never causes a JWKS fetch.
func (a *Authenticator) Authenticate(ctx context.Context, rawToken string) (_ *Principal, err error) {
	ctx, span := a.tracer.Start(ctx, "auth.Authenticate")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("auth.error_code", sserr.GetCode(err).String()))
		}
		span.End()
	}()

	parsed, err := token.Parse(rawToken)
	if err != nil {
		return nil, err
	}
	if alg := parsed.Alg(); alg != token.AlgRS256 {
		return nil, sserr.Newf(sserr.CodeUnsupportedAlgorithm, "auth: algorithm %q is not permitted", alg)
	}

	key, err := a.keys.Key(ctx, a.issuer, parsed.KeyID())
	if err != nil {
		return nil, err
	}

	ok, err := token.VerifyRS256(parsed, key.Public)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sserr.New(sserr.CodeInvalidSignature, "auth: token signature is invalid")
	}

	err = token.ValidateClaims(ctx, parsed.Payload, token.ClaimsPolicy{
		Issuer:    a.issuer,
		Audience:  a.audience,
		ClockSkew: a.skew,
		Now:       a.now,
	})
	if err != nil {
		return nil, err
	}

	p := newPrincipal(parsed.Payload, roles.FromClaims(parsed.Payload, a.sources))
	span.SetAttributes(
		attribute.String("auth.subject", p.SubjectID),
		attribute.StringSlice("auth.roles", roles.Strings(p.Roles)),
	)
	return p, nil
}
