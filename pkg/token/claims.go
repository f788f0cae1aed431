package token

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/accessgate/pkg/errors"
)

// DefaultClockSkew is the tolerance applied to exp and nbf.
const DefaultClockSkew = 30 * time.Second

// ClaimsPolicy is what ValidateClaims checks a payload against.
type ClaimsPolicy struct {
	// Issuer is the expected iss value. It is canonicalized with
	// [CanonicalIssuer] before comparison.
	Issuer string

	// Audience must equal aud, or be contained in it when aud is an array.
	Audience string

	// ClockSkew widens the exp and nbf windows. Negative values count as
	// zero.
	ClockSkew time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// CanonicalIssuer returns issuer with exactly one trailing slash appended
// if it lacks one.
func CanonicalIssuer(issuer string) string {
	if strings.HasSuffix(issuer, "/") {
		return issuer
	}
	return issuer + "/"
}

// ValidateClaims checks iss, aud, exp and nbf in that order and returns the
// first failure.
//
// exp and nbf are only enforced when they are numbers. A missing or
// non-numeric value imposes no constraint; a missing exp is logged because
// identity providers normally always set it.
func ValidateClaims(ctx context.Context, payload map[string]any, policy ClaimsPolicy) error {
	claims := jwt.MapClaims(payload)

	iss, err := claims.GetIssuer()
	if err != nil || iss != CanonicalIssuer(policy.Issuer) {
		return sserr.New(sserr.CodeInvalidIssuer, "token: issuer does not match").
			WithDetail("iss", iss)
	}

	aud, err := claims.GetAudience()
	if err != nil || !containsAudience(aud, policy.Audience) {
		return sserr.New(sserr.CodeInvalidAudience, "token: audience does not match")
	}

	now := time.Now
	if policy.Now != nil {
		now = policy.Now
	}
	skew := max(policy.ClockSkew, 0)
	t := now()

	exp, err := claims.GetExpirationTime()
	switch {
	case err != nil:
		// non-numeric exp: no constraint
	case exp == nil:
		slog.WarnContext(ctx, "token: exp claim is absent, token never expires",
			"iss", iss,
		)
	case exp.Before(t.Add(-skew)):
		return sserr.New(sserr.CodeTokenExpired, "token: has expired").
			WithDetail("exp", exp.Unix())
	}

	nbf, err := claims.GetNotBefore()
	if err == nil && nbf != nil && nbf.After(t.Add(skew)) {
		return sserr.New(sserr.CodeTokenNotYetValid, "token: is not yet valid").
			WithDetail("nbf", nbf.Unix())
	}

	return nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	if want == "" {
		return false
	}
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
