// Package token decodes compact JWTs, verifies RS256 signatures, and
// validates the registered claims the gateway relies on.
//
// The three steps are separate so the authenticator can fetch signing keys
// between decoding and verification:
//
//	parsed, err := token.Parse(raw)
//	key, err := keys.Key(ctx, issuer, parsed.KeyID())
//	ok, err := token.VerifyRS256(parsed, key.Public)
//	err = token.ValidateClaims(ctx, parsed.Payload, policy)
//
// Only RS256 is accepted. Every failure is an *errors.Error with an AUTH
// code.
package token
