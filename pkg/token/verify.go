package token

import (
	"crypto/rsa"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/accessgate/pkg/errors"
)

// AlgRS256 is the only signing algorithm the gateway accepts.
const AlgRS256 = "RS256"

// VerifyRS256 checks the RSA-SHA256 signature of p against key.
//
// The header alg must be exactly "RS256"; anything else, including "none"
// and the HMAC family, fails with CodeUnsupportedAlgorithm before the key
// is touched. A signature that does not verify returns (false, nil) and
// the caller decides how to report it.
func VerifyRS256(p *Parsed, key *rsa.PublicKey) (bool, error) {
	if alg := p.Alg(); alg != AlgRS256 {
		return false, sserr.Newf(sserr.CodeUnsupportedAlgorithm,
			"token: algorithm %q is not permitted", alg)
	}
	if key == nil {
		return false, sserr.New(sserr.CodeSigningKeyNotFound, "token: no verification key")
	}
	if err := jwt.SigningMethodRS256.Verify(string(p.SigningInput), p.Signature, key); err != nil {
		return false, nil
	}
	return true, nil
}
