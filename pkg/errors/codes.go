package errors

// Code represents a machine-readable error code. Codes follow the pattern
// CATEGORY_XXX where CATEGORY determines the HTTP status (see
// [Error.HTTPStatus]) and XXX is a stable three-digit number.
//
// Codes are stable once assigned; clients and dashboards key off them.
type Code string

// Error code categories:
//
//	CFG_xxx      - Configuration errors (500, fatal, never retried)
//	VAL_xxx      - Validation errors (400)
//	AUTH_xxx     - Authentication errors (401, client input, never retried)
//	AUTHZ_xxx    - Authorization errors (403)
//	RATE_xxx     - Rate limit errors (429)
//	UPSTREAM_xxx - Identity provider failures (502, retryable by the caller)
//	UNAVAIL_xxx  - Local dependency unavailable (503, retryable by the caller)
//	INT_xxx      - Internal errors (500)
const (
	// CodeConfiguration indicates the provider or management configuration
	// is incomplete. This is a deployment defect.
	CodeConfiguration Code = "CFG_001"

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeUnauthorized indicates no well-formed bearer credential was
	// presented.
	CodeUnauthorized Code = "AUTH_001"

	// CodeTokenExpired indicates the token's exp claim is in the past,
	// beyond the allowed clock skew.
	CodeTokenExpired Code = "AUTH_002"

	// CodeMalformedToken indicates the token could not be decoded.
	CodeMalformedToken Code = "AUTH_003"

	// CodeInvalidSignature indicates the RS256 signature did not verify.
	CodeInvalidSignature Code = "AUTH_004"

	// CodeInvalidIssuer indicates the iss claim does not match the
	// configured issuer.
	CodeInvalidIssuer Code = "AUTH_005"

	// CodeInvalidAudience indicates the aud claim does not contain the
	// configured audience.
	CodeInvalidAudience Code = "AUTH_006"

	// CodeTokenNotYetValid indicates the token's nbf claim is in the
	// future, beyond the allowed clock skew.
	CodeTokenNotYetValid Code = "AUTH_007"

	// CodeSigningKeyNotFound indicates no key in the JWKS matches the
	// token's kid header.
	CodeSigningKeyNotFound Code = "AUTH_008"

	// CodeUnsupportedAlgorithm indicates the token's alg header is not
	// RS256.
	CodeUnsupportedAlgorithm Code = "AUTH_009"

	// CodeForbidden indicates the caller lacks the required role.
	CodeForbidden Code = "AUTHZ_001"

	// CodeRateLimited indicates the caller exceeded a rate limit.
	CodeRateLimited Code = "RATE_001"

	// CodeJWKSFetchFailed indicates the JWKS endpoint could not be read.
	CodeJWKSFetchFailed Code = "UPSTREAM_001"

	// CodeJWKSEmpty indicates the JWKS endpoint returned no usable keys.
	CodeJWKSEmpty Code = "UPSTREAM_002"

	// CodeCredentialExchangeFailed indicates the client-credentials grant
	// against the identity provider failed.
	CodeCredentialExchangeFailed Code = "UPSTREAM_003"

	// CodeManagementAPIFailed indicates the management API returned a
	// non-2xx status or could not be reached.
	CodeManagementAPIFailed Code = "UPSTREAM_004"

	// CodeUnavailable indicates a local dependency (e.g. the shared
	// rate-limit store) is unreachable.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeInternal indicates an unexpected internal failure.
	CodeInternal Code = "INT_001"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
