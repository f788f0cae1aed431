// Package errors provides the coded error taxonomy used across the access
// gateway. Every failure that crosses a package boundary is an [*Error]
// carrying a machine-readable [Code], a human-readable message, an optional
// cause, and optional structured details.
//
// # Error Categories
//
// Codes are grouped by category prefix, and the category decides the HTTP
// status a failure surfaces as:
//
//   - CFG: deployment configuration is incomplete or invalid (500)
//   - VAL: a configuration or request value failed validation (400)
//   - AUTH: the bearer token is absent, malformed, or fails verification (401)
//   - AUTHZ: the caller is authenticated but lacks the required role (403)
//   - RATE: the caller exceeded a rate limit (429)
//   - UPSTREAM: the identity provider (JWKS, token exchange, management
//     API) failed or returned an error (502)
//   - UNAVAIL: a local dependency such as Redis is unreachable (503)
//   - INT: unexpected internal failure (500)
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.CodeMalformedToken, "token must have three segments")
//
// Wrap an existing error:
//
//	err := errors.Wrap(err, errors.CodeJWKSFetchFailed, "jwks: request failed")
//
// Inspect an error:
//
//	if errors.HasCode(err, errors.CodeTokenExpired) {
//	    // ...
//	}
//
// Nothing in this module retries automatically. [IsRetryable] reports
// whether a caller at a higher layer may reasonably retry.
package errors
