package errors

import (
	"errors"
)

// AsError attempts to convert an error to an *Error by traversing the
// error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the error code from an error, or "" if the error is nil
// or not an *Error.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the specified code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsConfiguration reports whether err is a configuration error (CFG_xxx).
func IsConfiguration(err error) bool {
	return hasCategory(err, "CFG")
}

// IsAuthentication reports whether err is an authentication error
// (AUTH_xxx). All token verification failures fall in this category.
func IsAuthentication(err error) bool {
	return hasCategory(err, "AUTH")
}

// IsAuthorization reports whether err is an authorization error
// (AUTHZ_xxx).
func IsAuthorization(err error) bool {
	return hasCategory(err, "AUTHZ")
}

// IsRateLimited reports whether err is a rate limit error (RATE_xxx).
func IsRateLimited(err error) bool {
	return hasCategory(err, "RATE")
}

// IsUpstream reports whether err is an identity provider failure
// (UPSTREAM_xxx).
func IsUpstream(err error) bool {
	return hasCategory(err, "UPSTREAM")
}

// IsRetryable reports whether a caller at a higher layer may retry the
// failed operation. Upstream and unavailable errors qualify; client input
// errors and configuration errors never do.
//
// Example:
//
//	if errors.IsRetryable(err) {
//	    // back off and retry the management call
//	}
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "UPSTREAM", "UNAVAIL":
		return true
	default:
		return false
	}
}

// IsClientError reports whether err maps to a 4xx status.
func IsClientError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "VAL", "AUTH", "AUTHZ", "RATE":
		return true
	default:
		return false
	}
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}
