package errors

import (
	"errors"
	"fmt"
)

// New creates a new Error with the specified code and message.
//
// Example:
//
//	err := errors.New(errors.CodeInvalidAudience, "token audience does not match")
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with a code and message. The wrapped error
// becomes the Cause. If err is nil, Wrap returns nil.
//
// Example:
//
//	resp, err := client.Do(req)
//	if err != nil {
//	    return errors.Wrap(err, errors.CodeJWKSFetchFailed, "jwks: request failed")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with a formatted message. If err is nil,
// Wrapf returns nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Configuration creates a configuration error. Configuration errors are
// fatal at startup and are never retried.
func Configuration(message string) *Error {
	return New(CodeConfiguration, message)
}

// Configurationf creates a configuration error with a formatted message.
func Configurationf(format string, args ...any) *Error {
	return Newf(CodeConfiguration, format, args...)
}

// Unauthorized creates an error for a missing or ill-formed credential.
func Unauthorized(message string) *Error {
	return New(CodeUnauthorized, message)
}

// Forbidden creates an error for an authenticated caller lacking a role.
func Forbidden(message string) *Error {
	return New(CodeForbidden, message)
}

// RateLimited creates an error for a caller that exceeded a rate limit.
func RateLimited(message string) *Error {
	return New(CodeRateLimited, message)
}

// Internal creates a new internal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// FromError converts a standard error to an Error. An *Error anywhere in
// the chain is returned as-is; anything else is wrapped as internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
