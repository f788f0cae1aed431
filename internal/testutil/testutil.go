// Package testutil provides shared test helpers for the access gateway.
//
// All helpers accept [testing.TB] and call t.Helper(). Helpers that halt
// the test use [require]; helpers that only record a failure use [assert].
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/accessgate/pkg/errors"
)

// RequireErrorCode halts the test unless err is an *sserr.Error carrying
// code.
//
// Example:
//
//	_, err := token.Parse("a.b")
//	testutil.RequireErrorCode(t, err, sserr.CodeMalformedToken)
func RequireErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	e, ok := sserr.AsError(err)
	require.True(t, ok, "expected *sserr.Error, got %T: %v", err, err)
	require.Equal(t, code, e.Code,
		"error code mismatch: got %q, want %q (message: %s)", e.Code, code, e.Message)
}

// AssertErrorCode is the non-halting form of [RequireErrorCode], for
// table-driven tests.
func AssertErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	e, ok := sserr.AsError(err)
	if !assert.True(t, ok, "expected *sserr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, e.Code,
		"error code mismatch: got %q, want %q (message: %s)", e.Code, code, e.Message)
}

// TempConfigFile writes content to a file named "config"+ext inside
// t.TempDir() and returns its path.
func TempConfigFile(t testing.TB, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config"+ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600),
		"failed to write temp config file %s", path)
	return path
}

// MapLookup returns an environment lookup backed by env, for use with
// config.Loader.WithLookup.
func MapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}
