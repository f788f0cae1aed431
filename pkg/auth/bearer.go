package auth

import (
	"net/http"
	"strings"
)

// HeaderAuthorization is the canonical Authorization header name.
const HeaderAuthorization = "Authorization"

const bearerPrefix = "Bearer "

// ExtractBearerToken returns the token from an Authorization header value.
// The scheme is matched case-insensitively. It returns "" unless the value
// is "Bearer " followed by a non-empty token without inner whitespace.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	tok := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if tok == "" || strings.ContainsAny(tok, " \t") {
		return ""
	}
	return tok
}

// BearerFromHeader extracts the bearer token from h. The second result is
// false when no well-formed bearer credential is present.
func BearerFromHeader(h http.Header) (string, bool) {
	tok := ExtractBearerToken(h.Get(HeaderAuthorization))
	return tok, tok != ""
}
