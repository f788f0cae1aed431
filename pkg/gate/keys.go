package gate

import (
	"net/http"
	"strings"

	"github.com/StricklySoft/accessgate/pkg/auth"
)

const (
	anonymousIdentity = "anonymous"
	unknownIP         = "unknown"
)

// RateLimitKey builds the "route:identity:ip" key used for per-caller
// limits. The identity is the principal's subject, or "anonymous" when p
// is nil. The IP is taken from h with [ClientIP].
func RateLimitKey(route string, p *auth.Principal, h http.Header) string {
	return rateLimitKey(route, p, ClientIP(h))
}

func rateLimitKey(route string, p *auth.Principal, ip string) string {
	identity := anonymousIdentity
	if p != nil && p.SubjectID != "" {
		identity = p.SubjectID
	}
	return route + ":" + identity + ":" + ip
}

// ClientIP returns the caller address reported by the proxy headers: the
// first X-Forwarded-For hop, then X-Client-IP, then X-Real-IP. It returns
// "unknown" when none is set.
//
// The first hop is whatever the client sent, so a caller rotating
// X-Forwarded-For gets a fresh budget per value under the same subject.
// Use it only where the edge proxy overwrites the header. Behind a proxy
// that appends, configure the gate with [WithClientIP]([LastHopClientIP]).
func ClientIP(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return fallbackIP(h)
}

// LastHopClientIP is [ClientIP] reading the last X-Forwarded-For hop, the
// address appended by the nearest proxy.
func LastHopClientIP(h http.Header) string {
	values := h.Values("X-Forwarded-For")
	for i := len(values) - 1; i >= 0; i-- {
		hops := strings.Split(values[i], ",")
		for j := len(hops) - 1; j >= 0; j-- {
			if ip := strings.TrimSpace(hops[j]); ip != "" {
				return ip
			}
		}
	}
	return fallbackIP(h)
}

func fallbackIP(h http.Header) string {
	for _, name := range []string{"X-Client-IP", "X-Real-IP"} {
		if ip := strings.TrimSpace(h.Get(name)); ip != "" {
			return ip
		}
	}
	return unknownIP
}
