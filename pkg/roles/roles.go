// Package roles defines the gateway's closed, ordered role model.
//
// There are exactly three roles, each with a strictly increasing weight:
//
//	mitarbeiter  1
//	management   2
//	c-level      3
//
// Role values that arrive from a token are filtered through [Sanitize]
// before any decision is made, so an unknown or forged string never reaches
// [HasAtLeast]. Authorization is "at least": a c-level caller satisfies a
// management requirement.
package roles

import (
	"math"
	"strings"
)

// Role is one of the three gateway roles.
type Role string

const (
	Mitarbeiter Role = "mitarbeiter"
	Management  Role = "management"
	CLevel      Role = "c-level"
)

// unreachable is compared against when the required role is unknown, so
// such a requirement can never be met.
const unreachable = math.MaxInt

var weights = map[Role]int{
	Mitarbeiter: 1,
	Management:  2,
	CLevel:      3,
}

// All returns every role in ascending weight order.
func All() []Role {
	return []Role{Mitarbeiter, Management, CLevel}
}

// Weight returns r's authority weight, or 0 if r is not a known role.
func Weight(r Role) int {
	return weights[r]
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := weights[r]
	return ok
}

func (r Role) String() string { return string(r) }

// Parse returns the role named s. Matching is exact: "C-Level" and
// " management" are not roles.
func Parse(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Sanitize keeps the known roles in candidates, dropping unknown values and
// duplicates while preserving first-seen order.
func Sanitize(candidates []string) []Role {
	out := make([]Role, 0, len(candidates))
	seen := make(map[Role]struct{}, len(candidates))
	for _, c := range candidates {
		r, ok := Parse(c)
		if !ok {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// HasAtLeast reports whether any role in have weighs at least as much as
// required. An unknown required role is never satisfied.
func HasAtLeast(have []Role, required Role) bool {
	need := weights[required]
	if need == 0 {
		need = unreachable
	}
	for _, r := range have {
		if weights[r] >= need {
			return true
		}
	}
	return false
}

// HasAny reports whether HasAtLeast holds for at least one candidate.
func HasAny(have []Role, candidates ...Role) bool {
	for _, c := range candidates {
		if HasAtLeast(have, c) {
			return true
		}
	}
	return false
}

// Highest returns the heaviest role in have, or "" if have holds no known
// role.
func Highest(have []Role) Role {
	var best Role
	for _, r := range have {
		if weights[r] > weights[best] {
			best = r
		}
	}
	return best
}

// Strings converts rs to plain strings.
func Strings(rs []Role) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

// ---------------------------------------------------------------------------
// Claim extraction
// ---------------------------------------------------------------------------

// FromClaims walks sources in order and sanitizes the first one that
// yields at least one string. A source is a claim name, or a dotted path
// into nested objects such as "app_metadata.roles". A claim whose name
// itself contains dots (namespaced claims like
// "https://example.com/roles") is matched verbatim before the path is
// split.
//
// A source yields strings when its value is a string or an array
// containing strings; non-string array elements are ignored. The result is
// sanitized, so it can be empty even when a source matched.
func FromClaims(claims map[string]any, sources []string) []Role {
	for _, src := range sources {
		if vals := stringsAt(claims, src); len(vals) > 0 {
			return Sanitize(vals)
		}
	}
	return []Role{}
}

func stringsAt(claims map[string]any, path string) []string {
	if path == "" {
		return nil
	}
	if v, ok := claims[path]; ok {
		return asStrings(v)
	}

	var cur any = claims
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = m[part]; !ok {
			return nil
		}
	}
	return asStrings(cur)
}

func asStrings(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
