package auth

import (
	"strings"

	"github.com/StricklySoft/accessgate/pkg/roles"
)

// Principal is the identity derived from one verified token. It belongs to
// the request that produced it and is never cached.
type Principal struct {
	// SubjectID is the sub claim.
	SubjectID string `json:"sub"`

	// Email is the email claim, if present.
	Email string `json:"email,omitempty"`

	// DisplayName is the name claim, falling back to Email.
	DisplayName string `json:"name,omitempty"`

	// Roles holds only known roles, deduplicated in first-seen order.
	Roles []roles.Role `json:"roles"`

	// Claims is the full verified claim set, for business data carried in
	// custom claims (tenant, cost centre and the like).
	Claims map[string]any `json:"-"`
}

func newPrincipal(claims map[string]any, rs []roles.Role) *Principal {
	p := &Principal{
		SubjectID: stringClaim(claims, "sub"),
		Email:     stringClaim(claims, "email"),
		Roles:     rs,
		Claims:    claims,
	}
	p.DisplayName = stringClaim(claims, "name")
	if p.DisplayName == "" {
		p.DisplayName = p.Email
	}
	return p
}

// HasAtLeast reports whether the principal holds role r or a heavier one.
func (p *Principal) HasAtLeast(r roles.Role) bool {
	return p != nil && roles.HasAtLeast(p.Roles, r)
}

// HasAny reports whether the principal meets any of the candidate
// thresholds.
func (p *Principal) HasAny(candidates ...roles.Role) bool {
	return p != nil && roles.HasAny(p.Roles, candidates...)
}

// Claim returns the claim at path, which may be a dotted path into nested
// objects. A top-level claim whose name contains dots is matched first.
func (p *Principal) Claim(path string) (any, bool) {
	if p == nil {
		return nil, false
	}
	if v, ok := p.Claims[path]; ok {
		return v, true
	}
	var cur any = p.Claims
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringClaim(claims map[string]any, name string) string {
	s, _ := claims[name].(string)
	return s
}
