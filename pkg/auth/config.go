package auth

import (
	"net/http"
	"strings"
	"time"

	sserr "github.com/StricklySoft/accessgate/pkg/errors"
	"github.com/StricklySoft/accessgate/pkg/jwks"
	"github.com/StricklySoft/accessgate/pkg/token"
)

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fallback role sources tried after the configured roles claim.
const (
	RolesClaimGeneric     = "roles"
	RolesClaimAppMetadata = "app_metadata.roles"
)

// ProviderConfig describes the identity provider whose tokens the
// gateway accepts. Load it with the config package; env names below are
// relative to the enclosing struct's prefix (AUTH in the gateway).
type ProviderConfig struct {
	// Domain is the provider's tenant domain, e.g. "tenant.eu.auth0.com".
	// It supplies the issuer when IssuerURL is empty.
	Domain string `env:"DOMAIN" json:"domain" yaml:"domain"`

	// IssuerURL is the expected iss claim. A trailing slash is added if
	// missing. Defaults to https://{Domain}/.
	IssuerURL string `env:"ISSUER_URL" json:"issuer_url" yaml:"issuer_url"`

	// Audience is the API identifier tokens must be issued for.
	Audience string `env:"AUDIENCE" json:"audience" yaml:"audience"`

	// RolesClaim is the namespaced claim the provider writes roles into,
	// e.g. "https://example.com/roles".
	RolesClaim string `env:"ROLES_CLAIM" json:"roles_claim" yaml:"roles_claim"`

	// RoleSources, when set, replaces the default lookup order
	// [RolesClaim, "roles", "app_metadata.roles"]. Entries are claim names
	// or dotted paths.
	RoleSources []string `env:"ROLE_SOURCES" json:"role_sources" yaml:"role_sources"`

	// JWKSCacheTTL bounds how long fetched signing keys are reused.
	JWKSCacheTTL time.Duration `env:"JWKS_CACHE_TTL" envDefault:"10m" json:"jwks_cache_ttl" yaml:"jwks_cache_ttl"`

	// JWKSRefreshOnMiss lets an unknown kid trigger an early key refresh
	// once the cached set is at least this old. Zero disables it.
	JWKSRefreshOnMiss time.Duration `env:"JWKS_REFRESH_ON_MISS" json:"jwks_refresh_on_miss" yaml:"jwks_refresh_on_miss"`

	// ClockSkew is the tolerance applied to exp and nbf.
	ClockSkew time.Duration `env:"CLOCK_SKEW" envDefault:"30s" json:"clock_skew" yaml:"clock_skew"`

	// HTTPClient fetches the JWKS. Defaults to an *http.Client with a
	// 10-second timeout.
	HTTPClient HTTPClient `json:"-" yaml:"-"`

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time `json:"-" yaml:"-"`
}

// Validate reports a CFG_001 error when the provider cannot be resolved:
// an issuer (IssuerURL or Domain), an audience, and a roles claim or
// explicit role sources are all required.
func (c *ProviderConfig) Validate() error {
	var missing []string
	if c.IssuerURL == "" && c.Domain == "" {
		missing = append(missing, "issuer (DOMAIN or ISSUER_URL)")
	}
	if c.Audience == "" {
		missing = append(missing, "AUDIENCE")
	}
	if c.RolesClaim == "" && len(c.RoleSources) == 0 {
		missing = append(missing, "ROLES_CLAIM")
	}
	if len(missing) > 0 {
		return sserr.Configurationf("auth: provider configuration incomplete: missing %s",
			strings.Join(missing, ", ")).WithDetail("missing", missing)
	}

	if c.JWKSCacheTTL < 0 || c.ClockSkew < 0 || c.JWKSRefreshOnMiss < 0 {
		return sserr.Configuration("auth: durations must be non-negative")
	}
	return nil
}

// Issuer returns the canonical issuer URL, always ending in "/".
func (c *ProviderConfig) Issuer() string {
	if c.IssuerURL != "" {
		return token.CanonicalIssuer(c.IssuerURL)
	}
	return "https://" + strings.TrimSuffix(c.Domain, "/") + "/"
}

// Sources returns the ordered claim sources consulted for roles.
func (c *ProviderConfig) Sources() []string {
	if len(c.RoleSources) > 0 {
		return append([]string(nil), c.RoleSources...)
	}
	out := make([]string, 0, 3)
	for _, s := range []string{c.RolesClaim, RolesClaimGeneric, RolesClaimAppMetadata} {
		if s != "" && !contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func (c *ProviderConfig) jwksConfig() jwks.Config {
	return jwks.Config{
		TTL:                c.JWKSCacheTTL,
		RefreshOnMissAfter: c.JWKSRefreshOnMiss,
		HTTPClient:         c.HTTPClient,
		Clock:              c.Clock,
	}
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
