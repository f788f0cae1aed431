package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/accessgate/internal/testutil"
	"github.com/StricklySoft/accessgate/pkg/config"
	sserr "github.com/StricklySoft/accessgate/pkg/errors"
)

func TestProviderConfig_Issuer(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://tenant.eu.auth0.com/", (&ProviderConfig{Domain: "tenant.eu.auth0.com"}).Issuer())
	assert.Equal(t, "https://login.example.com/", (&ProviderConfig{
		Domain:    "tenant.eu.auth0.com",
		IssuerURL: "https://login.example.com",
	}).Issuer())
}

func TestProviderConfig_Sources(t *testing.T) {
	t.Parallel()

	c := ProviderConfig{RolesClaim: "https://example.com/roles"}
	assert.Equal(t, []string{"https://example.com/roles", "roles", "app_metadata.roles"}, c.Sources())

	c = ProviderConfig{RolesClaim: "roles"}
	assert.Equal(t, []string{"roles", "app_metadata.roles"}, c.Sources())

	c = ProviderConfig{RolesClaim: "ignored", RoleSources: []string{"app_metadata.roles"}}
	assert.Equal(t, []string{"app_metadata.roles"}, c.Sources())
}

func TestProviderConfig_LoadFromEnv(t *testing.T) {
	t.Parallel()

	type gateway struct {
		Auth ProviderConfig `env:"AUTH"`
	}
	env := map[string]string{
		"ACCESSGATE_AUTH_DOMAIN":       "tenant.eu.auth0.com",
		"ACCESSGATE_AUTH_AUDIENCE":     "https://api.example.com",
		"ACCESSGATE_AUTH_ROLES_CLAIM":  "https://example.com/roles",
		"ACCESSGATE_AUTH_ROLE_SOURCES": "https://example.com/roles,app_metadata.roles",
	}

	var cfg gateway
	err := config.New().WithEnvPrefix("ACCESSGATE").WithLookup(testutil.MapLookup(env)).Load(&cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.Auth.Validate())

	assert.Equal(t, "https://tenant.eu.auth0.com/", cfg.Auth.Issuer())
	assert.Equal(t, []string{"https://example.com/roles", "app_metadata.roles"}, cfg.Auth.Sources())
	assert.Equal(t, "10m0s", cfg.Auth.JWKSCacheTTL.String())
	assert.Equal(t, "30s", cfg.Auth.ClockSkew.String())
}

func TestProviderConfig_ValidateListsMissing(t *testing.T) {
	t.Parallel()

	err := (&ProviderConfig{}).Validate()
	testutil.RequireErrorCode(t, err, sserr.CodeConfiguration)
	assert.Contains(t, err.Error(), "AUDIENCE")
	assert.Contains(t, err.Error(), "ROLES_CLAIM")
}

