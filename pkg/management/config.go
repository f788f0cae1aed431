// Package management calls the identity provider's administrative API on
// behalf of the gateway.
//
// A [CredentialCache] obtains a machine-to-machine access token with the
// OAuth 2.0 client-credentials grant against https://{domain}/oauth/token
// and reuses it until it is within [RefreshMargin] of expiry. A [Client]
// injects that token into requests to https://{domain}/api/v2{path} and
// normalizes failures into coded errors.
//
// Nothing here retries. Both failure codes are upstream errors, so
// [sserr.IsRetryable] reports true and the caller decides.
package management

import (
	"net/http"
	"strings"
	"time"

	"github.com/StricklySoft/accessgate/pkg/config"
	sserr "github.com/StricklySoft/accessgate/pkg/errors"
)

// DefaultTimeout bounds each outbound call when no HTTPClient is supplied.
const DefaultTimeout = 10 * time.Second

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config describes the management API client credentials. Env names are
// relative to the enclosing prefix (MGMT in the gateway).
type Config struct {
	// Domain is the provider tenant, e.g. "tenant.eu.auth0.com".
	Domain string `env:"DOMAIN" json:"domain" yaml:"domain"`

	ClientID     string      `env:"CLIENT_ID" json:"client_id" yaml:"client_id"`
	ClientSecret config.Secret `env:"CLIENT_SECRET" json:"-" yaml:"-"`

	// Audience is requested in the token exchange. Defaults to
	// https://{Domain}/api/v2/.
	Audience string `env:"AUDIENCE" json:"audience" yaml:"audience"`

	// Timeout applies to the default HTTP client.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s" json:"timeout" yaml:"timeout"`

	// HTTPClient overrides the default client with a Timeout-bounded one.
	HTTPClient HTTPClient `json:"-" yaml:"-"`

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time `json:"-" yaml:"-"`
}

// Enabled reports whether any management setting is present. The gateway
// skips the management client entirely when none is.
func (c *Config) Enabled() bool {
	return c.Domain != "" || c.ClientID != "" || c.ClientSecret != ""
}

// Validate reports a CFG_001 error naming every missing setting.
func (c *Config) Validate() error {
	var missing []string
	if c.Domain == "" {
		missing = append(missing, "DOMAIN")
	}
	if c.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return sserr.Configurationf("management: configuration incomplete: missing %s",
			strings.Join(missing, ", ")).WithDetail("missing", missing)
	}
	if c.Timeout < 0 {
		return sserr.Configuration("management: timeout must not be negative")
	}
	return nil
}

func (c *Config) baseURL() string {
	return "https://" + strings.TrimSuffix(c.Domain, "/")
}

func (c *Config) audience() string {
	if c.Audience != "" {
		return c.Audience
	}
	return c.baseURL() + "/api/v2/"
}

func (c *Config) httpClient() HTTPClient {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (c *Config) clock() func() time.Time {
	if c.Clock != nil {
		return c.Clock
	}
	return time.Now
}
