// Package fixtures provides shared test data constants for the access
// gateway test suite.
//
// Using common constants for identities and provider settings prevents
// magic strings in tests and keeps the packages in agreement about what a
// "normal" token looks like.
package fixtures

// Provider settings used by auth, gate, and management tests.
const (
	// Audience is the API identifier tokens are minted for.
	Audience = "https://api.accessgate.test"

	// RolesClaim is the namespaced claim test tokens carry roles in.
	RolesClaim = "https://accessgate.test/roles"

	// Domain is the management tenant domain.
	Domain = "tenant.accessgate.test"

	// ClientID is the management client's identifier.
	ClientID = "mgmt-client"

	// ClientSecret is the management client's secret.
	ClientSecret = "mgmt-secret"
)

// Standard identity values.
const (
	// SubjectID is the sub claim of the default test user.
	SubjectID = "auth0|user-1"

	// Email is the email claim of the default test user.
	Email = "user@example.com"

	// AltSubjectID is a second user for tests requiring two callers.
	AltSubjectID = "auth0|user-2"
)

// Client addresses used for rate-limit keys.
const (
	ClientIP    = "203.0.113.7"
	AltClientIP = "198.51.100.23"
)
