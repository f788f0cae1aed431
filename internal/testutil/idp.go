package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/accessgate/internal/testutil/fixtures"
)

// DefaultKeyID is the kid of the signing key every [IdP] starts with.
const DefaultKeyID = "test-key-1"

// GenerateRSAKey returns a fresh 2048-bit RSA key.
func GenerateRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")
	return key
}

// JWK is the wire form of an RSA public key inside a JWKS document.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid,omitempty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// RSAJWK encodes pub as an RS256 signing JWK.
func RSAJWK(kid string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// IdP is an in-process identity provider serving a JWKS document at
// /.well-known/jwks.json. It signs RS256 tokens with its current key.
type IdP struct {
	Server *httptest.Server
	Key    *rsa.PrivateKey
	KeyID  string

	mu      sync.Mutex
	keys    []JWK
	status  int
	fetches atomic.Int64
}

// NewIdP starts an IdP and registers its shutdown with t.Cleanup.
func NewIdP(t testing.TB) *IdP {
	t.Helper()
	key := GenerateRSAKey(t)
	p := &IdP{
		Key:    key,
		KeyID:  DefaultKeyID,
		keys:   []JWK{RSAJWK(DefaultKeyID, &key.PublicKey)},
		status: http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/jwks.json", p.serveJWKS)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

func (p *IdP) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	p.fetches.Add(1)
	p.mu.Lock()
	status, keys := p.status, p.keys
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status != http.StatusOK {
		_, _ = w.Write([]byte(`{"error":"unavailable"}`))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
}

// Issuer returns the issuer URL, always ending in "/".
func (p *IdP) Issuer() string {
	return p.Server.URL + "/"
}

// JWKSFetches returns how many times the JWKS document was requested.
func (p *IdP) JWKSFetches() int64 {
	return p.fetches.Load()
}

// SetKeys replaces the published key set.
func (p *IdP) SetKeys(keys ...JWK) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = keys
}

// SetStatus makes the JWKS endpoint answer with status and an error body
// for any status other than 200.
func (p *IdP) SetStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// Claims returns a claim set that passes validation for audience at now:
// issuer and audience match, exp is one hour out.
func (p *IdP) Claims(audience string, now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   p.Issuer(),
		"aud":   audience,
		"sub":   fixtures.SubjectID,
		"email": fixtures.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

// Sign mints an RS256 token over claims with the IdP's key and kid.
func (p *IdP) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	return SignToken(t, jwt.SigningMethodRS256, p.Key, p.KeyID, claims)
}

// SignToken mints a token with an arbitrary method, key and kid. An empty
// kid omits the header.
func SignToken(t testing.TB, method jwt.SigningMethod, key any, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	signed, err := tok.SignedString(key)
	require.NoError(t, err, "failed to sign token")
	return signed
}
