// Package jwks fetches and caches an identity provider's JSON Web Key Set.
//
// A [Cache] holds the key set of a single issuer. Keys are served from
// memory while the entry is younger than the TTL and non-empty; otherwise
// the set is fetched again from {issuer}.well-known/jwks.json and the entry
// is replaced wholesale. Concurrent callers that miss at the same time may
// each fetch; the last successful fetch wins.
package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/accessgate/pkg/errors"
	"github.com/StricklySoft/accessgate/pkg/token"
)

const tracerName = "github.com/StricklySoft/accessgate/pkg/jwks"

// DefaultTTL is how long a fetched key set is served before refetching.
const DefaultTTL = 10 * time.Minute

// maxBodySize caps the JWKS response read into memory.
const maxBodySize = 1 << 20

// WellKnownPath is appended to the canonical issuer URL.
const WellKnownPath = ".well-known/jwks.json"

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Key is an RSA signing key published by the issuer. Keys are immutable.
type Key struct {
	ID        string
	Algorithm string
	Use       string
	Public    *rsa.PublicKey
}

// Config configures a [Cache]. The zero value is usable.
type Config struct {
	// TTL is the entry lifetime. Defaults to [DefaultTTL].
	TTL time.Duration

	// RefreshOnMissAfter, when positive, lets [Cache.Key] refetch a fresh
	// entry that lacks the requested kid, provided the entry is at least
	// this old. Zero disables refetching on a miss.
	RefreshOnMissAfter time.Duration

	// HTTPClient performs the fetch. Defaults to an *http.Client with a
	// 10-second timeout.
	HTTPClient HTTPClient

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

type entry struct {
	issuer    string
	fetchedAt time.Time
	keys      []Key
}

// Cache memoizes one issuer's key set. It is safe for concurrent use; the
// lock guards the entry pointer only and is never held during a fetch.
type Cache struct {
	mu    sync.RWMutex
	entry *entry

	ttl         time.Duration
	missRefresh time.Duration
	client      HTTPClient
	now         func() time.Time
	tracer      trace.Tracer
}

// New returns an empty Cache.
func New(cfg Config) *Cache {
	c := &Cache{
		ttl:         cfg.TTL,
		missRefresh: cfg.RefreshOnMissAfter,
		client:      cfg.HTTPClient,
		now:         cfg.Clock,
		tracer:      otel.Tracer(tracerName),
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 10 * time.Second}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Keys returns the issuer's signing keys, fetching them if the cached entry
// is missing, stale, empty, or belongs to another issuer.
func (c *Cache) Keys(ctx context.Context, issuer string) ([]Key, error) {
	issuer = token.CanonicalIssuer(issuer)
	if e := c.fresh(issuer); e != nil {
		return e.keys, nil
	}
	e, err := c.refresh(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return e.keys, nil
}

// Key returns the key whose ID equals kid. It fails with
// CodeSigningKeyNotFound if no such key is published.
func (c *Cache) Key(ctx context.Context, issuer, kid string) (Key, error) {
	issuer = token.CanonicalIssuer(issuer)
	e := c.fresh(issuer)
	if e == nil {
		var err error
		if e, err = c.refresh(ctx, issuer); err != nil {
			return Key{}, err
		}
	} else if _, ok := find(e.keys, kid); !ok && c.missRefresh > 0 &&
		c.now().Sub(e.fetchedAt) >= c.missRefresh {
		slog.InfoContext(ctx, "jwks: unknown kid, refreshing key set",
			"issuer", issuer,
			"kid", kid,
		)
		var err error
		if e, err = c.refresh(ctx, issuer); err != nil {
			return Key{}, err
		}
	}

	k, ok := find(e.keys, kid)
	if !ok {
		return Key{}, sserr.New(sserr.CodeSigningKeyNotFound, "jwks: no key matches the token kid").
			WithDetail("kid", kid)
	}
	return k, nil
}

// Invalidate drops the cached entry so the next call fetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

func (c *Cache) fresh(issuer string) *entry {
	c.mu.RLock()
	e := c.entry
	c.mu.RUnlock()

	if e == nil || e.issuer != issuer || len(e.keys) == 0 {
		return nil
	}
	if c.now().Sub(e.fetchedAt) >= c.ttl {
		return nil
	}
	return e
}

func (c *Cache) refresh(ctx context.Context, issuer string) (*entry, error) {
	keys, err := c.fetch(ctx, issuer+WellKnownPath)
	if err != nil {
		return nil, err
	}
	e := &entry{issuer: issuer, fetchedAt: c.now(), keys: keys}

	c.mu.Lock()
	c.entry = e
	c.mu.Unlock()
	return e, nil
}

func find(keys []Key, kid string) (Key, bool) {
	for _, k := range keys {
		if k.ID == kid {
			return k, true
		}
	}
	return Key{}, false
}

// ---------------------------------------------------------------------------
// Fetch
// ---------------------------------------------------------------------------

type document struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (c *Cache) fetch(ctx context.Context, url string) (keys []Key, err error) {
	ctx, span := c.tracer.Start(ctx, "jwks.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url.full", url)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("jwks.key_count", len(keys)))
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeJWKSFetchFailed, "jwks: failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeJWKSFetchFailed, "jwks: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, sserr.Newf(sserr.CodeJWKSFetchFailed, "jwks: endpoint returned status %d", resp.StatusCode).
			WithDetail("status", resp.StatusCode)
	}

	var doc document
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&doc); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeJWKSFetchFailed, "jwks: response is not a key set")
	}

	keys = make([]Key, 0, len(doc.Keys))
	for _, k := range doc.Keys {
		key, err := k.toKey()
		if err != nil {
			slog.WarnContext(ctx, "jwks: skipping unusable key",
				"kid", k.Kid,
				"kty", k.Kty,
				"error", err,
			)
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, sserr.New(sserr.CodeJWKSEmpty, "jwks: endpoint published no usable keys").
			WithDetail("published", len(doc.Keys))
	}

	slog.DebugContext(ctx, "jwks: key set refreshed",
		"url", url,
		"keys", len(keys),
	)
	return keys, nil
}

func (k jwk) toKey() (Key, error) {
	switch {
	case k.Kty != "RSA":
		return Key{}, fmt.Errorf("unsupported key type %q", k.Kty)
	case k.Kid == "":
		return Key{}, fmt.Errorf("missing kid")
	case k.Use != "" && k.Use != "sig":
		return Key{}, fmt.Errorf("key use %q is not sig", k.Use)
	case k.Alg != "" && k.Alg != token.AlgRS256:
		return Key{}, fmt.Errorf("key algorithm %q is not %s", k.Alg, token.AlgRS256)
	}
	pub, err := ParseRSAPublicKey(k.N, k.E)
	if err != nil {
		return Key{}, err
	}
	return Key{ID: k.Kid, Algorithm: token.AlgRS256, Use: k.Use, Public: pub}, nil
}

// ParseRSAPublicKey builds an RSA public key from the base64url modulus and
// exponent of a JWK. Trailing "=" padding is tolerated.
func ParseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	n, e = strings.TrimRight(n, "="), strings.TrimRight(e, "=")
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil || len(nBytes) == 0 {
		return nil, fmt.Errorf("invalid RSA modulus")
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil || len(eBytes) == 0 || len(eBytes) > 4 {
		return nil, fmt.Errorf("invalid RSA exponent")
	}

	exp := new(big.Int).SetBytes(eBytes).Int64()
	if exp < 3 {
		return nil, fmt.Errorf("invalid RSA exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(exp)}, nil
}
