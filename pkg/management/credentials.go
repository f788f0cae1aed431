package management

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	sserr "github.com/StricklySoft/accessgate/pkg/errors"
)

const tracerName = "github.com/StricklySoft/accessgate/pkg/management"

// RefreshMargin is how close to expiry a cached token may get before it is
// exchanged again.
const RefreshMargin = 60 * time.Second

// maxErrorBody caps error payloads copied into error details.
const maxErrorBody = 512

// TokenSource yields a bearer token for the management API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type credential struct {
	token     string
	expiresAt time.Time
}

// CredentialCache holds one management access token. It is safe for
// concurrent use; callers that find the token stale at the same time may
// each exchange, and the last successful exchange wins.
type CredentialCache struct {
	grant  *clientcredentials.Config
	client *http.Client
	now    func() time.Time
	tracer trace.Tracer

	mu      sync.RWMutex
	current *credential
}

var _ TokenSource = (*CredentialCache)(nil)

// NewCredentialCache validates cfg and returns an empty cache.
func NewCredentialCache(cfg Config) (*CredentialCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CredentialCache{
		grant: &clientcredentials.Config{
			ClientID:       cfg.ClientID,
			ClientSecret:   cfg.ClientSecret.Value(),
			TokenURL:       cfg.baseURL() + "/oauth/token",
			EndpointParams: url.Values{"audience": {cfg.audience()}},
			AuthStyle:      oauth2.AuthStyleInParams,
		},
		client: asHTTPClient(cfg.httpClient()),
		now:    cfg.clock(),
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Token returns the cached access token while it has more than
// [RefreshMargin] left, and otherwise exchanges client credentials for a
// new one. A failed exchange leaves the previous entry untouched.
//
// Error codes returned:
//   - [sserr.CodeCredentialExchangeFailed]: the provider refused the grant
//     or could not be reached; details carry status and error payload
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	now := c.now()
	c.mu.RLock()
	cur := c.current
	c.mu.RUnlock()
	if cur != nil && cur.expiresAt.Sub(now) > RefreshMargin {
		return cur.token, nil
	}

	fresh, err := c.exchange(ctx, now)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.current = fresh
	c.mu.Unlock()
	return fresh.token, nil
}

// Invalidate drops the cached token so the next call exchanges again.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

func (c *CredentialCache) exchange(ctx context.Context, now time.Time) (_ *credential, err error) {
	ctx, span := c.tracer.Start(ctx, "management.CredentialExchange",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", c.grant.TokenURL)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	tok, err := c.grant.Token(ctx)
	if err != nil {
		return nil, exchangeError(err)
	}

	var expiresAt time.Time
	if lifetime, ok := tokenLifetime(tok); ok {
		expiresAt = now.Add(lifetime)
	} else if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry
	} else {
		// No lifetime given; treat as single use.
		expiresAt = now
	}
	return &credential{token: tok.AccessToken, expiresAt: expiresAt}, nil
}

// tokenLifetime reads expires_in from the raw token response, since
// clientcredentials drops Token.ExpiresIn.
func tokenLifetime(tok *oauth2.Token) (time.Duration, bool) {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second, true
	}

	var secs float64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		secs = v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		secs = f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		secs = f
	case int64:
		secs = float64(v)
	case int:
		secs = float64(v)
	default:
		return 0, false
	}
	if secs <= 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

func exchangeError(err error) *sserr.Error {
	e := sserr.Wrap(err, sserr.CodeCredentialExchangeFailed, "management: client-credentials exchange failed")
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return e
	}
	details := map[string]any{"body": truncate(re.Body)}
	if re.Response != nil {
		details["status"] = re.Response.StatusCode
	}
	if re.ErrorCode != "" {
		details["error"] = re.ErrorCode
	}
	if re.ErrorDescription != "" {
		details["error_description"] = re.ErrorDescription
	}
	return e.WithDetails(details)
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}

// doerTransport adapts an HTTPClient to the *http.Client the oauth2
// package requires.
type doerTransport struct{ doer HTTPClient }

func (t doerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.doer.Do(req)
}

func asHTTPClient(c HTTPClient) *http.Client {
	if hc, ok := c.(*http.Client); ok {
		return hc
	}
	return &http.Client{Transport: doerTransport{doer: c}}
}
