package management

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/accessgate/pkg/errors"
	"github.com/StricklySoft/accessgate/pkg/roles"
)

// maxResponseBody caps management API responses read into memory.
const maxResponseBody = 1 << 20

// Request is a management API call. Path is relative to /api/v2 and must
// start with "/". A nil Body sends no payload; anything else is encoded
// as JSON.
type Request struct {
	Method string
	Path   string
	Body   any
}

// Client issues authenticated calls to the management API. It is safe for
// concurrent use.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    HTTPClient
	tracer  trace.Tracer
}

// NewClient validates cfg and returns a Client backed by a new
// [CredentialCache].
func NewClient(cfg Config) (*Client, error) {
	creds, err := NewCredentialCache(cfg)
	if err != nil {
		return nil, err
	}
	return NewClientWithTokens(cfg, creds)
}

// NewClientWithTokens returns a Client that takes bearer tokens from
// tokens instead of its own credential cache.
func NewClientWithTokens(cfg Config, tokens TokenSource) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		baseURL: cfg.baseURL() + "/api/v2",
		tokens:  tokens,
		http:    cfg.httpClient(),
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// Do sends req with the management bearer token and decodes the JSON
// object it returns. An empty response body yields an empty map.
//
// Error codes returned:
//   - [sserr.CodeCredentialExchangeFailed]: no token could be obtained
//   - [sserr.CodeManagementAPIFailed]: transport failure, non-2xx status
//     (details carry status and the body truncated to 512 bytes), or a
//     body that is not a JSON object
func (c *Client) Do(ctx context.Context, req Request) (_ map[string]any, err error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	ctx, span := c.tracer.Start(ctx, "management.Do",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", req.Path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	bearer, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, sserr.Wrap(err, sserr.CodeInternal, "management: cannot encode request body")
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "management: cannot build request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeManagementAPIFailed, "management: request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeManagementAPIFailed, "management: cannot read response")
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, sserr.Newf(sserr.CodeManagementAPIFailed,
			"management: %s %s returned %d", method, req.Path, resp.StatusCode).
			WithDetails(map[string]any{"status": resp.StatusCode, "body": truncate(raw)})
	}

	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeManagementAPIFailed, "management: response is not a JSON object").
			WithDetail("body", truncate(raw))
	}
	return out, nil
}

// GetUser fetches the user record for id.
func (c *Client) GetUser(ctx context.Context, id string) (map[string]any, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: userPath(id)})
}

// SetUserRoles replaces the roles stored in the user's app_metadata.
// Candidates are sanitized first, so unknown and duplicate values never
// reach the provider. It returns the updated user record.
func (c *Client) SetUserRoles(ctx context.Context, id string, candidates []string) (map[string]any, error) {
	clean := roles.Strings(roles.Sanitize(candidates))
	return c.Do(ctx, Request{
		Method: http.MethodPatch,
		Path:   userPath(id),
		Body: map[string]any{
			"app_metadata": map[string]any{"roles": clean},
		},
	})
}

func userPath(id string) string {
	return fmt.Sprintf("/users/%s", url.PathEscape(id))
}
