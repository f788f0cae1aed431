package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/accessgate/internal/testutil"
	"github.com/StricklySoft/accessgate/internal/testutil/fixtures"
	"github.com/StricklySoft/accessgate/pkg/auth"
	"github.com/StricklySoft/accessgate/pkg/clients/redis"
	sserr "github.com/StricklySoft/accessgate/pkg/errors"
	"github.com/StricklySoft/accessgate/pkg/ratelimit"
	"github.com/StricklySoft/accessgate/pkg/roles"
)

var testNow = time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)

const testRequestID = "req-0001"

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type mockAuthenticator struct {
	mock.Mock
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, rawToken string) (*auth.Principal, error) {
	args := m.Called(ctx, rawToken)
	p, _ := args.Get(0).(*auth.Principal)
	return p, args.Error(1)
}

type harness struct {
	gate  *Gate
	idp   *testutil.IdP
	clock *testutil.Clock
	reg   *prometheus.Registry
	logs  *bytes.Buffer
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	idp := testutil.NewIdP(t)
	clock := testutil.NewClock(testNow)
	authn, err := auth.NewAuthenticator(auth.ProviderConfig{
		IssuerURL:  idp.Server.URL,
		Audience:   fixtures.Audience,
		RolesClaim: fixtures.RolesClaim,
		HTTPClient: idp.Server.Client(),
		Clock:      clock.Now,
	})
	require.NoError(t, err)

	h := &harness{idp: idp, clock: clock, reg: prometheus.NewRegistry(), logs: &bytes.Buffer{}}
	base := []Option{
		WithRegisterer(h.reg),
		WithLogger(slog.New(slog.NewJSONHandler(h.logs, nil))),
		WithRequestID(func() string { return testRequestID }),
		WithLimiter(ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{Clock: clock.Now})),
	}
	h.gate = New(authn, append(base, opts...)...)
	return h
}

// token mints a valid token carrying rs in the namespaced roles claim.
func (h *harness) token(t *testing.T, rs ...string) string {
	t.Helper()
	claims := h.idp.Claims(fixtures.Audience, h.clock.Now())
	claims[fixtures.RolesClaim] = rs
	return h.idp.Sign(t, claims)
}

func bearer(tok string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	return h
}

func decodeBody(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

// ---------------------------------------------------------------------------
// RequireAuth
// ---------------------------------------------------------------------------

func TestRequireAuth_MissingHeaderSkipsVerification(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for _, header := range []http.Header{
		{},
		{"Authorization": {"Basic dXNlcjpwYXNz"}},
		{"Authorization": {"Bearer "}},
		{"Authorization": {"Bearer a b"}},
	} {
		res := h.gate.RequireAuth(context.Background(), header)
		require.False(t, res.OK)
		assert.Nil(t, res.Principal)
		require.NotNil(t, res.Denial)
		assert.Equal(t, http.StatusUnauthorized, res.Denial.Status)
		assert.Equal(t, CodeUnauthorized, res.Denial.Code)
		assert.Equal(t, msgUnauthorized, res.Denial.Message)
		assert.Equal(t, testRequestID, res.Denial.Details["request_id"])
	}
	assert.Zero(t, h.idp.JWKSFetches(), "no verification work for a missing credential")
}

func TestRequireRole_MissingHeaderSkipsVerification(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res := h.gate.RequireRole(context.Background(), http.Header{}, roles.CLevel)
	require.False(t, res.OK)
	require.NotNil(t, res.Denial)
	assert.Equal(t, http.StatusUnauthorized, res.Denial.Status)
	assert.Equal(t, CodeUnauthorized, res.Denial.Code)
	assert.Zero(t, h.idp.JWKSFetches(), "no verification work for a missing credential")
}

func TestRequireAuth_ValidToken(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res := h.gate.RequireAuth(context.Background(), bearer(h.token(t, "mitarbeiter")))
	require.True(t, res.OK)
	assert.Nil(t, res.Denial)
	assert.Equal(t, fixtures.SubjectID, res.Principal.SubjectID)
	assert.Equal(t, []roles.Role{roles.Mitarbeiter}, res.Principal.Roles)
}

func TestRequireAuth_VerificationFailuresBecomeInvalidToken(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	expired := h.idp.Claims(fixtures.Audience, testNow.Add(-2*time.Hour))
	wrongAud := h.idp.Claims("https://other.example", testNow)

	tests := []struct {
		name   string
		token  string
		reason sserr.Code
	}{
		{name: "garbage", token: "not-a-jwt", reason: sserr.CodeMalformedToken},
		{name: "expired", token: h.idp.Sign(t, expired), reason: sserr.CodeTokenExpired},
		{name: "wrong audience", token: h.idp.Sign(t, wrongAud), reason: sserr.CodeInvalidAudience},
		{
			name:   "unknown kid",
			token:  testutil.SignToken(t, jwt.SigningMethodRS256, h.idp.Key, "rotated-away", h.idp.Claims(fixtures.Audience, testNow)),
			reason: sserr.CodeSigningKeyNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.gate.RequireAuth(context.Background(), bearer(tt.token))
			require.False(t, res.OK)
			d := res.Denial
			assert.Equal(t, http.StatusUnauthorized, d.Status)
			assert.Equal(t, CodeInvalidToken, d.Code)
			assert.Equal(t, msgInvalidToken, d.Message, "public message never varies")
			assert.Equal(t, string(tt.reason), d.Details["reason"])
			assert.NotEmpty(t, d.Details["message"])
			assert.True(t, sserr.HasCode(d, tt.reason), "cause stays reachable through Unwrap")
		})
	}
}

func TestRequireAuth_UncodedErrorIsStillInvalidToken(t *testing.T) {
	t.Parallel()
	m := &mockAuthenticator{}
	m.On("Authenticate", mock.Anything, "tok").Return(nil, assert.AnError)
	g := New(m, WithRequestID(func() string { return testRequestID }))

	res := g.RequireAuth(context.Background(), bearer("tok"))
	require.NotNil(t, res.Denial)
	assert.Equal(t, CodeInvalidToken, res.Denial.Code)
	assert.Equal(t, string(sserr.CodeInternal), res.Denial.Details["reason"])
	assert.Equal(t, assert.AnError.Error(), res.Denial.Details["message"])
	m.AssertExpectations(t)
}

func TestRequireAuth_JWKSOutageIsInvalidToken(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.idp.SetStatus(http.StatusBadGateway)

	res := h.gate.RequireAuth(context.Background(), bearer(h.token(t, "management")))
	require.NotNil(t, res.Denial)
	assert.Equal(t, http.StatusUnauthorized, res.Denial.Status)
	assert.Equal(t, CodeInvalidToken, res.Denial.Code)
	assert.Equal(t, string(sserr.CodeJWKSFetchFailed), res.Denial.Details["reason"])
}

// ---------------------------------------------------------------------------
// RequireRole / RequireAnyRole
// ---------------------------------------------------------------------------

func TestRequireRole_ManagementAgainstCLevelIsForbidden(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res := h.gate.RequireRole(context.Background(), bearer(h.token(t, "management")), roles.CLevel)
	require.False(t, res.OK)
	d := res.Denial
	assert.Equal(t, http.StatusForbidden, d.Status)
	assert.Equal(t, CodeForbidden, d.Code)
	assert.Equal(t, msgForbidden, d.Message)
	assert.Equal(t, []string{"c-level"}, d.Details["required"])
	assert.Equal(t, []string{"management"}, d.Details["roles"])
}

func TestRequireRole_Hierarchy(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	tests := []struct {
		have []string
		min  roles.Role
		ok   bool
	}{
		{have: []string{"c-level"}, min: roles.Mitarbeiter, ok: true},
		{have: []string{"c-level"}, min: roles.CLevel, ok: true},
		{have: []string{"management"}, min: roles.Management, ok: true},
		{have: []string{"mitarbeiter"}, min: roles.Management, ok: false},
		{have: []string{"admin", "root"}, min: roles.Mitarbeiter, ok: false},
		{have: nil, min: roles.Mitarbeiter, ok: false},
	}
	for _, tt := range tests {
		res := h.gate.RequireRole(context.Background(), bearer(h.token(t, tt.have...)), tt.min)
		assert.Equal(t, tt.ok, res.OK, "roles %v against %s", tt.have, tt.min)
		if !tt.ok {
			assert.Equal(t, CodeForbidden, res.Denial.Code)
		}
	}
}

func TestRequireRole_UnauthenticatedWinsOverForbidden(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res := h.gate.RequireRole(context.Background(), http.Header{}, roles.CLevel)
	assert.Equal(t, CodeUnauthorized, res.Denial.Code)
}

func TestRequireAnyRole(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	tok := h.token(t, "management")

	assert.True(t, h.gate.RequireAnyRole(ctx, bearer(tok), roles.CLevel, roles.Management).OK)
	assert.True(t, h.gate.RequireAnyRole(ctx, bearer(tok), roles.Mitarbeiter).OK)

	res := h.gate.RequireAnyRole(ctx, bearer(tok), roles.CLevel)
	assert.Equal(t, CodeForbidden, res.Denial.Code)

	res = h.gate.RequireAnyRole(ctx, bearer(tok))
	require.NotNil(t, res.Denial, "no candidates refuses everyone")
	assert.Equal(t, CodeForbidden, res.Denial.Code)
	assert.Equal(t, []string{}, res.Denial.Details["required"])
}

// ---------------------------------------------------------------------------
// Denial rendering
// ---------------------------------------------------------------------------

func TestDenial_ResponseShape(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res := h.gate.RequireRole(context.Background(), bearer(h.token(t, "mitarbeiter")), roles.Management)
	status, header, body := res.Denial.Response()

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "application/json; charset=utf-8", header.Get("Content-Type"))
	assert.Equal(t, "no-store", header.Get("Cache-Control"))
	assert.Empty(t, header.Get("WWW-Authenticate"))

	got := decodeBody(t, body)
	assert.Equal(t, false, got["ok"])
	errBody, ok := got["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "forbidden", errBody["code"])
	assert.Equal(t, msgForbidden, errBody["message"])
	details, ok := errBody["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, testRequestID, details["request_id"])
	assert.Equal(t, []any{"management"}, details["required"])
}

func TestDenial_ResponseHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		denial Denial
		header string
		want   string
	}{
		{
			name:   "unauthorized",
			denial: Denial{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: msgUnauthorized},
			header: "WWW-Authenticate",
			want:   "Bearer",
		},
		{
			name:   "invalid token",
			denial: Denial{Status: http.StatusUnauthorized, Code: CodeInvalidToken, Message: msgInvalidToken},
			header: "WWW-Authenticate",
			want:   `Bearer error="invalid_token"`,
		},
		{
			name:   "rate limited rounds up",
			denial: Denial{Status: http.StatusTooManyRequests, Code: CodeRateLimited, RetryAfter: 1500 * time.Millisecond},
			header: "Retry-After",
			want:   "2",
		},
		{
			name:   "sub-second retry is one",
			denial: Denial{Status: http.StatusServiceUnavailable, Code: CodeRateLimitUnavailable, RetryAfter: time.Millisecond},
			header: "Retry-After",
			want:   "1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, header, body := tt.denial.Response()
			assert.Equal(t, tt.want, header.Get(tt.header))
			assert.NotContains(t, string(body), `"details"`, "empty details are omitted")
		})
	}
}

func TestDenial_ErrorAndUnwrap(t *testing.T) {
	t.Parallel()
	cause := sserr.New(sserr.CodeTokenExpired, "token expired")
	d := &Denial{Code: CodeInvalidToken, Message: msgInvalidToken, Err: cause}

	assert.Equal(t, "invalid_token: Invalid or expired token.", d.Error())
	assert.ErrorIs(t, d, cause)
}

// ---------------------------------------------------------------------------
// Limit
// ---------------------------------------------------------------------------

func TestLimit_DeniesWithRetryAfter(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	assert.Nil(t, h.gate.Limit(ctx, "export:u1:ip", 2, time.Minute))
	assert.Nil(t, h.gate.Limit(ctx, "export:u1:ip", 2, time.Minute))

	h.clock.Advance(15 * time.Second)
	d := h.gate.Limit(ctx, "export:u1:ip", 2, time.Minute)
	require.NotNil(t, d)
	assert.Equal(t, http.StatusTooManyRequests, d.Status)
	assert.Equal(t, CodeRateLimited, d.Code)
	assert.Equal(t, msgRateLimited, d.Message)
	assert.Equal(t, 45*time.Second, d.RetryAfter)
	assert.Equal(t, 45, d.Details["retry_after_seconds"])
	assert.Equal(t, 2, d.Details["limit"])
	assert.True(t, sserr.IsRateLimited(d))

	_, header, _ := d.Response()
	assert.Equal(t, "45", header.Get("Retry-After"))

	h.clock.Advance(46 * time.Second)
	assert.Nil(t, h.gate.Limit(ctx, "export:u1:ip", 2, time.Minute), "window rolled over")
}

func TestLimit_StoreFailureIsUnavailable(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	limiter := ratelimit.NewRedisLimiter(redis.NewFromClient(rdb, nil), "")
	h := newHarness(t, WithLimiter(limiter))
	ctx := context.Background()

	require.Nil(t, h.gate.Limit(ctx, "k", 1, time.Minute))
	require.NotNil(t, h.gate.Limit(ctx, "k", 1, time.Minute))

	mr.Close()
	d := h.gate.Limit(ctx, "k", 1, time.Minute)
	require.NotNil(t, d)
	assert.Equal(t, http.StatusServiceUnavailable, d.Status)
	assert.Equal(t, CodeRateLimitUnavailable, d.Code)
	assert.Equal(t, string(sserr.CodeUnavailable), d.Details["reason"])

	_, header, _ := d.Response()
	assert.Equal(t, "1", header.Get("Retry-After"))
}

// ---------------------------------------------------------------------------
// Observation
// ---------------------------------------------------------------------------

func TestMetrics_CountDecisions(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	tok := h.token(t, "management")

	h.gate.RequireAuth(ctx, http.Header{})
	h.gate.RequireAuth(ctx, bearer("garbage"))
	h.gate.RequireRole(ctx, bearer(tok), roles.CLevel)
	h.gate.RequireRole(ctx, bearer(tok), roles.Management)
	h.gate.RequireAuth(ctx, bearer(tok))
	h.gate.Limit(ctx, "k", 1, time.Minute)
	h.gate.Limit(ctx, "k", 1, time.Minute)

	decisions := h.gate.metrics.decisions
	assert.Equal(t, 2.0, promtestutil.ToFloat64(decisions.WithLabelValues(outcomeAllow, "ok")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(decisions.WithLabelValues(outcomeDeny, CodeUnauthorized)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(decisions.WithLabelValues(outcomeDeny, CodeInvalidToken)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(decisions.WithLabelValues(outcomeDeny, CodeForbidden)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(decisions.WithLabelValues(outcomeDeny, CodeRateLimited)))

	count, err := promtestutil.GatherAndCount(h.reg, "accessgate_gate_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 5, count, "one series per outcome/code pair")
}

func TestMetrics_OneDecisionPerCheck(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	header := bearer(h.token(t, "mitarbeiter"))
	policy := Policy{Route: "export", RateLimit: &RateRule{Limit: 1, Window: time.Minute}}

	_, d := h.gate.Check(ctx, header, policy)
	require.Nil(t, d)
	_, d = h.gate.Check(ctx, header, policy)
	require.NotNil(t, d)
	assert.Equal(t, CodeRateLimited, d.Code)

	decisions := h.gate.metrics.decisions
	assert.Equal(t, 1.0, promtestutil.ToFloat64(decisions.WithLabelValues(outcomeAllow, "ok")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(decisions.WithLabelValues(outcomeDeny, CodeRateLimited)))
}

func TestMetrics_OneDecisionPerMiddlewareRequest(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	handler := h.gate.Middleware(Policy{
		MinRole:   roles.Mitarbeiter,
		RateLimit: &RateRule{Limit: 1, Window: time.Minute},
	})(whoami())
	tok := bearer(h.token(t, "mitarbeiter"))

	require.Equal(t, http.StatusOK, serve(t, handler, http.MethodGet, "/export", tok).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(t, handler, http.MethodGet, "/export", tok).Code)
	require.Equal(t, http.StatusUnauthorized, serve(t, handler, http.MethodGet, "/export", http.Header{}).Code)

	decisions := h.gate.metrics.decisions
	assert.Equal(t, 1.0, promtestutil.ToFloat64(decisions.WithLabelValues(outcomeAllow, "ok")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(decisions.WithLabelValues(outcomeDeny, CodeRateLimited)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(decisions.WithLabelValues(outcomeDeny, CodeUnauthorized)))

	count, err := promtestutil.GatherAndCount(h.reg, "accessgate_gate_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNew_WithoutRegistererDoesNotPanic(t *testing.T) {
	t.Parallel()
	m := &mockAuthenticator{}
	assert.NotPanics(t, func() {
		New(m)
		New(m)
	})
}

func TestDenialLog_NeverContainsToken(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	tok := h.token(t, "mitarbeiter")
	h.gate.RequireRole(context.Background(), bearer(tok), roles.CLevel)

	expired := h.idp.Sign(t, h.idp.Claims(fixtures.Audience, testNow.Add(-3*time.Hour)))
	h.gate.RequireAuth(context.Background(), bearer(expired))

	logs := h.logs.String()
	assert.Contains(t, logs, `"request_id":"`+testRequestID+`"`)
	assert.Contains(t, logs, `"code":"forbidden"`)
	assert.Contains(t, logs, `"code":"invalid_token"`)
	assert.Contains(t, logs, `"reason":"AUTH_002"`)
	assert.NotContains(t, logs, tok)
	assert.NotContains(t, logs, expired)
}
