package gate

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Public denial codes. These are part of the HTTP contract; internal
// error codes only ever appear under details.reason.
const (
	CodeUnauthorized         = "unauthorized"
	CodeInvalidToken         = "invalid_token"
	CodeForbidden            = "forbidden"
	CodeRateLimited          = "rate_limited"
	CodeRateLimitUnavailable = "rate_limit_unavailable"
)

// Public messages. They never vary with the failure's cause.
const (
	msgUnauthorized         = "Missing or malformed Authorization header."
	msgInvalidToken         = "Invalid or expired token."
	msgForbidden            = "Insufficient role for this operation."
	msgRateLimited          = "Too many requests. Please retry later."
	msgRateLimitUnavailable = "Rate limiting is temporarily unavailable."
)

// Denial describes why the gate refused a request.
type Denial struct {
	// Status is the HTTP status: 401, 403, 429 or 503.
	Status int

	// Code is one of the public Code* constants.
	Code string

	// Message is the generic, non-leaking public message.
	Message string

	// Details carries request_id and, depending on the denial, reason
	// (the internal error code), message (the internal error text),
	// required roles, or retry timing.
	Details map[string]any

	// RetryAfter is set for rate-limit denials.
	RetryAfter time.Duration

	// Err is the underlying failure, if any. It is logged, never sent.
	Err error
}

// Error implements error so a Denial can travel through error returns.
func (d *Denial) Error() string {
	return d.Code + ": " + d.Message
}

// Unwrap returns the underlying failure.
func (d *Denial) Unwrap() error {
	return d.Err
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type envelope struct {
	OK    bool      `json:"ok"`
	Error errorBody `json:"error"`
}

// Response renders the denial as a status, headers and JSON body of the
// form {"ok":false,"error":{"code":...,"message":...,"details":{...}}}.
func (d *Denial) Response() (int, http.Header, []byte) {
	h := http.Header{}
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")

	switch d.Status {
	case http.StatusUnauthorized:
		if d.Code == CodeInvalidToken {
			h.Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		} else {
			h.Set("WWW-Authenticate", "Bearer")
		}
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		if d.RetryAfter > 0 {
			h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
		}
	}

	body, err := json.Marshal(envelope{
		OK:    false,
		Error: errorBody{Code: d.Code, Message: d.Message, Details: d.Details},
	})
	if err != nil {
		// Details hold only JSON-safe values.
		body = []byte(`{"ok":false,"error":{"code":"` + d.Code + `","message":"` + d.Message + `"}}`)
	}
	return d.Status, h, body
}

// Render sends the denial on w.
func (d *Denial) Render(w http.ResponseWriter) {
	status, h, body := d.Response()
	for k, v := range h {
		w.Header()[k] = v
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// retryAfterSeconds rounds up, never below one second.
func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
