package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"charterhub/berth/pkg/apperr"
	"charterhub/berth/pkg/telemetry/logging"
	"charterhub/berth/pkg/telemetry/tracing"
)

// ErrorResponse is the body of every non-2xx API response.
//
// Rate limited responses carry RetryAfter in seconds:
//
//	{"error": "Too many requests, please try again later.", "code": "rate_limited", "retryAfter": 42}
type ErrorResponse struct {
	// Error is a human-readable error message.
	Error string `json:"error"`

	// Code is the machine-readable apperr.Kind.
	Code string `json:"code,omitempty"`

	// RetryAfter is how many seconds to wait before retrying.
	RetryAfter int `json:"retryAfter,omitempty"`

	// RequestID correlates the response with server logs.
	RequestID string `json:"request_id,omitempty"`
}

// Codes for failures detected at the HTTP layer rather than in the core.
const (
	CodeInvalidJSON     = "invalid_json"
	CodeRequestTooLarge = "request_too_large"
	CodeInvalidToken    = "invalid_token"
)

// WriteJSON writes body as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError classifies err and writes the matching status, Retry-After
// header and ErrorResponse. Internal details are never exposed.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	c := apperr.Classify(err)
	tracing.SetErrorKind(trace.SpanFromContext(r.Context()), string(c.Kind))

	resp := ErrorResponse{
		Error:     apperr.Message(err),
		Code:      string(c.Kind),
		RequestID: logging.GetRequestID(r.Context()),
	}
	if c.Retryable && c.RetryAfter > 0 {
		resp.RetryAfter = retryAfterSeconds(c)
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
	}
	WriteJSON(w, c.HTTPStatus, resp)
}

// WriteProblem writes an error detected before the core was reached.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	tracing.SetErrorKind(trace.SpanFromContext(r.Context()), code)
	WriteJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: logging.GetRequestID(r.Context()),
	})
}

func retryAfterSeconds(c apperr.Classification) int {
	secs := int((c.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
