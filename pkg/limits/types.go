package limits

import (
	"errors"
	"fmt"
	"time"

	"charterhub/berth/pkg/limits/ratelimit"
)

// Error types for limit violations and configuration problems.
var (
	// ErrUnknownEndpoint is returned when an operation names an endpoint
	// with no registered limiter.
	ErrUnknownEndpoint = errors.New("unknown rate limit endpoint")

	// ErrConfigInvalid is returned when a limiter configuration is invalid.
	ErrConfigInvalid = errors.New("invalid rate limit configuration")
)

// EndpointConfig binds a limiter configuration to an endpoint name.
// Preset, when set, is resolved first and the explicit fields override it.
type EndpointConfig struct {
	// Preset names a ratelimit preset (strict, standard, auth, booking, lenient).
	Preset string `yaml:"preset"`

	// Config overrides individual preset fields.
	ratelimit.Config `yaml:",inline"`
}

// Resolve returns the effective limiter configuration.
func (e EndpointConfig) Resolve() (ratelimit.Config, error) {
	cfg := ratelimit.Config{}
	if e.Preset != "" {
		p, err := ratelimit.Preset(e.Preset)
		if err != nil {
			return ratelimit.Config{}, err
		}
		cfg = p
	}
	if e.Window > 0 {
		cfg.Window = e.Window
	}
	if e.MaxRequests > 0 {
		cfg.MaxRequests = e.MaxRequests
	}
	if e.Message != "" {
		cfg.Message = e.Message
	}
	if e.SkipSuccessfulRequests {
		cfg.SkipSuccessfulRequests = true
		cfg.SkipFailedRequests = false
	}
	if e.SkipFailedRequests {
		cfg.SkipFailedRequests = true
		cfg.SkipSuccessfulRequests = false
	}
	if err := cfg.Validate(); err != nil {
		return ratelimit.Config{}, err
	}
	return cfg, nil
}

// ResolveAll resolves every endpoint in endpoints. It fails on the first
// invalid entry, naming the endpoint.
func ResolveAll(endpoints map[string]EndpointConfig) (map[string]ratelimit.Config, error) {
	out := make(map[string]ratelimit.Config, len(endpoints))
	for name, ec := range endpoints {
		cfg, err := ec.Resolve()
		if err != nil {
			return nil, fmt.Errorf("%w: endpoint %s: %v", ErrConfigInvalid, name, err)
		}
		out[name] = cfg
	}
	return out, nil
}

// RateLimitError provides detailed context about a rejected request.
// It unwraps to ratelimit.ErrRateLimited.
type RateLimitError struct {
	// Endpoint is the limiter that rejected the request.
	Endpoint string

	// Key is the caller key that exhausted its window.
	Key string

	// Message is the caller-facing rejection message.
	Message string

	// Limit is the configured maximum per window.
	Limit int

	// RetryAfter is how long the caller should wait.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s on %s: limit=%d, retry after %s",
		e.Key, e.Endpoint, e.Limit, e.RetryAfter)
}

// Unwrap returns ratelimit.ErrRateLimited.
func (e *RateLimitError) Unwrap() error {
	return ratelimit.ErrRateLimited
}

// Reject builds a RateLimitError from a rejected result.
func Reject(endpoint, key, message string, res ratelimit.Result) *RateLimitError {
	return &RateLimitError{
		Endpoint:   endpoint,
		Key:        key,
		Message:    message,
		Limit:      res.Limit,
		RetryAfter: res.RetryAfter,
	}
}
