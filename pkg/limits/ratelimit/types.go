package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxKeys is the number of caller keys a memory store tracks before
// evicting the least recently used record.
const DefaultMaxKeys = 10000

// ErrRateLimited is the sentinel for a request rejected by a limiter.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config describes a single fixed-window limit. Presets are just named
// values of this type.
type Config struct {
	// Window is the length of a counting window.
	Window time.Duration `yaml:"window"`

	// MaxRequests is the number of requests admitted per window.
	MaxRequests int `yaml:"max_requests"`

	// Message is returned to rejected callers.
	Message string `yaml:"message"`

	// SkipSuccessfulRequests leaves successful requests out of the count.
	SkipSuccessfulRequests bool `yaml:"skip_successful_requests"`

	// SkipFailedRequests leaves failed requests out of the count.
	SkipFailedRequests bool `yaml:"skip_failed_requests"`
}

// Validate reports whether the config can drive a limiter.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("max_requests must be positive, got %d", c.MaxRequests)
	}
	if c.SkipSuccessfulRequests && c.SkipFailedRequests {
		return errors.New("skip_successful_requests and skip_failed_requests are mutually exclusive")
	}
	return nil
}

// DefersCounting reports whether requests are counted after their outcome
// is known rather than on admission.
func (c Config) DefersCounting() bool {
	return c.SkipSuccessfulRequests || c.SkipFailedRequests
}

// Record is the per-key counter state.
type Record struct {
	Count   int
	ResetAt time.Time
}

// Expired reports whether the window of r has ended at now.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ResetAt)
}

// Result is the outcome of a limiter call. It carries everything needed to
// render X-RateLimit-* and Retry-After headers.
type Result struct {
	// Allowed indicates if the request is permitted.
	Allowed bool

	// Limit is the configured maximum per window. -1 means unlimited.
	Limit int

	// Remaining is how many requests are left in the current window.
	Remaining int

	// ResetAt is when the current window ends.
	ResetAt time.Time

	// RetryAfter is set on rejection, rounded up to whole seconds.
	RetryAfter time.Duration
}

// RetryAfterSeconds returns RetryAfter as an integer number of seconds.
func (r Result) RetryAfterSeconds() int {
	return int(r.RetryAfter / time.Second)
}

// Unlimited is the result reported for endpoints without a limiter.
func Unlimited() Result {
	return Result{Allowed: true, Limit: -1, Remaining: -1}
}

// Store holds Records. Take must apply the fixed-window step for key as one
// atomic read-modify-write and report whether the request was admitted.
type Store interface {
	// Take counts one request against key.
	Take(ctx context.Context, key string, now time.Time, window time.Duration, max int) (Record, bool, error)

	// Peek returns the record for key without touching recency or counts.
	// Stores that track windows as TTLs derive ResetAt from now.
	Peek(ctx context.Context, key string, now time.Time) (Record, bool, error)

	// Refund gives back one request counted in the window ending at
	// resetAt. It does nothing once that window is gone.
	Refund(ctx context.Context, key string, now, resetAt time.Time) error

	// Delete forgets key.
	Delete(ctx context.Context, key string) error
}
