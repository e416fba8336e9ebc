package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// FixedWindow is a per-key fixed window counter.
//
// # Algorithm
//
//  1. On the first request for a key, or once now >= ResetAt, open a fresh
//     window: Count=1, ResetAt=now+Window.
//  2. Otherwise, if Count < MaxRequests, increment and admit.
//  3. Otherwise reject with RetryAfter = ceil(ResetAt-now) seconds.
//
// Records live in a Store. The default MemoryStore is bounded and evicts the
// least recently used key; an evicted key simply starts a fresh window the
// next time it is seen.
//
// # Thread Safety
//
// FixedWindow is safe for concurrent use; atomicity of the counter step is
// delegated to the Store.
type FixedWindow struct {
	config Config
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(f *FixedWindow) { f.now = now }
}

// WithStore sets the record store. Defaults to a MemoryStore of
// DefaultMaxKeys entries.
func WithStore(store Store) Option {
	return func(f *FixedWindow) { f.store = store }
}

// WithLogger sets the logger used for store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FixedWindow) { f.logger = logger }
}

// NewFixedWindow creates a limiter for config.
//
// Example:
//
//	limiter := NewFixedWindow(Standard)
//	if res := limiter.Check(ctx, clientIP); !res.Allowed {
//	    // reject with res.RetryAfter
//	}
func NewFixedWindow(config Config, opts ...Option) *FixedWindow {
	f := &FixedWindow{
		config: config,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.store == nil {
		f.store = NewMemoryStore(DefaultMaxKeys)
	}
	if f.logger == nil {
		f.logger = slog.Default().With("component", "ratelimit")
	}
	return f
}

// Config returns the limiter configuration.
func (f *FixedWindow) Config() Config {
	return f.config
}

// Check counts a request for key and decides whether it is admitted.
func (f *FixedWindow) Check(ctx context.Context, key string) Result {
	return f.take(ctx, key)
}

// Consume records the outcome of a request that was not admitted through
// Admit. Requests whose outcome the config skips are not counted; the
// current status is returned instead.
func (f *FixedWindow) Consume(ctx context.Context, key string, success bool) Result {
	if f.skips(success) {
		return f.Status(ctx, key)
	}
	return f.take(ctx, key)
}

// Admit is the entry gate used by HTTP middleware. It counts the request
// like Check. For limiters that defer counting the count is a reservation:
// Settle gives it back once the outcome turns out to be skipped, so
// requests still in flight are held within MaxRequests.
func (f *FixedWindow) Admit(ctx context.Context, key string) Result {
	return f.take(ctx, key)
}

// Settle completes a request admitted by Admit with result admitted. A
// skipped outcome refunds the reservation if its window is still open;
// counted outcomes need nothing further.
func (f *FixedWindow) Settle(ctx context.Context, key string, admitted Result, success bool) {
	if !f.skips(success) || !admitted.Allowed {
		return
	}
	now := f.now()
	if !now.Before(admitted.ResetAt) {
		return
	}
	if err := f.store.Refund(ctx, key, now, admitted.ResetAt); err != nil {
		f.logger.Warn("rate limit refund failed", "key", key, "error", err)
	}
}

func (f *FixedWindow) skips(success bool) bool {
	return (success && f.config.SkipSuccessfulRequests) || (!success && f.config.SkipFailedRequests)
}

// Reset forgets all history for key.
func (f *FixedWindow) Reset(ctx context.Context, key string) {
	if err := f.store.Delete(ctx, key); err != nil {
		f.logger.Warn("rate limit reset failed", "key", key, "error", err)
	}
}

// Status reports the state of key without mutating it.
func (f *FixedWindow) Status(ctx context.Context, key string) Result {
	now := f.now()
	rec, ok, err := f.store.Peek(ctx, key, now)
	if err != nil {
		f.logger.Warn("rate limit status unavailable, failing open", "key", key, "error", err)
		return f.fresh(now, 0)
	}
	if !ok || rec.Expired(now) {
		return f.fresh(now, 0)
	}
	return f.result(rec, rec.Count < f.config.MaxRequests, now)
}

func (f *FixedWindow) take(ctx context.Context, key string) Result {
	now := f.now()
	rec, allowed, err := f.store.Take(ctx, key, now, f.config.Window, f.config.MaxRequests)
	if err != nil {
		// Store errors fail open.
		f.logger.Warn("rate limit store failed, failing open", "key", key, "error", err)
		return f.fresh(now, 1)
	}
	return f.result(rec, allowed, now)
}

func (f *FixedWindow) fresh(now time.Time, count int) Result {
	return Result{
		Allowed:   true,
		Limit:     f.config.MaxRequests,
		Remaining: f.config.MaxRequests - count,
		ResetAt:   now.Add(f.config.Window),
	}
}

func (f *FixedWindow) result(rec Record, allowed bool, now time.Time) Result {
	remaining := f.config.MaxRequests - rec.Count
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:   allowed,
		Limit:     f.config.MaxRequests,
		Remaining: remaining,
		ResetAt:   rec.ResetAt,
	}
	if !allowed {
		res.RetryAfter = retryAfter(rec.ResetAt, now)
	}
	return res
}

// step applies one fixed-window increment to rec. ok reports whether rec
// existed. It is shared by every Store that evaluates the window in Go.
func step(rec Record, ok bool, now time.Time, window time.Duration, max int) (Record, bool) {
	if !ok || rec.Expired(now) {
		return Record{Count: 1, ResetAt: now.Add(window)}, true
	}
	if rec.Count < max {
		rec.Count++
		return rec, true
	}
	return rec, false
}

// retryAfter rounds the time until reset up to whole seconds, minimum 1s.
func retryAfter(resetAt, now time.Time) time.Duration {
	d := resetAt.Sub(now)
	secs := (d + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}
