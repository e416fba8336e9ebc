package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestFixedWindow_WindowArithmetic(t *testing.T) {
	clock := newFakeClock()
	limiter := NewFixedWindow(Config{Window: time.Minute, MaxRequests: 100}, WithClock(clock.Now))
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		res := limiter.Check(ctx, "caller-1")
		if !res.Allowed {
			t.Fatalf("request %d: expected allowed", i)
		}
		if res.Remaining != 100-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 100-i, res.Remaining)
		}
		clock.Advance(100 * time.Millisecond)
	}

	res := limiter.Check(ctx, "caller-1")
	if res.Allowed {
		t.Fatal("101st request: expected rejection")
	}
	if res.RetryAfter < time.Second || res.RetryAfter > time.Minute {
		t.Errorf("expected RetryAfter in [1s, 60s], got %s", res.RetryAfter)
	}
	if res.Remaining != 0 {
		t.Errorf("expected 0 remaining, got %d", res.Remaining)
	}

	clock.Advance(time.Minute)

	res = limiter.Check(ctx, "caller-1")
	if !res.Allowed {
		t.Fatal("102nd request after window reset: expected allowed")
	}
	if res.Remaining != 99 {
		t.Errorf("expected fresh window with 99 remaining, got %d", res.Remaining)
	}
	if want := clock.Now().Add(time.Minute); !res.ResetAt.Equal(want) {
		t.Errorf("expected reset at %s, got %s", want, res.ResetAt)
	}
}

func TestFixedWindow_RetryAfterRoundsUp(t *testing.T) {
	clock := newFakeClock()
	limiter := NewFixedWindow(Config{Window: 10 * time.Second, MaxRequests: 1}, WithClock(clock.Now))
	ctx := context.Background()

	limiter.Check(ctx, "k")
	clock.Advance(8500 * time.Millisecond)

	res := limiter.Check(ctx, "k")
	if res.Allowed {
		t.Fatal("expected rejection")
	}
	if res.RetryAfterSeconds() != 2 {
		t.Errorf("expected 1.5s to round up to 2s, got %d", res.RetryAfterSeconds())
	}
}

func TestFixedWindow_KeysAreIndependent(t *testing.T) {
	limiter := NewFixedWindow(Config{Window: time.Minute, MaxRequests: 2})
	ctx := context.Background()

	limiter.Check(ctx, "a")
	limiter.Check(ctx, "a")
	if limiter.Check(ctx, "a").Allowed {
		t.Error("expected key a to be exhausted")
	}
	if !limiter.Check(ctx, "b").Allowed {
		t.Error("expected key b to be unaffected by key a")
	}
}

func TestFixedWindow_StatusDoesNotMutate(t *testing.T) {
	limiter := NewFixedWindow(Config{Window: time.Minute, MaxRequests: 3})
	ctx := context.Background()

	limiter.Check(ctx, "k")
	for i := 0; i < 10; i++ {
		res := limiter.Status(ctx, "k")
		if res.Remaining != 2 {
			t.Fatalf("status call %d: expected 2 remaining, got %d", i, res.Remaining)
		}
	}

	res := limiter.Status(ctx, "unknown")
	if !res.Allowed || res.Remaining != 3 {
		t.Errorf("expected untouched key to report full budget, got %+v", res)
	}
}

func TestFixedWindow_Reset(t *testing.T) {
	limiter := NewFixedWindow(Config{Window: time.Hour, MaxRequests: 1})
	ctx := context.Background()

	limiter.Check(ctx, "k")
	if limiter.Check(ctx, "k").Allowed {
		t.Fatal("expected rejection before reset")
	}

	limiter.Reset(ctx, "k")

	if !limiter.Check(ctx, "k").Allowed {
		t.Error("expected admission after reset")
	}
}

func TestFixedWindow_ConsumeSkips(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		config    Config
		success   bool
		wantCount bool
	}{
		{"counts success by default", Config{Window: time.Minute, MaxRequests: 5}, true, true},
		{"counts failure by default", Config{Window: time.Minute, MaxRequests: 5}, false, true},
		{"skips success", Config{Window: time.Minute, MaxRequests: 5, SkipSuccessfulRequests: true}, true, false},
		{"counts failure when skipping success", Config{Window: time.Minute, MaxRequests: 5, SkipSuccessfulRequests: true}, false, true},
		{"skips failure", Config{Window: time.Minute, MaxRequests: 5, SkipFailedRequests: true}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := NewFixedWindow(tt.config)
			res := limiter.Consume(ctx, "k", tt.success)

			want := 5
			if tt.wantCount {
				want = 4
			}
			if res.Remaining != want {
				t.Errorf("expected remaining %d, got %d", want, res.Remaining)
			}
		})
	}
}

func TestFixedWindow_AuthPresetCountsOnlyFailures(t *testing.T) {
	limiter := NewFixedWindow(Auth)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		res := limiter.Admit(ctx, "ip")
		if !res.Allowed {
			t.Fatal("successful logins must never exhaust the auth budget")
		}
		limiter.Settle(ctx, "ip", res, true)
	}

	for i := 0; i < Auth.MaxRequests; i++ {
		res := limiter.Admit(ctx, "ip")
		if !res.Allowed {
			t.Fatalf("failure %d: expected admission", i+1)
		}
		limiter.Settle(ctx, "ip", res, false)
	}

	res := limiter.Admit(ctx, "ip")
	if res.Allowed {
		t.Fatal("expected rejection after 5 failures")
	}
	if res.RetryAfter <= 0 {
		t.Error("expected RetryAfter on rejection")
	}
}

func TestFixedWindow_AdmitHoldsInFlightWithinLimit(t *testing.T) {
	limiter := NewFixedWindow(Auth)
	ctx := context.Background()

	const inFlight = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted []Result
	)
	for i := 0; i < inFlight; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := limiter.Admit(ctx, "ip"); res.Allowed {
				mu.Lock()
				admitted = append(admitted, res)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(admitted) != Auth.MaxRequests {
		t.Fatalf("expected %d in-flight admissions, got %d", Auth.MaxRequests, len(admitted))
	}

	// Every request succeeds: all reservations are given back.
	for _, res := range admitted {
		limiter.Settle(ctx, "ip", res, true)
	}
	if status := limiter.Status(ctx, "ip"); status.Remaining != Auth.MaxRequests {
		t.Errorf("expected full budget after refunds, got remaining %d", status.Remaining)
	}
}

func TestFixedWindow_SettleAfterWindowRollover(t *testing.T) {
	clock := newFakeClock()
	limiter := NewFixedWindow(Config{Window: time.Minute, MaxRequests: 2, SkipSuccessfulRequests: true}, WithClock(clock.Now))
	ctx := context.Background()

	stale := limiter.Admit(ctx, "ip")
	clock.Advance(time.Minute)
	fresh := limiter.Admit(ctx, "ip")

	limiter.Settle(ctx, "ip", stale, true)
	if got := limiter.Status(ctx, "ip").Remaining; got != 1 {
		t.Errorf("stale refund must not touch the new window, remaining = %d", got)
	}

	limiter.Settle(ctx, "ip", fresh, true)
	if got := limiter.Status(ctx, "ip").Remaining; got != 2 {
		t.Errorf("expected refund in current window, remaining = %d", got)
	}

	// Counted outcomes keep their reservation.
	res := limiter.Admit(ctx, "ip")
	limiter.Settle(ctx, "ip", res, false)
	if got := limiter.Status(ctx, "ip").Remaining; got != 1 {
		t.Errorf("expected failure to stay counted, remaining = %d", got)
	}
}

func TestFixedWindow_ConcurrentChecks(t *testing.T) {
	limiter := NewFixedWindow(Config{Window: time.Hour, MaxRequests: 50})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Check(ctx, "shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("expected exactly 50 admissions, got %d", allowed)
	}
}

type failingStore struct{}

func (failingStore) Take(context.Context, string, time.Time, time.Duration, int) (Record, bool, error) {
	return Record{}, false, errors.New("store down")
}

func (failingStore) Peek(context.Context, string, time.Time) (Record, bool, error) {
	return Record{}, false, errors.New("store down")
}

func (failingStore) Refund(context.Context, string, time.Time, time.Time) error {
	return errors.New("store down")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("store down")
}

func TestFixedWindow_StoreFailureFailsOpen(t *testing.T) {
	limiter := NewFixedWindow(Strict, WithStore(failingStore{}))
	ctx := context.Background()

	for i := 0; i < 3*Strict.MaxRequests; i++ {
		if !limiter.Check(ctx, "k").Allowed {
			t.Fatal("expected store failures to fail open")
		}
	}
	if !limiter.Status(ctx, "k").Allowed {
		t.Error("expected status to fail open")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Standard, false},
		{"zero window", Config{MaxRequests: 1}, true},
		{"zero max", Config{Window: time.Second}, true},
		{"both skips", Config{Window: time.Second, MaxRequests: 1, SkipFailedRequests: true, SkipSuccessfulRequests: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		cfg, err := Preset(name)
		if err != nil {
			t.Fatalf("preset %q: %v", name, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %q is invalid: %v", name, err)
		}
	}

	if _, err := Preset("nope"); err == nil {
		t.Error("expected error for unknown preset")
	}

	if Strict.MaxRequests != 10 || Strict.Window != time.Minute {
		t.Errorf("strict preset drifted: %+v", Strict)
	}
	if Auth.MaxRequests != 5 || Auth.Window != 15*time.Minute || !Auth.SkipSuccessfulRequests {
		t.Errorf("auth preset drifted: %+v", Auth)
	}
}

func BenchmarkFixedWindow_Check(b *testing.B) {
	limiter := NewFixedWindow(Config{Window: time.Minute, MaxRequests: 1 << 30})
	ctx := context.Background()
	keys := make([]string, 1024)
	for i := range keys {
		keys[i] = fmt.Sprintf("caller-%d", i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Check(ctx, keys[i%len(keys)])
	}
}
