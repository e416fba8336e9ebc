package limits

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"charterhub/berth/pkg/limits/ratelimit"
)

// Manager holds one fixed-window limiter per named endpoint.
//
// The Manager is the primary interface for admission control. Endpoints are
// registered explicitly; calls naming an unregistered endpoint are unlimited
// and report ratelimit.Unlimited().
//
// # Example
//
//	manager := limits.NewManager(limits.WithMetrics(limits.NewMetrics(reg)))
//	_ = manager.AddLimiter("reservations", ratelimit.Booking)
//
//	res := manager.Check(ctx, "reservations", callerKey)
//	if !res.Allowed {
//	    // reply 429 with res.RetryAfter
//	}
type Manager struct {
	limiters map[string]*ratelimit.FixedWindow

	newStore func(endpoint string) ratelimit.Store
	now      func() time.Time
	logger   *slog.Logger
	metrics  *Metrics

	mu sync.RWMutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithStoreFactory sets how each endpoint's record store is built. The
// default gives every endpoint its own bounded MemoryStore.
func WithStoreFactory(fn func(endpoint string) ratelimit.Store) Option {
	return func(m *Manager) { m.newStore = fn }
}

// WithClock overrides the time source of every limiter.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		limiters: make(map[string]*ratelimit.FixedWindow),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default().With("component", "limits")
	}
	if m.newStore == nil {
		m.newStore = func(string) ratelimit.Store {
			return ratelimit.NewMemoryStore(ratelimit.DefaultMaxKeys)
		}
	}
	return m
}

// AddLimiter registers or replaces the limiter for endpoint. Replacing a
// limiter starts every key of that endpoint with a fresh window.
func (m *Manager) AddLimiter(endpoint string, config ratelimit.Config) error {
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint name cannot be empty", ErrConfigInvalid)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("%w: endpoint %s: %v", ErrConfigInvalid, endpoint, err)
	}

	limiter := m.build(endpoint, config)

	m.mu.Lock()
	m.limiters[endpoint] = limiter
	m.mu.Unlock()

	m.logger.Debug("rate limiter registered",
		"endpoint", endpoint,
		"window", config.Window,
		"max_requests", config.MaxRequests,
	)
	return nil
}

// RemoveLimiter unregisters endpoint, which becomes unlimited. It reports
// whether a limiter was registered.
func (m *Manager) RemoveLimiter(endpoint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.limiters[endpoint]
	delete(m.limiters, endpoint)
	return ok
}

// Sync makes the registered endpoints match configs. Endpoints whose
// configuration is unchanged keep their counters. Nothing is applied if any
// config is invalid.
func (m *Manager) Sync(configs map[string]ratelimit.Config) error {
	for endpoint, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: endpoint %s: %v", ErrConfigInvalid, endpoint, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var added, changed, removed int
	for endpoint := range m.limiters {
		if _, ok := configs[endpoint]; !ok {
			delete(m.limiters, endpoint)
			removed++
		}
	}
	for endpoint, cfg := range configs {
		current, ok := m.limiters[endpoint]
		switch {
		case !ok:
			added++
		case current.Config() == cfg:
			continue
		default:
			changed++
		}
		m.limiters[endpoint] = m.build(endpoint, cfg)
	}

	m.logger.Info("rate limiters synchronized",
		"endpoints", len(m.limiters),
		"added", added,
		"changed", changed,
		"removed", removed,
	)
	return nil
}

// Check counts a request for key against endpoint.
func (m *Manager) Check(ctx context.Context, endpoint, key string) ratelimit.Result {
	limiter, ok := m.limiter(endpoint)
	if !ok {
		return ratelimit.Unlimited()
	}
	start := time.Now()
	res := limiter.Check(ctx, key)
	m.metrics.recordCheck(endpoint, "check", res.Allowed, time.Since(start))
	return res
}

// Consume records the outcome of a request for key against endpoint.
func (m *Manager) Consume(ctx context.Context, endpoint, key string, success bool) ratelimit.Result {
	limiter, ok := m.limiter(endpoint)
	if !ok {
		return ratelimit.Unlimited()
	}
	start := time.Now()
	res := limiter.Consume(ctx, key, success)
	m.metrics.recordCheck(endpoint, "consume", res.Allowed, time.Since(start))
	return res
}

// Admit is the entry gate for endpoint. See ratelimit.FixedWindow.Admit.
func (m *Manager) Admit(ctx context.Context, endpoint, key string) ratelimit.Result {
	limiter, ok := m.limiter(endpoint)
	if !ok {
		return ratelimit.Unlimited()
	}
	start := time.Now()
	res := limiter.Admit(ctx, key)
	m.metrics.recordCheck(endpoint, "admit", res.Allowed, time.Since(start))
	return res
}

// Settle completes a request admitted on endpoint. See
// ratelimit.FixedWindow.Settle.
func (m *Manager) Settle(ctx context.Context, endpoint, key string, admitted ratelimit.Result, success bool) {
	if limiter, ok := m.limiter(endpoint); ok {
		limiter.Settle(ctx, key, admitted, success)
	}
}

// Allow is Check returning a *RateLimitError on rejection.
func (m *Manager) Allow(ctx context.Context, endpoint, key string) (ratelimit.Result, error) {
	res := m.Check(ctx, endpoint, key)
	if res.Allowed {
		return res, nil
	}
	return res, Reject(endpoint, key, m.Message(endpoint), res)
}

// Status reports the state of key on endpoint without mutating it.
func (m *Manager) Status(ctx context.Context, endpoint, key string) ratelimit.Result {
	limiter, ok := m.limiter(endpoint)
	if !ok {
		return ratelimit.Unlimited()
	}
	return limiter.Status(ctx, key)
}

// Reset forgets the history of key on endpoint.
func (m *Manager) Reset(ctx context.Context, endpoint, key string) {
	if limiter, ok := m.limiter(endpoint); ok {
		limiter.Reset(ctx, key)
	}
}

// Endpoints returns the registered endpoint names in sorted order.
func (m *Manager) Endpoints() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.limiters))
	for name := range m.limiters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config returns the configuration of endpoint.
func (m *Manager) Config(endpoint string) (ratelimit.Config, bool) {
	limiter, ok := m.limiter(endpoint)
	if !ok {
		return ratelimit.Config{}, false
	}
	return limiter.Config(), true
}

// Message returns the rejection message for endpoint.
func (m *Manager) Message(endpoint string) string {
	if cfg, ok := m.Config(endpoint); ok && cfg.Message != "" {
		return cfg.Message
	}
	return "Too many requests, please try again later."
}

func (m *Manager) limiter(endpoint string) (*ratelimit.FixedWindow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limiter, ok := m.limiters[endpoint]
	return limiter, ok
}

func (m *Manager) build(endpoint string, config ratelimit.Config) *ratelimit.FixedWindow {
	opts := []ratelimit.Option{
		ratelimit.WithStore(m.newStore(endpoint)),
		ratelimit.WithLogger(m.logger.With("endpoint", endpoint)),
	}
	if m.now != nil {
		opts = append(opts, ratelimit.WithClock(m.now))
	}
	return ratelimit.NewFixedWindow(config, opts...)
}
