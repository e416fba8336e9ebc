package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"charterhub/berth/pkg/config"
	"charterhub/berth/pkg/limits"
	"charterhub/berth/pkg/limits/ratelimit"
	"charterhub/berth/pkg/server/api"
	"charterhub/berth/pkg/telemetry/logging"
	"charterhub/berth/pkg/telemetry/tracing"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// routeTable maps route patterns to limiter endpoints.
type routeTable struct {
	routes   map[string]string
	fallback string
	auth     string
}

func (t *routeTable) endpoint(pattern string) string {
	if endpoint, ok := t.routes[pattern]; ok {
		return endpoint
	}
	return t.fallback
}

// RateLimit admits API requests through the limiter endpoint mapped to the
// matched route. It must wrap handlers registered on the mux, where
// r.Pattern is known.
//
// For each request it:
//   - derives the caller key with CallerKeys
//   - charges the auth endpoint and answers 401 when a bearer token is invalid
//   - admits the request against the route's endpoint
//   - sets X-RateLimit-* headers for limited endpoints
//   - answers 429 with Retry-After when the window is exhausted
//   - reports the outcome to limiters that count only successes or failures
type RateLimit struct {
	manager  *limits.Manager
	callers  *CallerKeys
	table    atomic.Pointer[routeTable]
	logger   *slog.Logger
	rejected func(endpoint string)
}

// RateLimitOption configures a RateLimit.
type RateLimitOption func(*RateLimit)

// WithRateLimitLogger sets the logger.
func WithRateLimitLogger(logger *slog.Logger) RateLimitOption {
	return func(l *RateLimit) { l.logger = logger }
}

// WithRejectHook is called with the endpoint name for every 429.
func WithRejectHook(fn func(endpoint string)) RateLimitOption {
	return func(l *RateLimit) { l.rejected = fn }
}

// NewRateLimit creates the middleware. Routes are read from cfg and can be
// replaced later with SetRoutes.
func NewRateLimit(manager *limits.Manager, callers *CallerKeys, cfg config.RateLimitsConfig, opts ...RateLimitOption) *RateLimit {
	l := &RateLimit{
		manager:  manager,
		callers:  callers,
		rejected: func(string) {},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "ratelimit")
	l.SetRoutes(cfg)
	return l
}

// SetRoutes atomically replaces the route table.
func (l *RateLimit) SetRoutes(cfg config.RateLimitsConfig) {
	routes := make(map[string]string, len(cfg.Routes))
	for pattern, endpoint := range cfg.Routes {
		routes[pattern] = endpoint
	}
	l.table.Store(&routeTable{
		routes:   routes,
		fallback: cfg.DefaultEndpoint,
		auth:     cfg.AuthEndpoint,
	})
}

// Endpoint returns the limiter endpoint applied to a route pattern. An
// empty result means the route is unlimited.
func (l *RateLimit) Endpoint(pattern string) string {
	return l.table.Load().endpoint(pattern)
}

// Handler wraps next with admission control.
func (l *RateLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		table := l.table.Load()
		caller, err := l.callers.Identify(r)

		ctx := logging.WithRoute(logging.WithCaller(r.Context(), caller), r.Pattern)
		r = r.WithContext(ctx)
		span := trace.SpanFromContext(ctx)

		if errors.Is(err, ErrInvalidToken) {
			res := l.manager.Consume(ctx, table.auth, caller, false)
			setRateLimitHeaders(w, res)
			tracing.SetRateLimitAttributes(span, table.auth, res.Limit, res.Remaining, !res.Allowed)
			if !res.Allowed {
				l.reject(w, r, table.auth, caller, res)
				return
			}
			l.logger.WarnContext(ctx, "bearer token rejected", "error", err)
			api.WriteProblem(w, r, http.StatusUnauthorized, api.CodeInvalidToken, "invalid bearer token")
			return
		}

		endpoint := table.endpoint(r.Pattern)
		if endpoint == "" {
			next.ServeHTTP(w, r)
			return
		}

		res := l.manager.Admit(ctx, endpoint, caller)
		setRateLimitHeaders(w, res)
		tracing.SetRateLimitAttributes(span, endpoint, res.Limit, res.Remaining, !res.Allowed)
		if !res.Allowed {
			l.reject(w, r, endpoint, caller, res)
			return
		}

		cfg, ok := l.manager.Config(endpoint)
		if !ok || !cfg.DefersCounting() {
			next.ServeHTTP(w, r)
			return
		}

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)
		l.manager.Settle(ctx, endpoint, caller, res, rw.statusCode < http.StatusBadRequest)
	})
}

func (l *RateLimit) reject(w http.ResponseWriter, r *http.Request, endpoint, caller string, res ratelimit.Result) {
	l.rejected(endpoint)
	l.logger.InfoContext(r.Context(), "rate limit exceeded",
		"endpoint", endpoint,
		"limit", res.Limit,
		"retry_after_s", res.RetryAfterSeconds(),
	)
	api.WriteError(w, r, limits.Reject(endpoint, caller, l.manager.Message(endpoint), res))
}

// setRateLimitHeaders renders res. Unlimited results set nothing.
func setRateLimitHeaders(w http.ResponseWriter, res ratelimit.Result) {
	if res.Limit < 0 {
		return
	}
	h := w.Header()
	h.Set(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
	h.Set(HeaderRateLimitReset, res.ResetAt.UTC().Format(time.RFC3339))
}
