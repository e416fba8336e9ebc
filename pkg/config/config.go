package config

import (
	"time"

	"charterhub/berth/pkg/limits"
	"charterhub/berth/pkg/pool"
	"charterhub/berth/pkg/reservation"
	"charterhub/berth/pkg/security/tls"
	"charterhub/berth/pkg/storage"
	"charterhub/berth/pkg/storage/retention"
)

// Config is the root configuration structure for berth.
// It contains the HTTP server, the storage session pool, the reservation
// coordinator, rate limiting, storage, retention, and telemetry settings.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and caller authentication.
	Server ServerConfig `yaml:"server"`

	// Pool bounds and reuses storage sessions.
	Pool pool.Config `yaml:"pool"`

	// Reservation controls the optimistic retry loop.
	Reservation reservation.Config `yaml:"reservation"`

	// RateLimits contains the endpoint limiter table, the route mapping and
	// the record store.
	RateLimits RateLimitsConfig `yaml:"rate_limits"`

	// Storage selects the slot and booking backend.
	Storage storage.Config `yaml:"storage"`

	// Retention controls pruning of past slots.
	Retention retention.Config `yaml:"retention"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Secrets configures resolution of ${secret:name} references.
	Secrets SecretsConfig `yaml:"secrets"`
}

// SecretsConfig selects where ${secret:name} references in credential
// fields are looked up. The environment is consulted before the directory.
type SecretsConfig struct {
	// EnvPrefix prefixes secret environment variables.
	// Default: "BERTH_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret. Empty disables file lookup.
	Dir string `yaml:"dir"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits request body size.
	// Default: 65536 (64KB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// Auth configures how callers are identified for rate limiting.
	Auth AuthConfig `yaml:"auth"`

	// TLS terminates TLS on the listener.
	TLS tls.Config `yaml:"tls"`
}

// AuthConfig configures caller identification.
type AuthConfig struct {
	// JWTSecret is the HMAC key used to verify bearer tokens. When empty,
	// bearer tokens are ignored and callers are keyed by client address.
	// This should typically be loaded from BERTH_SERVER_AUTH_JWT_SECRET.
	JWTSecret string `yaml:"jwt_secret"`

	// JWTIssuer, when set, must match the token's iss claim.
	JWTIssuer string `yaml:"jwt_issuer"`

	// TrustForwardedFor keys anonymous callers by the first
	// X-Forwarded-For address instead of the connection address.
	// Default: false
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`
}

// RateLimitsConfig contains the rate limiting configuration.
type RateLimitsConfig struct {
	// Endpoints maps limiter names to their configuration. A limiter may
	// name a preset and override individual fields.
	Endpoints map[string]limits.EndpointConfig `yaml:"endpoints"`

	// Routes maps HTTP route patterns ("POST /v1/reservations") to limiter
	// names. Routes not listed use DefaultEndpoint.
	Routes map[string]string `yaml:"routes"`

	// DefaultEndpoint is the limiter applied to unmapped routes. An empty
	// value leaves unmapped routes unlimited.
	// Default: "global"
	DefaultEndpoint string `yaml:"default_endpoint"`

	// AuthEndpoint is the limiter charged for every rejected bearer token.
	// Its preset usually skips successful requests so that only failures
	// count.
	// Default: "auth"
	AuthEndpoint string `yaml:"auth_endpoint"`

	// Watch reloads the endpoint table when the configuration file changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// Store configures where window records are kept.
	Store RateLimitStoreConfig `yaml:"store"`
}

// RateLimitStoreConfig selects the limiter record store.
type RateLimitStoreConfig struct {
	// Backend is "memory" (per process, LRU bounded) or "redis" (shared).
	// Default: "memory"
	Backend string `yaml:"backend"`

	// MaxKeys bounds the in-memory record map per endpoint.
	// Default: 10000
	MaxKeys int `yaml:"max_keys"`

	// SweepInterval is how often expired in-memory records are dropped.
	// Default: 1m
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Redis configures the shared store.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	// Address is the Redis server address.
	// Default: "localhost:6379"
	Address string `yaml:"address"`

	// Password is the Redis password (optional).
	Password string `yaml:"password"`

	// DB is the Redis database number.
	// Default: 0
	DB int `yaml:"db"`

	// KeyPrefix namespaces limiter keys.
	// Default: "berth:ratelimit:"
	KeyPrefix string `yaml:"key_prefix"`

	// DialTimeout bounds connection setup.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII enables redaction of customer identifiers and tokens in logs.
	// Default: false
	RedactPII bool `yaml:"redact_pii"`

	// RedactPatterns contains custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether the Prometheus endpoint is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio", "parent_ratio"
	// Default: "parent_ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Exporter determines the trace exporter to use.
	// Options: "otlp"
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "berth"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for the OTLP connection.
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// CheckTimeout is the timeout for individual component health checks.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
