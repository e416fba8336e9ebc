package config

import (
	"time"

	"charterhub/berth/pkg/limits"
)

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with sensible defaults for testing.
// The resulting configuration is valid and uses in-memory storage so tests
// never touch the filesystem.
func NewTestConfig() *ConfigBuilder {
	var cfg Config
	cfg.Storage.Driver = "memory"
	ApplyDefaults(&cfg)
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithListenAddress sets the server listen address.
func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Server.ListenAddress = addr
	return b
}

// WithReadTimeout sets the server read timeout.
func (b *ConfigBuilder) WithReadTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.Server.ReadTimeout = d
	return b
}

// WithPoolSize sets the session pool bounds.
func (b *ConfigBuilder) WithPoolSize(minConns, maxConns int) *ConfigBuilder {
	b.cfg.Pool.MinConnections = minConns
	b.cfg.Pool.MaxConnections = maxConns
	return b
}

// WithEndpoint adds or replaces a rate limit endpoint.
func (b *ConfigBuilder) WithEndpoint(name string, ec limits.EndpointConfig) *ConfigBuilder {
	if b.cfg.RateLimits.Endpoints == nil {
		b.cfg.RateLimits.Endpoints = make(map[string]limits.EndpointConfig)
	}
	b.cfg.RateLimits.Endpoints[name] = ec
	return b
}

// WithRoute maps a route pattern to an endpoint.
func (b *ConfigBuilder) WithRoute(pattern, endpoint string) *ConfigBuilder {
	if b.cfg.RateLimits.Routes == nil {
		b.cfg.RateLimits.Routes = make(map[string]string)
	}
	b.cfg.RateLimits.Routes[pattern] = endpoint
	return b
}

// WithRedisStore switches the limiter record store to Redis.
func (b *ConfigBuilder) WithRedisStore(addr string) *ConfigBuilder {
	b.cfg.RateLimits.Store.Backend = "redis"
	b.cfg.RateLimits.Store.Redis.Address = addr
	return b
}

// WithSQLitePath selects sqlite storage at path.
func (b *ConfigBuilder) WithSQLitePath(path string) *ConfigBuilder {
	b.cfg.Storage.Driver = "sqlite"
	b.cfg.Storage.Path = path
	return b
}

// WithMongo selects mongo storage.
func (b *ConfigBuilder) WithMongo(uri, database string) *ConfigBuilder {
	b.cfg.Storage.Driver = "mongo"
	b.cfg.Storage.MongoURI = uri
	b.cfg.Storage.MongoDatabase = database
	return b
}

// WithLoggingLevel sets the logging level.
func (b *ConfigBuilder) WithLoggingLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}

// WithTracing enables tracing to the given collector endpoint.
func (b *ConfigBuilder) WithTracing(endpoint string) *ConfigBuilder {
	b.cfg.Telemetry.Tracing.Enabled = true
	b.cfg.Telemetry.Tracing.Endpoint = endpoint
	return b
}

// MinimalConfig returns a minimal valid configuration for testing.
// This is useful for tests that don't care about most configuration values.
func MinimalConfig() *Config {
	return NewTestConfig().Build()
}
