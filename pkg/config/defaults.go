package config

import (
	"time"

	"charterhub/berth/pkg/limits"
	"charterhub/berth/pkg/limits/ratelimit"
	"charterhub/berth/pkg/pool"
	"charterhub/berth/pkg/security/secrets"
	"charterhub/berth/pkg/storage/retention"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = 65536   // 64KB

	// Rate limit defaults
	DefaultRateLimitEndpoint      = "global"
	DefaultAuthEndpoint           = "auth"
	DefaultRateLimitBackend       = "memory"
	DefaultRateLimitSweepInterval = time.Minute
	DefaultRedisAddress           = "localhost:6379"
	DefaultRedisKeyPrefix         = "berth:ratelimit:"
	DefaultRedisDialTimeout       = 5 * time.Second

	// Storage defaults
	DefaultStorageDriver      = "sqlite"
	DefaultStoragePath        = "data/berth.db"
	DefaultStorageWALMode     = true
	DefaultStorageBusyTimeout = 5 * time.Second
	DefaultMongoDatabase      = "berth"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultPrometheusPath     = "/metrics"
	DefaultTracingSampler     = "parent_ratio"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingExporter    = "otlp"
	DefaultTracingService     = "berth"
	DefaultOTLPTimeout        = 10 * time.Second
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"
	DefaultHealthCheckTimeout = 5 * time.Second

	// Secrets defaults
	DefaultSecretsEnvPrefix = secrets.DefaultEnvPrefix
)

// DefaultEndpoints returns the limiter table used when none is configured.
func DefaultEndpoints() map[string]limits.EndpointConfig {
	return map[string]limits.EndpointConfig{
		"global":  {Preset: "standard"},
		"reads":   {Preset: "lenient"},
		"booking": {Preset: "booking"},
		"auth":    {Preset: "auth"},
	}
}

// DefaultRoutes returns the route to limiter mapping used when none is
// configured.
func DefaultRoutes() map[string]string {
	return map[string]string{
		"POST /v1/reservations":                 "booking",
		"DELETE /v1/reservations/{id}":          "booking",
		"GET /v1/slots/{captain}/{date}/{time}": "reads",
	}
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	cfg.Server.TLS.ApplyDefaults()

	// Pool and reservation defaults
	if cfg.Pool.MinConnections == 0 {
		cfg.Pool.MinConnections = pool.DefaultMinConnections
	}
	cfg.Pool.ApplyDefaults()
	cfg.Reservation.ApplyDefaults()

	// Rate limit defaults
	if cfg.RateLimits.Endpoints == nil {
		cfg.RateLimits.Endpoints = DefaultEndpoints()
	}
	if cfg.RateLimits.Routes == nil {
		cfg.RateLimits.Routes = DefaultRoutes()
	}
	if cfg.RateLimits.DefaultEndpoint == "" {
		if _, ok := cfg.RateLimits.Endpoints[DefaultRateLimitEndpoint]; ok {
			cfg.RateLimits.DefaultEndpoint = DefaultRateLimitEndpoint
		}
	}
	if cfg.RateLimits.AuthEndpoint == "" {
		if _, ok := cfg.RateLimits.Endpoints[DefaultAuthEndpoint]; ok {
			cfg.RateLimits.AuthEndpoint = DefaultAuthEndpoint
		}
	}
	store := &cfg.RateLimits.Store
	if store.Backend == "" {
		store.Backend = DefaultRateLimitBackend
	}
	if store.MaxKeys == 0 {
		store.MaxKeys = ratelimit.DefaultMaxKeys
	}
	if store.SweepInterval == 0 {
		store.SweepInterval = DefaultRateLimitSweepInterval
	}
	if store.Redis.Address == "" {
		store.Redis.Address = DefaultRedisAddress
	}
	if store.Redis.KeyPrefix == "" {
		store.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if store.Redis.DialTimeout == 0 {
		store.Redis.DialTimeout = DefaultRedisDialTimeout
	}

	// Storage defaults
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if !cfg.Storage.WALMode {
		cfg.Storage.WALMode = DefaultStorageWALMode
	}
	if cfg.Storage.BusyTimeout == 0 {
		cfg.Storage.BusyTimeout = DefaultStorageBusyTimeout
	}
	if cfg.Storage.MongoDatabase == "" {
		cfg.Storage.MongoDatabase = DefaultMongoDatabase
	}

	// Retention defaults
	if cfg.Retention.RetentionDays == 0 && cfg.Retention.PruneSchedule == "" {
		cfg.Retention = *retention.DefaultConfig()
	}

	// Secrets defaults
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}

	// Telemetry defaults
	tel := &cfg.Telemetry
	if tel.Logging.Level == "" {
		tel.Logging.Level = DefaultLoggingLevel
	}
	if tel.Logging.Format == "" {
		tel.Logging.Format = DefaultLoggingFormat
	}
	if !tel.Metrics.Enabled {
		tel.Metrics.Enabled = DefaultMetricsEnabled
	}
	if tel.Metrics.Path == "" {
		tel.Metrics.Path = DefaultPrometheusPath
	}
	if tel.Tracing.Sampler == "" {
		tel.Tracing.Sampler = DefaultTracingSampler
	}
	if tel.Tracing.SampleRatio == 0 {
		tel.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if tel.Tracing.Exporter == "" {
		tel.Tracing.Exporter = DefaultTracingExporter
	}
	if tel.Tracing.ServiceName == "" {
		tel.Tracing.ServiceName = DefaultTracingService
	}
	if tel.Tracing.OTLP.Timeout == 0 {
		tel.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}
	if tel.Health.LivenessPath == "" {
		tel.Health.LivenessPath = DefaultLivenessPath
	}
	if tel.Health.ReadinessPath == "" {
		tel.Health.ReadinessPath = DefaultReadinessPath
	}
	if tel.Health.CheckTimeout == 0 {
		tel.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
