package config

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"charterhub/berth/pkg/limits"
	"charterhub/berth/pkg/limits/ratelimit"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validatePool(cfg)...)
	errs = append(errs, validateRateLimits(&cfg.RateLimits)...)
	errs = append(errs, validateStorage(cfg)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 { // 10MB is excessive
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_body_bytes",
			Message: "max body bytes must be non-negative",
		})
	}
	if err := cfg.TLS.Validate(); err != nil {
		errs = append(errs, FieldError{Field: "server.tls", Message: err.Error()})
	}

	return errs
}

func validatePool(cfg *Config) []FieldError {
	var errs []FieldError

	if err := cfg.Pool.Validate(); err != nil {
		errs = append(errs, FieldError{Field: "pool", Message: err.Error()})
	}
	if cfg.Pool.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "pool.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}
	if cfg.Pool.MaxWaiters < 0 {
		errs = append(errs, FieldError{
			Field:   "pool.max_waiters",
			Message: "max waiters must be non-negative",
		})
	}

	if err := cfg.Reservation.Validate(); err != nil {
		errs = append(errs, FieldError{Field: "reservation", Message: err.Error()})
	}

	return errs
}

func validateRateLimits(cfg *RateLimitsConfig) []FieldError {
	var errs []FieldError

	names := make([]string, 0, len(cfg.Endpoints))
	for name := range cfg.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := cfg.Endpoints[name].Resolve(); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("rate_limits.endpoints.%s", name),
				Message: err.Error(),
			})
		}
	}

	routes := make([]string, 0, len(cfg.Routes))
	for route := range cfg.Routes {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	for _, route := range routes {
		endpoint := cfg.Routes[route]
		if _, ok := cfg.Endpoints[endpoint]; !ok {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("rate_limits.routes[%s]", route),
				Message: fmt.Sprintf("references unknown endpoint %q", endpoint),
			})
		}
	}

	if cfg.DefaultEndpoint != "" {
		if _, ok := cfg.Endpoints[cfg.DefaultEndpoint]; !ok {
			errs = append(errs, FieldError{
				Field:   "rate_limits.default_endpoint",
				Message: fmt.Sprintf("references unknown endpoint %q", cfg.DefaultEndpoint),
			})
		}
	}
	if cfg.AuthEndpoint != "" {
		if _, ok := cfg.Endpoints[cfg.AuthEndpoint]; !ok {
			errs = append(errs, FieldError{
				Field:   "rate_limits.auth_endpoint",
				Message: fmt.Sprintf("references unknown endpoint %q", cfg.AuthEndpoint),
			})
		}
	}

	switch cfg.Store.Backend {
	case "memory":
		if cfg.Store.MaxKeys <= 0 {
			errs = append(errs, FieldError{
				Field:   "rate_limits.store.max_keys",
				Message: "max keys must be positive",
			})
		}
	case "redis":
		if cfg.Store.Redis.Address == "" {
			errs = append(errs, FieldError{
				Field:   "rate_limits.store.redis.address",
				Message: "redis address is required when backend is redis",
			})
		}
		if cfg.Store.Redis.DB < 0 {
			errs = append(errs, FieldError{
				Field:   "rate_limits.store.redis.db",
				Message: "redis db must be non-negative",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "rate_limits.store.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory' or 'redis'", cfg.Store.Backend),
		})
	}

	return errs
}

// ValidateRateLimits reports only the rate limit section. The config
// watcher uses it to reject a reload without touching other sections.
func ValidateRateLimits(cfg *RateLimitsConfig) error {
	if errs := validateRateLimits(cfg); len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateStorage(cfg *Config) []FieldError {
	var errs []FieldError

	switch cfg.Storage.Driver {
	case "sqlite", "sqlite3":
		if cfg.Storage.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.path",
				Message: "path is required for sqlite storage",
			})
		}
		if cfg.Storage.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.busy_timeout",
				Message: "busy timeout must be positive",
			})
		}
	case "mongo":
		if cfg.Storage.MongoURI == "" {
			errs = append(errs, FieldError{
				Field:   "storage.mongo_uri",
				Message: "mongo URI is required for mongo storage",
			})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.driver",
			Message: fmt.Sprintf("invalid driver %q: must be 'sqlite', 'sqlite3', 'mongo' or 'memory'", cfg.Storage.Driver),
		})
	}

	if cfg.Retention.RetentionDays < 0 {
		errs = append(errs, FieldError{
			Field:   "retention.days",
			Message: "retention days must be non-negative",
		})
	}
	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "retention.schedule",
				Message: fmt.Sprintf("invalid cron schedule %q: %v", cfg.Retention.PruneSchedule, err),
			})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: "logging level is required",
		})
	} else if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if cfg.Logging.Format == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: "logging format is required",
		})
	} else if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Exporter != "otlp" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.exporter",
			Message: fmt.Sprintf("unsupported exporter %q: must be 'otlp'", cfg.Tracing.Exporter),
		})
	}

	if !strings.HasPrefix(cfg.Health.LivenessPath, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.liveness_path",
			Message: "liveness path must start with /",
		})
	}
	if !strings.HasPrefix(cfg.Health.ReadinessPath, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.readiness_path",
			Message: "readiness path must start with /",
		})
	}
	if cfg.Health.CheckTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.health.check_timeout",
			Message: "check timeout must be positive",
		})
	}

	return errs
}

// Limiters resolves the endpoint table into limiter configurations.
func (c RateLimitsConfig) Limiters() (map[string]ratelimit.Config, error) {
	return limits.ResolveAll(c.Endpoints)
}
