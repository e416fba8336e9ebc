package config

import (
	"errors"
	"strings"
	"testing"

	"charterhub/berth/pkg/limits"
	"charterhub/berth/pkg/limits/ratelimit"
	"charterhub/berth/pkg/pool"
	"charterhub/berth/pkg/reservation"
	"charterhub/berth/pkg/security/tls"
	"charterhub/berth/pkg/storage"
	"charterhub/berth/pkg/storage/retention"
)

func hasField(errs []FieldError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := MinimalConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	// Nothing defaulted: empty listen address, no pool bounds, no
	// storage driver, no logging level.
	cfg := &Config{}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation to fail")
	}

	var validationErr ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	if len(validationErr.Errors) < 2 {
		t.Errorf("expected multiple errors, got %d", len(validationErr.Errors))
	}

	errMsg := validationErr.Error()
	if !strings.Contains(errMsg, "validation failed with") {
		t.Errorf("error message should mention multiple errors: %s", errMsg)
	}
}

func TestValidate_ServerConfig(t *testing.T) {
	tests := []struct {
		name       string
		server     ServerConfig
		wantError  bool
		errorField string
	}{
		{
			name: "valid server config",
			server: ServerConfig{
				ListenAddress:  "127.0.0.1:8080",
				ReadTimeout:    DefaultReadTimeout,
				WriteTimeout:   DefaultWriteTimeout,
				IdleTimeout:    DefaultIdleTimeout,
				MaxHeaderBytes: DefaultMaxHeaderBytes,
			},
			wantError: false,
		},
		{
			name:       "empty listen address",
			server:     ServerConfig{ListenAddress: ""},
			wantError:  true,
			errorField: "server.listen_address",
		},
		{
			name:       "listen address without port",
			server:     ServerConfig{ListenAddress: "localhost"},
			wantError:  true,
			errorField: "server.listen_address",
		},
		{
			name: "negative read timeout",
			server: ServerConfig{
				ListenAddress: "127.0.0.1:8080",
				ReadTimeout:   -1,
			},
			wantError:  true,
			errorField: "server.read_timeout",
		},
		{
			name: "excessive max header bytes",
			server: ServerConfig{
				ListenAddress:  "127.0.0.1:8080",
				MaxHeaderBytes: 20 * 1024 * 1024, // 20MB
			},
			wantError:  true,
			errorField: "server.max_header_bytes",
		},
		{
			name: "negative max body bytes",
			server: ServerConfig{
				ListenAddress: "127.0.0.1:8080",
				MaxBodyBytes:  -1,
			},
			wantError:  true,
			errorField: "server.max_body_bytes",
		},
		{
			name: "tls without key pair",
			server: ServerConfig{
				ListenAddress: "127.0.0.1:8443",
				TLS:           tls.Config{Enabled: true, MinVersion: "1.3"},
			},
			wantError:  true,
			errorField: "server.tls",
		},
		{
			name: "tls with key pair",
			server: ServerConfig{
				ListenAddress: "127.0.0.1:8443",
				TLS:           tls.Config{Enabled: true, CertFile: "server.crt", KeyFile: "server.key"},
			},
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := validateServer(&tt.server)
			if tt.wantError && len(errs) == 0 {
				t.Error("expected validation error, got none")
			}
			if !tt.wantError && len(errs) > 0 {
				t.Errorf("expected no validation error, got: %v", errs)
			}
			if tt.wantError && len(errs) > 0 && !hasField(errs, tt.errorField) {
				t.Errorf("expected error for field %q, got errors: %v", tt.errorField, errs)
			}
		})
	}
}

func TestValidate_Pool(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*Config)
		wantError  bool
		errorField string
	}{
		{
			name:      "defaults",
			modify:    func(*Config) {},
			wantError: false,
		},
		{
			name: "min above max",
			modify: func(c *Config) {
				c.Pool = pool.Config{MinConnections: 10, MaxConnections: 2}
				c.Pool.ApplyDefaults()
			},
			wantError:  true,
			errorField: "pool",
		},
		{
			name:       "negative max waiters",
			modify:     func(c *Config) { c.Pool.MaxWaiters = -1 },
			wantError:  true,
			errorField: "pool.max_waiters",
		},
		{
			name:       "zero reservation attempts",
			modify:     func(c *Config) { c.Reservation = reservation.Config{MaxAttempts: 0} },
			wantError:  true,
			errorField: "reservation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := MinimalConfig()
			tt.modify(cfg)

			errs := validatePool(cfg)
			if tt.wantError && !hasField(errs, tt.errorField) {
				t.Errorf("expected error for field %q, got errors: %v", tt.errorField, errs)
			}
			if !tt.wantError && len(errs) > 0 {
				t.Errorf("expected no validation error, got: %v", errs)
			}
		})
	}
}

func TestValidate_RateLimits(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*RateLimitsConfig)
		wantError  bool
		errorField string
	}{
		{
			name:      "defaults",
			modify:    func(*RateLimitsConfig) {},
			wantError: false,
		},
		{
			name: "unknown preset",
			modify: func(c *RateLimitsConfig) {
				c.Endpoints["search"] = limits.EndpointConfig{Preset: "bogus"}
			},
			wantError:  true,
			errorField: "rate_limits.endpoints.search",
		},
		{
			name: "endpoint without window",
			modify: func(c *RateLimitsConfig) {
				c.Endpoints["search"] = limits.EndpointConfig{Config: ratelimit.Config{MaxRequests: 5}}
			},
			wantError:  true,
			errorField: "rate_limits.endpoints.search",
		},
		{
			name: "route to unknown endpoint",
			modify: func(c *RateLimitsConfig) {
				c.Routes["GET /v1/search"] = "search"
			},
			wantError:  true,
			errorField: "rate_limits.routes[GET /v1/search]",
		},
		{
			name:       "unknown default endpoint",
			modify:     func(c *RateLimitsConfig) { c.DefaultEndpoint = "missing" },
			wantError:  true,
			errorField: "rate_limits.default_endpoint",
		},
		{
			name:       "unknown auth endpoint",
			modify:     func(c *RateLimitsConfig) { c.AuthEndpoint = "missing" },
			wantError:  true,
			errorField: "rate_limits.auth_endpoint",
		},
		{
			name:       "unknown backend",
			modify:     func(c *RateLimitsConfig) { c.Store.Backend = "memcached" },
			wantError:  true,
			errorField: "rate_limits.store.backend",
		},
		{
			name: "redis without address",
			modify: func(c *RateLimitsConfig) {
				c.Store.Backend = "redis"
				c.Store.Redis.Address = ""
			},
			wantError:  true,
			errorField: "rate_limits.store.redis.address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := MinimalConfig()
			tt.modify(&cfg.RateLimits)

			errs := validateRateLimits(&cfg.RateLimits)
			if tt.wantError && !hasField(errs, tt.errorField) {
				t.Errorf("expected error for field %q, got errors: %v", tt.errorField, errs)
			}
			if !tt.wantError && len(errs) > 0 {
				t.Errorf("expected no validation error, got: %v", errs)
			}

			err := ValidateRateLimits(&cfg.RateLimits)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateRateLimits() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidate_Storage(t *testing.T) {
	tests := []struct {
		name       string
		storage    storage.Config
		retention  retention.Config
		wantError  bool
		errorField string
	}{
		{
			name:      "sqlite with path",
			storage:   storage.Config{Driver: "sqlite", Path: "berth.db"},
			wantError: false,
		},
		{
			name:       "sqlite without path",
			storage:    storage.Config{Driver: "sqlite"},
			wantError:  true,
			errorField: "storage.path",
		},
		{
			name:       "mongo without uri",
			storage:    storage.Config{Driver: "mongo"},
			wantError:  true,
			errorField: "storage.mongo_uri",
		},
		{
			name:      "memory",
			storage:   storage.Config{Driver: "memory"},
			wantError: false,
		},
		{
			name:       "unknown driver",
			storage:    storage.Config{Driver: "cassandra"},
			wantError:  true,
			errorField: "storage.driver",
		},
		{
			name:       "negative retention",
			storage:    storage.Config{Driver: "memory"},
			retention:  retention.Config{RetentionDays: -1},
			wantError:  true,
			errorField: "retention.days",
		},
		{
			name:       "bad cron schedule",
			storage:    storage.Config{Driver: "memory"},
			retention:  retention.Config{RetentionDays: 30, PruneSchedule: "every tuesday"},
			wantError:  true,
			errorField: "retention.schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := MinimalConfig()
			cfg.Storage = tt.storage
			cfg.Retention = tt.retention

			errs := validateStorage(cfg)
			if tt.wantError && !hasField(errs, tt.errorField) {
				t.Errorf("expected error for field %q, got errors: %v", tt.errorField, errs)
			}
			if !tt.wantError && len(errs) > 0 {
				t.Errorf("expected no validation error, got: %v", errs)
			}
		})
	}
}

func TestValidate_Telemetry(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*TelemetryConfig)
		wantError  bool
		errorField string
	}{
		{
			name:      "defaults",
			modify:    func(*TelemetryConfig) {},
			wantError: false,
		},
		{
			name:       "invalid logging level",
			modify:     func(c *TelemetryConfig) { c.Logging.Level = "trace" },
			wantError:  true,
			errorField: "telemetry.logging.level",
		},
		{
			name:       "invalid logging format",
			modify:     func(c *TelemetryConfig) { c.Logging.Format = "xml" },
			wantError:  true,
			errorField: "telemetry.logging.format",
		},
		{
			name:       "metrics path without slash",
			modify:     func(c *TelemetryConfig) { c.Metrics.Path = "metrics" },
			wantError:  true,
			errorField: "telemetry.metrics.path",
		},
		{
			name:       "tracing without endpoint",
			modify:     func(c *TelemetryConfig) { c.Tracing.Enabled = true },
			wantError:  true,
			errorField: "telemetry.tracing.endpoint",
		},
		{
			name: "unsupported exporter",
			modify: func(c *TelemetryConfig) {
				c.Tracing.Enabled = true
				c.Tracing.Endpoint = "localhost:4317"
				c.Tracing.Exporter = "jaeger"
			},
			wantError:  true,
			errorField: "telemetry.tracing.exporter",
		},
		{
			name:       "sample ratio above one",
			modify:     func(c *TelemetryConfig) { c.Tracing.SampleRatio = 1.5 },
			wantError:  true,
			errorField: "telemetry.tracing.sample_ratio",
		},
		{
			name:       "readiness path without slash",
			modify:     func(c *TelemetryConfig) { c.Health.ReadinessPath = "ready" },
			wantError:  true,
			errorField: "telemetry.health.readiness_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := MinimalConfig()
			tt.modify(&cfg.Telemetry)

			errs := validateTelemetry(&cfg.Telemetry)
			if tt.wantError && !hasField(errs, tt.errorField) {
				t.Errorf("expected error for field %q, got errors: %v", tt.errorField, errs)
			}
			if !tt.wantError && len(errs) > 0 {
				t.Errorf("expected no validation error, got: %v", errs)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      ValidationError
		contains string
	}{
		{
			name:     "empty errors",
			err:      ValidationError{Errors: []FieldError{}},
			contains: "configuration validation failed",
		},
		{
			name: "single error",
			err: ValidationError{
				Errors: []FieldError{
					{Field: "server.listen_address", Message: "required"},
				},
			},
			contains: "server.listen_address",
		},
		{
			name: "multiple errors",
			err: ValidationError{
				Errors: []FieldError{
					{Field: "server.listen_address", Message: "required"},
					{Field: "storage.driver", Message: "unknown"},
				},
			},
			contains: "2 errors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errMsg := tt.err.Error()
			if !strings.Contains(errMsg, tt.contains) {
				t.Errorf("expected error message to contain %q, got: %s", tt.contains, errMsg)
			}
		})
	}
}
