// Package config provides configuration management for berth.
//
// This package handles loading, validating, and reloading configuration from
// YAML files with environment variable overrides. There is no package-level
// configuration instance; the loaded *Config is passed to the components
// that need it.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("berth.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("berth.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention BERTH_SECTION_FIELD.
// For example:
//
//   - BERTH_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - BERTH_POOL_MAX_CONNECTIONS overrides pool.max_connections
//   - BERTH_STORAGE_MONGO_URI overrides storage.mongo_uri
//   - BERTH_SERVER_AUTH_JWT_SECRET overrides server.auth.jwt_secret
//
// Environment variables always take precedence over file-based configuration.
//
// # Secret References
//
// The credential fields server.auth.jwt_secret, rate_limits.store.redis.password
// and storage.mongo_uri may contain ${secret:name} references. They are
// resolved after environment overrides from BERTH_SECRET_<NAME> variables,
// then from files in secrets.dir:
//
//	server:
//	  auth:
//	    jwt_secret: ${secret:jwt-signing-key}
//	secrets:
//	  dir: /run/secrets
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Secret reference resolution
//  5. Validation (fails fast if invalid)
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//	pool:
//	  min_connections: 5
//	  max_connections: 50
//	  connection_timeout: 30s
//	reservation:
//	  max_attempts: 5
//	  backoff_base: 10ms
//	rate_limits:
//	  watch: true
//	  default_endpoint: global
//	  endpoints:
//	    global:  {preset: standard}
//	    booking: {preset: booking, max_requests: 30}
//	    auth:    {preset: auth}
//	  routes:
//	    "POST /v1/reservations": booking
//	storage:
//	  driver: sqlite
//	  path: data/berth.db
//	retention:
//	  days: 90
//	  schedule: "0 3 * * *"
//
// # Hot Reload
//
// Watcher observes the configuration file with fsnotify. When
// rate_limits.watch is set, the server applies the reloaded endpoint table
// to its rate limit manager; limiters whose configuration did not change
// keep their counters. Other sections require a restart.
package config
