package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Defaults applied by Config.ApplyDefaults.
const (
	DefaultMinConnections    = 2
	DefaultMaxConnections    = 10
	DefaultConnectionTimeout = 30 * time.Second
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultReapInterval      = 60 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = time.Second
	DefaultMaxWaiters        = 100
)

// Error types returned by the pool.
var (
	// ErrPoolTimeout is returned when no handle became available within
	// ConnectionTimeout.
	ErrPoolTimeout = errors.New("connection pool timeout")

	// ErrPoolClosing is returned for Get calls made or pending when the pool
	// is closed.
	ErrPoolClosing = errors.New("connection pool is closing")

	// ErrBackendUnavailable is the sentinel wrapped by every BackendError.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Conn is a backend connection. The pool calls Close when it discards one.
type Conn interface {
	Close() error
}

// Factory opens a new backend connection.
type Factory[C Conn] func(ctx context.Context) (C, error)

// Config configures a Pool.
type Config struct {
	// MinConnections are created eagerly and never reaped.
	MinConnections int `yaml:"min_connections"`

	// MaxConnections bounds the number of live connections.
	MaxConnections int `yaml:"max_connections"`

	// ConnectionTimeout bounds how long Get waits for a handle.
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`

	// IdleTimeout is how long a free connection may sit unused before the
	// reaper closes it.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ReapInterval is how often the reaper runs. A negative value disables
	// reaping.
	ReapInterval time.Duration `yaml:"reap_interval"`

	// MaxRetries is the default attempt count for ExecuteWithRetry.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the linear backoff unit for ExecuteWithRetry.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MaxWaiters is the queue depth at which HealthCheck reports unhealthy.
	MaxWaiters int `yaml:"max_waiters"`

	// CreateRate throttles connection creation, in connections per second.
	// Zero means unlimited.
	CreateRate float64 `yaml:"create_rate"`

	// CreateBurst is the token bucket burst for CreateRate.
	CreateBurst int `yaml:"create_burst"`
}

// ApplyDefaults fills zero fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxConnections == 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ReapInterval == 0 {
		c.ReapInterval = DefaultReapInterval
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxWaiters == 0 {
		c.MaxWaiters = DefaultMaxWaiters
	}
	if c.CreateRate > 0 && c.CreateBurst == 0 {
		c.CreateBurst = 1
	}
}

// Validate reports whether the config can drive a pool.
func (c Config) Validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", c.MaxConnections)
	}
	if c.MinConnections < 0 || c.MinConnections > c.MaxConnections {
		return fmt.Errorf("min_connections must be between 0 and max_connections (%d), got %d",
			c.MaxConnections, c.MinConnections)
	}
	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection_timeout must be positive, got %s", c.ConnectionTimeout)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.CreateRate < 0 {
		return fmt.Errorf("create_rate cannot be negative, got %v", c.CreateRate)
	}
	return nil
}

func (c Config) createLimit() rate.Limit {
	if c.CreateRate <= 0 {
		return rate.Inf
	}
	return rate.Limit(c.CreateRate)
}

// BackendError wraps a failure to open or use a backend connection.
type BackendError struct {
	// Op is the pool operation that failed (create, execute).
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend unavailable during %s: %v", e.Op, e.Err)
}

// Unwrap returns both the sentinel and the underlying error.
func (e *BackendError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.Err}
}

// permanentError marks an error ExecuteWithRetry must not retry.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable for ExecuteWithRetry. The original
// error is still reachable through errors.Is and errors.As.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Total     int
	Idle      int
	InUse     int
	Waiting   int
	Pending   int
	PeakInUse int
	Created   uint64
	Reaped    uint64
	Timeouts  uint64
}

// Health is the result of HealthCheck.
type Health struct {
	Healthy bool
	Stats   Stats
	Reason  string
}
