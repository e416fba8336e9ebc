package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/redis/go-redis/v9"

	"charterhub/berth/pkg/config"
	"charterhub/berth/pkg/limits"
	"charterhub/berth/pkg/limits/ratelimit"
	"charterhub/berth/pkg/pool"
	"charterhub/berth/pkg/reservation"
	"charterhub/berth/pkg/storage"
	"charterhub/berth/pkg/storage/retention"
	"charterhub/berth/pkg/telemetry/health"
	"charterhub/berth/pkg/telemetry/metrics"
	"charterhub/berth/pkg/telemetry/tracing"
)

// StoragePoolName labels the session pool in metrics and logs.
const StoragePoolName = "storage"

// App owns every long-lived component of a berth process: the storage
// backend and its session pool, the rate limit stores, telemetry, the
// retention scheduler and the HTTP server.
type App struct {
	config     *config.Config
	configPath string
	logger     *slog.Logger

	store     storage.Store
	sessions  *pool.Pool[storage.Session]
	redis     redis.UniversalClient
	collector *metrics.Collector
	tracer    *tracing.Tracer
	scheduler *retention.Scheduler
	server    *Server

	// background is cancelled by Close and bounds limiter janitors.
	background context.Context
	cancel     context.CancelFunc

	closeOnce sync.Once
}

// NewApp builds the component graph described by cfg. configPath is the
// file watched for rate limit changes when rate_limits.watch is set; it may
// be empty. On error every component opened so far is closed.
func NewApp(ctx context.Context, cfg *config.Config, configPath string, info BuildInfo, logger *slog.Logger) (app *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	background, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &App{
		config:     cfg,
		configPath: configPath,
		logger:     logger,
		background: background,
		cancel:     cancel,
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.collector = metrics.NewCollector(cfg.Telemetry.Metrics, nil)
	reg := a.collector.Registerer()

	a.tracer, err = tracing.New(ctx, &cfg.Telemetry.Tracing, info.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Driver, err)
	}
	a.store = store

	a.sessions, err = pool.New[storage.Session](ctx, cfg.Pool, a.store.Open,
		pool.WithName(StoragePoolName),
		pool.WithLogger(logger),
		pool.WithMetrics(pool.NewMetrics(reg)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session pool: %w", err)
	}

	newStore, err := a.rateLimitStores(ctx)
	if err != nil {
		return nil, err
	}
	manager := limits.NewManager(
		limits.WithStoreFactory(newStore),
		limits.WithLogger(logger),
		limits.WithMetrics(limits.NewMetrics(reg)),
	)

	coordinator, err := reservation.New(a.sessions, cfg.Reservation,
		reservation.WithLogger(logger),
		reservation.WithMetrics(reservation.NewMetrics(reg)),
		reservation.WithTracer(a.tracer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reservation coordinator: %w", err)
	}

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCheck("storage", health.StorageCheck(a.sessions))
	checker.RegisterCheck("pool", a.sessions.Check)
	if a.redis != nil {
		checker.RegisterCheck("ratelimit_store", health.RedisCheck(a.redis))
	}

	a.scheduler = retention.NewScheduler(retention.NewPruner(a.sessions, &cfg.Retention))

	tlsConfig, err := cfg.Server.TLS.Build(a.background, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}

	a.server, err = New(cfg, Deps{
		Coordinator: coordinator,
		Sessions:    a.sessions,
		Limits:      manager,
		Checker:     checker,
		Collector:   a.collector,
		Tracer:      a.tracer,
		TLS:         tlsConfig,
		Logger:      logger,
	}, info)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// rateLimitStores returns the per-endpoint store factory for the
// configured backend.
func (a *App) rateLimitStores(ctx context.Context) (func(endpoint string) ratelimit.Store, error) {
	storeCfg := a.config.RateLimits.Store

	if storeCfg.Backend == "redis" {
		a.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:       []string{storeCfg.Redis.Address},
			Password:    storeCfg.Redis.Password,
			DB:          storeCfg.Redis.DB,
			DialTimeout: storeCfg.Redis.DialTimeout,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.logger.Warn("rate limit store unreachable, limiters fail open until it recovers",
				"address", storeCfg.Redis.Address,
				"error", err,
			)
		}
		return func(endpoint string) ratelimit.Store {
			return ratelimit.NewRedisStore(a.redis, storeCfg.Redis.KeyPrefix+endpoint+":")
		}, nil
	}

	return func(string) ratelimit.Store {
		s := ratelimit.NewMemoryStore(storeCfg.MaxKeys)
		s.StartJanitor(a.background, storeCfg.SweepInterval)
		return s
	}, nil
}

// Server returns the HTTP server.
func (a *App) Server() *Server {
	return a.server
}

// Sessions returns the storage session pool.
func (a *App) Sessions() *pool.Pool[storage.Session] {
	return a.sessions
}

// Run starts the retention scheduler and, when enabled, the configuration
// watcher, then serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.config.Server.ListenAddress, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.scheduler.Start(ctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to start retention scheduler: %w", err)
	}
	defer a.scheduler.Stop()

	if a.config.RateLimits.Watch && a.configPath != "" {
		watcher, err := config.NewWatcher(a.configPath, 0, a.logger)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("failed to watch configuration: %w", err)
		}
		go func() {
			err := watcher.Watch(ctx, func(cfg *config.Config) error {
				return a.server.ApplyRateLimits(cfg.RateLimits)
			})
			if err != nil {
				a.logger.Error("config watcher stopped", "error", err)
			}
		}()
		defer func() { _ = watcher.Stop() }()
	}

	return a.server.Serve(ctx, ln)
}

// Close releases every component. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error

	a.closeOnce.Do(func() {
		a.cancel()

		if a.sessions != nil {
			if err := a.sessions.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close session pool: %w", err))
			}
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s storage: %w", a.store.Name(), err))
			}
		}
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close redis client: %w", err))
			}
		}
		if a.tracer != nil {
			if err := a.tracer.Shutdown(context.Background()); err != nil {
				errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
			}
		}
	})

	return errors.Join(errs...)
}
