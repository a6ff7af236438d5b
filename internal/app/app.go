// Package app wires configuration, stores and the allocator for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"docnum/internal/config"
	"docnum/internal/core/numerator"
	"docnum/internal/domain/numbering"
	"docnum/internal/domain/reservations"
	"docnum/internal/infrastructure/cache"
	"docnum/internal/infrastructure/http/v1/handlers"
	infranumerator "docnum/internal/infrastructure/numerator"
	"docnum/internal/infrastructure/redis"
	"docnum/internal/infrastructure/storage/postgres"
	"docnum/internal/infrastructure/storage/postgres/record_repo"
	"docnum/pkg/logger"
)

// App holds the wired components of one process.
type App struct {
	Config       *config.Config
	Log          *logger.Logger
	DB           *postgres.Pool
	TxManager    *postgres.TxManager
	Redis        *redis.Client
	Registry     *numerator.Registry
	Sequences    *infranumerator.SequenceStore
	Pool         *numerator.RecyclingPool
	Metrics      *numbering.Metrics
	Allocator    *numbering.Allocator
	Reservations *reservations.Service

	// Invalidations is set for the cached strategy; it drops reserved ranges
	// when another process reseeds a counter.
	Invalidations *cache.Listener
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.IsDevelopment(),
		Service:     "docnum",
	})
}

// BuildRegistry validates the configured patterns without touching any store.
func BuildRegistry(cfg config.NumberingConfig) (*numerator.Registry, error) {
	patterns, err := cfg.PatternMap()
	if err != nil {
		return nil, err
	}
	return numerator.NewRegistry(patterns, numerator.RegistryOptions{
		TemplateLength:     cfg.TemplateLength,
		StrictPrefixPolicy: cfg.StrictPrefixPolicy,
		ReservedPrefix:     cfg.ReservedPrefix,
	})
}

// New connects to the stores and wires the allocator. reg receives the
// allocator metrics; pass nil to skip them.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{Config: cfg, Log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	registry, err := BuildRegistry(cfg.Numbering)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	a.Registry = registry
	log.Infow("pattern registry loaded", "offices", len(registry.Offices()))

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime
	poolCfg.StatementTimeout = cfg.Database.StatementTimeout

	a.DB, err = postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.TxManager = postgres.NewTxManager(a.DB)
	if reg != nil {
		if err := reg.Register(postgres.NewPoolCollector(a.DB.Pool)); err != nil {
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
	}
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, a.DB); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	strategy, err := infranumerator.ParseStrategy(cfg.Numbering.SequenceStrategy)
	if err != nil {
		return nil, err
	}
	a.Sequences = infranumerator.NewSequenceStore(a.TxManager, infranumerator.SequenceOptions{
		Strategy:  strategy,
		RangeSize: cfg.Numbering.RangeSize,
	})
	if strategy == infranumerator.StrategyCached {
		a.Invalidations = cache.NewListener(a.DB.Pool, infranumerator.SequenceResetChannel)
		a.Invalidations.OnInvalidation(a.Sequences.Invalidate)
		a.Invalidations.Start(ctx)
	}

	oracle, err := infranumerator.NewRecordOracle(a.TxManager, cfg.Numbering.RecordTable, cfg.Numbering.RecordColumn)
	if err != nil {
		return nil, err
	}

	var store numerator.RecycleStore
	switch cfg.Numbering.RecycleBackend {
	case config.RecycleBackendRedis:
		a.Redis, err = redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store = infranumerator.NewRedisRecycleStore(a.Redis.Client, cfg.Redis.KeyPrefix, nil)
		log.Info("redis recycle pool enabled")
	default:
		store = infranumerator.NewRecycleStore(a.TxManager, nil)
	}
	a.Pool = numerator.NewRecyclingPool(store, registry)

	opts := []numbering.Option{numbering.WithRetryBudget(cfg.Numbering.RetryBudget)}
	if reg != nil {
		a.Metrics = numbering.NewMetrics(reg)
		opts = append(opts, numbering.WithMetrics(a.Metrics))
	}
	a.Allocator = numbering.NewAllocator(registry, a.Sequences, oracle, a.Pool, opts...)

	// Reservations write to the built-in record table only.
	if cfg.Numbering.RecordTable == infranumerator.DefaultRecordTable {
		a.Reservations = reservations.NewService(a.Allocator, record_repo.NewReservationRepo(a.TxManager), a.TxManager)
	}

	log.Infow("allocator ready",
		"sequence_strategy", strategy,
		"recycle_backend", cfg.Numbering.RecycleBackend,
		"retry_budget", cfg.Numbering.RetryBudget,
	)
	ok = true
	return a, nil
}

// HealthChecks returns the readiness probes for the connected stores.
func (a *App) HealthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error { return a.DB.Ping(ctx) },
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Health
	}
	return checks
}

// RefreshPoolGauges publishes the recycling pool depth of every office.
func (a *App) RefreshPoolGauges(ctx context.Context) error {
	for _, office := range a.Registry.Offices() {
		size, err := a.Pool.Size(ctx, office)
		if err != nil {
			return fmt.Errorf("pool size for %s: %w", office, err)
		}
		a.Metrics.SetPoolSize(office, size)
	}
	return nil
}

// Close releases connections.
func (a *App) Close() {
	if a.Invalidations != nil {
		a.Invalidations.Stop()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warnw("closing redis", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
