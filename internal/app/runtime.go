package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/k9quest/progression-hub/config"
	"github.com/k9quest/progression-hub/internal/application/query"
	"github.com/k9quest/progression-hub/internal/infrastructure/messaging"
	"github.com/k9quest/progression-hub/internal/infrastructure/persistence/memory"
	"github.com/k9quest/progression-hub/internal/infrastructure/persistence/postgres"
	"github.com/k9quest/progression-hub/internal/infrastructure/persistence/redis"
	"github.com/k9quest/progression-hub/internal/interface/http/handlers"
	"github.com/k9quest/progression-hub/pkg/circuitbreaker"
	"github.com/k9quest/progression-hub/pkg/logger"
	"github.com/k9quest/progression-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUNTIME
// ══════════════════════════════════════════════════════════════════════════════

// Runtime is a fully wired process: storage, optional Redis, the event bus and
// the engines. Both binaries start from Open.
type Runtime struct {
	Config  *config.Config
	Logger  *logger.Logger
	Bus     *messaging.InMemoryEventBus
	Repos   Repositories
	Engines *Engines
	Health  *handlers.CompositeHealthChecker

	// Memory is set for STORAGE_DRIVER=memory.
	Memory *memory.DB

	// Leaderboard is the Redis mirror, nil when Redis is disabled.
	Leaderboard *redis.CoinLeaderboard

	closers []func()
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Output = os.Stdout
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Development = strings.EqualFold(cfg.Observability.LogFormat, "console")
	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// Open connects storage and Redis according to cfg and builds the engines.
// On error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Runtime, err error) {
	rt := &Runtime{
		Config: cfg,
		Logger: log,
		Health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.AsyncMode = cfg.EventBus.Async
	busCfg.WorkerPoolSize = cfg.EventBus.Workers
	busCfg.HandlerTimeout = cfg.EventBus.HandlerTimeout
	busCfg.Logger = log
	rt.Bus = messaging.NewInMemoryEventBus(busCfg)
	rt.closers = append(rt.closers, func() { _ = rt.Bus.Close() })

	// ─────────────────────────────────────────────────────────────────────────
	// Storage
	// ─────────────────────────────────────────────────────────────────────────
	var board query.CoinBoard
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		conn, err := openPostgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, conn.Close)
		rt.Health.AddCheck("postgres", handlers.PingCheck(conn))
		rt.Repos = PostgresRepositories(conn)
		board = postgres.NewCoinBoard(conn)

	default:
		rt.Memory = memory.NewDB()
		if cfg.Storage.SeedDemo {
			SeedDemo(rt.Memory, time.Now().In(cfg.App.Location))
			log.Info("seeded demo data", logger.Int("students", len(DemoStudents)))
		}
		rt.Repos = MemoryRepositories(rt.Memory)
		board = memory.NewCoinBoard(rt.Memory)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis: level cache, leaderboard mirror, event relay
	// ─────────────────────────────────────────────────────────────────────────
	opts := Options{
		Logger:         log,
		Clock:          timeutil.SystemClock,
		Location:       cfg.App.Location,
		LevelCacheTTL:  cfg.Engine.LevelCacheTTL,
		DisableScoring: !cfg.Features.IsEnabled(config.FeatureEngineScoring, nil),
		DisableDaily:   !cfg.Features.IsEnabled(config.FeatureEngineDaily, nil),
	}
	for _, f := range cfg.Features.All() {
		log.Debug("feature flag", logger.String("feature", f.Name), logger.Int("rollout", f.Rollout))
	}
	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = cache.Close() })
		rt.Health.AddCheck("redis", handlers.PingCheck(cache))

		rt.Leaderboard = redis.NewCoinLeaderboard(cache, "")
		breaker := circuitbreaker.New("redis-mirror",
			circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			}),
		)
		rt.Repos.Ledger = redis.NewMirroredLedger(rt.Repos.Ledger, rt.Leaderboard, cache, rt.Bus, log).WithBreaker(breaker)
		opts.LevelCache = cache
		board = rt.Leaderboard

		if cfg.Redis.EventChannel != "" {
			if err := messaging.NewRedisRelay(cache.Client(), cfg.Redis.EventChannel, log).Attach(rt.Bus); err != nil {
				return nil, fmt.Errorf("redis relay: %w", err)
			}
		}
		log.Info("redis enabled", logger.String("addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)))
	}
	opts.Board = board

	rt.Engines, err = Build(rt.Repos, rt.Bus, opts)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	log.Info("connecting to database...")
	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}
	return conn, nil
}

// Close releases resources in reverse order of acquisition.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}
