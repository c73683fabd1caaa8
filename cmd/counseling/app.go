package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alem-hub/counseling-hub/config"
	"github.com/alem-hub/counseling-hub/internal/application/command"
	"github.com/alem-hub/counseling-hub/internal/application/eventhandler"
	"github.com/alem-hub/counseling-hub/internal/application/query"
	"github.com/alem-hub/counseling-hub/internal/domain/allocation"
	"github.com/alem-hub/counseling-hub/internal/domain/ranking"
	"github.com/alem-hub/counseling-hub/internal/domain/status"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
	"github.com/alem-hub/counseling-hub/internal/infrastructure/messaging"
	"github.com/alem-hub/counseling-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/counseling-hub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/counseling-hub/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/counseling-hub/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/counseling-hub/pkg/circuitbreaker"
	"github.com/alem-hub/counseling-hub/pkg/logger"
	"github.com/alem-hub/counseling-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION STATE
// ══════════════════════════════════════════════════════════════════════════════

// recordStore - хранилище записей, которое умеет ping и журнал циклов.
type recordStore interface {
	student.Repository
	Ping(ctx context.Context) error
	RecordCycle(ctx context.Context, res *allocation.Result) error
}

// app - общее состояние команд: конфигурация, логгер и открытые ресурсы.
type app struct {
	cfg *config.Config
	log *logger.Logger

	store       recordStore
	pgConn      *postgres.Connection
	cache       *redis.Cache
	statusCache *redis.StatusCache
	bus         *messaging.InMemoryEventBus

	closers []func()
}

// init загружает конфигурацию и создаёт логгер.
func (a *app) init(opts rootOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.backend != "" {
		cfg.Store.Backend = config.Backend(opts.backend)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}
	}
	if opts.logLevel != "" {
		cfg.Observability.LogLevel = opts.logLevel
	}
	a.cfg = cfg

	a.log = logger.New(logger.Options{
		Output:    os.Stderr,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    logger.Format(cfg.Observability.LogFormat),
		AddCaller: cfg.App.Debug,
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
	a.closers = append(a.closers, func() { _ = a.log.Sync() })
	return nil
}

// close освобождает ресурсы в обратном порядке.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE WIRING
// ══════════════════════════════════════════════════════════════════════════════

// openStore открывает хранилище выбранного бэкенда. Для postgres схема
// мигрируется при открытии.
func (a *app) openStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	consistency := a.cfg.Store.Consistency

	switch a.cfg.Store.Backend {
	case config.BackendMemory:
		s := memory.NewStore(consistency, a.log)
		a.closers = append(a.closers, func() { _ = s.Close() })
		a.store = s

	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, sqlite.Config{
			Path:        a.cfg.SQLite.Path,
			BusyTimeout: a.cfg.SQLite.BusyTimeout,
		}, consistency, a.log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		a.store = s

	case config.BackendPostgres:
		conn, err := a.openPostgres(ctx)
		if err != nil {
			return err
		}
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		if applied > 0 {
			a.log.Info("migrations applied", logger.Int("count", applied))
		}
		a.store = postgres.NewRecordStore(conn, consistency, a.log)

	case config.BackendRedis:
		cache, err := a.openRedis(ctx)
		if err != nil {
			return err
		}
		a.store = redis.NewRecordStore(cache, consistency, a.log)

	default:
		return fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}

	a.log.Info("record store ready",
		logger.String("backend", string(a.cfg.Store.Backend)),
		logger.String("consistency", string(consistency)),
	)
	return nil
}

// openPostgres подключается к PostgreSQL с повторами.
func (a *app) openPostgres(ctx context.Context) (*postgres.Connection, error) {
	if a.pgConn != nil {
		return a.pgConn, nil
	}

	pg := postgres.DefaultConfig()
	pg.URL = a.cfg.Database.URL
	pg.MaxConns = int32(a.cfg.Database.MaxOpenConns)
	pg.MinConns = int32(a.cfg.Database.MaxIdleConns)
	pg.MaxConnLifetime = a.cfg.Database.ConnMaxLifetime
	pg.MaxConnIdleTime = a.cfg.Database.ConnMaxIdleTime

	var conn *postgres.Connection
	err := a.connectRetrier("postgres").Do(ctx, func(ctx context.Context) error {
		var err error
		conn, err = postgres.NewConnection(ctx, pg)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, conn.Close)
	a.pgConn = conn
	return conn, nil
}

// openRedis подключается к Redis с повторами.
func (a *app) openRedis(ctx context.Context) (*redis.Cache, error) {
	if a.cache != nil {
		return a.cache, nil
	}

	rc := redis.DefaultConfig()
	rc.Host = a.cfg.Redis.Host
	rc.Port = a.cfg.Redis.Port
	rc.Password = a.cfg.Redis.Password
	rc.DB = a.cfg.Redis.DB
	rc.KeyPrefix = a.cfg.Redis.KeyPrefix
	rc.PoolSize = a.cfg.Redis.PoolSize
	rc.MinIdleConns = a.cfg.Redis.MinIdleConns
	rc.DialTimeout = a.cfg.Redis.DialTimeout
	rc.ReadTimeout = a.cfg.Redis.ReadTimeout
	rc.WriteTimeout = a.cfg.Redis.WriteTimeout

	var cache *redis.Cache
	err := a.connectRetrier("redis").Do(ctx, func(ctx context.Context) error {
		var err error
		cache, err = redis.NewCache(ctx, rc)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = cache.Close() })
	a.cache = cache
	return cache, nil
}

func (a *app) connectRetrier(target string) *retry.Retrier {
	return retry.ConnectRetrier(
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			a.log.Warn("connect failed, retrying",
				logger.String("target", target),
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	)
}

// openStatusCache подключает кеш карточек, если задан REDIS_STATUS_CACHE_TTL.
func (a *app) openStatusCache(ctx context.Context) error {
	if a.cfg.Redis.StatusCacheTTL <= 0 || a.statusCache != nil {
		return nil
	}
	cache, err := a.openRedis(ctx)
	if err != nil {
		return err
	}
	breaker := circuitbreaker.StatusCacheBreaker(func(name string, from, to circuitbreaker.State) {
		a.log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	a.statusCache = redis.NewStatusCache(cache, a.cfg.Redis.StatusCacheTTL, redis.WithBreaker(breaker))
	return nil
}

// openEventBus создаёт шину событий и подписывает аудит и контроль
// распределения. Close шины дожидается асинхронных обработчиков.
func (a *app) openEventBus() (*messaging.InMemoryEventBus, error) {
	if a.bus != nil {
		return a.bus, nil
	}
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      a.cfg.Events.Async,
		WorkerPoolSize: a.cfg.Events.Workers,
		Logger:         a.log,
		EnableMetrics:  true,
	})
	if err := eventhandler.NewAuditHandler(a.log).Register(bus); err != nil {
		return nil, err
	}
	if err := eventhandler.NewOnSeatsAllocatedHandler(a.log, a.cfg.Events.UnplacedWarnShare).Register(bus); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		_ = bus.Close()
		m := bus.Metrics().Snapshot()
		a.log.Debug("event bus stopped",
			logger.Int64("published", m.TotalPublished),
			logger.Int64("handler_failures", m.HandlerFailures),
		)
	})
	a.bus = bus
	return bus, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICES
// ══════════════════════════════════════════════════════════════════════════════

// services - обработчики команд и запросов над открытым хранилищем.
type services struct {
	submitProfile   *command.SubmitProfileHandler
	submitAcademics *command.SubmitAcademicsHandler
	submitPayment   *command.SubmitPaymentHandler

	generateRankings   *command.GenerateRankingsHandler
	allocateSeats      *command.AllocateSeatsHandler
	overrideAllocation *command.OverrideAllocationHandler
	reviewPayment      *command.ReviewPaymentHandler
	verifyAllPayments  *command.VerifyAllPaymentsHandler

	studentStatus  *query.GetStudentStatusHandler
	listStudents   *query.ListStudentsHandler
	rankings       *query.GetRankingsHandler
	seatSummary    *query.GetSeatSummaryHandler
	dashboardStats *query.GetDashboardStatsHandler
}

// services открывает хранилище и собирает обработчики.
func (a *app) services(ctx context.Context) (*services, error) {
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openStatusCache(ctx); err != nil {
		return nil, err
	}

	bus, err := a.openEventBus()
	if err != nil {
		return nil, err
	}

	store := command.NewStore(a.store, a.log, command.WithPublisher(bus))
	capacity := a.cfg.Counseling.Capacity
	allocator := allocation.NewEngine(capacity,
		allocation.WithPreserveOverrides(a.cfg.Features.PreserveOverrides()))
	projector := status.NewProjector(a.cfg.Features.LiveRank())

	var cache query.StatusCache
	if a.statusCache != nil {
		cache = a.statusCache
	}

	return &services{
		submitProfile:   command.NewSubmitProfileHandler(store, a.log),
		submitAcademics: command.NewSubmitAcademicsHandler(store, a.log),
		submitPayment:   command.NewSubmitPaymentHandler(store, a.log),

		generateRankings:   command.NewGenerateRankingsHandler(store, ranking.NewEngine(), a.log),
		allocateSeats:      command.NewAllocateSeatsHandler(store, allocator, a.store, a.log),
		overrideAllocation: command.NewOverrideAllocationHandler(store, a.log),
		reviewPayment:      command.NewReviewPaymentHandler(store, a.log),
		verifyAllPayments:  command.NewVerifyAllPaymentsHandler(store, a.log),

		studentStatus:  query.NewGetStudentStatusHandler(a.store, projector, cache, a.log),
		listStudents:   query.NewListStudentsHandler(a.store),
		rankings:       query.NewGetRankingsHandler(a.store),
		seatSummary:    query.NewGetSeatSummaryHandler(a.store, capacity),
		dashboardStats: query.NewGetDashboardStatsHandler(a.store),
	}, nil
}
