// Package engine assembles the planning engine: the sheet layout optimizer,
// the stock ledger and the production scheduler over the configured
// storage, lock and calendar backends.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/marimovDEV/tipografiya/internal/calendar"
	"github.com/marimovDEV/tipografiya/internal/config"
	"github.com/marimovDEV/tipografiya/internal/layout"
	schedapp "github.com/marimovDEV/tipografiya/internal/scheduling/application"
	schedmemory "github.com/marimovDEV/tipografiya/internal/scheduling/infrastructure/memory"
	schedmongo "github.com/marimovDEV/tipografiya/internal/scheduling/infrastructure/mongodb"
	stockapp "github.com/marimovDEV/tipografiya/internal/stock/application"
	stockmemory "github.com/marimovDEV/tipografiya/internal/stock/infrastructure/memory"
	stockmongo "github.com/marimovDEV/tipografiya/internal/stock/infrastructure/mongodb"
	"github.com/marimovDEV/tipografiya/pkg/cloudevents"
	"github.com/marimovDEV/tipografiya/pkg/kafka"
	"github.com/marimovDEV/tipografiya/pkg/lock"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/metrics"
	"github.com/marimovDEV/tipografiya/pkg/mongodb"
	"github.com/marimovDEV/tipografiya/pkg/outbox"
	outboxmongo "github.com/marimovDEV/tipografiya/pkg/outbox/mongodb"
	"github.com/marimovDEV/tipografiya/pkg/resilience"
)

// Kafka topics the outbox relays to
var (
	StockTopic      = kafka.Topics.StockEvents
	ProductionTopic = kafka.Topics.ProductionEvents
)

// Engine is the in-process entry point to every planning operation
type Engine struct {
	Layout    *layout.Optimizer
	Stock     *stockapp.LedgerService
	Scheduler *schedapp.SchedulerService
	Locker    lock.Locker
	Hours     *calendar.BusinessHours
	Outbox    outbox.Repository

	cfg     *config.Config
	metrics *metrics.Metrics
	logger  *logging.Logger

	checks  []func(ctx context.Context) error
	closers []func(ctx context.Context) error
}

// New builds the engine for cfg. m may be nil.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Engine{
		Layout:  layout.NewOptimizer(layout.ConfigFrom(cfg.Layout)),
		cfg:     cfg,
		metrics: m,
		logger:  logger.WithComponent("engine"),
	}

	var (
		stockRepos stockapp.Repositories
		schedRepos schedapp.Repositories
		mongoDB    *mongodb.Client
	)

	switch cfg.Storage.Backend {
	case config.BackendMongoDB:
		client, err := mongodb.NewClient(ctx, &cfg.MongoDB, m)
		if err != nil {
			return nil, err
		}
		mongoDB = client
		e.closers = append(e.closers, client.Close)
		e.checks = append(e.checks, client.HealthCheck)

		db := client.Database()
		if err := stockmongo.EnsureIndexes(ctx, db); err != nil {
			e.Close(ctx)
			return nil, fmt.Errorf("stock indexes: %w", err)
		}
		if err := schedmongo.EnsureIndexes(ctx, db); err != nil {
			e.Close(ctx)
			return nil, fmt.Errorf("scheduling indexes: %w", err)
		}

		outboxRepo := outboxmongo.NewOutboxRepository(db)
		if err := outboxRepo.EnsureIndexes(ctx); err != nil {
			e.Close(ctx)
			return nil, fmt.Errorf("outbox indexes: %w", err)
		}
		e.Outbox = outboxRepo

		stockRepos = stockapp.Repositories{
			Materials:    stockmongo.NewMaterialRepository(db),
			Batches:      stockmongo.NewBatchRepository(db),
			Reservations: stockmongo.NewReservationRepository(db),
			Movements:    stockmongo.NewMovementRepository(db),
			Tx:           client,
		}
		schedRepos = schedapp.Repositories{
			Steps:     schedmongo.NewStepRepository(db),
			Machines:  schedmongo.NewMachineRepository(db),
			Downtimes: schedmongo.NewDowntimeRepository(db),
			Orders:    schedmongo.NewOrderRepository(db),
			Templates: schedmongo.NewTemplateRepository(db),
			Tx:        client,
		}
	default:
		stock := stockmemory.NewStore()
		sched := schedmemory.NewStore()
		e.Outbox = outbox.NewMemoryRepository()
		stockRepos = stockapp.Repositories{
			Materials:    stock.Materials(),
			Batches:      stock.Batches(),
			Reservations: stock.Reservations(),
			Movements:    stock.Movements(),
			Tx:           stock,
		}
		schedRepos = schedapp.Repositories{
			Steps:     sched.Steps(),
			Machines:  sched.Machines(),
			Downtimes: sched.Downtimes(),
			Orders:    sched.Orders(),
			Templates: sched.Templates(),
			Tx:        sched,
		}
	}

	locker, err := e.buildLocker(ctx, mongoDB)
	if err != nil {
		e.Close(ctx)
		return nil, err
	}
	e.Locker = locker

	cal, err := buildCalendar(cfg, m, logger)
	if err != nil {
		e.Close(ctx)
		return nil, err
	}
	e.Hours = calendar.NewBusinessHoursFromConfig(cfg, cal, logger)

	var stockEvents, productionEvents *outbox.Recorder
	if cfg.Outbox.Enabled {
		stockEvents = outbox.NewRecorder(e.Outbox, cloudevents.NewEventFactory(cloudevents.SourceStockLedger), "MaterialBatch", StockTopic)
		productionEvents = outbox.NewRecorder(e.Outbox, cloudevents.NewEventFactory(cloudevents.SourceScheduler), "ProductionStep", ProductionTopic)
	}

	e.Stock = stockapp.NewLedgerService(stockRepos, locker, cfg, stockEvents, m, logger)
	e.Scheduler = schedapp.NewSchedulerService(schedRepos, locker, e.Hours, cfg, productionEvents, m, logger)

	e.logger.Info("Planning engine ready",
		"storage", cfg.Storage.Backend,
		"lock", cfg.Lock.Backend,
		"calendar", cfg.Calendar.Mode,
		"outbox", cfg.Outbox.Enabled,
	)
	return e, nil
}

func (e *Engine) buildLocker(ctx context.Context, client *mongodb.Client) (lock.Locker, error) {
	switch e.cfg.Lock.Backend {
	case config.BackendMongoDB:
		if client == nil {
			return nil, errors.New("mongodb lock backend requires mongodb storage")
		}
		locker := lock.NewMongoLocker(client.Database())
		if err := locker.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("lock indexes: %w", err)
		}
		return locker, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     e.cfg.Redis.Addr,
			Password: e.cfg.Redis.Password,
			DB:       e.cfg.Redis.DB,
			PoolSize: e.cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		e.closers = append(e.closers, func(context.Context) error { return rdb.Close() })
		e.checks = append(e.checks, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		return lock.NewRedisLocker(rdb), nil
	default:
		return lock.NewMemoryLocker(), nil
	}
}

// buildCalendar returns the working-day collaborator for the configured
// mode. The remote calendar is guarded by a circuit breaker that falls back
// to weekdays.
func buildCalendar(cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) (calendar.WorkingCalendar, error) {
	switch cfg.Calendar.Mode {
	case config.CalendarWeekdays, config.CalendarHTTP:
		weekdays, err := calendar.NewWeekdays(cfg.Location(), cfg.Calendar.Holidays)
		if err != nil {
			return nil, err
		}
		if cfg.Calendar.Mode == config.CalendarWeekdays {
			return weekdays, nil
		}
		breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("working-calendar"), logger, m)
		remote := calendar.NewHTTPCalendar(cfg.Calendar.BaseURL, cfg.Calendar.Timeout)
		return calendar.NewBreakerCalendar(remote, weekdays, breaker, logger), nil
	default:
		return calendar.EveryDay{}, nil
	}
}

// Config returns the configuration the engine was built with
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// HealthCheck pings every external backend
func (e *Engine) HealthCheck(ctx context.Context) error {
	for _, check := range e.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases backend connections in reverse order of creation
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
