// Package bootstrap assembles the engine from configuration. Both the HTTP server
// and the operator CLI start from here so they share one notifier chain.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"inventory-engine/internal/app"
	"inventory-engine/internal/cache"
	"inventory-engine/internal/config"
	"inventory-engine/internal/core"
	"inventory-engine/internal/db"
	"inventory-engine/internal/events"
	"inventory-engine/internal/metrics"
	"inventory-engine/internal/scheduler"
)

// Stack is a fully wired engine. Close releases everything Build opened.
type Stack struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Publisher *events.Publisher
	Metrics   *metrics.Metrics
	Sweep     *scheduler.SweepJob
	Service   app.ApplicationService
}

func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Stack, error) {
	st := &Stack{Metrics: metrics.New()}

	// 1. Postgres
	pool, err := db.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	st.Pool = pool
	log.Info("connected to PostgreSQL", zap.Int("max_conns", cfg.Postgres.MaxConns))

	// 2. Notifier chain: metrics always, then optional cache invalidation and events.
	notifiers := core.MultiNotifier{st.Metrics}

	reporting := core.NewReportingService(pool)
	var invalidator app.SummaryInvalidator
	var locker scheduler.Locker
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		st.Redis = rdb
		cached := cache.NewReporting(reporting, rdb, cfg.Redis.SummaryTTL, log)
		reporting = cached
		invalidator = cached
		notifiers = append(notifiers, cached)
		locker = cache.NewLocker(rdb)
		log.Info("redis enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.Kafka.Enabled {
		st.Publisher = events.NewPublisher(cfg.Kafka, log)
		notifiers = append(notifiers, st.Publisher)
		log.Info("kafka publishing enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	// 3. Core services
	runner := core.NewTxRunner(pool, cfg.Engine.LockTimeout)
	ledger := core.NewStockLedger(runner, notifiers)
	reservations := core.NewReservationLedger(runner, notifiers, log)
	orders := core.NewOrderService(runner, reservations, notifiers, log, core.OrderConfig{
		ReservationTTL:          cfg.Engine.ReservationTTL,
		ConfirmedReservationTTL: cfg.Engine.ConfirmedReservationTTL,
	})
	catalog := core.NewCatalogService(runner, notifiers)

	// 4. Sweep job (scheduled only by the server)
	st.Sweep = scheduler.NewSweepJob(reservations, locker, st.Metrics, log, scheduler.Config{
		Interval: cfg.Engine.SweepInterval,
		LockTTL:  cfg.Engine.SweepLockTTL,
	})

	// 5. Application service
	st.Service = app.NewAppService(app.Deps{
		Ledger:      ledger,
		Orders:      orders,
		Reporting:   reporting,
		Catalog:     catalog,
		Sweeper:     st.Sweep,
		Invalidator: invalidator,
		Log:         log,
		MaxRetries:  cfg.Engine.TxMaxRetries,
	})
	return st, nil
}

func (s *Stack) Close() {
	if s.Publisher != nil {
		_ = s.Publisher.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}
