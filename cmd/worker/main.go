// Package main is the entry point for the Larder background worker.
// It reconciles menu costs queued by the API and relays outbox notifications to redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"larder/internal/config"
	"larder/internal/domain/costing"
	"larder/internal/domain/ledger"
	"larder/internal/infrastructure/cache"
	"larder/internal/infrastructure/jobs"
	"larder/internal/infrastructure/storage/postgres"
	"larder/internal/infrastructure/storage/postgres/ledger_repo"
	"larder/internal/infrastructure/storage/postgres/recipe_repo"
	"larder/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger())
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	log = log.With("component", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting larder worker")

	pool, err := postgres.NewPool(ctx, cfg.Pool())
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	txm := postgres.NewTxManager(pool)

	rdb, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}
	defer rdb.Close()

	store := ledger.NewStore(ledger_repo.New(txm), txm, ledger.WithEpsilon(cfg.CostEpsilon))
	engine := costing.NewEngine(store, recipe_repo.New(txm), txm,
		costing.WithCache(cache.NewMenuCostCache(rdb, cfg.MenuCostCacheTTL)),
		costing.WithMaxAttempts(cfg.TxMaxAttempts),
	)

	reconcile := jobs.NewReconcileHandler(engine, redislock.New(rdb)).WithLockTTL(cfg.ReconcileLockTTL)
	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpt: asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		Concurrency: cfg.WorkerConcurrency,
		Reconcile:   reconcile,
	})

	publisher := jobs.NewNotificationPublisher(rdb).WithChannel(cfg.NotificationChannel)
	relay := postgres.NewOutboxRelay(txm, cfg.OutboxBatchSize, publisher)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(ctx)
	})
	g.Go(func() error {
		if err := jobs.RunOutboxRelay(ctx, relay, cfg.OutboxPollInterval); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n, err := relay.PurgePublished(ctx, cfg.OutboxRetention)
				if err != nil {
					log.Warnw("outbox purge failed", "error", err)
					continue
				}
				if n > 0 {
					log.Infow("published outbox messages purged", "count", n)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Errorw("worker stopped with error", "error", err)
		return
	}
	log.Info("worker stopped")
}
