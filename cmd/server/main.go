// Package main is the entry point for the Larder API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"larder/internal/config"
	"larder/internal/domain/costing"
	"larder/internal/domain/fulfillment"
	"larder/internal/domain/ledger"
	"larder/internal/domain/purchasing"
	"larder/internal/domain/recipe"
	"larder/internal/infrastructure/cache"
	v1 "larder/internal/infrastructure/http/v1"
	"larder/internal/infrastructure/http/v1/handlers"
	"larder/internal/infrastructure/jobs"
	"larder/internal/infrastructure/storage/postgres"
	"larder/internal/infrastructure/storage/postgres/ledger_repo"
	"larder/internal/infrastructure/storage/postgres/purchase_repo"
	"larder/internal/infrastructure/storage/postgres/recipe_repo"
	"larder/pkg/logger"
	"larder/pkg/numerator"
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

	ctx := context.Background()
	log.Infow("starting larder server", "version", cfg.Version, "propagation", cfg.PropagationMode)

	// --- Database ---
	pool, err := postgres.NewPool(ctx, cfg.Pool())
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	txm := postgres.NewTxManager(pool)

	// --- Redis ---
	rdb, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}
	defer rdb.Close()

	// --- Repositories ---
	ledgerRepo := ledger_repo.New(txm)
	recipeRepo := recipe_repo.New(txm)
	purchaseRepo := purchase_repo.New(txm)

	// --- Domain ---
	store := ledger.NewStore(ledgerRepo, txm, ledger.WithEpsilon(cfg.CostEpsilon))
	engine := costing.NewEngine(store, recipeRepo, txm,
		costing.WithCache(cache.NewMenuCostCache(rdb, cfg.MenuCostCacheTTL)),
		costing.WithMaxAttempts(cfg.TxMaxAttempts),
	)

	var dispatcher costing.Dispatcher
	switch cfg.PropagationMode {
	case config.PropagationInline:
		dispatcher = &costing.InlineDispatcher{Engine: engine, Async: true}
	default:
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		dispatcher = jobs.NewQueueDispatcher(client)
	}

	audit, err := postgres.NewAuditLog(txm)
	if err != nil {
		log.Fatalw("failed to initialize audit log", "error", err)
	}
	defer audit.Close()

	processor := purchasing.NewProcessor(purchaseRepo, store, txm,
		purchasing.WithCostChangeHandler(dispatcher),
		purchasing.WithNotifier(postgres.NewOutbox(txm)),
		purchasing.WithAuditRecorder(audit),
		purchasing.WithMaxAttempts(cfg.TxMaxAttempts),
	)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:  log,
		Version: cfg.Version,
		HealthChecks: map[string]handlers.Pinger{
			"postgres": pool,
			"redis": handlers.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}),
		},
		Ledger:      store,
		Fulfillment: fulfillment.NewService(store, recipeRepo, txm, cfg.TxMaxAttempts),
		Recipes:     recipe.NewService(recipeRepo, store, txm),
		Purchasing:  purchasing.NewService(purchaseRepo, numerator.New(txm, nil), txm),
		Processor:   processor,
		Costing:     engine,
		Debug:       cfg.IsDevelopment(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
