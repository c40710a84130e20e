package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"larder/pkg/logger"
)

// WorkerConfig collects what the asynq worker needs.
type WorkerConfig struct {
	RedisOpt    asynq.RedisConnOpt
	Concurrency int
	Reconcile   *ReconcileHandler
}

// Worker wraps the asynq server.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker constructs a Worker and registers the task handlers.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueCosting: 6,
			QueueDefault: 1,
		},
		Logger: logger.Default().SugaredLogger,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Warn(ctx, "task failed", "type", task.Type(), "error", err)
		}),
	})

	mux := asynq.NewServeMux()
	if cfg.Reconcile != nil {
		mux.Handle(TaskCostReconcile, cfg.Reconcile)
	}
	return &Worker{server: srv, mux: mux}
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}
