// Package worker reconciles escrows left pending by a failed settlement
// call. Work arrives from the escrow.reconcile queue and from a periodic
// scan of pending escrows, and is processed by a fixed pool of goroutines.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultPollBatchSize = 50
	defaultPrefetchCount = 10
)

// Reconciler re-applies the settlement ledger state to a pending escrow
type Reconciler interface {
	Reconcile(ctx context.Context, escrowID string) (*model.Escrow, error)
	PendingEscrowIDs(ctx context.Context, limit int) ([]string, error)
}

// DeliverySource is the queue the worker consumes reconcile messages from
type DeliverySource interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	QueueName() string
}

// Config holds worker configuration
type Config struct {
	Logger     *slog.Logger
	Reconciler Reconciler
	// Source may be nil, in which case only polling feeds the pool.
	Source        DeliverySource
	WorkerID      string
	Concurrency   int
	JobTimeout    time.Duration
	PollInterval  time.Duration
	PollBatchSize int
	PrefetchCount int
}

// Worker represents the escrow reconciliation worker
type Worker struct {
	logger        *slog.Logger
	reconciler    Reconciler
	source        DeliverySource
	workerID      string
	concurrency   int
	jobTimeout    time.Duration
	pollInterval  time.Duration
	pollBatchSize int
	prefetchCount int

	tasks    chan *domain.Task
	inflight sync.Map
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := max(cfg.Concurrency, 1)

	batch := cfg.PollBatchSize
	if batch <= 0 {
		batch = defaultPollBatchSize
	}

	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = defaultPrefetchCount
	}

	return &Worker{
		logger:        cfg.Logger,
		reconciler:    cfg.Reconciler,
		source:        cfg.Source,
		workerID:      cfg.WorkerID,
		concurrency:   concurrency,
		jobTimeout:    cfg.JobTimeout,
		pollInterval:  cfg.PollInterval,
		pollBatchSize: batch,
		prefetchCount: prefetch,
		tasks:         make(chan *domain.Task, concurrency),
		stopChan:      make(chan struct{}),
	}
}

// Start runs the pool, the queue dispatcher and the poller until ctx is
// canceled. It returns an error only when the consumer cannot be set up.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Duration("poll_interval", w.pollInterval),
	)

	var deliveries <-chan amqp.Delivery
	if w.source != nil {
		var err error
		deliveries, err = w.setupConsumer()
		if err != nil {
			return err
		}
	}

	w.spawnWorkerPool(ctx)

	if deliveries != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.startMessageDispatcher(ctx, deliveries)
		}()
	}

	if w.pollInterval > 0 {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.startPoller(ctx)
		}()
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker and waits for in-flight tasks
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// enqueue hands a task to the pool. It gives up when the worker stops.
func (w *Worker) enqueue(ctx context.Context, task *domain.Task) bool {
	select {
	case w.tasks <- task:
		return true
	case <-ctx.Done():
		return false
	case <-w.stopChan:
		return false
	}
}
