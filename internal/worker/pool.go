package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/gigmarket-be/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case task := <-w.tasks:
			err := w.processTask(ctx, task)
			w.inflight.Delete(task.EscrowID)

			if task.Delivery == nil {
				if err != nil {
					w.logger.Warn("Polled escrow still pending",
						slog.String("worker_name", workerName),
						slog.String("escrow_id", task.EscrowID),
						slog.String("error", err.Error()),
					)
				}
				continue
			}

			w.settleDelivery(workerName, task, err)
		}
	}
}

// settleDelivery acknowledges a queue message according to the outcome.
func (w *Worker) settleDelivery(workerName string, task *domain.Task, err error) {
	if err == nil {
		if ackErr := task.Delivery.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("escrow_id", task.EscrowID),
				slog.String("error", ackErr.Error()),
			)
		}
		return
	}

	requeue := shouldRequeue(err, task.Delivery.Redelivered)

	w.logger.Error("Escrow reconciliation failed",
		slog.String("worker_name", workerName),
		slog.String("escrow_id", task.EscrowID),
		slog.Bool("requeue", requeue),
		slog.String("error", err.Error()),
	)

	if nackErr := task.Delivery.Nack(false, requeue); nackErr != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("worker_name", workerName),
			slog.String("escrow_id", task.EscrowID),
			slog.String("error", nackErr.Error()),
		)
	}
}

// shouldRequeue grants a retryable failure one immediate redelivery.
// After that the poller picks the escrow up on its next scan.
func shouldRequeue(err error, redelivered bool) bool {
	if errors.Is(err, domain.ErrEscrowNotFound) || errors.Is(err, domain.ErrInvalidMessage) {
		return false
	}

	var retryableErr *domain.RetryableError
	if errors.As(err, &retryableErr) {
		return !redelivered
	}

	return false
}
