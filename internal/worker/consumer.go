package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/events"
	"github.com/cuongbtq/gigmarket-be/internal/worker/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer sets up the RabbitMQ consumer with QoS and returns the delivery channel
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	if err := w.source.Qos(w.prefetchCount); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := w.source.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.source.QueueName()),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	return deliveries, nil
}

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches them to the pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case <-w.stopChan:
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			escrowID, err := parseMessage(delivery.Body)
			if err != nil {
				w.logger.Error("Dropping invalid reconcile message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages go to the dead-letter queue
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			w.inflight.Store(escrowID, struct{}{})
			task := &domain.Task{EscrowID: escrowID, Source: domain.SourceQueue, Delivery: &delivery}

			if !w.enqueue(ctx, task) {
				w.inflight.Delete(escrowID)
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}

			w.logger.Debug("Reconcile task dispatched",
				slog.String("escrow_id", escrowID),
				slog.Uint64("delivery_tag", delivery.DeliveryTag),
			)
		}
	}
}

func parseMessage(body []byte) (string, error) {
	escrowID, err := events.DecodeReconcile(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}
	if _, err := uuid.Parse(escrowID); err != nil {
		return "", fmt.Errorf("%w: escrow_id %q is not a UUID", domain.ErrInvalidMessage, escrowID)
	}
	return escrowID, nil
}

// startPoller periodically enqueues escrows still pending. Escrows already
// in flight are skipped.
func (w *Worker) startPoller(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("Pending escrow poller started",
		slog.Duration("interval", w.pollInterval),
		slog.Int("batch_size", w.pollBatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if !w.pollOnce(ctx) {
				return
			}
		}
	}
}

// pollOnce returns false when the worker is stopping.
func (w *Worker) pollOnce(ctx context.Context) bool {
	ids, err := w.reconciler.PendingEscrowIDs(ctx, w.pollBatchSize)
	if err != nil {
		w.logger.Error("Failed to list pending escrows",
			slog.String("error", err.Error()),
		)
		return true
	}

	if len(ids) > 0 {
		w.logger.Info("Found pending escrows", slog.Int("count", len(ids)))
	}

	for _, id := range ids {
		if _, busy := w.inflight.LoadOrStore(id, struct{}{}); busy {
			continue
		}
		if !w.enqueue(ctx, &domain.Task{EscrowID: id, Source: domain.SourcePoll}) {
			w.inflight.Delete(id)
			return false
		}
	}
	return true
}
