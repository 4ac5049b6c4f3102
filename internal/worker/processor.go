package worker

import (
	"context"
	"fmt"
	"log/slog"

	apidomain "github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/worker/domain"
)

// processTask reconciles one escrow under the job timeout. A ledger that
// refused the pending action still counts as processed: the escrow now
// mirrors the ledger.
func (w *Worker) processTask(ctx context.Context, task *domain.Task) error {
	w.logger.Info("Reconciling escrow",
		slog.String("escrow_id", task.EscrowID),
		slog.String("source", task.Source),
	)

	taskCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	escrow, err := w.reconciler.Reconcile(taskCtx, task.EscrowID)
	if err == nil {
		w.logger.Info("Escrow reconciled",
			slog.String("escrow_id", escrow.ID),
			slog.String("state", string(escrow.State)),
			slog.Bool("pending", escrow.IsPending()),
		)
		return nil
	}

	switch apidomain.KindOf(err) {
	case apidomain.KindConflict:
		w.logger.Warn("Settlement refused the pending escrow action",
			slog.String("escrow_id", task.EscrowID),
			slog.String("error", err.Error()),
		)
		return nil
	case apidomain.KindNotFound:
		return fmt.Errorf("%w: %s", domain.ErrEscrowNotFound, task.EscrowID)
	case apidomain.KindExternalService:
		return domain.NewRetryableError(fmt.Errorf("reconcile escrow %s: %w", task.EscrowID, err))
	default:
		return fmt.Errorf("reconcile escrow %s: %w", task.EscrowID, err)
	}
}
