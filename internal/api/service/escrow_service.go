package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/api/storage"
	"github.com/cuongbtq/gigmarket-be/internal/events"
	"github.com/cuongbtq/gigmarket-be/internal/settlement"
)

// EscrowService runs the escrow saga against the settlement ledger:
//
//  1. lock the escrow, validate, persist the pending action
//  2. call the ledger (bounded retries inside the settlement client)
//  3. read the ledger state and apply it to escrow, job and submission
//
// When step 2 or 3 fails the escrow stays pending and a reconcile message
// is published; Reconcile and Get replay step 2 and 3 later.
type EscrowService struct {
	*base
}

const maxLastErrorLen = 1000

// Fund opens the escrow for an in-progress job on first call and moves the
// amount into custody. Calling it again while the escrow still awaits
// payment re-drives the funding.
func (s *EscrowService) Fund(ctx context.Context, actor domain.Identity, jobID string, in FundEscrowInput) (*model.Escrow, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	job, err := s.loadJob(ctx, s.repo, jobID, false)
	if err != nil {
		return nil, err
	}
	if job.EmployerID != actor.ID {
		return nil, domain.NewAuthorizationError()
	}
	if job.Status != domain.JobStatusInProgress || job.FreelancerID == nil {
		return nil, domain.NewConflictError("escrow can only be funded for an in-progress job")
	}

	escrow, err := s.repo.GetEscrowByJob(ctx, job.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		escrow, err = s.open(ctx, actor, job, in.Amount)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, s.fail(err, "escrow")
	default:
		escrow, err = s.begin(ctx, escrow.ID, domain.EscrowActionFund, nil, func(e *model.Escrow) error {
			if e.Amount != in.Amount {
				return domain.NewConflictError("escrow was opened for %.8g", e.Amount)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return s.settle(ctx, escrow)
}

// open creates the ledger contract and the local escrow record with a
// pending fund action.
func (s *EscrowService) open(ctx context.Context, actor domain.Identity, job *model.Job, amount float64) (*model.Escrow, error) {
	freelancerID := *job.FreelancerID

	users, err := s.repo.GetUsers(ctx, []string{job.EmployerID, freelancerID})
	if err != nil {
		return nil, s.fail(err, "user")
	}

	ref, err := s.settlement.Open(ctx, settlement.OpenRequest{
		JobID:          job.ID,
		EmployerAddr:   walletOf(users, job.EmployerID),
		FreelancerAddr: walletOf(users, freelancerID),
	})
	if err != nil {
		s.logger.Error("Failed to open settlement contract",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return nil, domain.NewExternalServiceError("settlement service is unavailable", err)
	}

	var escrow *model.Escrow

	err = s.repo.WithTx(ctx, func(tx storage.Repository) error {
		locked, err := s.loadJob(ctx, tx, job.ID, true)
		if err != nil {
			return err
		}
		if locked.Status != domain.JobStatusInProgress || !locked.HasFreelancer(freelancerID) {
			return domain.NewConflictError("job changed while the escrow was being opened")
		}

		now := s.now()
		action := domain.EscrowActionFund
		escrow = &model.Escrow{
			ID:            s.newID(),
			JobID:         job.ID,
			ContractRef:   ref,
			EmployerID:    job.EmployerID,
			FreelancerID:  freelancerID,
			Amount:        amount,
			State:         domain.EscrowAwaitingPayment,
			PendingAction: &action,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		err = tx.CreateEscrow(ctx, escrow)
		if errors.Is(err, storage.ErrDuplicate) {
			return domain.NewConflictError("job already has an escrow")
		}
		if err != nil {
			return s.fail(err, "escrow")
		}

		locked.EscrowContract = &ref
		locked.UpdatedAt = now
		return s.fail(tx.UpdateJob(ctx, locked), "job")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Escrow opened",
		slog.String("escrow_id", escrow.ID),
		slog.String("job_id", job.ID),
		slog.String("contract_ref", ref),
		slog.String("actor_id", actor.ID),
	)
	return escrow, nil
}

func walletOf(users map[string]model.User, id string) string {
	if u, ok := users[id]; ok && u.WalletAddress != "" {
		return u.WalletAddress
	}
	return "user:" + id
}

// ConfirmDelivery releases the escrow to the freelancer and completes the job.
func (s *EscrowService) ConfirmDelivery(ctx context.Context, actor domain.Identity, jobID string) (*model.Escrow, error) {
	return s.release(ctx, actor, jobID, domain.EscrowActionConfirm, nil)
}

// Refund returns the escrow to the employer and cancels the job.
func (s *EscrowService) Refund(ctx context.Context, actor domain.Identity, jobID string) (*model.Escrow, error) {
	return s.release(ctx, actor, jobID, domain.EscrowActionRefund, nil)
}

// release runs confirm or refund. submissionID is approved together with
// a confirmation.
func (s *EscrowService) release(ctx context.Context, actor domain.Identity, jobID string, action domain.EscrowAction, submissionID *string) (*model.Escrow, error) {
	job, err := s.loadJob(ctx, s.repo, jobID, false)
	if err != nil {
		return nil, err
	}
	if job.EmployerID != actor.ID {
		return nil, domain.NewAuthorizationError()
	}

	escrow, err := s.repo.GetEscrowByJob(ctx, job.ID)
	if err != nil {
		return nil, s.fail(err, "escrow")
	}
	if escrow.EmployerID != actor.ID {
		return nil, domain.NewAuthorizationError()
	}

	escrow, err = s.begin(ctx, escrow.ID, action, submissionID, nil)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, escrow)
}

// begin is step 1 of the saga: it validates the move against the locked
// escrow and persists the pending action.
func (s *EscrowService) begin(ctx context.Context, escrowID string, action domain.EscrowAction, submissionID *string, check func(e *model.Escrow) error) (*model.Escrow, error) {
	var escrow *model.Escrow

	err := s.repo.WithTx(ctx, func(tx storage.Repository) error {
		e, err := tx.GetEscrowForUpdate(ctx, escrowID)
		if err != nil {
			return s.fail(err, "escrow")
		}

		if e.State.IsTerminal() {
			return domain.NewConflictError("escrow is already %s", e.State)
		}
		if e.IsPending() && *e.PendingAction != action {
			return domain.NewConflictError("escrow has a pending %s awaiting reconciliation", *e.PendingAction)
		}

		from := domain.EscrowAwaitingDelivery
		if action == domain.EscrowActionFund {
			from = domain.EscrowAwaitingPayment
		}
		if e.State != from {
			return domain.NewConflictError("escrow is %s, %s needs %s", e.State, action, from)
		}

		if check != nil {
			if err := check(e); err != nil {
				return err
			}
		}

		e.PendingAction = &action
		if submissionID != nil {
			e.PendingSubmissionID = submissionID
		}
		e.UpdatedAt = s.now()
		if err := tx.UpdateEscrow(ctx, e); err != nil {
			return s.fail(err, "escrow")
		}

		escrow = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return escrow, nil
}

// settle is steps 2 and 3 of the saga for an escrow with a pending action.
func (s *EscrowService) settle(ctx context.Context, escrow *model.Escrow) (*model.Escrow, error) {
	action := *escrow.PendingAction

	var err error
	switch action {
	case domain.EscrowActionFund:
		err = s.settlement.Fund(ctx, escrow.ContractRef, escrow.Amount)
	case domain.EscrowActionConfirm:
		err = s.settlement.ConfirmDelivery(ctx, escrow.ContractRef)
	case domain.EscrowActionRefund:
		err = s.settlement.Refund(ctx, escrow.ContractRef)
	default:
		return nil, domain.NewInternalError(fmt.Errorf("unknown escrow action %q", action))
	}

	if err != nil && !settlement.IsPermanent(err) {
		return nil, s.deferToReconcile(ctx, escrow, err)
	}

	applied, finErr := s.finalize(ctx, escrow.ID)
	if finErr != nil {
		return nil, finErr
	}

	if err != nil {
		// The ledger refused the call. Whatever it holds has been applied
		// above, so the caller sees the conflict against current state.
		s.logger.Warn("Settlement rejected escrow action",
			slog.String("escrow_id", escrow.ID),
			slog.String("action", string(action)),
			slog.Any("error", err),
		)
		if applied.IsPending() {
			s.dropPending(ctx, applied.ID, action)
		}
		return nil, domain.NewConflictError("settlement rejected %s, escrow is %s", action, applied.State)
	}

	return applied, nil
}

// finalize is step 3: read the ledger and apply its state locally. It is
// idempotent; an escrow without a pending action is returned unchanged.
func (s *EscrowService) finalize(ctx context.Context, escrowID string) (*model.Escrow, error) {
	current, err := s.repo.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, s.fail(err, "escrow")
	}
	if !current.IsPending() {
		return current, nil
	}

	ledger, err := s.settlement.GetState(ctx, current.ContractRef)
	if err != nil {
		return nil, s.deferToReconcile(ctx, current, err)
	}

	var (
		result   *model.Escrow
		job      *model.Job
		approved *model.Submission
		moved    bool
	)

	err = s.repo.WithTx(ctx, func(tx storage.Repository) error {
		e, err := tx.GetEscrowForUpdate(ctx, escrowID)
		if err != nil {
			return s.fail(err, "escrow")
		}
		result = e
		if !e.IsPending() {
			return nil
		}

		target := domain.EscrowState(ledger.State)
		action := *e.PendingAction

		// Ledger has not moved and the action did not land. Keep pending.
		if target == e.State && target != action.TargetState() {
			return nil
		}

		job, err = s.loadJob(ctx, tx, e.JobID, true)
		if err != nil {
			return err
		}

		now := s.now()
		e.State = target
		e.Balance = ledger.Balance
		e.PendingAction = nil
		e.Attempts = 0
		e.LastError = ""
		e.UpdatedAt = now

		var jobStatus domain.JobStatus
		switch target {
		case domain.EscrowComplete:
			jobStatus = domain.JobStatusCompleted
		case domain.EscrowRefunded:
			jobStatus = domain.JobStatusCancelled
		}

		if jobStatus != "" && job.Status != jobStatus {
			if !job.Status.CanTransitionTo(jobStatus) {
				return domain.NewInternalError(fmt.Errorf("job %s is %s, cannot follow escrow to %s", job.ID, job.Status, target))
			}
			job.Status = jobStatus
			if jobStatus == domain.JobStatusCompleted {
				job.CompletedAt = &now
			}
			job.UpdatedAt = now
			if err := tx.UpdateJob(ctx, job); err != nil {
				return s.fail(err, "job")
			}
		}

		if e.PendingSubmissionID != nil {
			if target == domain.EscrowComplete {
				sub, err := tx.GetSubmission(ctx, *e.PendingSubmissionID)
				if err != nil {
					return s.fail(err, "submission")
				}
				if sub.Status != domain.SubmissionStatusApproved {
					sub.Status = domain.SubmissionStatusApproved
					sub.UpdatedAt = now
					if err := tx.UpdateSubmission(ctx, sub); err != nil {
						return s.fail(err, "submission")
					}
					approved = sub
				}
			}
			e.PendingSubmissionID = nil
		}

		if err := tx.UpdateEscrow(ctx, e); err != nil {
			return s.fail(err, "escrow")
		}
		moved = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !moved {
		return result, nil
	}

	s.logger.Info("Escrow settled",
		slog.String("escrow_id", result.ID),
		slog.String("job_id", result.JobID),
		slog.String("state", string(result.State)),
	)

	evs := []events.Event{escrowEvent(result)}
	if result.State.IsTerminal() {
		evs = append(evs, jobEvent(events.JobUpdated, job, domain.Identity{ID: result.EmployerID}))
	}
	if approved != nil {
		evs = append(evs, submissionEvent(events.SubmissionApproved, approved, domain.Identity{ID: result.EmployerID}))
	}
	s.publish(ctx, evs...)

	return result, nil
}

// dropPending clears an action the ledger will never accept.
func (s *EscrowService) dropPending(ctx context.Context, escrowID string, action domain.EscrowAction) {
	err := s.repo.WithTx(ctx, func(tx storage.Repository) error {
		e, err := tx.GetEscrowForUpdate(ctx, escrowID)
		if err != nil {
			return err
		}
		if !e.IsPending() || *e.PendingAction != action {
			return nil
		}
		e.PendingAction = nil
		e.PendingSubmissionID = nil
		e.UpdatedAt = s.now()
		return tx.UpdateEscrow(ctx, e)
	})
	if err != nil {
		s.logger.Error("Failed to drop rejected escrow action",
			slog.String("escrow_id", escrowID),
			slog.Any("error", err),
		)
	}
}

// deferToReconcile records the failed attempt, asks the worker to retry and
// reports the escrow as pending.
func (s *EscrowService) deferToReconcile(ctx context.Context, escrow *model.Escrow, cause error) error {
	msg := cause.Error()
	if len(msg) > maxLastErrorLen {
		msg = msg[:maxLastErrorLen]
	}

	err := s.repo.WithTx(ctx, func(tx storage.Repository) error {
		e, err := tx.GetEscrowForUpdate(ctx, escrow.ID)
		if err != nil {
			return err
		}
		e.Attempts++
		e.LastError = msg
		e.UpdatedAt = s.now()
		return tx.UpdateEscrow(ctx, e)
	})
	if err != nil {
		s.logger.Error("Failed to record settlement failure",
			slog.String("escrow_id", escrow.ID),
			slog.Any("error", err),
		)
	}

	if settlement.IsPermanent(cause) {
		s.logger.Error("Escrow contract rejected by settlement",
			slog.String("escrow_id", escrow.ID),
			slog.String("contract_ref", escrow.ContractRef),
			slog.Any("error", cause),
		)
		return domain.NewInternalError(cause)
	}

	s.logger.Warn("Escrow pending reconciliation",
		slog.String("escrow_id", escrow.ID),
		slog.Any("error", cause),
	)
	s.publish(ctx, events.Event{
		Type:     events.EscrowReconcile,
		EntityID: escrow.ID,
		JobID:    escrow.JobID,
	})

	return domain.NewExternalServiceError("settlement service is unavailable, escrow is pending reconciliation", cause)
}

// Get returns the job's escrow to a participant. A pending escrow is
// reconciled first; if that fails the stored state is returned.
func (s *EscrowService) Get(ctx context.Context, actor domain.Identity, jobID string) (*model.Escrow, error) {
	job, err := s.loadJob(ctx, s.repo, jobID, false)
	if err != nil {
		return nil, err
	}
	if !job.IsParticipant(actor.ID) {
		return nil, domain.NewAuthorizationError()
	}

	escrow, err := s.repo.GetEscrowByJob(ctx, job.ID)
	if err != nil {
		return nil, s.fail(err, "escrow")
	}
	if !escrow.IsPending() {
		return escrow, nil
	}

	reconciled, err := s.Reconcile(ctx, escrow.ID)
	if err != nil {
		s.logger.Warn("Reconcile on read failed",
			slog.String("escrow_id", escrow.ID),
			slog.Any("error", err),
		)
		return s.reload(ctx, escrow)
	}
	return reconciled, nil
}

func (s *EscrowService) reload(ctx context.Context, fallback *model.Escrow) (*model.Escrow, error) {
	e, err := s.repo.GetEscrow(ctx, fallback.ID)
	if err != nil {
		return fallback, nil
	}
	return e, nil
}

// Reconcile re-drives a pending escrow: the pending ledger call is repeated
// (the ledger treats repeats as no-ops) and the ledger state applied.
func (s *EscrowService) Reconcile(ctx context.Context, escrowID string) (*model.Escrow, error) {
	escrow, err := s.repo.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, s.fail(err, "escrow")
	}
	if !escrow.IsPending() {
		return escrow, nil
	}

	s.logger.Info("Reconciling escrow",
		slog.String("escrow_id", escrow.ID),
		slog.String("action", string(*escrow.PendingAction)),
		slog.Int("attempts", escrow.Attempts),
	)
	return s.settle(ctx, escrow)
}

// PendingEscrowIDs lists escrows awaiting reconciliation, oldest first.
func (s *EscrowService) PendingEscrowIDs(ctx context.Context, limit int) ([]string, error) {
	escrows, err := s.repo.ListPendingEscrows(ctx, limit)
	if err != nil {
		return nil, s.fail(err, "escrow")
	}

	ids := make([]string, len(escrows))
	for i, e := range escrows {
		ids[i] = e.ID
	}
	return ids, nil
}

func escrowEvent(e *model.Escrow) events.Event {
	t := events.EscrowFunded
	switch e.State {
	case domain.EscrowComplete:
		t = events.EscrowCompleted
	case domain.EscrowRefunded:
		t = events.EscrowRefunded
	}
	return events.Event{
		Type:     t,
		EntityID: e.ID,
		JobID:    e.JobID,
		ActorID:  e.EmployerID,
		Status:   string(e.State),
	}
}
