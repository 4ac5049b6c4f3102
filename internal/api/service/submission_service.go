package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/api/storage"
	"github.com/cuongbtq/gigmarket-be/internal/events"
)

type SubmissionService struct {
	*base
	escrows *EscrowService
}

// Submit records a deliverable from the assigned freelancer of an
// in-progress job.
func (s *SubmissionService) Submit(ctx context.Context, actor domain.Identity, in SubmitWorkInput) (*model.Submission, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	var sub *model.Submission

	err := s.repo.WithTx(ctx, func(tx storage.Repository) error {
		job, err := s.loadJob(ctx, tx, in.JobID, true)
		if err != nil {
			return err
		}
		if !job.HasFreelancer(actor.ID) {
			return domain.NewAuthorizationError()
		}
		if job.Status != domain.JobStatusInProgress {
			return domain.NewConflictError("work can only be submitted while the job is in progress")
		}

		attachments := model.Attachments(in.Attachments)
		if attachments == nil {
			attachments = model.Attachments{}
		}

		now := s.now()
		sub = &model.Submission{
			ID:           s.newID(),
			JobID:        job.ID,
			FreelancerID: actor.ID,
			Title:        in.Title,
			Description:  in.Description,
			Attachments:  attachments,
			Status:       domain.SubmissionStatusSubmitted,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return s.fail(tx.CreateSubmission(ctx, sub), "submission")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Work submitted",
		slog.String("submission_id", sub.ID),
		slog.String("job_id", sub.JobID),
		slog.Int("attachments", len(sub.Attachments)),
	)
	s.publish(ctx, submissionEvent(events.SubmissionCreated, sub, actor))

	return sub, nil
}

// ListForJob returns the job's submissions, newest first, to either party.
func (s *SubmissionService) ListForJob(ctx context.Context, actor domain.Identity, jobID string) ([]model.Submission, error) {
	job, err := s.loadJob(ctx, s.repo, jobID, false)
	if err != nil {
		return nil, err
	}
	if !job.IsParticipant(actor.ID) {
		return nil, domain.NewAuthorizationError()
	}

	subs, err := s.repo.ListSubmissionsByJob(ctx, job.ID)
	if err != nil {
		return nil, s.fail(err, "submission")
	}
	return subs, nil
}

// UpdateStatus reviews a submission. Approval completes the job; when the
// job has a funded escrow the approval rides on the escrow confirmation.
func (s *SubmissionService) UpdateStatus(ctx context.Context, actor domain.Identity, submissionID string, in ReviewInput) (*model.Submission, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	if in.Status == domain.SubmissionStatusSubmitted {
		return nil, domain.NewFieldError("status", "must be approved or revision_requested")
	}

	sub, err := s.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, s.fail(err, "submission")
	}
	job, err := s.loadJob(ctx, s.repo, sub.JobID, false)
	if err != nil {
		return nil, err
	}
	if job.EmployerID != actor.ID {
		return nil, domain.NewAuthorizationError()
	}

	if in.Status == domain.SubmissionStatusApproved {
		err := s.escrowGate(ctx, s.repo, job.ID)
		if errors.Is(err, errApproveThroughEscrow) {
			return s.approveWithEscrow(ctx, actor, job, sub, in.Feedback)
		}
		if err != nil {
			return nil, err
		}
	}

	var (
		updated *model.Submission
		evs     []events.Event
	)

	err = s.repo.WithTx(ctx, func(tx storage.Repository) error {
		locked, err := s.loadJob(ctx, tx, job.ID, true)
		if err != nil {
			return err
		}
		current, err := tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return s.fail(err, "submission")
		}

		if current.Status == domain.SubmissionStatusApproved {
			return domain.NewConflictError("submission is already approved")
		}
		if locked.Status != domain.JobStatusInProgress {
			return domain.NewConflictError("job is %s", locked.Status)
		}
		// An escrow may have been funded since the check above.
		if in.Status == domain.SubmissionStatusApproved {
			if err := s.escrowGate(ctx, tx, locked.ID); err != nil {
				return err
			}
		}

		now := s.now()
		current.Status = in.Status
		if in.Feedback != "" {
			current.Feedback = in.Feedback
		}
		current.UpdatedAt = now
		if err := tx.UpdateSubmission(ctx, current); err != nil {
			return s.fail(err, "submission")
		}

		if in.Status == domain.SubmissionStatusRevisionRequested {
			evs = append(evs, submissionEvent(events.SubmissionRevisionRequested, current, actor))
			updated = current
			return nil
		}

		locked.Status = domain.JobStatusCompleted
		locked.CompletedAt = &now
		locked.UpdatedAt = now
		if err := tx.UpdateJob(ctx, locked); err != nil {
			return s.fail(err, "job")
		}

		evs = append(evs,
			submissionEvent(events.SubmissionApproved, current, actor),
			jobEvent(events.JobUpdated, locked, actor),
		)
		updated = current
		return nil
	})
	if errors.Is(err, errApproveThroughEscrow) {
		return s.approveFunded(ctx, actor, submissionID, in.Feedback)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Submission reviewed",
		slog.String("submission_id", updated.ID),
		slog.String("status", string(updated.Status)),
	)
	s.publish(ctx, evs...)

	return updated, nil
}

// errApproveThroughEscrow signals that the job holds funds in escrow, so
// approval has to go through the escrow confirmation.
var errApproveThroughEscrow = errors.New("approval requires escrow confirmation")

// escrowGate checks the escrow of jobID before an approval. It returns
// errApproveThroughEscrow when funds await delivery and a conflict when
// the escrow was opened but never funded.
func (s *SubmissionService) escrowGate(ctx context.Context, repo storage.Repository, jobID string) error {
	escrow, err := repo.GetEscrowByJob(ctx, jobID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		return s.fail(err, "escrow")
	case escrow.State == domain.EscrowAwaitingDelivery:
		return errApproveThroughEscrow
	case escrow.State == domain.EscrowAwaitingPayment:
		return domain.NewConflictError("job escrow has not been funded")
	}
	return nil
}

// approveFunded reloads the job and submission after a direct approval
// found a funded escrow under the job lock.
func (s *SubmissionService) approveFunded(ctx context.Context, actor domain.Identity, submissionID, feedback string) (*model.Submission, error) {
	sub, err := s.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, s.fail(err, "submission")
	}
	job, err := s.loadJob(ctx, s.repo, sub.JobID, false)
	if err != nil {
		return nil, err
	}
	return s.approveWithEscrow(ctx, actor, job, sub, feedback)
}

// approveWithEscrow stores the review feedback and runs the escrow
// confirmation, which approves the submission when it settles.
func (s *SubmissionService) approveWithEscrow(ctx context.Context, actor domain.Identity, job *model.Job, sub *model.Submission, feedback string) (*model.Submission, error) {
	if sub.Status == domain.SubmissionStatusApproved {
		return nil, domain.NewConflictError("submission is already approved")
	}
	if job.Status != domain.JobStatusInProgress {
		return nil, domain.NewConflictError("job is %s", job.Status)
	}

	if feedback != "" {
		sub.Feedback = feedback
		sub.UpdatedAt = s.now()
		if err := s.repo.UpdateSubmission(ctx, sub); err != nil {
			return nil, s.fail(err, "submission")
		}
	}

	if _, err := s.escrows.release(ctx, actor, job.ID, domain.EscrowActionConfirm, &sub.ID); err != nil {
		return nil, err
	}

	approved, err := s.repo.GetSubmission(ctx, sub.ID)
	if err != nil {
		return nil, s.fail(err, "submission")
	}
	return approved, nil
}

func submissionEvent(t events.Type, sub *model.Submission, actor domain.Identity) events.Event {
	return events.Event{
		Type:     t,
		EntityID: sub.ID,
		JobID:    sub.JobID,
		ActorID:  actor.ID,
		Status:   string(sub.Status),
	}
}
