package service

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/api/storage"
	"github.com/cuongbtq/gigmarket-be/internal/events"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type JobService struct {
	*base
}

// JobView is a job with its parties' profiles resolved. Profiles are nil
// for users that never saved one.
type JobView struct {
	Job        model.Job
	Employer   *model.User
	Freelancer *model.User
}

// JobPage is one newest-first page. Next is nil on the last page.
type JobPage struct {
	Jobs []model.Job
	Next *JobCursor
}

func (s *JobService) Create(ctx context.Context, actor domain.Identity, in CreateJobInput) (*model.Job, error) {
	if !actor.IsEmployer() {
		return nil, domain.NewAuthorizationError()
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	now := s.now()
	job := &model.Job{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		Skills:      in.Skills,
		Budget:      in.Budget,
		Deadline:    in.Deadline.UTC(),
		Domain:      in.Domain,
		Status:      domain.JobStatusOpen,
		EmployerID:  actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if job.Skills == nil {
		job.Skills = []string{}
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, s.fail(err, "job")
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("employer_id", actor.ID),
	)
	s.publish(ctx, jobEvent(events.JobCreated, job, actor))

	return job, nil
}

// Update applies the fields present in patch. Assigning a freelancer runs
// the acceptance of that freelancer's pending application, and status
// changes follow the job state machine.
func (s *JobService) Update(ctx context.Context, actor domain.Identity, jobID string, patch JobPatch) (*model.Job, error) {
	if err := s.validator.Struct(patch); err != nil {
		return nil, err
	}

	var (
		updated  *model.Job
		accepted *model.Application
		rejected int64
	)

	err := s.repo.WithTx(ctx, func(tx storage.Repository) error {
		job, err := s.loadJob(ctx, tx, jobID, true)
		if err != nil {
			return err
		}
		if job.EmployerID != actor.ID {
			return domain.NewAuthorizationError()
		}

		now := s.now()
		applyJobFields(job, patch)

		if patch.Freelancer != nil && !job.HasFreelancer(*patch.Freelancer) {
			app, err := tx.FindApplication(ctx, job.ID, *patch.Freelancer)
			if errors.Is(err, storage.ErrNotFound) {
				return domain.NewConflictError("freelancer has not applied to this job")
			}
			if err != nil {
				return s.fail(err, "application")
			}

			rejected, err = acceptApplication(ctx, tx, job, app, now)
			if err != nil {
				return s.fail(err, "application")
			}
			accepted = app
		}

		if patch.Status != nil && *patch.Status != job.Status {
			if err := s.changeStatus(ctx, tx, job, *patch.Status, now); err != nil {
				return err
			}
		}

		job.UpdatedAt = now
		if err := tx.UpdateJob(ctx, job); err != nil {
			return s.fail(err, "job")
		}

		updated = job
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Job updated",
		slog.String("job_id", updated.ID),
		slog.String("status", string(updated.Status)),
	)

	evs := []events.Event{jobEvent(events.JobUpdated, updated, actor)}
	if accepted != nil {
		evs = append(evs, applicationEvent(events.ApplicationAccepted, accepted, actor))
		s.logger.Info("Application accepted through job update",
			slog.String("application_id", accepted.ID),
			slog.Int64("rejected_siblings", rejected),
		)
	}
	s.publish(ctx, evs...)

	return updated, nil
}

func applyJobFields(job *model.Job, patch JobPatch) {
	if patch.Title != nil {
		job.Title = *patch.Title
	}
	if patch.Description != nil {
		job.Description = *patch.Description
	}
	if patch.Skills != nil {
		job.Skills = patch.Skills
	}
	if patch.Budget != nil {
		job.Budget = *patch.Budget
	}
	if patch.Deadline != nil {
		job.Deadline = patch.Deadline.UTC()
	}
	if patch.Domain != nil {
		job.Domain = *patch.Domain
	}
}

// changeStatus moves job to next. Moving to a terminal status is refused
// while an escrow holds funds for the job; those moves go through escrow
// confirm or refund.
func (s *JobService) changeStatus(ctx context.Context, tx storage.Repository, job *model.Job, next domain.JobStatus, now time.Time) error {
	if !job.Status.CanTransitionTo(next) {
		return domain.NewConflictError("job cannot move from %s to %s", job.Status, next)
	}

	if next == domain.JobStatusInProgress && job.FreelancerID == nil {
		return domain.NewConflictError("job needs an accepted application before it can start")
	}

	if next.IsTerminal() {
		escrow, err := tx.GetEscrowByJob(ctx, job.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return s.fail(err, "escrow")
		case escrow.IsPending() || escrow.State == domain.EscrowAwaitingDelivery:
			return domain.NewConflictError("job has a funded escrow, settle it with escrow confirm or refund")
		case next == domain.JobStatusCompleted && escrow.State == domain.EscrowAwaitingPayment:
			return domain.NewConflictError("job escrow has not been funded")
		}
	}

	job.Status = next
	if next == domain.JobStatusCompleted {
		job.CompletedAt = &now
	}
	return nil
}

// Delete removes a job that is still open and has no applications.
func (s *JobService) Delete(ctx context.Context, actor domain.Identity, jobID string) error {
	var deleted *model.Job

	err := s.repo.WithTx(ctx, func(tx storage.Repository) error {
		job, err := s.loadJob(ctx, tx, jobID, true)
		if err != nil {
			return err
		}
		if job.EmployerID != actor.ID {
			return domain.NewAuthorizationError()
		}
		if job.Status != domain.JobStatusOpen {
			return domain.NewConflictError("only open jobs can be deleted, job is %s", job.Status)
		}

		count, err := tx.CountApplicationsByJob(ctx, job.ID)
		if err != nil {
			return s.fail(err, "application")
		}
		if count > 0 {
			return domain.NewConflictError("job has %d application(s) and cannot be deleted", count)
		}

		if err := tx.DeleteJob(ctx, job.ID); err != nil {
			return s.fail(err, "job")
		}
		deleted = job
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Job deleted", slog.String("job_id", jobID))
	s.publish(ctx, jobEvent(events.JobDeleted, deleted, actor))
	return nil
}

// Get returns the job with its employer and freelancer profiles.
func (s *JobService) Get(ctx context.Context, jobID string) (*JobView, error) {
	job, err := s.loadJob(ctx, s.repo, jobID, false)
	if err != nil {
		return nil, err
	}

	ids := []string{job.EmployerID}
	if job.FreelancerID != nil {
		ids = append(ids, *job.FreelancerID)
	}

	users, err := s.repo.GetUsers(ctx, ids)
	if err != nil {
		return nil, s.fail(err, "user")
	}

	view := &JobView{Job: *job}
	if u, ok := users[job.EmployerID]; ok {
		view.Employer = &u
	}
	if job.FreelancerID != nil {
		if u, ok := users[*job.FreelancerID]; ok {
			view.Freelancer = &u
		}
	}
	return view, nil
}

// ListPage returns one page of jobs, newest first.
func (s *JobService) ListPage(ctx context.Context, q JobQuery) (*JobPage, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, domain.NewFieldError("status", "is not a valid status")
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	filter := storage.JobFilter{
		Domain:     q.Domain,
		Status:     q.Status,
		EmployerID: q.EmployerID,
		Keyword:    q.Keyword,
		PageSize:   pageSize,
	}
	if q.Cursor != nil {
		filter.Cursor = &storage.JobCursor{CreatedAt: q.Cursor.CreatedAt, JobID: q.Cursor.JobID}
	}

	jobs, err := s.repo.ListJobs(ctx, filter)
	if err != nil {
		return nil, s.fail(err, "job")
	}

	page := &JobPage{Jobs: jobs}
	if len(jobs) > pageSize {
		page.Jobs = jobs[:pageSize]
		last := page.Jobs[pageSize-1]
		page.Next = &JobCursor{CreatedAt: last.CreatedAt, JobID: last.ID}
	}
	return page, nil
}

// All walks every job matching q lazily, one page at a time. Iteration
// stops at the first error, which is yielded once.
func (s *JobService) All(ctx context.Context, q JobQuery) iter.Seq2[model.Job, error] {
	return func(yield func(model.Job, error) bool) {
		query := q
		for {
			page, err := s.ListPage(ctx, query)
			if err != nil {
				yield(model.Job{}, err)
				return
			}

			for _, job := range page.Jobs {
				if !yield(job, nil) {
					return
				}
			}

			if page.Next == nil {
				return
			}
			query.Cursor = page.Next
		}
	}
}
