package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/api/storage"
	"github.com/cuongbtq/gigmarket-be/internal/events"
)

type ApplicationService struct {
	*base
}

// ApplicationView is an application with either the freelancer profile
// (employer listings) or the job (freelancer listings) resolved.
type ApplicationView struct {
	Application model.Application
	Freelancer  *model.User
	Job         *model.Job
}

func (s *ApplicationService) Create(ctx context.Context, actor domain.Identity, in CreateApplicationInput) (*model.Application, error) {
	if !actor.IsFreelancer() {
		return nil, domain.NewAuthorizationError()
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	var app *model.Application

	// the job row lock orders this insert against a concurrent acceptance
	err := s.repo.WithTx(ctx, func(tx storage.Repository) error {
		job, err := s.loadJob(ctx, tx, in.JobID, true)
		if err != nil {
			return err
		}
		if job.Status != domain.JobStatusOpen {
			return domain.NewConflictError("job is not open for applications")
		}

		now := s.now()
		app = &model.Application{
			ID:           s.newID(),
			JobID:        job.ID,
			FreelancerID: actor.ID,
			Proposal:     in.Proposal,
			Price:        in.Price,
			Status:       domain.ApplicationStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		err = tx.CreateApplication(ctx, app)
		if errors.Is(err, storage.ErrDuplicate) {
			return domain.NewConflictError("already applied to this job")
		}
		return s.fail(err, "application")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Application created",
		slog.String("application_id", app.ID),
		slog.String("job_id", app.JobID),
		slog.String("freelancer_id", actor.ID),
	)
	s.publish(ctx, applicationEvent(events.ApplicationCreated, app, actor))

	return app, nil
}

// ListForJob returns the job's applications with freelancer profiles, for
// the job's employer only.
func (s *ApplicationService) ListForJob(ctx context.Context, actor domain.Identity, jobID string) ([]ApplicationView, error) {
	job, err := s.loadJob(ctx, s.repo, jobID, false)
	if err != nil {
		return nil, err
	}
	if job.EmployerID != actor.ID {
		return nil, domain.NewAuthorizationError()
	}

	apps, err := s.repo.ListApplicationsByJob(ctx, job.ID)
	if err != nil {
		return nil, s.fail(err, "application")
	}

	ids := make([]string, len(apps))
	for i, a := range apps {
		ids[i] = a.FreelancerID
	}
	users, err := s.repo.GetUsers(ctx, ids)
	if err != nil {
		return nil, s.fail(err, "user")
	}

	views := make([]ApplicationView, len(apps))
	for i, a := range apps {
		views[i] = ApplicationView{Application: a}
		if u, ok := users[a.FreelancerID]; ok {
			views[i].Freelancer = &u
		}
	}
	return views, nil
}

// ListMine returns the caller's applications with their jobs.
func (s *ApplicationService) ListMine(ctx context.Context, actor domain.Identity) ([]ApplicationView, error) {
	apps, err := s.repo.ListApplicationsByFreelancer(ctx, actor.ID)
	if err != nil {
		return nil, s.fail(err, "application")
	}

	ids := make([]string, len(apps))
	for i, a := range apps {
		ids[i] = a.JobID
	}
	jobs, err := s.repo.GetJobsByIDs(ctx, ids)
	if err != nil {
		return nil, s.fail(err, "job")
	}

	views := make([]ApplicationView, len(apps))
	for i, a := range apps {
		views[i] = ApplicationView{Application: a}
		if j, ok := jobs[a.JobID]; ok {
			views[i].Job = &j
		}
	}
	return views, nil
}

// UpdateStatus accepts or rejects an application. Acceptance is single
// winner: every other pending application of the job is rejected and the
// job starts with the winner assigned, all in one transaction.
func (s *ApplicationService) UpdateStatus(ctx context.Context, actor domain.Identity, applicationID string, status domain.ApplicationStatus) (*model.Application, error) {
	switch status {
	case domain.ApplicationStatusAccepted, domain.ApplicationStatusRejected:
	default:
		return nil, domain.NewFieldError("status", "must be accepted or rejected")
	}

	var (
		app      *model.Application
		job      *model.Job
		rejected int64
	)

	err := s.repo.WithTx(ctx, func(tx storage.Repository) error {
		target, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return s.fail(err, "application")
		}

		job, err = s.loadJob(ctx, tx, target.JobID, true)
		if err != nil {
			return err
		}
		if job.EmployerID != actor.ID {
			return domain.NewAuthorizationError()
		}

		// The job row lock serialises decisions on its applications, so
		// the status read before it was taken may already be stale.
		app, err = tx.GetApplication(ctx, applicationID)
		if err != nil {
			return s.fail(err, "application")
		}

		now := s.now()

		if status == domain.ApplicationStatusRejected {
			if app.Status != domain.ApplicationStatusPending {
				return domain.NewConflictError("application is already %s", app.Status)
			}
			if err := tx.UpdateApplicationStatus(ctx, app.ID, status, now); err != nil {
				return s.fail(err, "application")
			}
			app.Status = status
			app.UpdatedAt = now
			return nil
		}

		rejected, err = acceptApplication(ctx, tx, job, app, now)
		if err != nil {
			return s.fail(err, "application")
		}
		job.UpdatedAt = now
		return s.fail(tx.UpdateJob(ctx, job), "job")
	})
	if err != nil {
		return nil, err
	}

	if status == domain.ApplicationStatusRejected {
		s.logger.Info("Application rejected", slog.String("application_id", app.ID))
		s.publish(ctx, applicationEvent(events.ApplicationRejected, app, actor))
		return app, nil
	}

	s.logger.Info("Application accepted",
		slog.String("application_id", app.ID),
		slog.String("job_id", job.ID),
		slog.Int64("rejected_siblings", rejected),
	)
	s.publish(ctx,
		applicationEvent(events.ApplicationAccepted, app, actor),
		jobEvent(events.JobUpdated, job, actor),
	)
	return app, nil
}

// acceptApplication marks app accepted, rejects its pending siblings and
// assigns the freelancer on job. The caller holds the job row lock and
// persists job.
func acceptApplication(ctx context.Context, tx storage.Repository, job *model.Job, app *model.Application, now time.Time) (int64, error) {
	if app.JobID != job.ID {
		return 0, domain.NewConflictError("application belongs to another job")
	}
	if app.Status != domain.ApplicationStatusPending {
		return 0, domain.NewConflictError("application is already %s", app.Status)
	}
	if job.Status != domain.JobStatusOpen || job.FreelancerID != nil {
		return 0, domain.NewConflictError("job is no longer open")
	}

	if err := tx.UpdateApplicationStatus(ctx, app.ID, domain.ApplicationStatusAccepted, now); err != nil {
		return 0, err
	}

	rejected, err := tx.RejectPendingApplications(ctx, job.ID, app.ID, now)
	if err != nil {
		return 0, err
	}

	app.Status = domain.ApplicationStatusAccepted
	app.UpdatedAt = now

	freelancerID := app.FreelancerID
	job.FreelancerID = &freelancerID
	job.Status = domain.JobStatusInProgress
	return rejected, nil
}

func applicationEvent(t events.Type, app *model.Application, actor domain.Identity) events.Event {
	return events.Event{
		Type:     t,
		EntityID: app.ID,
		JobID:    app.JobID,
		ActorID:  actor.ID,
		Status:   string(app.Status),
	}
}
