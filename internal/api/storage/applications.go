package storage

import (
	"context"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/jmoiron/sqlx"
)

const applicationColumns = `id, job_id, freelancer_id, proposal, price, status, created_at, updated_at`

// CreateApplication relies on the (job_id, freelancer_id) unique index to
// reject duplicates with ErrDuplicate.
func (s *Store) CreateApplication(ctx context.Context, app *model.Application) error {
	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES (:id, :job_id, :freelancer_id, :proposal, :price, :status, :created_at, :updated_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, s.q, query, app); err != nil {
		return classify(err, "create application")
	}
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	var app model.Application
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`

	if err := sqlx.GetContext(ctx, s.q, &app, query, id); err != nil {
		return nil, classify(err, "get application")
	}
	return &app, nil
}

func (s *Store) FindApplication(ctx context.Context, jobID, freelancerID string) (*model.Application, error) {
	var app model.Application
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE job_id = $1 AND freelancer_id = $2`

	if err := sqlx.GetContext(ctx, s.q, &app, query, jobID, freelancerID); err != nil {
		return nil, classify(err, "find application")
	}
	return &app, nil
}

func (s *Store) ListApplicationsByJob(ctx context.Context, jobID string) ([]model.Application, error) {
	var apps []model.Application
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE job_id = $1 ORDER BY created_at DESC, id DESC`

	if err := sqlx.SelectContext(ctx, s.q, &apps, query, jobID); err != nil {
		return nil, classify(err, "list applications")
	}
	return apps, nil
}

func (s *Store) ListApplicationsByFreelancer(ctx context.Context, freelancerID string) ([]model.Application, error) {
	var apps []model.Application
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE freelancer_id = $1 ORDER BY created_at DESC, id DESC`

	if err := sqlx.SelectContext(ctx, s.q, &apps, query, freelancerID); err != nil {
		return nil, classify(err, "list applications")
	}
	return apps, nil
}

func (s *Store) CountApplicationsByJob(ctx context.Context, jobID string) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, s.q, &n, `SELECT COUNT(*) FROM applications WHERE job_id = $1`, jobID); err != nil {
		return 0, classify(err, "count applications")
	}
	return n, nil
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, id string, status domain.ApplicationStatus, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE applications SET status = $1, updated_at = $2 WHERE id = $3`,
		status, at, id,
	)
	if err != nil {
		return classify(err, "update application")
	}
	return requireAffected(res, "update application")
}

func (s *Store) RejectPendingApplications(ctx context.Context, jobID, exceptID string, at time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE applications
		SET status = $1, updated_at = $2
		WHERE job_id = $3 AND id <> $4 AND status = $5
	`, domain.ApplicationStatusRejected, at, jobID, exceptID, domain.ApplicationStatusPending)
	if err != nil {
		return 0, classify(err, "reject applications")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err, "reject applications")
	}
	return n, nil
}
