package storage

import (
	"context"

	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/jmoiron/sqlx"
)

const submissionColumns = `id, job_id, freelancer_id, title, description, attachments, status, feedback, created_at, updated_at`

func (s *Store) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	query := `
		INSERT INTO submissions (` + submissionColumns + `)
		VALUES (:id, :job_id, :freelancer_id, :title, :description, :attachments, :status, :feedback, :created_at, :updated_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, s.q, query, sub); err != nil {
		return classify(err, "create submission")
	}
	return nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	var sub model.Submission
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

	if err := sqlx.GetContext(ctx, s.q, &sub, query, id); err != nil {
		return nil, classify(err, "get submission")
	}
	return &sub, nil
}

func (s *Store) ListSubmissionsByJob(ctx context.Context, jobID string) ([]model.Submission, error) {
	var subs []model.Submission
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE job_id = $1 ORDER BY created_at DESC, id DESC`

	if err := sqlx.SelectContext(ctx, s.q, &subs, query, jobID); err != nil {
		return nil, classify(err, "list submissions")
	}
	return subs, nil
}

func (s *Store) UpdateSubmission(ctx context.Context, sub *model.Submission) error {
	res, err := sqlx.NamedExecContext(ctx, s.q, `
		UPDATE submissions
		SET status = :status, feedback = :feedback, updated_at = :updated_at
		WHERE id = :id
	`, sub)
	if err != nil {
		return classify(err, "update submission")
	}
	return requireAffected(res, "update submission")
}
