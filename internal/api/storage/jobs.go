package storage

import (
	"context"
	"fmt"

	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	id, title, description, skills, budget, deadline, domain, status,
	employer_id, freelancer_id, escrow_contract, created_at, updated_at, completed_at`

func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO jobs (
			id, title, description, skills, budget, deadline, domain, status,
			employer_id, freelancer_id, escrow_contract, created_at, updated_at, completed_at
		) VALUES (
			:id, :title, :description, :skills, :budget, :deadline, :domain, :status,
			:employer_id, :freelancer_id, :escrow_contract, :created_at, :updated_at, :completed_at
		)
	`

	if _, err := sqlx.NamedExecContext(ctx, s.q, query, job); err != nil {
		return classify(err, "create job")
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	if err := sqlx.GetContext(ctx, s.q, &job, query, id); err != nil {
		return nil, classify(err, "get job")
	}
	return &job, nil
}

func (s *Store) GetJobForUpdate(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 FOR UPDATE`

	if err := sqlx.GetContext(ctx, s.q, &job, query, id); err != nil {
		return nil, classify(err, "lock job")
	}
	return &job, nil
}

func (s *Store) UpdateJob(ctx context.Context, job *model.Job) error {
	query := `
		UPDATE jobs SET
			title = :title,
			description = :description,
			skills = :skills,
			budget = :budget,
			deadline = :deadline,
			domain = :domain,
			status = :status,
			freelancer_id = :freelancer_id,
			escrow_contract = :escrow_contract,
			updated_at = :updated_at,
			completed_at = :completed_at
		WHERE id = :id
	`

	res, err := sqlx.NamedExecContext(ctx, s.q, query, job)
	if err != nil {
		return classify(err, "update job")
	}
	return requireAffected(res, "update job")
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return classify(err, "delete job")
	}
	return requireAffected(res, "delete job")
}

func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Domain != "" {
		query += fmt.Sprintf(" AND domain = $%d", argIdx)
		args = append(args, filter.Domain)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.EmployerID != "" {
		query += fmt.Sprintf(" AND employer_id = $%d", argIdx)
		args = append(args, filter.EmployerID)
		argIdx++
	}

	if filter.Keyword != "" {
		query += fmt.Sprintf(
			" AND (title ILIKE $%d OR description ILIKE $%d OR EXISTS (SELECT 1 FROM unnest(skills) AS skill WHERE skill ILIKE $%d))",
			argIdx, argIdx, argIdx,
		)
		args = append(args, "%"+escapeLike(filter.Keyword)+"%")
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// created_at, id DESC keeps pagination stable for equal timestamps
	query += " ORDER BY created_at DESC, id DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	if err := sqlx.SelectContext(ctx, s.q, &jobs, query, args...); err != nil {
		return nil, classify(err, "list jobs")
	}
	return jobs, nil
}

func (s *Store) GetJobsByIDs(ctx context.Context, ids []string) (map[string]model.Job, error) {
	result := make(map[string]model.Job, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT `+jobColumns+` FROM jobs WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build jobs query: %w", err)
	}

	var jobs []model.Job
	if err := sqlx.SelectContext(ctx, s.q, &jobs, s.q.Rebind(query), args...); err != nil {
		return nil, classify(err, "get jobs")
	}

	for _, job := range jobs {
		result[job.ID] = job
	}
	return result, nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
