package storage

import (
	"context"

	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/jmoiron/sqlx"
)

const escrowColumns = `
	id, job_id, contract_ref, employer_id, freelancer_id, amount, balance, state,
	pending_action, pending_submission_id, attempts, last_error, created_at, updated_at`

func (s *Store) CreateEscrow(ctx context.Context, escrow *model.Escrow) error {
	query := `
		INSERT INTO escrows (` + escrowColumns + `)
		VALUES (
			:id, :job_id, :contract_ref, :employer_id, :freelancer_id, :amount, :balance, :state,
			:pending_action, :pending_submission_id, :attempts, :last_error, :created_at, :updated_at
		)
	`

	if _, err := sqlx.NamedExecContext(ctx, s.q, query, escrow); err != nil {
		return classify(err, "create escrow")
	}
	return nil
}

func (s *Store) GetEscrow(ctx context.Context, id string) (*model.Escrow, error) {
	var escrow model.Escrow
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1`

	if err := sqlx.GetContext(ctx, s.q, &escrow, query, id); err != nil {
		return nil, classify(err, "get escrow")
	}
	return &escrow, nil
}

func (s *Store) GetEscrowByJob(ctx context.Context, jobID string) (*model.Escrow, error) {
	var escrow model.Escrow
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE job_id = $1`

	if err := sqlx.GetContext(ctx, s.q, &escrow, query, jobID); err != nil {
		return nil, classify(err, "get escrow")
	}
	return &escrow, nil
}

func (s *Store) GetEscrowForUpdate(ctx context.Context, id string) (*model.Escrow, error) {
	var escrow model.Escrow
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1 FOR UPDATE`

	if err := sqlx.GetContext(ctx, s.q, &escrow, query, id); err != nil {
		return nil, classify(err, "lock escrow")
	}
	return &escrow, nil
}

func (s *Store) UpdateEscrow(ctx context.Context, escrow *model.Escrow) error {
	res, err := sqlx.NamedExecContext(ctx, s.q, `
		UPDATE escrows SET
			contract_ref = :contract_ref,
			amount = :amount,
			balance = :balance,
			state = :state,
			pending_action = :pending_action,
			pending_submission_id = :pending_submission_id,
			attempts = :attempts,
			last_error = :last_error,
			updated_at = :updated_at
		WHERE id = :id
	`, escrow)
	if err != nil {
		return classify(err, "update escrow")
	}
	return requireAffected(res, "update escrow")
}

// ListPendingEscrows returns escrows awaiting reconciliation, oldest first.
func (s *Store) ListPendingEscrows(ctx context.Context, limit int) ([]model.Escrow, error) {
	var escrows []model.Escrow
	query := `
		SELECT ` + escrowColumns + `
		FROM escrows
		WHERE pending_action IS NOT NULL
		ORDER BY updated_at ASC
		LIMIT $1
	`

	if err := sqlx.SelectContext(ctx, s.q, &escrows, query, limit); err != nil {
		return nil, classify(err, "list pending escrows")
	}
	return escrows, nil
}
