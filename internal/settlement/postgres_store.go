package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps ledger state in the settlement_contracts and
// settlement_balances tables so that the api and worker services observe
// the same ledger.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const contractColumns = `ref, job_id, state, balance, employer_addr, freelancer_addr, created_at, updated_at`

func (p *PostgresStore) Insert(ctx context.Context, c *ContractState) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO settlement_contracts (`+contractColumns+`)
		VALUES (:ref, :job_id, :state, :balance, :employer_addr, :freelancer_addr, :created_at, :updated_at)
	`, c)
	if err != nil {
		return fmt.Errorf("failed to insert contract: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, ref string) (*ContractState, error) {
	var c ContractState
	err := p.db.GetContext(ctx, &c, `SELECT `+contractColumns+` FROM settlement_contracts WHERE ref = $1`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return &c, nil
}

func (p *PostgresStore) Mutate(ctx context.Context, ref string, fn func(c *ContractState) (*Credit, error)) (err error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var c ContractState
	err = tx.GetContext(ctx, &c, `SELECT `+contractColumns+` FROM settlement_contracts WHERE ref = $1 FOR UPDATE`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrContractNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock contract: %w", err)
	}

	credit, err := fn(&c)
	if err != nil {
		return err
	}

	if _, err = tx.NamedExecContext(ctx, `
		UPDATE settlement_contracts
		SET state = :state, balance = :balance, updated_at = :updated_at
		WHERE ref = :ref
	`, &c); err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}

	if credit != nil {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO settlement_balances (addr, balance) VALUES ($1, $2)
			ON CONFLICT (addr) DO UPDATE SET balance = settlement_balances.balance + EXCLUDED.balance
		`, credit.Addr, credit.Amount); err != nil {
			return fmt.Errorf("failed to credit balance: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) BalanceOf(ctx context.Context, addr string) (float64, error) {
	var balance float64
	err := p.db.GetContext(ctx, &balance, `SELECT balance FROM settlement_balances WHERE addr = $1`, addr)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}
