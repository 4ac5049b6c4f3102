// Package settlement is the external custody collaborator behind escrows.
// The only implementation is a simulated ledger that follows the same
// contract state machine a settlement network would.
package settlement

import (
	"context"
	"errors"
	"time"
)

// State is the contract state as reported by the ledger.
type State string

const (
	StateAwaitingPayment  State = "AWAITING_PAYMENT"
	StateAwaitingDelivery State = "AWAITING_DELIVERY"
	StateComplete         State = "COMPLETE"
	StateRefunded         State = "REFUNDED"
)

func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateRefunded
}

var (
	ErrContractNotFound = errors.New("settlement contract not found")
	ErrInvalidState     = errors.New("settlement contract state does not allow this call")
	ErrInvalidAmount    = errors.New("settlement amount must be positive")
)

// IsPermanent reports whether retrying err can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrContractNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInvalidAmount)
}

// OpenRequest describes the parties of a new contract.
type OpenRequest struct {
	JobID          string
	EmployerAddr   string
	FreelancerAddr string
}

// ContractState is the observable state of a contract.
type ContractState struct {
	Ref            string    `db:"ref"`
	JobID          string    `db:"job_id"`
	State          State     `db:"state"`
	Balance        float64   `db:"balance"`
	EmployerAddr   string    `db:"employer_addr"`
	FreelancerAddr string    `db:"freelancer_addr"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Client is the settlement interface the escrow service depends on.
type Client interface {
	Open(ctx context.Context, req OpenRequest) (string, error)
	Fund(ctx context.Context, ref string, amount float64) error
	ConfirmDelivery(ctx context.Context, ref string) error
	Refund(ctx context.Context, ref string) error
	GetState(ctx context.Context, ref string) (*ContractState, error)
}
