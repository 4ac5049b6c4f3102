package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Credit moves released funds to a party address.
type Credit struct {
	Addr   string
	Amount float64
}

// LedgerStore persists contracts and party balances for the Ledger.
type LedgerStore interface {
	Insert(ctx context.Context, c *ContractState) error
	Get(ctx context.Context, ref string) (*ContractState, error)
	// Mutate loads the contract, applies fn and saves the result together
	// with the returned credit in one atomic step.
	Mutate(ctx context.Context, ref string, fn func(c *ContractState) (*Credit, error)) error
	BalanceOf(ctx context.Context, addr string) (float64, error)
}

// Ledger is an in-process simulated settlement network.
type Ledger struct {
	store   LedgerStore
	logger  *slog.Logger
	latency time.Duration
	now     func() time.Time
}

// LedgerOption customises a Ledger.
type LedgerOption func(*Ledger)

// WithLatency delays every call, honouring context cancellation.
func WithLatency(d time.Duration) LedgerOption {
	return func(l *Ledger) { l.latency = d }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a Ledger backed by store.
func NewLedger(store LedgerStore, logger *slog.Logger, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ Client = (*Ledger)(nil)

func (l *Ledger) Open(ctx context.Context, req OpenRequest) (string, error) {
	if err := l.wait(ctx); err != nil {
		return "", err
	}

	now := l.now().UTC()
	c := &ContractState{
		Ref:            "0x" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		JobID:          req.JobID,
		State:          StateAwaitingPayment,
		EmployerAddr:   req.EmployerAddr,
		FreelancerAddr: req.FreelancerAddr,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := l.store.Insert(ctx, c); err != nil {
		return "", fmt.Errorf("failed to open contract: %w", err)
	}

	l.logger.Info("Settlement contract opened",
		slog.String("ref", c.Ref),
		slog.String("job_id", req.JobID),
	)
	return c.Ref, nil
}

// Fund moves amount into custody. Repeating a fund call with the same
// amount after it landed is a no-op.
func (l *Ledger) Fund(ctx context.Context, ref string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := l.wait(ctx); err != nil {
		return err
	}

	return l.store.Mutate(ctx, ref, func(c *ContractState) (*Credit, error) {
		switch {
		case c.State == StateAwaitingPayment:
			c.State = StateAwaitingDelivery
			c.Balance = amount
			c.UpdatedAt = l.now().UTC()
			l.logger.Info("Settlement contract funded",
				slog.String("ref", ref),
				slog.Float64("amount", amount),
			)
			return nil, nil
		case c.State == StateAwaitingDelivery && c.Balance == amount:
			return nil, nil
		default:
			return nil, fmt.Errorf("fund in state %s: %w", c.State, ErrInvalidState)
		}
	})
}

// ConfirmDelivery releases the balance to the freelancer. Confirming an
// already completed contract is a no-op.
func (l *Ledger) ConfirmDelivery(ctx context.Context, ref string) error {
	return l.release(ctx, ref, StateComplete, func(c *ContractState) string { return c.FreelancerAddr })
}

// Refund returns the balance to the employer. Refunding an already
// refunded contract is a no-op.
func (l *Ledger) Refund(ctx context.Context, ref string) error {
	return l.release(ctx, ref, StateRefunded, func(c *ContractState) string { return c.EmployerAddr })
}

func (l *Ledger) release(ctx context.Context, ref string, target State, payee func(*ContractState) string) error {
	if err := l.wait(ctx); err != nil {
		return err
	}

	return l.store.Mutate(ctx, ref, func(c *ContractState) (*Credit, error) {
		switch c.State {
		case target:
			return nil, nil
		case StateAwaitingDelivery:
			credit := &Credit{Addr: payee(c), Amount: c.Balance}
			c.State = target
			c.Balance = 0
			c.UpdatedAt = l.now().UTC()
			l.logger.Info("Settlement contract released",
				slog.String("ref", ref),
				slog.String("state", string(target)),
				slog.Float64("amount", credit.Amount),
			)
			return credit, nil
		default:
			return nil, fmt.Errorf("move to %s from %s: %w", target, c.State, ErrInvalidState)
		}
	})
}

func (l *Ledger) GetState(ctx context.Context, ref string) (*ContractState, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.store.Get(ctx, ref)
}

// BalanceOf returns the funds released to addr so far.
func (l *Ledger) BalanceOf(ctx context.Context, addr string) (float64, error) {
	return l.store.BalanceOf(ctx, addr)
}

func (l *Ledger) wait(ctx context.Context) error {
	if l.latency <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(l.latency)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
