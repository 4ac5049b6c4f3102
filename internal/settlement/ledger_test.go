package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/gigmarket-be/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(opts ...LedgerOption) *Ledger {
	return NewLedger(NewMemoryStore(), logger.NewDiscard().Logger, opts...)
}

func openContract(t *testing.T, l *Ledger) string {
	t.Helper()
	ref, err := l.Open(context.Background(), OpenRequest{
		JobID:          "job-1",
		EmployerAddr:   "0xemployer",
		FreelancerAddr: "0xfreelancer",
	})
	require.NoError(t, err)
	return ref
}

func TestLedger_Lifecycle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name           string
		settle         func(l *Ledger, ref string) error
		wantState      State
		wantEmployer   float64
		wantFreelancer float64
	}{
		{
			name:           "confirm delivery pays the freelancer",
			settle:         func(l *Ledger, ref string) error { return l.ConfirmDelivery(ctx, ref) },
			wantState:      StateComplete,
			wantFreelancer: 150,
		},
		{
			name:         "refund returns funds to the employer",
			settle:       func(l *Ledger, ref string) error { return l.Refund(ctx, ref) },
			wantState:    StateRefunded,
			wantEmployer: 150,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger()
			ref := openContract(t, l)

			state, err := l.GetState(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, StateAwaitingPayment, state.State)
			assert.Equal(t, "job-1", state.JobID)

			require.NoError(t, l.Fund(ctx, ref, 150))

			state, err = l.GetState(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, StateAwaitingDelivery, state.State)
			assert.Equal(t, 150.0, state.Balance)

			require.NoError(t, tt.settle(l, ref))
			// repeating the settling call is a no-op
			require.NoError(t, tt.settle(l, ref))

			state, err = l.GetState(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, state.State)
			assert.Zero(t, state.Balance)

			employer, err := l.BalanceOf(ctx, "0xemployer")
			require.NoError(t, err)
			freelancer, err := l.BalanceOf(ctx, "0xfreelancer")
			require.NoError(t, err)
			assert.Equal(t, tt.wantEmployer, employer)
			assert.Equal(t, tt.wantFreelancer, freelancer)
		})
	}
}

func TestLedger_InvalidCalls(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		prepare func(l *Ledger, ref string)
		call    func(l *Ledger, ref string) error
		wantErr error
	}{
		{
			name:    "unknown contract",
			call:    func(l *Ledger, ref string) error { return l.Fund(ctx, "0xmissing", 10) },
			wantErr: ErrContractNotFound,
		},
		{
			name:    "non-positive amount",
			call:    func(l *Ledger, ref string) error { return l.Fund(ctx, ref, 0) },
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "confirm before funding",
			call:    func(l *Ledger, ref string) error { return l.ConfirmDelivery(ctx, ref) },
			wantErr: ErrInvalidState,
		},
		{
			name:    "refund before funding",
			call:    func(l *Ledger, ref string) error { return l.Refund(ctx, ref) },
			wantErr: ErrInvalidState,
		},
		{
			name:    "fund twice with a different amount",
			prepare: func(l *Ledger, ref string) { _ = l.Fund(ctx, ref, 10) },
			call:    func(l *Ledger, ref string) error { return l.Fund(ctx, ref, 20) },
			wantErr: ErrInvalidState,
		},
		{
			name: "refund after completion",
			prepare: func(l *Ledger, ref string) {
				_ = l.Fund(ctx, ref, 10)
				_ = l.ConfirmDelivery(ctx, ref)
			},
			call:    func(l *Ledger, ref string) error { return l.Refund(ctx, ref) },
			wantErr: ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger()
			ref := openContract(t, l)
			if tt.prepare != nil {
				tt.prepare(l, ref)
			}

			err := tt.call(l, ref)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsPermanent(err))
		})
	}
}

func TestLedger_FundIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	ref := openContract(t, l)

	require.NoError(t, l.Fund(ctx, ref, 75))
	require.NoError(t, l.Fund(ctx, ref, 75))

	state, err := l.GetState(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 75.0, state.Balance)
}

func TestLedger_LatencyHonoursContext(t *testing.T) {
	l := newTestLedger(WithLatency(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.Open(ctx, OpenRequest{JobID: "job-1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsPermanent(err))
}
