package service

import (
	"context"
	"testing"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/events"
	"github.com/cuongbtq/gigmarket-be/internal/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscrowService_Fund(t *testing.T) {
	ctx := context.Background()

	t.Run("opens, links and funds the contract", func(t *testing.T) {
		f := newFixture(t)
		job, escrow := f.fundedJob(t, 0.25)

		assert.Equal(t, 0.25, escrow.Balance)
		assert.False(t, escrow.IsPending())
		require.NotNil(t, job.EscrowContract)
		assert.Equal(t, escrow.ContractRef, *job.EscrowContract)

		state, err := f.ledger.GetState(ctx, escrow.ContractRef)
		require.NoError(t, err)
		assert.Equal(t, settlement.StateAwaitingDelivery, state.State)
		assert.Equal(t, "user:"+employer1.ID, state.EmployerAddr)
		assert.Equal(t, "user:"+freelancer1.ID, state.FreelancerAddr)
		assert.Contains(t, f.recorder.Types(), events.EscrowFunded)
	})

	t.Run("uses saved wallet addresses", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Users.UpdateMe(ctx, freelancer1, ProfileInput{WalletAddress: "0xfree"})
		require.NoError(t, err)

		_, escrow := f.fundedJob(t, 10)

		state, err := f.ledger.GetState(ctx, escrow.ContractRef)
		require.NoError(t, err)
		assert.Equal(t, "0xfree", state.FreelancerAddr)
	})

	t.Run("job must be in progress", func(t *testing.T) {
		f := newFixture(t)
		job := f.createJob(t, employer1)

		_, err := f.svc.Escrows.Fund(ctx, employer1, job.ID, FundEscrowInput{Amount: 10})
		assertKind(t, err, domain.KindConflict)
	})

	t.Run("only the job employer funds", func(t *testing.T) {
		f := newFixture(t)
		job := f.startedJob(t)

		for _, actor := range []domain.Identity{freelancer1, employer2} {
			_, err := f.svc.Escrows.Fund(ctx, actor, job.ID, FundEscrowInput{Amount: 10})
			assertKind(t, err, domain.KindAuthorization)
		}
	})

	t.Run("amount must be positive", func(t *testing.T) {
		f := newFixture(t)
		job := f.startedJob(t)

		_, err := f.svc.Escrows.Fund(ctx, employer1, job.ID, FundEscrowInput{Amount: 0})
		assertKind(t, err, domain.KindValidation)
	})

	t.Run("funding twice is a conflict", func(t *testing.T) {
		f := newFixture(t)
		job, _ := f.fundedJob(t, 10)

		_, err := f.svc.Escrows.Fund(ctx, employer1, job.ID, FundEscrowInput{Amount: 10})
		assertKind(t, err, domain.KindConflict)
	})

	t.Run("settlement down while opening leaves nothing behind", func(t *testing.T) {
		f := newFixture(t)
		job := f.startedJob(t)

		f.settle.failNext("open", 1)
		_, err := f.svc.Escrows.Fund(ctx, employer1, job.ID, FundEscrowInput{Amount: 10})
		assertKind(t, err, domain.KindExternalService)

		_, err = f.repo.GetEscrowByJob(ctx, job.ID)
		require.Error(t, err)
		assert.Nil(t, f.job(t, job.ID).EscrowContract)
	})

	t.Run("failed funding is re-driven by calling again", func(t *testing.T) {
		f := newFixture(t)
		job := f.startedJob(t)

		f.settle.failNext("fund", 1)
		_, err := f.svc.Escrows.Fund(ctx, employer1, job.ID, FundEscrowInput{Amount: 10})
		assertKind(t, err, domain.KindExternalService)
		assert.True(t, domain.AsError(err).Retryable())

		pending, err := f.repo.GetEscrowByJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EscrowAwaitingPayment, pending.State)
		assert.Equal(t, domain.EscrowActionFund, *pending.PendingAction)
		assert.Equal(t, 1, pending.Attempts)
		assert.Contains(t, pending.LastError, errNodeDown.Error())
		assert.Contains(t, f.recorder.Types(), events.EscrowReconcile)

		_, err = f.svc.Escrows.Fund(ctx, employer1, job.ID, FundEscrowInput{Amount: 20})
		assertKind(t, err, domain.KindConflict)

		funded, err := f.svc.Escrows.Fund(ctx, employer1, job.ID, FundEscrowInput{Amount: 10})
		require.NoError(t, err)
		assert.Equal(t, domain.EscrowAwaitingDelivery, funded.State)
		assert.Equal(t, 0, funded.Attempts)
		assert.Empty(t, funded.LastError)
	})
}

func TestEscrowService_Release(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		release       func(s *EscrowService, jobID string) error
		wantState     domain.EscrowState
		wantJobStatus domain.JobStatus
		wantEvent     events.Type
		payee         string
	}{
		{
			name: "confirm delivery pays the freelancer and completes the job",
			release: func(s *EscrowService, jobID string) error {
				_, err := s.ConfirmDelivery(ctx, employer1, jobID)
				return err
			},
			wantState:     domain.EscrowComplete,
			wantJobStatus: domain.JobStatusCompleted,
			wantEvent:     events.EscrowCompleted,
			payee:         "user:" + freelancer1.ID,
		},
		{
			name: "refund repays the employer and cancels the job",
			release: func(s *EscrowService, jobID string) error {
				_, err := s.Refund(ctx, employer1, jobID)
				return err
			},
			wantState:     domain.EscrowRefunded,
			wantJobStatus: domain.JobStatusCancelled,
			wantEvent:     events.EscrowRefunded,
			payee:         "user:" + employer1.ID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			job, escrow := f.fundedJob(t, 300)

			require.NoError(t, tt.release(f.svc.Escrows, job.ID))

			stored := f.escrow(t, escrow.ID)
			assert.Equal(t, tt.wantState, stored.State)
			assert.Zero(t, stored.Balance)
			assert.False(t, stored.IsPending())

			storedJob := f.job(t, job.ID)
			assert.Equal(t, tt.wantJobStatus, storedJob.Status)
			assertFreelancerInvariant(t, storedJob)
			assert.Contains(t, f.recorder.Types(), tt.wantEvent)

			paid, err := f.ledger.BalanceOf(ctx, tt.payee)
			require.NoError(t, err)
			assert.Equal(t, 300.0, paid)

			// terminal states are immutable
			_, err = f.svc.Escrows.ConfirmDelivery(ctx, employer1, job.ID)
			assertKind(t, err, domain.KindConflict)
			_, err = f.svc.Escrows.Refund(ctx, employer1, job.ID)
			assertKind(t, err, domain.KindConflict)

			paid, err = f.ledger.BalanceOf(ctx, tt.payee)
			require.NoError(t, err)
			assert.Equal(t, 300.0, paid, "no duplicate payout")
		})
	}
}

func TestEscrowService_ReleaseRules(t *testing.T) {
	ctx := context.Background()

	t.Run("freelancer cannot release", func(t *testing.T) {
		f := newFixture(t)
		job, _ := f.fundedJob(t, 10)

		_, err := f.svc.Escrows.ConfirmDelivery(ctx, freelancer1, job.ID)
		assertKind(t, err, domain.KindAuthorization)
		_, err = f.svc.Escrows.Refund(ctx, freelancer1, job.ID)
		assertKind(t, err, domain.KindAuthorization)
	})

	t.Run("job without escrow", func(t *testing.T) {
		f := newFixture(t)
		job := f.startedJob(t)

		_, err := f.svc.Escrows.ConfirmDelivery(ctx, employer1, job.ID)
		assertKind(t, err, domain.KindNotFound)
	})

	t.Run("unfunded escrow cannot be released", func(t *testing.T) {
		f := newFixture(t)
		job := f.startedJob(t)
		f.settle.failNext("fund", 1)
		_, _ = f.svc.Escrows.Fund(ctx, employer1, job.ID, FundEscrowInput{Amount: 10})

		_, err := f.svc.Escrows.Refund(ctx, employer1, job.ID)
		assertKind(t, err, domain.KindConflict)
	})

	t.Run("a pending confirm blocks a refund", func(t *testing.T) {
		f := newFixture(t)
		job, _ := f.fundedJob(t, 10)

		f.settle.failNext("confirm", 1)
		_, err := f.svc.Escrows.ConfirmDelivery(ctx, employer1, job.ID)
		assertKind(t, err, domain.KindExternalService)

		_, err = f.svc.Escrows.Refund(ctx, employer1, job.ID)
		assertKind(t, err, domain.KindConflict)

		// repeating the same action re-drives it
		released, err := f.svc.Escrows.ConfirmDelivery(ctx, employer1, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EscrowComplete, released.State)
	})
}

func TestEscrowService_Reconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("ledger moved but local apply failed", func(t *testing.T) {
		f := newFixture(t)
		job, escrow := f.fundedJob(t, 40)

		// the refund lands on the ledger, reading it back fails
		f.settle.failNext("get_state", 1)
		_, err := f.svc.Escrows.Refund(ctx, employer1, job.ID)
		assertKind(t, err, domain.KindExternalService)

		state, err := f.ledger.GetState(ctx, escrow.ContractRef)
		require.NoError(t, err)
		assert.Equal(t, settlement.StateRefunded, state.State)
		assert.Equal(t, domain.JobStatusInProgress, f.job(t, job.ID).Status)
		assert.True(t, f.escrow(t, escrow.ID).IsPending())

		ids, err := f.svc.Escrows.PendingEscrowIDs(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{escrow.ID}, ids)

		reconciled, err := f.svc.Escrows.Reconcile(ctx, escrow.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EscrowRefunded, reconciled.State)
		assert.Equal(t, domain.JobStatusCancelled, f.job(t, job.ID).Status)

		refunded, err := f.ledger.BalanceOf(ctx, "user:"+employer1.ID)
		require.NoError(t, err)
		assert.Equal(t, 40.0, refunded, "repeated refund call is not paid twice")

		ids, err = f.svc.Escrows.PendingEscrowIDs(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("reconciling a settled escrow is a no-op", func(t *testing.T) {
		f := newFixture(t)
		_, escrow := f.fundedJob(t, 40)
		calls := f.settle.callCount("fund")

		reconciled, err := f.svc.Escrows.Reconcile(ctx, escrow.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EscrowAwaitingDelivery, reconciled.State)
		assert.Equal(t, calls, f.settle.callCount("fund"))
	})

	t.Run("still unavailable keeps counting attempts", func(t *testing.T) {
		f := newFixture(t)
		job, escrow := f.fundedJob(t, 40)

		f.settle.failNext("confirm", 3)
		_, err := f.svc.Escrows.ConfirmDelivery(ctx, employer1, job.ID)
		assertKind(t, err, domain.KindExternalService)

		_, err = f.svc.Escrows.Reconcile(ctx, escrow.ID)
		assertKind(t, err, domain.KindExternalService)
		_, err = f.svc.Escrows.Reconcile(ctx, escrow.ID)
		assertKind(t, err, domain.KindExternalService)
		assert.Equal(t, 3, f.escrow(t, escrow.ID).Attempts)

		_, err = f.svc.Escrows.Reconcile(ctx, escrow.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EscrowComplete, f.escrow(t, escrow.ID).State)
		assert.Equal(t, domain.JobStatusCompleted, f.job(t, job.ID).Status)
	})

	t.Run("ledger diverged from the pending action", func(t *testing.T) {
		f := newFixture(t)
		job, escrow := f.fundedJob(t, 40)

		f.settle.failNext("confirm", 1)
		_, err := f.svc.Escrows.ConfirmDelivery(ctx, employer1, job.ID)
		assertKind(t, err, domain.KindExternalService)

		// refunded out of band on the ledger
		require.NoError(t, f.ledger.Refund(ctx, escrow.ContractRef))

		_, err = f.svc.Escrows.Reconcile(ctx, escrow.ID)
		assertKind(t, err, domain.KindConflict)

		stored := f.escrow(t, escrow.ID)
		assert.Equal(t, domain.EscrowRefunded, stored.State)
		assert.False(t, stored.IsPending())
		assert.Equal(t, domain.JobStatusCancelled, f.job(t, job.ID).Status)
	})
}

func TestEscrowService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("participants read, others are refused", func(t *testing.T) {
		f := newFixture(t)
		job, escrow := f.fundedJob(t, 5)

		for _, actor := range []domain.Identity{employer1, freelancer1} {
			got, err := f.svc.Escrows.Get(ctx, actor, job.ID)
			require.NoError(t, err)
			assert.Equal(t, escrow.ID, got.ID)
		}

		_, err := f.svc.Escrows.Get(ctx, freelancer2, job.ID)
		assertKind(t, err, domain.KindAuthorization)
	})

	t.Run("reading a pending escrow reconciles it", func(t *testing.T) {
		f := newFixture(t)
		job, _ := f.fundedJob(t, 5)

		f.settle.failNext("confirm", 1)
		_, err := f.svc.Escrows.ConfirmDelivery(ctx, employer1, job.ID)
		assertKind(t, err, domain.KindExternalService)

		got, err := f.svc.Escrows.Get(ctx, freelancer1, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EscrowComplete, got.State)
		assert.Equal(t, domain.JobStatusCompleted, f.job(t, job.ID).Status)
	})

	t.Run("read falls back to stored state while settlement is down", func(t *testing.T) {
		f := newFixture(t)
		job, _ := f.fundedJob(t, 5)

		f.settle.failNext("confirm", 2)
		_, err := f.svc.Escrows.ConfirmDelivery(ctx, employer1, job.ID)
		assertKind(t, err, domain.KindExternalService)

		got, err := f.svc.Escrows.Get(ctx, employer1, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.EscrowAwaitingDelivery, got.State)
		assert.True(t, got.IsPending())
		assert.Equal(t, 2, got.Attempts)
	})
}
