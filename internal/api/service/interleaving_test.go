package service

import (
	"context"
	"sync"
	"testing"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/api/storage"
	"github.com/cuongbtq/gigmarket-be/internal/validator"
	"github.com/cuongbtq/gigmarket-be/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// interleavedRepo commits every statement on its own and runs onJobLock
// once, right before the next job row lock is granted. The callback
// stands in for a concurrent request that committed while the caller
// was blocked on that lock.
type interleavedRepo struct {
	storage.Repository

	mu        sync.Mutex
	onJobLock func()
}

func (r *interleavedRepo) WithTx(ctx context.Context, fn func(tx storage.Repository) error) error {
	return fn(r)
}

func (r *interleavedRepo) GetJobForUpdate(ctx context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	hook := r.onJobLock
	r.onJobLock = nil
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return r.Repository.GetJobForUpdate(ctx, id)
}

func (r *interleavedRepo) beforeNextJobLock(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onJobLock = fn
}

// newInterleavedFixture is newFixture with the services running on an
// interleavedRepo over the same store, ledger and clock.
func newInterleavedFixture(t *testing.T) (*fixture, *interleavedRepo) {
	t.Helper()

	f := newFixture(t)
	repo := &interleavedRepo{Repository: f.repo}
	f.svc = New(Dependencies{
		Repo:       repo,
		Settlement: f.settle,
		Publisher:  f.recorder,
		Validator:  validator.NewWithClock(f.clock.Now),
		Logger:     logger.NewDiscard().Logger,
		Clock:      f.clock.Now,
	})
	return f, repo
}

func TestApplicationService_UpdateStatusWhileLockHeld(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		decide     domain.ApplicationStatus
		meanwhile  domain.ApplicationStatus
		wantStatus domain.ApplicationStatus
		wantJob    domain.JobStatus
		wantAssign bool
	}{
		{
			name:       "reject after a committed accept",
			decide:     domain.ApplicationStatusRejected,
			meanwhile:  domain.ApplicationStatusAccepted,
			wantStatus: domain.ApplicationStatusAccepted,
			wantJob:    domain.JobStatusInProgress,
			wantAssign: true,
		},
		{
			name:       "accept after a committed reject",
			decide:     domain.ApplicationStatusAccepted,
			meanwhile:  domain.ApplicationStatusRejected,
			wantStatus: domain.ApplicationStatusRejected,
			wantJob:    domain.JobStatusOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, repo := newInterleavedFixture(t)
			job := f.createJob(t, employer1)
			app := f.apply(t, freelancer1, job.ID, 400)

			repo.beforeNextJobLock(func() {
				_, err := f.svc.Applications.UpdateStatus(ctx, employer1, app.ID, tt.meanwhile)
				require.NoError(t, err)
			})

			_, err := f.svc.Applications.UpdateStatus(ctx, employer1, app.ID, tt.decide)
			assertKind(t, err, domain.KindConflict)

			assert.Equal(t, tt.wantStatus, f.application(t, app.ID).Status)

			stored := f.job(t, job.ID)
			assert.Equal(t, tt.wantJob, stored.Status)
			if tt.wantAssign {
				require.NotNil(t, stored.FreelancerID)
				assert.Equal(t, freelancer1.ID, *stored.FreelancerID)
			} else {
				assert.Nil(t, stored.FreelancerID)
			}
		})
	}

	t.Run("accept after a rival was accepted", func(t *testing.T) {
		f, repo := newInterleavedFixture(t)
		job := f.createJob(t, employer1)
		mine := f.apply(t, freelancer1, job.ID, 400)
		rival := f.apply(t, freelancer2, job.ID, 300)

		repo.beforeNextJobLock(func() {
			_, err := f.svc.Applications.UpdateStatus(ctx, employer1, rival.ID, domain.ApplicationStatusAccepted)
			require.NoError(t, err)
		})

		_, err := f.svc.Applications.UpdateStatus(ctx, employer1, mine.ID, domain.ApplicationStatusAccepted)
		assertKind(t, err, domain.KindConflict)

		assert.Equal(t, domain.ApplicationStatusRejected, f.application(t, mine.ID).Status)
		assert.Equal(t, domain.ApplicationStatusAccepted, f.application(t, rival.ID).Status)
		stored := f.job(t, job.ID)
		require.NotNil(t, stored.FreelancerID)
		assert.Equal(t, freelancer2.ID, *stored.FreelancerID)
	})
}

func TestSubmissionService_ApproveWhileEscrowFunded(t *testing.T) {
	ctx := context.Background()

	t.Run("funds landing before the lock route approval through the escrow", func(t *testing.T) {
		f, repo := newInterleavedFixture(t)
		job := f.startedJob(t)
		sub := f.submit(t, job.ID, "delivery")

		var funded *model.Escrow
		repo.beforeNextJobLock(func() {
			var err error
			funded, err = f.svc.Escrows.Fund(ctx, employer1, job.ID, FundEscrowInput{Amount: 120})
			require.NoError(t, err)
		})

		approved, err := f.svc.Submissions.UpdateStatus(ctx, employer1, sub.ID, ReviewInput{
			Status:   domain.SubmissionStatusApproved,
			Feedback: "great work",
		})
		require.NoError(t, err)
		require.NotNil(t, funded)
		assert.Equal(t, domain.SubmissionStatusApproved, approved.Status)
		assert.Equal(t, "great work", approved.Feedback)

		stored := f.escrow(t, funded.ID)
		assert.Equal(t, domain.EscrowComplete, stored.State)
		assert.Zero(t, stored.Balance)
		assert.Equal(t, domain.JobStatusCompleted, f.job(t, job.ID).Status)

		paid, err := f.ledger.BalanceOf(ctx, "user:"+freelancer1.ID)
		require.NoError(t, err)
		assert.InDelta(t, 120, paid, 1e-9)
	})

	t.Run("an escrow opened before the lock but not funded blocks approval", func(t *testing.T) {
		f, repo := newInterleavedFixture(t)
		job := f.startedJob(t)
		sub := f.submit(t, job.ID, "delivery")

		repo.beforeNextJobLock(func() {
			f.settle.failNext("fund", 1)
			_, err := f.svc.Escrows.Fund(ctx, employer1, job.ID, FundEscrowInput{Amount: 120})
			assertKind(t, err, domain.KindExternalService)
		})

		_, err := f.svc.Submissions.UpdateStatus(ctx, employer1, sub.ID, ReviewInput{Status: domain.SubmissionStatusApproved})
		assertKind(t, err, domain.KindConflict)

		assert.Equal(t, domain.SubmissionStatusSubmitted, f.submission(t, sub.ID).Status)
		assert.Equal(t, domain.JobStatusInProgress, f.job(t, job.ID).Status)
	})
}
