package service

import (
	"context"
	"sync"
	"testing"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("freelancer applies to an open job", func(t *testing.T) {
		f := newFixture(t)
		job := f.createJob(t, employer1)

		app := f.apply(t, freelancer1, job.ID, 400)
		assert.Equal(t, domain.ApplicationStatusPending, app.Status)
		assert.Equal(t, freelancer1.ID, app.FreelancerID)
		assert.Contains(t, f.recorder.Types(), events.ApplicationCreated)
	})

	t.Run("only freelancers apply", func(t *testing.T) {
		f := newFixture(t)
		job := f.createJob(t, employer1)

		for _, actor := range []domain.Identity{employer2, verifier1} {
			_, err := f.svc.Applications.Create(ctx, actor, CreateApplicationInput{JobID: job.ID, Proposal: "p", Price: 10})
			assertKind(t, err, domain.KindAuthorization)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Applications.Create(ctx, freelancer1, CreateApplicationInput{
			JobID:    "0b7f6f5e-9a55-4c55-8c2e-6a1f0b0e2f3a",
			Proposal: "p",
			Price:    10,
		})
		assertKind(t, err, domain.KindNotFound)
	})

	t.Run("price must be positive", func(t *testing.T) {
		f := newFixture(t)
		job := f.createJob(t, employer1)

		_, err := f.svc.Applications.Create(ctx, freelancer1, CreateApplicationInput{JobID: job.ID, Proposal: "p", Price: 0})
		assertKind(t, err, domain.KindValidation)
		assert.Equal(t, "must be greater than 0", domain.AsError(err).Fields["price"])
	})

	t.Run("second application by the same freelancer", func(t *testing.T) {
		f := newFixture(t)
		job := f.createJob(t, employer1)
		f.apply(t, freelancer1, job.ID, 400)

		_, err := f.svc.Applications.Create(ctx, freelancer1, CreateApplicationInput{JobID: job.ID, Proposal: "again", Price: 350})
		assertKind(t, err, domain.KindConflict)

		apps, err := f.repo.ListApplicationsByJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Len(t, apps, 1)
	})
}

func TestApplicationService_Lists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Users.UpdateMe(ctx, freelancer1, ProfileInput{Skills: []string{"go", "sql", "k8s"}})
	require.NoError(t, err)

	job := f.createJob(t, employer1)
	f.apply(t, freelancer1, job.ID, 400)
	f.apply(t, freelancer2, job.ID, 300)

	t.Run("employer sees applicants with profiles", func(t *testing.T) {
		views, err := f.svc.Applications.ListForJob(ctx, employer1, job.ID)
		require.NoError(t, err)
		require.Len(t, views, 2)

		byFreelancer := map[string]ApplicationView{}
		for _, v := range views {
			byFreelancer[v.Application.FreelancerID] = v
		}
		require.NotNil(t, byFreelancer[freelancer1.ID].Freelancer)
		assert.Len(t, byFreelancer[freelancer1.ID].Freelancer.Skills, 3)
		assert.Nil(t, byFreelancer[freelancer2.ID].Freelancer)
	})

	t.Run("other users cannot list a job's applications", func(t *testing.T) {
		for _, actor := range []domain.Identity{employer2, freelancer1} {
			_, err := f.svc.Applications.ListForJob(ctx, actor, job.ID)
			assertKind(t, err, domain.KindAuthorization)
		}
	})

	t.Run("freelancer sees own applications with jobs", func(t *testing.T) {
		views, err := f.svc.Applications.ListMine(ctx, freelancer2)
		require.NoError(t, err)
		require.Len(t, views, 1)
		require.NotNil(t, views[0].Job)
		assert.Equal(t, job.ID, views[0].Job.ID)
	})
}

func TestApplicationService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("acceptance rejects pending siblings only", func(t *testing.T) {
		f := newFixture(t)
		job := f.createJob(t, employer1)
		winner := f.apply(t, freelancer1, job.ID, 400)
		pending := f.apply(t, freelancer2, job.ID, 300)
		earlier := f.apply(t, freelancer3, job.ID, 200)

		_, err := f.svc.Applications.UpdateStatus(ctx, employer1, earlier.ID, domain.ApplicationStatusRejected)
		require.NoError(t, err)
		rejectedAt := f.application(t, earlier.ID).UpdatedAt

		accepted, err := f.svc.Applications.UpdateStatus(ctx, employer1, winner.ID, domain.ApplicationStatusAccepted)
		require.NoError(t, err)
		assert.Equal(t, domain.ApplicationStatusAccepted, accepted.Status)

		assert.Equal(t, domain.ApplicationStatusRejected, f.application(t, pending.ID).Status)
		assert.Equal(t, rejectedAt, f.application(t, earlier.ID).UpdatedAt, "already rejected application is untouched")

		stored := f.job(t, job.ID)
		assert.Equal(t, domain.JobStatusInProgress, stored.Status)
		require.NotNil(t, stored.FreelancerID)
		assert.Equal(t, freelancer1.ID, *stored.FreelancerID)
		assertFreelancerInvariant(t, stored)
	})

	t.Run("re-accepting is a conflict without side effects", func(t *testing.T) {
		f := newFixture(t)
		job := f.createJob(t, employer1)
		app := f.apply(t, freelancer1, job.ID, 400)

		_, err := f.svc.Applications.UpdateStatus(ctx, employer1, app.ID, domain.ApplicationStatusAccepted)
		require.NoError(t, err)
		before := len(f.recorder.Events())

		_, err = f.svc.Applications.UpdateStatus(ctx, employer1, app.ID, domain.ApplicationStatusAccepted)
		assertKind(t, err, domain.KindConflict)
		assert.Len(t, f.recorder.Events(), before)
	})

	t.Run("accepting a rejected sibling after acceptance", func(t *testing.T) {
		f := newFixture(t)
		job := f.createJob(t, employer1)
		a1 := f.apply(t, freelancer1, job.ID, 400)
		a2 := f.apply(t, freelancer2, job.ID, 300)

		_, err := f.svc.Applications.UpdateStatus(ctx, employer1, a1.ID, domain.ApplicationStatusAccepted)
		require.NoError(t, err)

		_, err = f.svc.Applications.UpdateStatus(ctx, employer1, a2.ID, domain.ApplicationStatusAccepted)
		assertKind(t, err, domain.KindConflict)
		assert.Equal(t, freelancer1.ID, *f.job(t, job.ID).FreelancerID)
	})

	t.Run("rejecting twice is a conflict", func(t *testing.T) {
		f := newFixture(t)
		job := f.createJob(t, employer1)
		app := f.apply(t, freelancer1, job.ID, 400)

		_, err := f.svc.Applications.UpdateStatus(ctx, employer1, app.ID, domain.ApplicationStatusRejected)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusOpen, f.job(t, job.ID).Status)

		_, err = f.svc.Applications.UpdateStatus(ctx, employer1, app.ID, domain.ApplicationStatusRejected)
		assertKind(t, err, domain.KindConflict)
	})

	t.Run("only the job employer decides", func(t *testing.T) {
		f := newFixture(t)
		job := f.createJob(t, employer1)
		app := f.apply(t, freelancer1, job.ID, 400)

		for _, actor := range []domain.Identity{employer2, freelancer1, verifier1} {
			_, err := f.svc.Applications.UpdateStatus(ctx, actor, app.ID, domain.ApplicationStatusAccepted)
			assertKind(t, err, domain.KindAuthorization)
		}
		assert.Equal(t, domain.ApplicationStatusPending, f.application(t, app.ID).Status)
	})

	t.Run("pending is not a target status", func(t *testing.T) {
		f := newFixture(t)
		job := f.createJob(t, employer1)
		app := f.apply(t, freelancer1, job.ID, 400)

		_, err := f.svc.Applications.UpdateStatus(ctx, employer1, app.ID, domain.ApplicationStatusPending)
		assertKind(t, err, domain.KindValidation)
	})

	t.Run("unknown application", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Applications.UpdateStatus(ctx, employer1, "missing", domain.ApplicationStatusAccepted)
		assertKind(t, err, domain.KindNotFound)
	})
}

func TestApplicationService_ConcurrentAcceptance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.createJob(t, employer1)

	apps := []string{
		f.apply(t, freelancer1, job.ID, 400).ID,
		f.apply(t, freelancer2, job.ID, 300).ID,
		f.apply(t, freelancer3, job.ID, 200).ID,
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, id := range apps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Applications.UpdateStatus(ctx, employer1, id, domain.ApplicationStatusAccepted)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.Equal(t, domain.KindConflict, domain.KindOf(err))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)

	stored, err := f.repo.ListApplicationsByJob(ctx, job.ID)
	require.NoError(t, err)

	accepted := 0
	for _, a := range stored {
		if a.Status == domain.ApplicationStatusAccepted {
			accepted++
			assert.Equal(t, a.FreelancerID, *f.job(t, job.ID).FreelancerID)
		} else {
			assert.Equal(t, domain.ApplicationStatusRejected, a.Status)
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestApplicationService_ApplyAfterStart(t *testing.T) {
	f := newFixture(t)
	job := f.startedJob(t)

	_, err := f.svc.Applications.Create(context.Background(), freelancer2, CreateApplicationInput{
		JobID:    job.ID,
		Proposal: "late",
		Price:    100,
	})
	assertKind(t, err, domain.KindConflict)
}
