package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/api/storage/memory"
	"github.com/cuongbtq/gigmarket-be/internal/events"
	"github.com/cuongbtq/gigmarket-be/internal/settlement"
	"github.com/cuongbtq/gigmarket-be/internal/validator"
	"github.com/cuongbtq/gigmarket-be/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	employer1   = domain.Identity{ID: "employer-1", Role: domain.RoleEmployer}
	employer2   = domain.Identity{ID: "employer-2", Role: domain.RoleEmployer}
	freelancer1 = domain.Identity{ID: "freelancer-1", Role: domain.RoleFreelancer}
	freelancer2 = domain.Identity{ID: "freelancer-2", Role: domain.RoleFreelancer}
	freelancer3 = domain.Identity{ID: "freelancer-3", Role: domain.RoleFreelancer}
	verifier1   = domain.Identity{ID: "verifier-1", Role: domain.RoleVerifier}

	errNodeDown = errors.New("settlement node unreachable")
)

// stepClock advances one second per reading so creation order is stable.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(time.Second)
	return c.now
}

// flakySettlement fails the next N calls of each kind with errNodeDown.
type flakySettlement struct {
	settlement.Client

	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
}

func newFlakySettlement(next settlement.Client) *flakySettlement {
	return &flakySettlement{
		Client:   next,
		failures: map[string]int{},
		calls:    map[string]int{},
	}
}

func (f *flakySettlement) failNext(op string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = n
}

func (f *flakySettlement) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *flakySettlement) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++
	if f.failures[op] > 0 {
		f.failures[op]--
		return errNodeDown
	}
	return nil
}

func (f *flakySettlement) Open(ctx context.Context, req settlement.OpenRequest) (string, error) {
	if err := f.check("open"); err != nil {
		return "", err
	}
	return f.Client.Open(ctx, req)
}

func (f *flakySettlement) Fund(ctx context.Context, ref string, amount float64) error {
	if err := f.check("fund"); err != nil {
		return err
	}
	return f.Client.Fund(ctx, ref, amount)
}

func (f *flakySettlement) ConfirmDelivery(ctx context.Context, ref string) error {
	if err := f.check("confirm"); err != nil {
		return err
	}
	return f.Client.ConfirmDelivery(ctx, ref)
}

func (f *flakySettlement) Refund(ctx context.Context, ref string) error {
	if err := f.check("refund"); err != nil {
		return err
	}
	return f.Client.Refund(ctx, ref)
}

func (f *flakySettlement) GetState(ctx context.Context, ref string) (*settlement.ContractState, error) {
	if err := f.check("get_state"); err != nil {
		return nil, err
	}
	return f.Client.GetState(ctx, ref)
}

type fixture struct {
	repo     *memory.Store
	ledger   *settlement.Ledger
	settle   *flakySettlement
	recorder *events.Recorder
	clock    *stepClock
	svc      *Services
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logger.NewDiscard().Logger
	clock := &stepClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	ledger := settlement.NewLedger(settlement.NewMemoryStore(), log, settlement.WithClock(clock.Now))
	flaky := newFlakySettlement(ledger)
	recorder := &events.Recorder{}
	repo := memory.New()

	svc := New(Dependencies{
		Repo:       repo,
		Settlement: flaky,
		Publisher:  recorder,
		Validator:  validator.NewWithClock(clock.Now),
		Logger:     log,
		Clock:      clock.Now,
	})

	return &fixture{
		repo:     repo,
		ledger:   ledger,
		settle:   flaky,
		recorder: recorder,
		clock:    clock,
		svc:      svc,
	}
}

func (f *fixture) deadline() time.Time {
	return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) jobInput(title string) CreateJobInput {
	return CreateJobInput{
		Title:       title,
		Description: "Build a REST API for the order service",
		Skills:      []string{"go", "postgres"},
		Budget:      500,
		Deadline:    f.deadline(),
		Domain:      "backend",
	}
}

func (f *fixture) createJob(t *testing.T, owner domain.Identity) *model.Job {
	t.Helper()
	job, err := f.svc.Jobs.Create(context.Background(), owner, f.jobInput("Order API"))
	require.NoError(t, err)
	return job
}

func (f *fixture) apply(t *testing.T, who domain.Identity, jobID string, price float64) *model.Application {
	t.Helper()
	app, err := f.svc.Applications.Create(context.Background(), who, CreateApplicationInput{
		JobID:    jobID,
		Proposal: "I have done this before",
		Price:    price,
	})
	require.NoError(t, err)
	return app
}

// startedJob returns a job with freelancer1 assigned.
func (f *fixture) startedJob(t *testing.T) *model.Job {
	t.Helper()
	job := f.createJob(t, employer1)
	app := f.apply(t, freelancer1, job.ID, 400)

	_, err := f.svc.Applications.UpdateStatus(context.Background(), employer1, app.ID, domain.ApplicationStatusAccepted)
	require.NoError(t, err)
	return f.job(t, job.ID)
}

// fundedJob returns a started job with an escrow awaiting delivery.
func (f *fixture) fundedJob(t *testing.T, amount float64) (*model.Job, *model.Escrow) {
	t.Helper()
	job := f.startedJob(t)

	escrow, err := f.svc.Escrows.Fund(context.Background(), employer1, job.ID, FundEscrowInput{Amount: amount})
	require.NoError(t, err)
	require.Equal(t, domain.EscrowAwaitingDelivery, escrow.State)
	return f.job(t, job.ID), escrow
}

func (f *fixture) submit(t *testing.T, jobID, title string) *model.Submission {
	t.Helper()
	sub, err := f.svc.Submissions.Submit(context.Background(), freelancer1, SubmitWorkInput{
		JobID:       jobID,
		Title:       title,
		Description: "Implementation and tests",
		Attachments: []model.Attachment{{Name: "api.zip", URL: "/files/api.zip", Type: "application/zip"}},
	})
	require.NoError(t, err)
	return sub
}

func (f *fixture) job(t *testing.T, id string) *model.Job {
	t.Helper()
	job, err := f.repo.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (f *fixture) application(t *testing.T, id string) *model.Application {
	t.Helper()
	app, err := f.repo.GetApplication(context.Background(), id)
	require.NoError(t, err)
	return app
}

func (f *fixture) submission(t *testing.T, id string) *model.Submission {
	t.Helper()
	sub, err := f.repo.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	return sub
}

func (f *fixture) escrow(t *testing.T, id string) *model.Escrow {
	t.Helper()
	e, err := f.repo.GetEscrow(context.Background(), id)
	require.NoError(t, err)
	return e
}

func assertKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, domain.KindOf(err), "error: %v", err)
}

// assertFreelancerInvariant checks freelancer is set iff the job is in
// progress or completed, allowing it on cancelled jobs.
func assertFreelancerInvariant(t *testing.T, job *model.Job) {
	t.Helper()
	switch job.Status {
	case domain.JobStatusOpen:
		assert.Nil(t, job.FreelancerID, "open job must not have a freelancer")
	case domain.JobStatusInProgress, domain.JobStatusCompleted:
		assert.NotNil(t, job.FreelancerID, "%s job must have a freelancer", job.Status)
	}
}
