// Package service holds the marketplace lifecycle: jobs, applications,
// work submissions, messages and the escrow saga. Every operation takes the
// caller identity explicitly and returns *domain.Error on failure.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/api/storage"
	"github.com/cuongbtq/gigmarket-be/internal/events"
	"github.com/cuongbtq/gigmarket-be/internal/settlement"
	"github.com/cuongbtq/gigmarket-be/internal/validator"
	"github.com/google/uuid"
)

// Dependencies holds everything the services need
type Dependencies struct {
	Repo       storage.Repository
	Settlement settlement.Client
	Publisher  events.Publisher
	Validator  *validator.Validator
	Logger     *slog.Logger

	// Clock and NewID default to time.Now and uuid.NewString.
	Clock func() time.Time
	NewID func() string
}

// Services bundles the lifecycle services sharing one set of dependencies.
type Services struct {
	Jobs         *JobService
	Applications *ApplicationService
	Submissions  *SubmissionService
	Messages     *MessageService
	Escrows      *EscrowService
	Users        *UserService
}

// New wires every service.
func New(deps Dependencies) *Services {
	b := newBase(deps)
	escrows := &EscrowService{base: b}

	return &Services{
		Jobs:         &JobService{base: b},
		Applications: &ApplicationService{base: b},
		Submissions:  &SubmissionService{base: b, escrows: escrows},
		Messages:     &MessageService{base: b},
		Escrows:      escrows,
		Users:        &UserService{base: b},
	}
}

type base struct {
	repo       storage.Repository
	settlement settlement.Client
	publisher  events.Publisher
	validator  *validator.Validator
	logger     *slog.Logger
	clock      func() time.Time
	newID      func() string
}

func newBase(deps Dependencies) *base {
	b := &base{
		repo:       deps.Repo,
		settlement: deps.Settlement,
		publisher:  deps.Publisher,
		validator:  deps.Validator,
		logger:     deps.Logger,
		clock:      deps.Clock,
		newID:      deps.NewID,
	}
	if b.clock == nil {
		b.clock = time.Now
	}
	if b.newID == nil {
		b.newID = uuid.NewString
	}
	if b.publisher == nil {
		b.publisher = events.NopPublisher{}
	}
	if b.validator == nil {
		b.validator = validator.NewWithClock(b.clock)
	}
	return b
}

func (b *base) now() time.Time {
	return b.clock().UTC()
}

// publish emits events after the surrounding write committed. Failures are
// logged and never fail the operation.
func (b *base) publish(ctx context.Context, evs ...events.Event) {
	for _, ev := range evs {
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = b.now()
		}
		if err := b.publisher.Publish(ctx, ev); err != nil {
			b.logger.Warn("Failed to publish event",
				slog.String("type", string(ev.Type)),
				slog.String("entity_id", ev.EntityID),
				slog.Any("error", err),
			)
		}
	}
}

// fail converts storage and unexpected errors into domain errors. Domain
// errors pass through untouched.
func (b *base) fail(err error, entity string) error {
	if err == nil {
		return nil
	}

	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, storage.ErrNotFound) {
		return domain.NewNotFoundError(entity)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewInternalError(err)
	}

	b.logger.Error("Unexpected storage failure",
		slog.String("entity", entity),
		slog.Any("error", err),
	)
	return domain.NewInternalError(err)
}

func (b *base) loadJob(ctx context.Context, repo storage.Repository, jobID string, forUpdate bool) (*model.Job, error) {
	var (
		job *model.Job
		err error
	)
	if forUpdate {
		job, err = repo.GetJobForUpdate(ctx, jobID)
	} else {
		job, err = repo.GetJob(ctx, jobID)
	}
	if err != nil {
		return nil, b.fail(err, "job")
	}
	return job, nil
}

func jobEvent(t events.Type, job *model.Job, actor domain.Identity) events.Event {
	return events.Event{
		Type:     t,
		EntityID: job.ID,
		JobID:    job.ID,
		ActorID:  actor.ID,
		Status:   string(job.Status),
	}
}
