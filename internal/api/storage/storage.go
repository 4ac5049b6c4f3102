package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("record already exists")
)

const pgUniqueViolation = "23505"

// Repository is the persistence contract used by the lifecycle services.
// Methods called inside WithTx observe and take part in the transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	UpsertUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]model.User, error)

	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	// GetJobForUpdate locks the job row until the surrounding transaction ends.
	GetJobForUpdate(ctx context.Context, id string) (*model.Job, error)
	UpdateJob(ctx context.Context, job *model.Job) error
	DeleteJob(ctx context.Context, id string) error
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)
	GetJobsByIDs(ctx context.Context, ids []string) (map[string]model.Job, error)

	CreateApplication(ctx context.Context, app *model.Application) error
	GetApplication(ctx context.Context, id string) (*model.Application, error)
	FindApplication(ctx context.Context, jobID, freelancerID string) (*model.Application, error)
	ListApplicationsByJob(ctx context.Context, jobID string) ([]model.Application, error)
	ListApplicationsByFreelancer(ctx context.Context, freelancerID string) ([]model.Application, error)
	CountApplicationsByJob(ctx context.Context, jobID string) (int, error)
	UpdateApplicationStatus(ctx context.Context, id string, status domain.ApplicationStatus, at time.Time) error
	// RejectPendingApplications rejects every pending application of the job
	// except exceptID and returns how many rows changed.
	RejectPendingApplications(ctx context.Context, jobID, exceptID string, at time.Time) (int64, error)

	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	ListSubmissionsByJob(ctx context.Context, jobID string) ([]model.Submission, error)
	UpdateSubmission(ctx context.Context, sub *model.Submission) error

	CreateMessage(ctx context.Context, msg *model.Message) error
	ListMessagesByJob(ctx context.Context, jobID string) ([]model.Message, error)
	MarkMessagesRead(ctx context.Context, jobID, receiverID string) (int64, error)

	CreateEscrow(ctx context.Context, escrow *model.Escrow) error
	GetEscrow(ctx context.Context, id string) (*model.Escrow, error)
	GetEscrowByJob(ctx context.Context, jobID string) (*model.Escrow, error)
	// GetEscrowForUpdate locks the escrow row until the surrounding transaction ends.
	GetEscrowForUpdate(ctx context.Context, id string) (*model.Escrow, error)
	UpdateEscrow(ctx context.Context, escrow *model.Escrow) error
	ListPendingEscrows(ctx context.Context, limit int) ([]model.Escrow, error)
}

// JobFilter narrows ListJobs. PageSize+1 rows are fetched so callers can
// tell whether another page exists.
type JobFilter struct {
	Domain     string
	Status     domain.JobStatus
	EmployerID string
	Keyword    string
	PageSize   int
	Cursor     *JobCursor
}

// JobCursor marks the last job of the previous page.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// Store is the sqlx-backed Repository.
type Store struct {
	db     *sqlx.DB
	q      sqlx.ExtContext
	inTx   bool
	logger *slog.Logger
}

// NewStore creates a Store over an open database handle.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		q:      db,
		logger: logger,
	}
}

// WithTx runs fn inside a transaction. Nested calls join the outer one.
func (s *Store) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &Store{db: s.db, q: tx, inTx: true, logger: s.logger}

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("Failed to rollback transaction",
				slog.Any("error", rbErr),
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// classify maps driver errors onto the storage sentinels.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
