package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apidomain "github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/worker/domain"
	"github.com/cuongbtq/gigmarket-be/shared/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	escrowOK        = "11111111-1111-1111-1111-111111111111"
	escrowConflict  = "22222222-2222-2222-2222-222222222222"
	escrowMissing   = "33333333-3333-3333-3333-333333333333"
	escrowLedgerOff = "44444444-4444-4444-4444-444444444444"
	escrowBroken    = "55555555-5555-5555-5555-555555555555"
)

type fakeReconciler struct {
	mu      sync.Mutex
	errs    map[string]error
	pending []string
	calls   []string
}

func newFakeReconciler() *fakeReconciler {
	return &fakeReconciler{errs: map[string]error{
		escrowConflict:  apidomain.NewConflictError("escrow is already %s", apidomain.EscrowRefunded),
		escrowMissing:   apidomain.NewNotFoundError("escrow"),
		escrowLedgerOff: apidomain.NewExternalServiceError("settlement ledger unavailable", errors.New("timeout")),
		escrowBroken:    apidomain.NewInternalError(errors.New("disk full")),
	}}
}

func (f *fakeReconciler) Reconcile(_ context.Context, escrowID string) (*model.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, escrowID)
	if err := f.errs[escrowID]; err != nil {
		return nil, err
	}
	return &model.Escrow{ID: escrowID, State: apidomain.EscrowComplete}, nil
}

func (f *fakeReconciler) PendingEscrowIDs(_ context.Context, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) > limit {
		return append([]string(nil), f.pending[:limit]...), nil
	}
	return append([]string(nil), f.pending...), nil
}

func (f *fakeReconciler) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

type fakeSource struct {
	deliveries chan amqp.Delivery
	prefetch   int
}

func (s *fakeSource) Qos(prefetchCount int) error {
	s.prefetch = prefetchCount
	return nil
}

func (s *fakeSource) Consume(string) (<-chan amqp.Delivery, error) { return s.deliveries, nil }

func (s *fakeSource) QueueName() string { return "escrow_reconcile" }

type ackResult struct {
	acked   bool
	requeue bool
}

// fakeAcknowledger records the outcome of each delivery tag.
type fakeAcknowledger struct {
	mu      sync.Mutex
	results map[uint64]ackResult
}

func (a *fakeAcknowledger) record(tag uint64, r ackResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.results == nil {
		a.results = map[uint64]ackResult{}
	}
	a.results[tag] = r
	return nil
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	return a.record(tag, ackResult{acked: true})
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	return a.record(tag, ackResult{requeue: requeue})
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.record(tag, ackResult{requeue: requeue})
}

func (a *fakeAcknowledger) Result(tag uint64) (ackResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.results[tag]
	return r, ok
}

func startWorker(t *testing.T, cfg *Config) *Worker {
	t.Helper()

	cfg.Logger = logger.NewDiscard().Logger
	cfg.WorkerID = "test-worker"
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	if cfg.JobTimeout == 0 {
		cfg.JobTimeout = time.Second
	}
	w := NewWorker(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		w.Stop()
		require.NoError(t, <-done)
	})
	return w
}

func TestShouldRequeue(t *testing.T) {
	retryable := domain.NewRetryableError(errors.New("ledger down"))

	tests := []struct {
		name        string
		err         error
		redelivered bool
		want        bool
	}{
		{name: "retryable first delivery", err: retryable, want: true},
		{name: "retryable redelivery", err: retryable, redelivered: true, want: false},
		{name: "escrow not found", err: domain.ErrEscrowNotFound, want: false},
		{name: "invalid message", err: domain.ErrInvalidMessage, want: false},
		{name: "other error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeue(tt.err, tt.redelivered))
		})
	}
}

func TestProcessTask(t *testing.T) {
	w := NewWorker(&Config{
		Logger:     logger.NewDiscard().Logger,
		Reconciler: newFakeReconciler(),
		JobTimeout: time.Second,
	})

	tests := []struct {
		name     string
		escrowID string
		check    func(t *testing.T, err error)
	}{
		{
			name:     "reconciled",
			escrowID: escrowOK,
			check:    func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:     "conflict counts as processed",
			escrowID: escrowConflict,
			check:    func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:     "not found",
			escrowID: escrowMissing,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrEscrowNotFound)
			},
		},
		{
			name:     "ledger unavailable is retryable",
			escrowID: escrowLedgerOff,
			check: func(t *testing.T, err error) {
				var retryable *domain.RetryableError
				require.ErrorAs(t, err, &retryable)
				assert.Equal(t, apidomain.KindExternalService, apidomain.KindOf(err))
			},
		},
		{
			name:     "internal error is not retryable",
			escrowID: escrowBroken,
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				var retryable *domain.RetryableError
				assert.False(t, errors.As(err, &retryable))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.processTask(context.Background(), &domain.Task{EscrowID: tt.escrowID, Source: domain.SourcePoll})
			tt.check(t, err)
		})
	}
}

func TestParseMessage(t *testing.T) {
	id, err := parseMessage([]byte(`{"escrow_id":"` + escrowOK + `"}`))
	require.NoError(t, err)
	assert.Equal(t, escrowOK, id)

	_, err = parseMessage([]byte(`{"escrow_id":"not-a-uuid"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)

	_, err = parseMessage([]byte(`garbage`))
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestWorker_QueueDeliveries(t *testing.T) {
	reconciler := newFakeReconciler()
	source := &fakeSource{deliveries: make(chan amqp.Delivery, 10)}
	acks := &fakeAcknowledger{}

	startWorker(t, &Config{Reconciler: reconciler, Source: source, PrefetchCount: 4})

	tests := []struct {
		tag         uint64
		body        string
		redelivered bool
		want        ackResult
	}{
		{tag: 1, body: `{"escrow_id":"` + escrowOK + `"}`, want: ackResult{acked: true}},
		{tag: 2, body: `{"escrow_id":"` + escrowConflict + `"}`, want: ackResult{acked: true}},
		{tag: 3, body: `{"escrow_id":"` + escrowMissing + `"}`, want: ackResult{}},
		{tag: 4, body: `{"escrow_id":"` + escrowLedgerOff + `"}`, want: ackResult{requeue: true}},
		{tag: 5, body: `{"escrow_id":"` + escrowLedgerOff + `"}`, redelivered: true, want: ackResult{}},
		{tag: 6, body: `{"escrow_id":"` + escrowBroken + `"}`, want: ackResult{}},
		{tag: 7, body: `not json`, want: ackResult{}},
	}

	for _, tt := range tests {
		source.deliveries <- amqp.Delivery{
			Acknowledger: acks,
			DeliveryTag:  tt.tag,
			Body:         []byte(tt.body),
			Redelivered:  tt.redelivered,
		}
	}

	for _, tt := range tests {
		require.Eventually(t, func() bool {
			_, ok := acks.Result(tt.tag)
			return ok
		}, 2*time.Second, 10*time.Millisecond, "delivery %d was never settled", tt.tag)

		got, _ := acks.Result(tt.tag)
		assert.Equal(t, tt.want, got, "delivery %d", tt.tag)
	}

	assert.Equal(t, 4, source.prefetch)
	assert.Len(t, reconciler.Calls(), 6)
}

func TestWorker_PollsPendingEscrows(t *testing.T) {
	reconciler := newFakeReconciler()
	reconciler.pending = []string{escrowOK, escrowLedgerOff, escrowConflict}

	startWorker(t, &Config{
		Reconciler:    reconciler,
		PollInterval:  20 * time.Millisecond,
		PollBatchSize: 2,
	})

	require.Eventually(t, func() bool {
		calls := reconciler.Calls()
		return contains(calls, escrowOK) && contains(calls, escrowLedgerOff)
	}, 2*time.Second, 10*time.Millisecond)

	assert.NotContains(t, reconciler.Calls(), escrowConflict)
}

func TestWorker_PollSkipsInflight(t *testing.T) {
	reconciler := newFakeReconciler()
	reconciler.pending = []string{escrowOK}

	w := NewWorker(&Config{
		Logger:     logger.NewDiscard().Logger,
		Reconciler: reconciler,
	})
	w.inflight.Store(escrowOK, struct{}{})

	require.True(t, w.pollOnce(context.Background()))
	assert.Empty(t, w.tasks)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
