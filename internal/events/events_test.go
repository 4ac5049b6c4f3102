package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/gigmarket-be/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	routingKey  string
	body        []byte
	contentType string
	err         error
}

func (f *fakeBroker) PublishWithRetry(_ context.Context, routingKey string, body []byte, contentType string) error {
	f.routingKey = routingKey
	f.body = body
	f.contentType = contentType
	return f.err
}

func TestRabbitPublisher_Publish(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("event envelope routed by type", func(t *testing.T) {
		broker := &fakeBroker{}
		p := NewRabbitPublisher(broker, logger.NewDiscard().Logger)

		err := p.Publish(context.Background(), Event{
			Type:       ApplicationAccepted,
			EntityID:   "app-1",
			JobID:      "job-1",
			ActorID:    "employer-1",
			Status:     "accepted",
			OccurredAt: at,
		})
		require.NoError(t, err)

		assert.Equal(t, "application.accepted", broker.routingKey)
		assert.Equal(t, "application/json", broker.contentType)

		var got Event
		require.NoError(t, json.Unmarshal(broker.body, &got))
		assert.Equal(t, "job-1", got.JobID)
		assert.Equal(t, at, got.OccurredAt)
	})

	t.Run("reconcile message carries escrow id", func(t *testing.T) {
		broker := &fakeBroker{}
		p := NewRabbitPublisher(broker, logger.NewDiscard().Logger)

		require.NoError(t, p.Publish(context.Background(), Event{Type: EscrowReconcile, EntityID: "escrow-9"}))

		assert.Equal(t, "escrow.reconcile", broker.routingKey)
		assert.JSONEq(t, `{"escrow_id":"escrow-9"}`, string(broker.body))
	})

	t.Run("broker failure is wrapped", func(t *testing.T) {
		broker := &fakeBroker{err: errors.New("channel closed")}
		p := NewRabbitPublisher(broker, logger.NewDiscard().Logger)

		err := p.Publish(context.Background(), Event{Type: JobCreated, EntityID: "job-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to publish job.created")
	})
}

func TestDecodeReconcile(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "reconcile body", body: `{"escrow_id":"e-1"}`, want: "e-1"},
		{name: "event envelope", body: `{"type":"escrow.reconcile","entity_id":"e-2"}`, want: "e-2"},
		{name: "missing id", body: `{}`, wantErr: true},
		{name: "not json", body: `escrow`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeReconcile([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Publish(context.Background(), Event{Type: JobCreated}))
	require.NoError(t, r.Publish(context.Background(), Event{Type: JobDeleted}))

	assert.Equal(t, []Type{JobCreated, JobDeleted}, r.Types())
	assert.Len(t, r.Events(), 2)

	r.Err = errors.New("down")
	assert.Error(t, r.Publish(context.Background(), Event{Type: JobUpdated}))
	assert.Len(t, r.Events(), 2)
}

func TestWithout(t *testing.T) {
	r := &Recorder{}
	p := Without(r, EscrowReconcile)

	require.NoError(t, p.Publish(context.Background(), Event{Type: EscrowReconcile, EntityID: "e1"}))
	require.NoError(t, p.Publish(context.Background(), Event{Type: EscrowCompleted, EntityID: "e1"}))

	assert.Equal(t, []Type{EscrowCompleted}, r.Types())
}
