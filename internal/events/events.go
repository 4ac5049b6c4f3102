package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Type doubles as the routing key on the topic exchange.
type Type string

const (
	JobCreated                  Type = "job.created"
	JobUpdated                  Type = "job.updated"
	JobDeleted                  Type = "job.deleted"
	ApplicationCreated          Type = "application.created"
	ApplicationAccepted         Type = "application.accepted"
	ApplicationRejected         Type = "application.rejected"
	SubmissionCreated           Type = "submission.created"
	SubmissionApproved          Type = "submission.approved"
	SubmissionRevisionRequested Type = "submission.revision_requested"
	MessageSent                 Type = "message.sent"
	EscrowFunded                Type = "escrow.funded"
	EscrowCompleted             Type = "escrow.completed"
	EscrowRefunded              Type = "escrow.refunded"
	EscrowReconcile             Type = "escrow.reconcile"
)

// Event is the envelope written to the exchange.
type Event struct {
	Type       Type      `json:"type"`
	EntityID   string    `json:"entity_id"`
	JobID      string    `json:"job_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ReconcileMessage is the body of an escrow.reconcile delivery.
type ReconcileMessage struct {
	EscrowID string `json:"escrow_id"`
}

// DecodeReconcile parses an escrow.reconcile body. Full event envelopes
// are accepted too, taking the escrow id from entity_id.
func DecodeReconcile(body []byte) (string, error) {
	var msg struct {
		EscrowID string `json:"escrow_id"`
		EntityID string `json:"entity_id"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("failed to decode reconcile message: %w", err)
	}

	id := msg.EscrowID
	if id == "" {
		id = msg.EntityID
	}
	if id == "" {
		return "", fmt.Errorf("reconcile message has no escrow id")
	}
	return id, nil
}

// Publisher emits lifecycle events. Callers publish after commit and treat
// failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Broker is the subset of the RabbitMQ client used for publishing.
type Broker interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// RabbitPublisher writes events to a topic exchange keyed by event type.
type RabbitPublisher struct {
	broker Broker
	logger *slog.Logger
}

func NewRabbitPublisher(broker Broker, logger *slog.Logger) *RabbitPublisher {
	return &RabbitPublisher{broker: broker, logger: logger}
}

func (p *RabbitPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	var (
		body []byte
		err  error
	)
	if event.Type == EscrowReconcile {
		body, err = json.Marshal(ReconcileMessage{EscrowID: event.EntityID})
	} else {
		body, err = json.Marshal(event)
	}
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := p.broker.PublishWithRetry(ctx, string(event.Type), body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.Debug("Event published",
		slog.String("type", string(event.Type)),
		slog.String("entity_id", event.EntityID),
	)
	return nil
}

// NopPublisher drops every event. Used when RabbitMQ is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]Type, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

// filtered drops events of the listed types and forwards the rest.
type filtered struct {
	next    Publisher
	dropped map[Type]struct{}
}

// Without wraps p so that events of the given types are silently dropped.
func Without(p Publisher, types ...Type) Publisher {
	dropped := make(map[Type]struct{}, len(types))
	for _, t := range types {
		dropped[t] = struct{}{}
	}
	return &filtered{next: p, dropped: dropped}
}

func (f *filtered) Publish(ctx context.Context, event Event) error {
	if _, skip := f.dropped[event.Type]; skip {
		return nil
	}
	return f.next.Publish(ctx, event)
}
