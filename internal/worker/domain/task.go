package domain

import amqp "github.com/rabbitmq/amqp091-go"

// Task source labels used in logs
const (
	SourceQueue = "queue"
	SourcePoll  = "poll"
)

// Task is one escrow to reconcile. Delivery is nil for tasks found by
// polling, which have nothing to acknowledge.
type Task struct {
	EscrowID string
	Source   string
	Delivery *amqp.Delivery
}
