package queue

import (
	"context"
	"time"
)

// MessageInterface is a delivered job awaiting settlement
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// JobQueue carries reminder jobs from the bot to the workers
type JobQueue interface {
	// Enqueue publishes a job. Jobs with a future NotBefore are parked on
	// the retry queue until it passes.
	Enqueue(ctx context.Context, job *Job) error

	// Consume streams deliveries until ctx is cancelled. Every message
	// must be acked or nacked; prefetchCount caps unsettled deliveries.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	Close() error
	HealthCheck(ctx context.Context) error
}

// DLQPurger removes dead-lettered messages older than a retention window
type DLQPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}
