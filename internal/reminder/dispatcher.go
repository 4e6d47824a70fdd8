package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/benvon/taskbot/internal/identity"
	"github.com/benvon/taskbot/internal/queue"
	"github.com/benvon/taskbot/internal/session"
	"go.uber.org/zap"
)

// RoundResult counts the outcome of one reminder round
type RoundResult struct {
	Identities int
	Succeeded  int
	Unlinked   int
	Failed     int
	Delivered  int
}

// Dispatcher fans a reminder round out over identities
type Dispatcher interface {
	Dispatch(ctx context.Context, identities []session.Identity) RoundResult
}

// Reminder is the per-identity reminder operation
type Reminder interface {
	Remind(ctx context.Context, id session.Identity) (RemindResult, error)
}

// DirectDispatcher reminds each identity in turn within the calling process.
// One identity's failure never stops the round.
type DirectDispatcher struct {
	reminder Reminder
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDirectDispatcher creates an in-process dispatcher. Each identity gets
// its own timeout when timeout is positive.
func NewDirectDispatcher(reminder Reminder, timeout time.Duration, logger *zap.Logger) *DirectDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectDispatcher{reminder: reminder, timeout: timeout, logger: logger}
}

// Dispatch reminds every identity and tallies the results
func (d *DirectDispatcher) Dispatch(ctx context.Context, identities []session.Identity) RoundResult {
	round := RoundResult{Identities: len(identities)}
	for _, id := range identities {
		if ctx.Err() != nil {
			round.Failed += len(identities) - (round.Succeeded + round.Unlinked + round.Failed)
			break
		}

		result, err := d.remindOne(ctx, id)
		round.Delivered += result.Delivered
		switch {
		case err == nil:
			round.Succeeded++
		case errors.Is(err, identity.ErrIdentityNotFound):
			round.Unlinked++
			d.logger.Info("reminder_identity_unlinked", zap.Int64("chat_id", id.ChatID))
		default:
			round.Failed++
			d.logger.Error("reminder_failed",
				zap.Int64("chat_id", id.ChatID),
				zap.Int("delivered", result.Delivered),
				zap.Error(err),
			)
		}
	}
	return round
}

func (d *DirectDispatcher) remindOne(ctx context.Context, id session.Identity) (RemindResult, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.reminder.Remind(ctx, id)
}

// Enqueuer accepts jobs for asynchronous processing
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// QueueDispatcher publishes one reminder job per identity for the worker
// to deliver. Jobs older than the staleness window are dropped unprocessed.
type QueueDispatcher struct {
	queue      Enqueuer
	staleAfter time.Duration
	logger     *zap.Logger
}

// NewQueueDispatcher creates a queue-backed dispatcher
func NewQueueDispatcher(q Enqueuer, staleAfter time.Duration, logger *zap.Logger) *QueueDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueDispatcher{queue: q, staleAfter: staleAfter, logger: logger}
}

// Dispatch enqueues a job per identity. Succeeded counts enqueued jobs.
func (d *QueueDispatcher) Dispatch(ctx context.Context, identities []session.Identity) RoundResult {
	round := RoundResult{Identities: len(identities)}
	for _, id := range identities {
		job := queue.NewReminderJob(id.ChatID, id.Username, d.staleAfter)
		job.Metadata[queue.MetadataSource] = "scheduler"
		if err := d.queue.Enqueue(ctx, job); err != nil {
			round.Failed++
			d.logger.Error("reminder_enqueue_failed",
				zap.Int64("chat_id", id.ChatID),
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
			continue
		}
		round.Succeeded++
	}
	return round
}
