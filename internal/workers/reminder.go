package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/taskbot/internal/identity"
	"github.com/benvon/taskbot/internal/queue"
	"github.com/benvon/taskbot/internal/reminder"
	"github.com/benvon/taskbot/internal/session"
	"go.uber.org/zap"
)

// ReminderWorker delivers reminder jobs taken off the queue
type ReminderWorker struct {
	reminder reminder.Reminder
	jobQueue reminder.Enqueuer // For re-enqueueing failed jobs with a delay
	timeout  time.Duration
	logger   *zap.Logger
}

// NewReminderWorker creates a new reminder worker
func NewReminderWorker(r reminder.Reminder, jobQueue reminder.Enqueuer, timeout time.Duration, logger *zap.Logger) *ReminderWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderWorker{
		reminder: r,
		jobQueue: jobQueue,
		timeout:  timeout,
		logger:   logger,
	}
}

// ProcessJob processes a job based on its type and settles the message
func (w *ReminderWorker) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if job.IsExpired() {
		w.logger.Info("reminder_job_stale",
			zap.String("job_id", job.ID.String()),
			zap.Int64("chat_id", job.ChatID),
		)
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack stale job: %w", ackErr)
		}
		return nil
	}

	switch job.Type {
	case queue.JobTypeReminder:
		result, err := w.remind(ctx, job)
		if err != nil {
			return w.handleJobError(ctx, msg, job, result, err)
		}
		w.logger.Info("reminder_job_completed",
			zap.String("job_id", job.ID.String()),
			zap.Int64("chat_id", job.ChatID),
			zap.Int("delivered", result.Delivered),
			zap.String("source", job.Source()),
		)
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	default:
		if nackErr := msg.Nack(false); nackErr != nil { // Unknown job type, send to DLQ
			w.logger.Warn("failed_to_nack_unknown_job", zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (w *ReminderWorker) remind(ctx context.Context, job *queue.Job) (reminder.RemindResult, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	return w.reminder.Remind(ctx, session.Identity{ChatID: job.ChatID, Username: job.Username})
}

// handleJobError decides between dropping, retrying and dead-lettering.
// Retries go back through the queue with a growing NotBefore so the
// retry count survives redelivery.
func (w *ReminderWorker) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, result reminder.RemindResult, err error) error {
	// An unlinked chat will not become linked by retrying
	if errors.Is(err, identity.ErrIdentityNotFound) {
		w.logger.Info("reminder_job_unlinked", zap.Int64("chat_id", job.ChatID))
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack unlinked job: %w", ackErr)
		}
		return nil
	}

	// A retry would resend the tasks that already went out. The next round
	// picks up whatever is still pending.
	if result.Delivered > 0 {
		w.logger.Warn("reminder_job_partially_delivered",
			zap.String("job_id", job.ID.String()),
			zap.Int64("chat_id", job.ChatID),
			zap.Int("delivered", result.Delivered),
			zap.Int("pending", result.Pending),
			zap.Error(err),
		)
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack partially delivered job: %w", ackErr)
		}
		return nil
	}

	if !job.CanRetry() {
		w.logger.Error("reminder_job_failed_permanently",
			zap.String("job_id", job.ID.String()),
			zap.Int("retries", job.RetryCount),
			zap.Error(err),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Warn("failed_to_nack_job_to_dlq", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (max retries): %w", err)
	}

	retry := *job
	retry.IncrementRetry()
	notBefore := time.Now().Add(retryDelay(retry.RetryCount))
	retry.NotBefore = &notBefore

	if w.jobQueue != nil {
		enqueueErr := w.jobQueue.Enqueue(ctx, &retry)
		if enqueueErr == nil {
			if ackErr := msg.Ack(); ackErr != nil {
				w.logger.Warn("failed_to_ack_retried_job", zap.Error(ackErr))
			}
			w.logger.Warn("reminder_job_retry_scheduled",
				zap.String("job_id", job.ID.String()),
				zap.Int("attempt", retry.RetryCount),
				zap.Time("not_before", notBefore),
				zap.Error(err),
			)
			return fmt.Errorf("job failed (will retry): %w", err)
		}
		w.logger.Warn("failed_to_reenqueue_job", zap.Error(enqueueErr))
	}

	// Fall back to an immediate redelivery
	if nackErr := msg.Nack(true); nackErr != nil {
		w.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (requeued): %w", err)
}

// retryDelay grows linearly with the attempt, capped at five minutes
func retryDelay(attempt int) time.Duration {
	delay := time.Duration(attempt) * 30 * time.Second
	if delay > 5*time.Minute {
		delay = 5 * time.Minute
	}
	return delay
}

// Run consumes the queue until ctx is cancelled
func (w *ReminderWorker) Run(ctx context.Context, jobQueue queue.JobQueue, prefetch int) error {
	msgChan, errChan, err := jobQueue.Consume(ctx, prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			w.logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgChan:
			if !ok {
				return errors.New("message channel closed")
			}
			if err := w.ProcessJob(ctx, msg); err != nil {
				w.logger.Error("job_processing_failed",
					zap.Error(err),
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
				)
			}
		}
	}
}
