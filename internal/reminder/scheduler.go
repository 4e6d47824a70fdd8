package reminder

import (
	"context"
	"time"

	"github.com/benvon/taskbot/internal/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Snapshotter provides the identities to remind
type Snapshotter interface {
	Snapshot() []session.Identity
}

// Scheduler fires a reminder round at each scheduled time
type Scheduler struct {
	schedule   Schedule
	registry   Snapshotter
	dispatcher Dispatcher
	logger     *zap.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewScheduler creates a scheduler
func NewScheduler(schedule Schedule, registry Snapshotter, dispatcher Dispatcher, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		schedule:   schedule,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		after:      time.After,
	}
}

// Run fires rounds until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("reminder_scheduler_started",
		zap.Strings("times", s.schedule.Strings()),
		zap.String("timezone", s.schedule.Location.String()),
	)

	next := s.schedule.Next(s.now())
	for {
		s.logger.Debug("reminder_round_scheduled", zap.Time("at", next))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(next.Sub(s.now())):
		}

		s.Trigger(ctx)

		// Step from the instant that fired, so a clock reading slightly
		// behind it cannot schedule the same round twice. Rounds missed
		// while the process was suspended are skipped.
		fired := next
		next = s.schedule.Next(fired)
		if now := s.now(); !next.After(now) {
			next = s.schedule.Next(now)
		}
	}
}

// Trigger runs one round immediately over the current registry snapshot
func (s *Scheduler) Trigger(ctx context.Context) RoundResult {
	ctx, span := otel.Tracer("taskbot/reminder").Start(ctx, "reminder.round")
	defer span.End()

	started := s.now()
	identities := s.registry.Snapshot()
	result := s.dispatcher.Dispatch(ctx, identities)

	span.SetAttributes(
		attribute.Int("reminder.identities", result.Identities),
		attribute.Int("reminder.succeeded", result.Succeeded),
		attribute.Int("reminder.failed", result.Failed),
	)
	s.logger.Info("reminder_round_completed",
		zap.Int("identities", result.Identities),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("unlinked", result.Unlinked),
		zap.Int("failed", result.Failed),
		zap.Int("delivered", result.Delivered),
		zap.Duration("duration", s.now().Sub(started)),
	)
	return result
}
