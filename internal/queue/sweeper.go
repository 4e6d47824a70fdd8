package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// sweepTimeout bounds a single pass over the dead-letter queue
const sweepTimeout = 2 * time.Minute

// DeadLetterSweeper drops dead-lettered reminders once they are older than
// the retention window. A reminder that old describes a round nobody will
// read, so keeping it only grows the queue.
type DeadLetterSweeper struct {
	purger    DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// NewDeadLetterSweeper creates a sweeper. A nil purger makes every sweep a no-op.
func NewDeadLetterSweeper(purger DLQPurger, interval, retention time.Duration, logger *zap.Logger) *DeadLetterSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadLetterSweeper{
		purger:    purger,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

// Run sweeps once immediately and then every interval until ctx is cancelled
func (s *DeadLetterSweeper) Run(ctx context.Context) error {
	s.sweepAndLog(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

// Sweep purges expired dead letters and reports how many were removed
func (s *DeadLetterSweeper) Sweep(ctx context.Context) (int, error) {
	if s.purger == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	n, err := s.purger.PurgeOlderThan(ctx, s.retention)
	if err != nil {
		return n, fmt.Errorf("failed to sweep dead letters: %w", err)
	}
	return n, nil
}

func (s *DeadLetterSweeper) sweepAndLog(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("dead_letter_sweep_failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("dead_letters_swept",
			zap.Int("purged", n),
			zap.Duration("retention", s.retention),
		)
	}
}
