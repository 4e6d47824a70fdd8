package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Handler processes one update
type Handler func(ctx context.Context, update Update)

// Poller long-polls getUpdates and hands each update to a handler in order
type Poller struct {
	client  *Client
	timeout int
	logger  *zap.Logger
	offset  int64
}

// NewPoller creates a poller holding each getUpdates call open for timeout seconds
func NewPoller(client *Client, timeout int, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{client: client, timeout: timeout, logger: logger}
}

// Run polls until ctx is cancelled. Failed polls are retried with
// exponential backoff; a handler's outcome never stops the loop.
func (p *Poller) Run(ctx context.Context, handle Handler) error {
	retry := backoff.NewExponentialBackOff()
	retry.MaxInterval = time.Minute
	retry.MaxElapsedTime = 0

	for {
		n, err := p.pollOnce(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			retry.Reset()
			if n > 0 {
				p.logger.Debug("updates_processed", zap.Int("count", n), zap.Int64("offset", p.offset))
			}
			continue
		}

		wait := retry.NextBackOff()
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > wait {
			wait = apiErr.RetryAfter
		}
		p.logger.Warn("poll_failed", zap.Error(err), zap.Duration("retry_in", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// pollOnce fetches one batch and advances the offset past every update in it
func (p *Poller) pollOnce(ctx context.Context, handle Handler) (int, error) {
	updates, err := p.client.getUpdates(ctx, p.offset, p.timeout)
	if err != nil {
		return 0, err
	}

	for _, u := range updates {
		if u.UpdateID >= p.offset {
			p.offset = u.UpdateID + 1
		}
		handle(ctx, u)
	}
	return len(updates), nil
}

// Offset returns the next update id the poller will ask for
func (p *Poller) Offset() int64 {
	return p.offset
}
