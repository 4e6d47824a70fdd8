package middleware

import (
	"context"
	"time"

	"github.com/benvon/taskbot/internal/telegram"
)

const (
	// DefaultUpdateTimeout is the default per-update timeout (30 seconds)
	DefaultUpdateTimeout = 30 * time.Second
)

// Timeout bounds the work a single update may do
func Timeout(timeout time.Duration) UpdateMiddleware {
	if timeout <= 0 {
		timeout = DefaultUpdateTimeout
	}

	return func(next telegram.Handler) telegram.Handler {
		return func(ctx context.Context, update telegram.Update) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			next(ctx, update)
		}
	}
}
