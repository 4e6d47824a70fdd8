package middleware

import (
	"context"
	"net/http"
	"time"

	logpkg "github.com/benvon/taskbot/internal/logger"
	"github.com/benvon/taskbot/internal/telegram"
	"go.uber.org/zap"
)

const maxLoggedPathLength = 128

// Logging creates logging middleware for the health server
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap ResponseWriter to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Debug("http_request",
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizeString(r.URL.Path, maxLoggedPathLength)),
				zap.Int("status_code", wrapped.statusCode),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LogUpdates tags each update with a correlation id and logs its handling time
func LogUpdates(logger *zap.Logger) UpdateMiddleware {
	return func(next telegram.Handler) telegram.Handler {
		return func(ctx context.Context, update telegram.Update) {
			ctx = WithCorrelationID(ctx)
			start := time.Now()

			next(ctx, update)

			logger.Info("update_handled",
				zap.String("correlation_id", CorrelationID(ctx)),
				zap.Int64("update_id", update.UpdateID),
				zap.Int64("chat_id", UpdateChatID(update)),
				zap.String("kind", UpdateKind(update)),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		}
	}
}
