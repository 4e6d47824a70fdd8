package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/benvon/taskbot/internal/telegram"
	"go.uber.org/zap"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// ErrorHandler recovers panics in health handlers
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					// Log panic details server-side but don't expose to client
					logger.Error("panic_recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
					)
					respondErrorJSON(w, http.StatusInternalServerError, "internal error", logger)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func respondErrorJSON(w http.ResponseWriter, status int, message string, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := ErrorResponse{
		Status:    "error",
		Error:     message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed_to_encode_error_response",
			zap.Error(err),
			zap.Int("status_code", status),
		)
	}
}

// Recover keeps a panicking update from stopping the poll loop
func Recover(logger *zap.Logger) UpdateMiddleware {
	return func(next telegram.Handler) telegram.Handler {
		return func(ctx context.Context, update telegram.Update) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("update_panic_recovered",
						zap.Any("error", err),
						zap.String("correlation_id", CorrelationID(ctx)),
						zap.Int64("update_id", update.UpdateID),
						zap.Int64("chat_id", UpdateChatID(update)),
					)
				}
			}()

			next(ctx, update)
		}
	}
}
