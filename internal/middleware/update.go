package middleware

import (
	"context"

	"github.com/benvon/taskbot/internal/telegram"
	"github.com/google/uuid"
)

// UpdateMiddleware wraps a Telegram update handler
type UpdateMiddleware func(telegram.Handler) telegram.Handler

// Chain applies middlewares so the first one is outermost
func Chain(handler telegram.Handler, middlewares ...UpdateMiddleware) telegram.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// WithCorrelationID attaches a fresh correlation id to ctx
func WithCorrelationID(ctx context.Context) context.Context {
	return context.WithValue(ctx, correlationIDKey, uuid.NewString())
}

// CorrelationID returns the id attached by WithCorrelationID, or ""
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// UpdateKind names an update for logs: the command word, "text" or "callback"
func UpdateKind(update telegram.Update) string {
	switch {
	case update.CallbackQuery != nil:
		return "callback"
	case update.Message != nil && len(update.Message.Text) > 0 && update.Message.Text[0] == '/':
		return "command"
	case update.Message != nil:
		return "text"
	default:
		return "other"
	}
}

// UpdateChatID returns the chat an update belongs to, or 0
func UpdateChatID(update telegram.Update) int64 {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.Message.Chat.ID
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From.ID
	default:
		return 0
	}
}
