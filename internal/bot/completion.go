package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/taskbot/internal/models"
	"github.com/benvon/taskbot/internal/tasks"
	"github.com/benvon/taskbot/internal/telegram"
	"go.uber.org/zap"
)

// ErrInvalidCompletionToken is returned for callback data that names no task
var ErrInvalidCompletionToken = errors.New("invalid completion token")

// CompletionHandler marks tasks Done from their inline button
type CompletionHandler struct {
	store   StatusUpdater
	gateway Gateway
	logger  *zap.Logger
}

// NewCompletionHandler creates a completion handler
func NewCompletionHandler(store StatusUpdater, gateway Gateway, logger *zap.Logger) *CompletionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionHandler{store: store, gateway: gateway, logger: logger}
}

// Handle applies a done token. Every press issues one status update, so a
// repeated press is harmless. On failure the message is left as it was and
// the user gets a toast.
func (h *CompletionHandler) Handle(ctx context.Context, query *telegram.CallbackQuery) error {
	taskID, ok := tasks.ParseDoneToken(query.Data)
	if !ok {
		h.answer(ctx, query.ID, msgUnknownAction)
		return ErrInvalidCompletionToken
	}

	if err := h.store.UpdateTaskStatus(ctx, taskID, models.StatusDone); err != nil {
		h.logger.Error("task_completion_failed",
			zap.String("task_id", taskID),
			zap.Int64("user_id", query.From.ID),
			zap.Error(err),
		)
		h.answer(ctx, query.ID, msgCompletionFailed)
		return fmt.Errorf("failed to complete task %s: %w", taskID, err)
	}

	h.logger.Info("task_completed",
		zap.String("task_id", taskID),
		zap.Int64("user_id", query.From.ID),
	)
	h.answer(ctx, query.ID, "")

	if query.Message == nil {
		return nil
	}
	ref := telegram.MessageRef{ChatID: query.Message.Chat.ID, MessageID: query.Message.MessageID}
	if err := h.gateway.EditText(ctx, ref, msgTaskCompleted); err != nil {
		// The status change already happened
		h.logger.Warn("completion_message_edit_failed",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
	}
	return nil
}

func (h *CompletionHandler) answer(ctx context.Context, callbackID, text string) {
	if err := h.gateway.AnswerCallback(ctx, callbackID, text); err != nil {
		h.logger.Warn("answer_callback_failed", zap.Error(err))
	}
}
