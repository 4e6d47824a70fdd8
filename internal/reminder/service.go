// Package reminder pushes each known chat its pending tasks at fixed times
// of day.
package reminder

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/taskbot/internal/identity"
	"github.com/benvon/taskbot/internal/logger"
	"github.com/benvon/taskbot/internal/models"
	"github.com/benvon/taskbot/internal/session"
	"github.com/benvon/taskbot/internal/tasks"
	"github.com/benvon/taskbot/internal/telegram"
	"go.uber.org/zap"
)

// Gateway is the part of the chat gateway reminders need
type Gateway interface {
	SendText(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (telegram.MessageRef, error)
	ChatUsername(ctx context.Context, chatID int64) (string, error)
}

// TaskSource returns a person's pending tasks
type TaskSource interface {
	ForPerson(ctx context.Context, personID string, dateRange *tasks.DateRange) ([]models.Task, error)
}

// RemindResult summarises one identity's reminder
type RemindResult struct {
	Username  string
	Pending   int
	Delivered int
}

// Service delivers the reminder for a single identity
type Service struct {
	gateway  Gateway
	resolver identity.ResolverInterface
	tasks    TaskSource
	logger   *zap.Logger
}

// NewService creates a reminder service
func NewService(gateway Gateway, resolver identity.ResolverInterface, source TaskSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gateway: gateway, resolver: resolver, tasks: source, logger: logger}
}

// Remind sends every pending task assigned to the identity, each with its
// completion button. The chat's current username is preferred over the
// registered one. Failed sends are collected; the remaining tasks are still
// attempted.
func (s *Service) Remind(ctx context.Context, id session.Identity) (RemindResult, error) {
	username := id.Username
	if current, err := s.gateway.ChatUsername(ctx, id.ChatID); err != nil {
		s.logger.Debug("chat_username_refresh_failed", zap.Int64("chat_id", id.ChatID), zap.Error(err))
	} else if current != "" {
		username = current
	}
	result := RemindResult{Username: username}

	personID, err := s.resolver.Resolve(ctx, username)
	if err != nil {
		return result, fmt.Errorf("failed to resolve %s: %w", logger.SanitizeUsername(username), err)
	}

	pending, err := s.tasks.ForPerson(ctx, personID, nil)
	if err != nil {
		return result, fmt.Errorf("failed to load tasks: %w", err)
	}
	result.Pending = len(pending)

	var sendErrs []error
	for _, task := range pending {
		action := tasks.ActionFor(task)
		opts := telegram.SendOptions{
			Markdown: true,
			Buttons:  [][]telegram.Button{{{Text: action.Label, Data: action.Token}}},
		}
		if _, err := s.gateway.SendText(ctx, id.ChatID, tasks.Format(task), opts); err != nil {
			sendErrs = append(sendErrs, fmt.Errorf("task %s: %w", task.ID, err))
			continue
		}
		result.Delivered++
	}

	if len(sendErrs) > 0 {
		return result, fmt.Errorf("failed to deliver %d of %d tasks: %w", len(sendErrs), len(pending), errors.Join(sendErrs...))
	}
	return result, nil
}
