package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/taskbot/internal/models"
)

const (
	// DefaultActivityLimit bounds List when no limit is given
	DefaultActivityLimit = 50
	// MaxActivityLimit is the largest page List returns
	MaxActivityLimit = 500
	maxCommandLength = 64
)

const chatActivitySchema = `
	CREATE TABLE IF NOT EXISTS chat_activity (
		chat_id             BIGINT PRIMARY KEY,
		username            TEXT NOT NULL DEFAULT '',
		last_command        TEXT NOT NULL DEFAULT '',
		interactions        BIGINT NOT NULL DEFAULT 0,
		last_interaction_at TIMESTAMPTZ NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL
	)
`

// ChatActivityRecorder records chat interactions
type ChatActivityRecorder interface {
	RecordInteraction(ctx context.Context, chatID int64, username, command string) error
}

// ChatActivityRepositoryInterface defines the interface for chat activity operations
type ChatActivityRepositoryInterface interface {
	ChatActivityRecorder
	List(ctx context.Context, limit int) ([]*models.ChatActivity, error)
}

var _ ChatActivityRepositoryInterface = (*ChatActivityRepository)(nil)

// ChatActivityRepository handles chat activity database operations
type ChatActivityRepository struct {
	db *DB
}

// NewChatActivityRepository creates a new chat activity repository
func NewChatActivityRepository(db *DB) *ChatActivityRepository {
	return &ChatActivityRepository{db: db}
}

// EnsureSchema creates the chat_activity table when it is missing
func (r *ChatActivityRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, chatActivitySchema); err != nil {
		return fmt.Errorf("failed to create chat_activity table: %w", err)
	}
	return nil
}

// RecordInteraction upserts the chat row and bumps its interaction count.
// An empty username keeps the one already stored.
func (r *ChatActivityRepository) RecordInteraction(ctx context.Context, chatID int64, username, command string) error {
	query := `
		INSERT INTO chat_activity (chat_id, username, last_command, interactions, last_interaction_at, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $4, $4)
		ON CONFLICT (chat_id) DO UPDATE
		SET username = COALESCE(NULLIF(EXCLUDED.username, ''), chat_activity.username),
		    last_command = EXCLUDED.last_command,
		    interactions = chat_activity.interactions + 1,
		    last_interaction_at = EXCLUDED.last_interaction_at,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, chatID, username, normalizeCommand(command), time.Now())
	if err != nil {
		return fmt.Errorf("failed to record chat interaction: %w", err)
	}

	return nil
}

// List returns the most recently active chats first
func (r *ChatActivityRepository) List(ctx context.Context, limit int) ([]*models.ChatActivity, error) {
	query := `
		SELECT chat_id, username, last_command, interactions, last_interaction_at, created_at, updated_at
		FROM chat_activity
		ORDER BY last_interaction_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query chat activity: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			// rows may already be closed
			_ = err
		}
	}()

	var activities []*models.ChatActivity
	for rows.Next() {
		activity := &models.ChatActivity{}
		if err := rows.Scan(
			&activity.ChatID,
			&activity.Username,
			&activity.LastCommand,
			&activity.Interactions,
			&activity.LastInteractionAt,
			&activity.CreatedAt,
			&activity.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat activity: %w", err)
		}
		activities = append(activities, activity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat activity: %w", err)
	}

	return activities, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultActivityLimit
	case limit > MaxActivityLimit:
		return MaxActivityLimit
	default:
		return limit
	}
}

// normalizeCommand keeps the command word only, without a @botname suffix
func normalizeCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	word := fields[0]
	if at := strings.Index(word, "@"); at > 0 {
		word = word[:at]
	}
	if len(word) > maxCommandLength {
		word = word[:maxCommandLength]
	}
	return strings.ToLower(word)
}
