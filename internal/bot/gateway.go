// Package bot turns Telegram updates into task queries, dialog steps and
// completions.
package bot

import (
	"context"

	"github.com/benvon/taskbot/internal/models"
	"github.com/benvon/taskbot/internal/ratelimit"
	"github.com/benvon/taskbot/internal/tasks"
	"github.com/benvon/taskbot/internal/telegram"
	"github.com/benvon/taskbot/internal/wizard"
)

// Gateway is the chat transport the router talks through
type Gateway interface {
	SendText(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (telegram.MessageRef, error)
	EditText(ctx context.Context, ref telegram.MessageRef, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	SetCommands(ctx context.Context, commands []telegram.Command) error
}

var _ Gateway = (*telegram.Client)(nil)

// TaskQueries returns a person's pending tasks
type TaskQueries interface {
	ForPerson(ctx context.Context, personID string, dateRange *tasks.DateRange) ([]models.Task, error)
}

// StatusUpdater changes a task's status
type StatusUpdater interface {
	UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error
}

// Conversations drives task creation dialogs
type Conversations interface {
	Start(ctx context.Context, chatID int64) wizard.Reply
	Cancel(chatID int64) bool
	HandleText(ctx context.Context, chatID int64, text string) (wizard.Reply, error)
	HandleSelection(ctx context.Context, chatID int64, token string) (wizard.Reply, error)
	Active(chatID int64) bool
}

var _ Conversations = (*wizard.Wizard)(nil)

// Throttle limits how often a chat is served
type Throttle interface {
	Check(ctx context.Context, chatID int64) ratelimit.Decision
}

var _ Throttle = (*ratelimit.Throttle)(nil)

// Commands is the menu registered with Telegram at startup
var Commands = []telegram.Command{
	{Command: "start", Description: "Show your tasks"},
	{Command: "addtask", Description: "Add a new task"},
	{Command: "weektasks", Description: "Show tasks for this week"},
	{Command: "cancel", Description: "Cancel task creation"},
}

const (
	msgNotLinked        = "❌ You are not linked in the Team DB."
	msgNotLinkedWeek    = "❌ Not linked in the Team DB."
	msgNoTasks          = "🎉 No tasks assigned."
	msgStoreDown        = "⚠️ Could not reach the task database. Please try again later."
	msgSlowDown         = "⏳ Slow down! Too many messages, try again in a minute."
	msgNothingToCancel  = "Nothing to cancel."
	msgUnknownCommand   = "Unknown command. Send /help to see what I can do."
	msgNoAssignees      = "⚠️ No team members found in the Team DB. Task creation cancelled."
	msgNoConversation   = "No task creation in progress. Send /addtask to start."
	msgTextOnly         = "Please answer with a text message."
	msgUnknownAction    = "Unknown action"
	msgTaskCompleted    = "✅ Task marked complete!"
	msgCompletionFailed = "⚠️ Could not mark the task complete. Try again."

	helpText = "Available commands:\n" +
		"/start - Show your tasks\n" +
		"/addtask - Add a new task\n" +
		"/weektasks - Show tasks for this week\n" +
		"/cancel - Cancel task creation\n" +
		"/help - Show this help"
)

// toTelegramButtons converts dialog buttons to an inline keyboard
func toTelegramButtons(rows [][]wizard.Button) [][]telegram.Button {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]telegram.Button, 0, len(rows))
	for _, row := range rows {
		converted := make([]telegram.Button, 0, len(row))
		for _, b := range row {
			converted = append(converted, telegram.Button{Text: b.Label, Data: b.Token})
		}
		out = append(out, converted)
	}
	return out
}
