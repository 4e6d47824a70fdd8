package tasks

import (
	"fmt"
	"strings"

	"github.com/benvon/taskbot/internal/models"
)

const (
	// DoneTokenPrefix prefixes the callback token of the completion action
	DoneTokenPrefix = "done:"
	// DoneLabel is the label of the completion action
	DoneLabel = "✅ Mark Done"

	notAvailable = "N/A"
)

// Action is a button attached to a task notification
type Action struct {
	Label string
	Token string
}

// markdownEscaper escapes the characters legacy Telegram Markdown treats as markup
var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// Format renders a task notification. Missing optional fields render as N/A.
func Format(task models.Task) string {
	var b strings.Builder
	b.WriteString("👋 Hello!\n\n")
	fmt.Fprintf(&b, "📌 *Task:* %s\n", orNA(task.Title))
	fmt.Fprintf(&b, "📝 *Description:* %s\n", orNA(task.Description))
	fmt.Fprintf(&b, "🗓️ *Deadline:* %s\n", orNA(task.DueDate))
	fmt.Fprintf(&b, "⚡ *Priority:* %s\n", orNA(string(task.Priority)))
	fmt.Fprintf(&b, "📂 *Category:* %s\n\n", orNA(strings.Join(nonEmpty(task.Categories), ", ")))
	b.WriteString("🚀 Let's get this done! You've got this! 💪")
	return b.String()
}

// ActionFor returns the completion action for a task
func ActionFor(task models.Task) Action {
	return Action{Label: DoneLabel, Token: DoneTokenPrefix + task.ID}
}

// ParseDoneToken extracts the task id from a completion token
func ParseDoneToken(token string) (string, bool) {
	id, ok := strings.CutPrefix(token, DoneTokenPrefix)
	if !ok || strings.TrimSpace(id) == "" {
		return "", false
	}
	return id, true
}

// FormatWeek renders the short list used by the week overview
func FormatWeek(week []models.Task) string {
	if len(week) == 0 {
		return "📅 This week's tasks:\n✅ None"
	}
	lines := make([]string, 0, len(week))
	for _, task := range week {
		line := "📌 " + task.Title
		if task.DueDate != "" {
			line += " (" + task.DueDate + ")"
		}
		lines = append(lines, line)
	}
	return "📅 This week's tasks:\n" + strings.Join(lines, "\n")
}

func orNA(value string) string {
	if strings.TrimSpace(value) == "" {
		return notAvailable
	}
	return markdownEscaper.Replace(value)
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
