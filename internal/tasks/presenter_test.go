package tasks

import (
	"strings"
	"testing"

	"github.com/benvon/taskbot/internal/models"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		task     models.Task
		contains []string
		naCount  int
	}{
		{
			name:     "only title",
			task:     models.Task{ID: "t1", Title: "Call client"},
			contains: []string{"📌 *Task:* Call client"},
			naCount:  4,
		},
		{
			name: "all fields",
			task: models.Task{
				ID:          "t2",
				Title:       "Review PR",
				Description: "Check the tests",
				DueDate:     "2025-03-14",
				Priority:    models.PriorityHigh,
				Categories:  []string{"Dev", "Ops"},
			},
			contains: []string{
				"📝 *Description:* Check the tests",
				"🗓️ *Deadline:* 2025-03-14",
				"⚡ *Priority:* High",
				"📂 *Category:* Dev, Ops",
			},
			naCount: 0,
		},
		{
			name:     "markdown characters escaped",
			task:     models.Task{ID: "t3", Title: "fix *bold* and some_var"},
			contains: []string{"fix \\*bold\\* and some\\_var"},
			naCount:  4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			text := Format(tt.task)
			if !strings.HasPrefix(text, "👋 Hello!") {
				t.Errorf("Expected greeting, got %q", text)
			}
			if !strings.HasSuffix(text, "💪") {
				t.Errorf("Expected sign-off, got %q", text)
			}
			for _, want := range tt.contains {
				if !strings.Contains(text, want) {
					t.Errorf("Expected %q in %q", want, text)
				}
			}
			if got := strings.Count(text, "N/A"); got != tt.naCount {
				t.Errorf("Expected %d N/A placeholders, got %d", tt.naCount, got)
			}
		})
	}
}

func TestActionFor(t *testing.T) {
	t.Parallel()

	action := ActionFor(models.Task{ID: "abc-123"})
	if action.Label != DoneLabel {
		t.Errorf("Expected label %q, got %q", DoneLabel, action.Label)
	}
	if action.Token != "done:abc-123" {
		t.Errorf("Expected token 'done:abc-123', got %q", action.Token)
	}

	id, ok := ParseDoneToken(action.Token)
	if !ok || id != "abc-123" {
		t.Errorf("Expected round trip to abc-123, got %q (%v)", id, ok)
	}
}

func TestParseDoneToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		token  string
		wantID string
		wantOK bool
	}{
		{"done:xyz", "xyz", true},
		{"done:", "", false},
		{"done:  ", "", false},
		{"cat:Dev", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		id, ok := ParseDoneToken(tt.token)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("ParseDoneToken(%q) = (%q, %v), want (%q, %v)", tt.token, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestFormatWeek(t *testing.T) {
	t.Parallel()

	if got := FormatWeek(nil); got != "📅 This week's tasks:\n✅ None" {
		t.Errorf("Unexpected empty week text: %q", got)
	}

	got := FormatWeek([]models.Task{
		{Title: "One", DueDate: "2025-03-12"},
		{Title: "Two"},
	})
	want := "📅 This week's tasks:\n📌 One (2025-03-12)\n📌 Two"
	if got != want {
		t.Errorf("FormatWeek() = %q, want %q", got, want)
	}
}
