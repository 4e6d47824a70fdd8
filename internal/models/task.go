package models

import "strings"

// Priority represents how urgent a task is
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Priorities lists the selectable priorities in display order
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority matches a priority name case-insensitively
func ParsePriority(value string) (Priority, bool) {
	value = strings.TrimSpace(value)
	for _, p := range Priorities {
		if strings.EqualFold(string(p), value) {
			return p, true
		}
	}
	return "", false
}

// TaskStatus is the store-side status of a task. Only Done has meaning here;
// every other value counts as not done.
type TaskStatus string

// StatusDone is the terminal status
const StatusDone TaskStatus = "Done"

// IsDone reports whether the status is the terminal Done value
func (s TaskStatus) IsDone() bool {
	return s == StatusDone
}

// Task represents a task record in the task store
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     string     `json:"due_date,omitempty"` // YYYY-MM-DD
	Priority    Priority   `json:"priority,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
	AssigneeIDs []string   `json:"assignee_ids,omitempty"`
	Status      TaskStatus `json:"status,omitempty"`
}

// AssignedTo reports whether personID is among the task's assignees
func (t *Task) AssignedTo(personID string) bool {
	if personID == "" {
		return false
	}
	for _, id := range t.AssigneeIDs {
		if id == personID {
			return true
		}
	}
	return false
}

// NewTask holds the fields submitted when creating a task
type NewTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	DueDate     string   `json:"due_date"`
	Priority    Priority `json:"priority"`
	Category    string   `json:"category"`
	AssigneeID  string   `json:"assignee_id"`
}
