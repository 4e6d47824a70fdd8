package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/taskbot/internal/models"
)

var (
	// ErrStoreUnavailable indicates the task store could not be reached or refused the call
	ErrStoreUnavailable = errors.New("task store unavailable")
	// ErrMalformedRecord indicates a store record is missing a required field
	ErrMalformedRecord = errors.New("malformed store record")
)

// StoreError describes a failed store call. StatusCode is zero when the
// call never got a response.
type StoreError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *StoreError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call may succeed
func (e *StoreError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// Store is the remote task and person store
type Store interface {
	QueryPersons(ctx context.Context) ([]models.Person, error)
	QueryTasks(ctx context.Context, filter Filter) ([]models.Task, error)
	CreateTask(ctx context.Context, task models.NewTask) (string, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error
	CategoryOptions(ctx context.Context) ([]string, error)
}

// dateLayout is the calendar date format used by the store
const dateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar dates
type DateRange struct {
	Start time.Time
	End   time.Time
}

// StartDate returns the range start as YYYY-MM-DD
func (r DateRange) StartDate() string {
	return r.Start.Format(dateLayout)
}

// EndDate returns the range end as YYYY-MM-DD
func (r DateRange) EndDate() string {
	return r.End.Format(dateLayout)
}

// Contains reports whether a YYYY-MM-DD date (or a timestamp starting with
// one) falls within the range. Tasks without a due date are never contained.
func (r DateRange) Contains(date string) bool {
	if len(date) < len(dateLayout) {
		return false
	}
	day := date[:len(dateLayout)]
	return day >= r.StartDate() && day <= r.EndDate()
}

// Filter narrows a task query. Conditions are combined with AND; the zero
// value matches every task.
type Filter struct {
	Range       *DateRange
	ExcludeDone bool
}

// Matches applies the filter to a single task
func (f Filter) Matches(task *models.Task) bool {
	if f.ExcludeDone && task.Status.IsDone() {
		return false
	}
	if f.Range != nil && !f.Range.Contains(task.DueDate) {
		return false
	}
	return true
}
