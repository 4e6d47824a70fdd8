package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/taskbot/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Engine fetches tasks from the store under optional filters
type Engine struct {
	store  Store
	logger *zap.Logger
}

// NewEngine creates a new query engine
func NewEngine(store Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger}
}

// Query returns tasks due within dateRange (when given), leaving out Done
// tasks when excludeDone is set. The filter is re-applied to the store's
// answer so a lenient store cannot leak non-matching records.
func (e *Engine) Query(ctx context.Context, dateRange *DateRange, excludeDone bool) ([]models.Task, error) {
	ctx, span := otel.Tracer("taskbot/tasks").Start(ctx, "tasks.query")
	defer span.End()

	filter := Filter{Range: dateRange, ExcludeDone: excludeDone}
	span.SetAttributes(
		attribute.Bool("filter.exclude_done", excludeDone),
		attribute.Bool("filter.date_range", dateRange != nil),
	)

	fetched, err := e.store.QueryTasks(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	result := make([]models.Task, 0, len(fetched))
	for i := range fetched {
		if !filter.Matches(&fetched[i]) {
			e.logger.Debug("dropped_task_outside_filter",
				zap.String("task_id", fetched[i].ID),
				zap.String("due_date", fetched[i].DueDate),
				zap.String("status", string(fetched[i].Status)),
			)
			continue
		}
		result = append(result, fetched[i])
	}

	span.SetAttributes(attribute.Int("tasks.count", len(result)))
	return result, nil
}

// ForPerson returns the pending tasks assigned to personID, optionally
// limited to dateRange
func (e *Engine) ForPerson(ctx context.Context, personID string, dateRange *DateRange) ([]models.Task, error) {
	all, err := e.Query(ctx, dateRange, true)
	if err != nil {
		return nil, err
	}
	return AssignedTo(all, personID), nil
}

// AssignedTo keeps the tasks whose assignees include personID. The store
// offers no relation filter for this, so the join happens here.
func AssignedTo(all []models.Task, personID string) []models.Task {
	var assigned []models.Task
	for i := range all {
		if all[i].AssignedTo(personID) {
			assigned = append(assigned, all[i])
		}
	}
	return assigned
}

// WeekRange returns the range from today through the coming Sunday in loc
func WeekRange(now time.Time, loc *time.Location) DateRange {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	// Monday-based weekday: Monday=0 ... Sunday=6
	weekday := (int(today.Weekday()) + 6) % 7
	return DateRange{
		Start: today,
		End:   today.AddDate(0, 0, 6-weekday),
	}
}
