package notion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/benvon/taskbot/internal/logger"
	"github.com/benvon/taskbot/internal/models"
	"github.com/benvon/taskbot/internal/tasks"
	"go.uber.org/zap"
)

// pageSize is the largest page the query endpoint returns
const pageSize = 100

// Store implements tasks.Store over a Tasks database and a Team database
type Store struct {
	client  *Client
	tasksDB string
	teamDB  string
	schema  Schema
	logger  *zap.Logger
}

var _ tasks.Store = (*Store)(nil)

// NewStore creates a Notion-backed task store using DefaultSchema
func NewStore(client *Client, tasksDB, teamDB string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:  client,
		tasksDB: tasksDB,
		teamDB:  teamDB,
		schema:  DefaultSchema,
		logger:  logger,
	}
}

// QueryPersons lists every Team record carrying a chat username
func (s *Store) QueryPersons(ctx context.Context) ([]models.Person, error) {
	pages, err := s.queryAll(ctx, "query_persons", s.teamDB, nil)
	if err != nil {
		return nil, err
	}

	persons := make([]models.Person, 0, len(pages))
	for _, p := range pages {
		person, err := s.decodePerson(p)
		if err != nil {
			s.logger.Debug("person_record_skipped", zap.String("page_id", p.ID), zap.Error(err))
			continue
		}
		persons = append(persons, person)
	}
	return persons, nil
}

// QueryTasks lists tasks matching the filter. Records without an id or
// title are skipped.
func (s *Store) QueryTasks(ctx context.Context, filter tasks.Filter) ([]models.Task, error) {
	pages, err := s.queryAll(ctx, "query_tasks", s.tasksDB, s.buildFilter(filter))
	if err != nil {
		return nil, err
	}

	result := make([]models.Task, 0, len(pages))
	skipped := 0
	for _, p := range pages {
		task, err := s.decodeTask(p)
		if err != nil {
			skipped++
			s.logger.Warn("task_record_skipped", zap.String("page_id", p.ID), zap.Error(err))
			continue
		}
		result = append(result, task)
	}
	if skipped > 0 {
		s.logger.Info("malformed_task_records", zap.Int("skipped", skipped), zap.Int("kept", len(result)))
	}
	return result, nil
}

// CreateTask adds a task page and returns its id
func (s *Store) CreateTask(ctx context.Context, task models.NewTask) (string, error) {
	props := map[string]any{
		s.schema.TaskTitle:       map[string]any{"title": textValue(task.Title)},
		s.schema.TaskDescription: map[string]any{"rich_text": textValue(task.Description)},
	}
	if task.DueDate != "" {
		props[s.schema.TaskDueDate] = map[string]any{"date": dateValue{Start: task.DueDate}}
	}
	if task.Priority != "" {
		props[s.schema.TaskPriority] = map[string]any{"select": named{Name: string(task.Priority)}}
	}
	if task.Category != "" {
		props[s.schema.TaskCategory] = map[string]any{"multi_select": []named{{Name: task.Category}}}
	}
	if task.AssigneeID != "" {
		props[s.schema.TaskAssignee] = map[string]any{"relation": []relationRef{{ID: task.AssigneeID}}}
	}

	body := map[string]any{
		"parent":     map[string]string{"database_id": s.tasksDB},
		"properties": props,
	}

	var created page
	if err := s.client.do(ctx, "create_task", http.MethodPost, "/pages", body, &created); err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	s.logger.Info("task_page_created",
		zap.String("task_id", created.ID),
		zap.String("title", logger.SanitizeString(task.Title, 100)),
	)
	return created.ID, nil
}

// UpdateTaskStatus sets a task's status. Repeating the call is harmless.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error {
	body := map[string]any{
		"properties": map[string]any{
			s.schema.TaskStatus: map[string]any{"status": named{Name: string(status)}},
		},
	}
	path := "/pages/" + url.PathEscape(taskID)
	if err := s.client.do(ctx, "update_task_status", http.MethodPatch, path, body, nil); err != nil {
		return fmt.Errorf("failed to update task %s: %w", taskID, err)
	}
	return nil
}

// CategoryOptions returns the selectable categories defined on the Tasks database
func (s *Store) CategoryOptions(ctx context.Context) ([]string, error) {
	var db databaseResponse
	path := "/databases/" + url.PathEscape(s.tasksDB)
	if err := s.client.do(ctx, "category_options", http.MethodGet, path, nil, &db); err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	prop, ok := db.Properties[s.schema.TaskCategory]
	if !ok {
		return nil, fmt.Errorf("property %q missing from tasks database: %w", s.schema.TaskCategory, tasks.ErrMalformedRecord)
	}

	var options []named
	switch {
	case prop.MultiSelect != nil:
		options = prop.MultiSelect.Options
	case prop.Select != nil:
		options = prop.Select.Options
	}
	names := make([]string, 0, len(options))
	for _, o := range options {
		if o.Name != "" {
			names = append(names, o.Name)
		}
	}
	return names, nil
}

// queryAll follows the query cursor until every page has been read
func (s *Store) queryAll(ctx context.Context, op, databaseID string, filter map[string]any) ([]page, error) {
	path := "/databases/" + url.PathEscape(databaseID) + "/query"

	var all []page
	var cursor *string
	for {
		body := map[string]any{"page_size": pageSize}
		if filter != nil {
			body["filter"] = filter
		}
		if cursor != nil {
			body["start_cursor"] = *cursor
		}

		var resp queryResponse
		if err := s.client.do(ctx, op, http.MethodPost, path, body, &resp); err != nil {
			return nil, fmt.Errorf("failed to query database: %w", err)
		}
		for _, p := range resp.Results {
			if !p.Archived {
				all = append(all, p)
			}
		}

		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// buildFilter translates a task filter into Notion's compound filter
func (s *Store) buildFilter(filter tasks.Filter) map[string]any {
	var and []map[string]any
	if filter.Range != nil {
		and = append(and,
			map[string]any{"property": s.schema.TaskDueDate, "date": map[string]string{"on_or_after": filter.Range.StartDate()}},
			map[string]any{"property": s.schema.TaskDueDate, "date": map[string]string{"on_or_before": filter.Range.EndDate()}},
		)
	}
	if filter.ExcludeDone {
		and = append(and, map[string]any{
			"property": s.schema.TaskStatus,
			"status":   map[string]string{"does_not_equal": string(models.StatusDone)},
		})
	}
	if len(and) == 0 {
		return nil
	}
	return map[string]any{"and": and}
}

func (s *Store) decodeTask(p page) (models.Task, error) {
	if p.ID == "" {
		return models.Task{}, fmt.Errorf("page has no id: %w", tasks.ErrMalformedRecord)
	}
	title := p.Properties[s.schema.TaskTitle].text()
	if title == "" {
		return models.Task{}, fmt.Errorf("page %s has no title: %w", p.ID, tasks.ErrMalformedRecord)
	}

	task := models.Task{
		ID:          p.ID,
		Title:       title,
		Description: p.Properties[s.schema.TaskDescription].text(),
		Status:      models.TaskStatus(p.Properties[s.schema.TaskStatus].choice()),
	}

	if date := p.Properties[s.schema.TaskDueDate].Date; date != nil && len(date.Start) >= len("2006-01-02") {
		task.DueDate = date.Start[:len("2006-01-02")]
	}
	if priority, ok := models.ParsePriority(p.Properties[s.schema.TaskPriority].choice()); ok {
		task.Priority = priority
	}
	for _, c := range p.Properties[s.schema.TaskCategory].MultiSelect {
		task.Categories = append(task.Categories, c.Name)
	}
	if len(task.Categories) == 0 {
		if single := p.Properties[s.schema.TaskCategory].choice(); single != "" {
			task.Categories = []string{single}
		}
	}
	for _, r := range p.Properties[s.schema.TaskAssignee].Relation {
		task.AssigneeIDs = append(task.AssigneeIDs, r.ID)
	}
	return task, nil
}

func (s *Store) decodePerson(p page) (models.Person, error) {
	if p.ID == "" {
		return models.Person{}, fmt.Errorf("page has no id: %w", tasks.ErrMalformedRecord)
	}
	username := p.Properties[s.schema.PersonUsername].text()
	if username == "" {
		return models.Person{}, fmt.Errorf("page %s has no username: %w", p.ID, tasks.ErrMalformedRecord)
	}
	return models.Person{ID: p.ID, Username: username}, nil
}
