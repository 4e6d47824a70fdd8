package tasks

import (
	"context"

	"github.com/benvon/taskbot/internal/models"
)

// mockStore is a func-field Store for tests
type mockStore struct {
	queryPersonsFunc     func(ctx context.Context) ([]models.Person, error)
	queryTasksFunc       func(ctx context.Context, filter Filter) ([]models.Task, error)
	createTaskFunc       func(ctx context.Context, task models.NewTask) (string, error)
	updateTaskStatusFunc func(ctx context.Context, taskID string, status models.TaskStatus) error
	categoryOptionsFunc  func(ctx context.Context) ([]string, error)
}

var _ Store = (*mockStore)(nil)

func (m *mockStore) QueryPersons(ctx context.Context) ([]models.Person, error) {
	if m.queryPersonsFunc != nil {
		return m.queryPersonsFunc(ctx)
	}
	return nil, nil
}

func (m *mockStore) QueryTasks(ctx context.Context, filter Filter) ([]models.Task, error) {
	if m.queryTasksFunc != nil {
		return m.queryTasksFunc(ctx, filter)
	}
	return nil, nil
}

func (m *mockStore) CreateTask(ctx context.Context, task models.NewTask) (string, error) {
	if m.createTaskFunc != nil {
		return m.createTaskFunc(ctx, task)
	}
	return "", nil
}

func (m *mockStore) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error {
	if m.updateTaskStatusFunc != nil {
		return m.updateTaskStatusFunc(ctx, taskID, status)
	}
	return nil
}

func (m *mockStore) CategoryOptions(ctx context.Context) ([]string, error) {
	if m.categoryOptionsFunc != nil {
		return m.categoryOptionsFunc(ctx)
	}
	return nil, nil
}
