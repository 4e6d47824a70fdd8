package bot

import (
	"context"
	"sync"

	"github.com/benvon/taskbot/internal/models"
	"github.com/benvon/taskbot/internal/ratelimit"
	"github.com/benvon/taskbot/internal/tasks"
	"github.com/benvon/taskbot/internal/telegram"
)

type sentMessage struct {
	ChatID int64
	Text   string
	Opts   telegram.SendOptions
}

type editedMessage struct {
	Ref  telegram.MessageRef
	Text string
}

type answeredCallback struct {
	ID   string
	Text string
}

// fakeGateway records everything the router sends
type fakeGateway struct {
	mu       sync.Mutex
	sent     []sentMessage
	edits    []editedMessage
	answers  []answeredCallback
	commands []telegram.Command
	sendErr  error
	editErr  error
}

var _ Gateway = (*fakeGateway)(nil)

func (f *fakeGateway) SendText(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (telegram.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return telegram.MessageRef{}, f.sendErr
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	return telegram.MessageRef{ChatID: chatID, MessageID: int64(len(f.sent))}, nil
}

func (f *fakeGateway) EditText(ctx context.Context, ref telegram.MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, editedMessage{Ref: ref, Text: text})
	return nil
}

func (f *fakeGateway) AnswerCallback(ctx context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answeredCallback{ID: callbackID, Text: text})
	return nil
}

func (f *fakeGateway) SetCommands(ctx context.Context, commands []telegram.Command) error {
	f.commands = commands
	return nil
}

func (f *fakeGateway) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

// fakeStore is an in-memory task store
type fakeStore struct {
	mu         sync.Mutex
	persons    []models.Person
	tasks      []models.Task
	categories []string
	created    []models.NewTask
	updates    []string

	personsErr error
	queryErr   error
	createErr  error
	updateErr  error
}

var _ tasks.Store = (*fakeStore)(nil)

func (f *fakeStore) QueryPersons(ctx context.Context) ([]models.Person, error) {
	if f.personsErr != nil {
		return nil, f.personsErr
	}
	return f.persons, nil
}

func (f *fakeStore) QueryTasks(ctx context.Context, filter tasks.Filter) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]models.Task, len(f.tasks))
	copy(out, f.tasks)
	return out, nil
}

func (f *fakeStore) CreateTask(ctx context.Context, task models.NewTask) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, task)
	return "new-task", nil
}

func (f *fakeStore) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, taskID)
	for i := range f.tasks {
		if f.tasks[i].ID == taskID {
			f.tasks[i].Status = status
		}
	}
	return nil
}

func (f *fakeStore) CategoryOptions(ctx context.Context) ([]string, error) {
	return f.categories, nil
}

// fakeThrottle replays scripted decisions, then allows everything
type fakeThrottle struct {
	decisions []ratelimit.Decision
}

func (f *fakeThrottle) Check(ctx context.Context, chatID int64) ratelimit.Decision {
	if len(f.decisions) == 0 {
		return ratelimit.Decision{Allowed: true}
	}
	d := f.decisions[0]
	f.decisions = f.decisions[1:]
	return d
}

var _ Throttle = (*fakeThrottle)(nil)

type recordedActivity struct {
	ChatID   int64
	Username string
	Command  string
}

type fakeActivity struct {
	records []recordedActivity
	err     error
}

func (f *fakeActivity) RecordInteraction(ctx context.Context, chatID int64, username, command string) error {
	f.records = append(f.records, recordedActivity{ChatID: chatID, Username: username, Command: command})
	return f.err
}
