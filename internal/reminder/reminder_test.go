package reminder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benvon/taskbot/internal/identity"
	"github.com/benvon/taskbot/internal/models"
	"github.com/benvon/taskbot/internal/queue"
	"github.com/benvon/taskbot/internal/session"
	"github.com/benvon/taskbot/internal/tasks"
	"github.com/benvon/taskbot/internal/telegram"
)

type sentMessage struct {
	ChatID int64
	Text   string
	Opts   telegram.SendOptions
}

type mockGateway struct {
	mu               sync.Mutex
	sent             []sentMessage
	sendTextFunc     func(chatID int64, text string) error
	chatUsernameFunc func(chatID int64) (string, error)
}

var _ Gateway = (*mockGateway)(nil)

func (m *mockGateway) SendText(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (telegram.MessageRef, error) {
	if m.sendTextFunc != nil {
		if err := m.sendTextFunc(chatID, text); err != nil {
			return telegram.MessageRef{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	return telegram.MessageRef{ChatID: chatID, MessageID: int64(len(m.sent))}, nil
}

func (m *mockGateway) ChatUsername(ctx context.Context, chatID int64) (string, error) {
	if m.chatUsernameFunc != nil {
		return m.chatUsernameFunc(chatID)
	}
	return "", errors.New("chat not found")
}

type mockResolver struct {
	ids map[string]string
}

func (m *mockResolver) Resolve(ctx context.Context, username string) (string, error) {
	if id, ok := m.ids[identity.Normalize(username)]; ok {
		return id, nil
	}
	return "", identity.ErrIdentityNotFound
}

type mockTaskSource struct {
	forPersonFunc func(personID string) ([]models.Task, error)
}

func (m *mockTaskSource) ForPerson(ctx context.Context, personID string, dateRange *tasks.DateRange) ([]models.Task, error) {
	return m.forPersonFunc(personID)
}

func tasksFor(byPerson map[string][]models.Task) *mockTaskSource {
	return &mockTaskSource{forPersonFunc: func(personID string) ([]models.Task, error) {
		return byPerson[personID], nil
	}}
}

func TestService_Remind(t *testing.T) {
	t.Parallel()

	gateway := &mockGateway{}
	source := tasksFor(map[string][]models.Task{
		"p1": {{ID: "t1", Title: "One"}, {ID: "t2", Title: "Two"}},
	})
	svc := NewService(gateway, &mockResolver{ids: map[string]string{"alice": "p1"}}, source, nil)

	result, err := svc.Remind(context.Background(), session.Identity{ChatID: 10, Username: "alice"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Pending != 2 || result.Delivered != 2 {
		t.Errorf("Expected 2 pending and delivered, got %+v", result)
	}
	if len(gateway.sent) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(gateway.sent))
	}
	first := gateway.sent[0]
	if first.ChatID != 10 || !strings.Contains(first.Text, "📌 *Task:* One") || !first.Opts.Markdown {
		t.Errorf("Unexpected message: %+v", first)
	}
	if got := first.Opts.Buttons[0][0]; got.Data != "done:t1" || got.Text != tasks.DoneLabel {
		t.Errorf("Expected completion button, got %+v", got)
	}
}

func TestService_Remind_RefreshesUsername(t *testing.T) {
	t.Parallel()

	gateway := &mockGateway{chatUsernameFunc: func(int64) (string, error) { return "alice_new", nil }}
	svc := NewService(gateway, &mockResolver{ids: map[string]string{"alice_new": "p1"}},
		tasksFor(map[string][]models.Task{"p1": {{ID: "t1", Title: "One"}}}), nil)

	result, err := svc.Remind(context.Background(), session.Identity{ChatID: 10, Username: "alice_old"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Username != "alice_new" || result.Delivered != 1 {
		t.Errorf("Expected refreshed username to be used, got %+v", result)
	}
}

func TestService_Remind_PartialSendFailure(t *testing.T) {
	t.Parallel()

	gateway := &mockGateway{sendTextFunc: func(chatID int64, text string) error {
		if strings.Contains(text, "Two") {
			return errors.New("blocked")
		}
		return nil
	}}
	svc := NewService(gateway, &mockResolver{ids: map[string]string{"alice": "p1"}},
		tasksFor(map[string][]models.Task{"p1": {{ID: "t1", Title: "One"}, {ID: "t2", Title: "Two"}, {ID: "t3", Title: "Three"}}}), nil)

	result, err := svc.Remind(context.Background(), session.Identity{ChatID: 1, Username: "alice"})
	if err == nil {
		t.Fatal("Expected an error for the failed send")
	}
	if result.Delivered != 2 {
		t.Errorf("Expected remaining tasks to be delivered, got %d", result.Delivered)
	}
}

func TestDirectDispatcher_IsolatesFailures(t *testing.T) {
	t.Parallel()

	gateway := &mockGateway{}
	resolver := &mockResolver{ids: map[string]string{"alice": "p1", "bob": "p2", "dave": "p4"}}
	source := &mockTaskSource{forPersonFunc: func(personID string) ([]models.Task, error) {
		if personID == "p4" {
			return nil, tasks.ErrStoreUnavailable
		}
		return []models.Task{{ID: "t-" + personID, Title: "Task for " + personID}}, nil
	}}
	dispatcher := NewDirectDispatcher(NewService(gateway, resolver, source, nil), time.Second, nil)

	identities := []session.Identity{
		{ChatID: 1, Username: "alice"},
		{ChatID: 2, Username: "carol"}, // not in the team database
		{ChatID: 3, Username: "bob"},
		{ChatID: 4, Username: "dave"},
	}
	round := dispatcher.Dispatch(context.Background(), identities)

	if round.Identities != 4 || round.Succeeded != 2 || round.Unlinked != 1 || round.Failed != 1 {
		t.Errorf("Unexpected round result: %+v", round)
	}
	if round.Delivered != 2 {
		t.Errorf("Expected 2 delivered tasks, got %d", round.Delivered)
	}
	chats := map[int64]bool{}
	for _, m := range gateway.sent {
		chats[m.ChatID] = true
	}
	if !chats[1] || !chats[3] || chats[2] {
		t.Errorf("Expected deliveries to chats 1 and 3 only, got %v", chats)
	}
}

func TestDirectDispatcher_OneUnresolved(t *testing.T) {
	t.Parallel()

	const n = 5
	ids := map[string]string{}
	var identities []session.Identity
	for i := 0; i < n; i++ {
		name := string(rune('a' + i))
		if i != 2 {
			ids[name] = "p-" + name
		}
		identities = append(identities, session.Identity{ChatID: int64(i + 1), Username: name})
	}
	source := &mockTaskSource{forPersonFunc: func(personID string) ([]models.Task, error) {
		return []models.Task{{ID: personID + "-t", Title: personID}}, nil
	}}
	gateway := &mockGateway{}

	round := NewDirectDispatcher(NewService(gateway, &mockResolver{ids: ids}, source, nil), 0, nil).
		Dispatch(context.Background(), identities)

	if round.Succeeded != n-1 {
		t.Errorf("Expected %d identities reminded, got %d", n-1, round.Succeeded)
	}
	if len(gateway.sent) != n-1 {
		t.Errorf("Expected %d messages, got %d", n-1, len(gateway.sent))
	}
}

type mockEnqueuer struct {
	mu          sync.Mutex
	jobs        []*queue.Job
	enqueueFunc func(job *queue.Job) error
}

var _ Enqueuer = (*mockEnqueuer)(nil)

func (m *mockEnqueuer) Enqueue(ctx context.Context, job *queue.Job) error {
	if m.enqueueFunc != nil {
		if err := m.enqueueFunc(job); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return nil
}

func TestQueueDispatcher_Dispatch(t *testing.T) {
	t.Parallel()

	q := &mockEnqueuer{enqueueFunc: func(job *queue.Job) error {
		if job.ChatID == 2 {
			return errors.New("channel closed")
		}
		return nil
	}}
	dispatcher := NewQueueDispatcher(q, 30*time.Minute, nil)

	round := dispatcher.Dispatch(context.Background(), []session.Identity{
		{ChatID: 1, Username: "alice"},
		{ChatID: 2, Username: "bob"},
		{ChatID: 3, Username: "carol"},
	})

	if round.Succeeded != 2 || round.Failed != 1 {
		t.Errorf("Unexpected round result: %+v", round)
	}
	if len(q.jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(q.jobs))
	}
	job := q.jobs[0]
	if job.Type != queue.JobTypeReminder || job.ChatID != 1 || job.Username != "alice" {
		t.Errorf("Unexpected job: %+v", job)
	}
	if job.NotAfter == nil {
		t.Error("Expected reminder job to carry a staleness deadline")
	}
}

type staticRegistry []session.Identity

func (r staticRegistry) Snapshot() []session.Identity { return r }

type countingDispatcher struct {
	mu     sync.Mutex
	rounds [][]session.Identity
	fired  chan struct{}
}

func (d *countingDispatcher) Dispatch(ctx context.Context, identities []session.Identity) RoundResult {
	d.mu.Lock()
	d.rounds = append(d.rounds, identities)
	d.mu.Unlock()
	if d.fired != nil {
		select {
		case d.fired <- struct{}{}:
		default:
		}
	}
	return RoundResult{Identities: len(identities), Succeeded: len(identities)}
}

func TestScheduler_Trigger(t *testing.T) {
	t.Parallel()

	registry := staticRegistry{{ChatID: 1}, {ChatID: 2}}
	dispatcher := &countingDispatcher{}
	schedule, _ := ParseSchedule([]string{"07:00"}, time.UTC)

	result := NewScheduler(schedule, registry, dispatcher, nil).Trigger(context.Background())
	if result.Identities != 2 || len(dispatcher.rounds) != 1 {
		t.Errorf("Expected one round over 2 identities, got %+v (%d rounds)", result, len(dispatcher.rounds))
	}
}

func TestScheduler_Run(t *testing.T) {
	t.Parallel()

	schedule, _ := ParseSchedule([]string{"07:00", "09:00"}, time.UTC)
	dispatcher := &countingDispatcher{fired: make(chan struct{}, 4)}
	scheduler := NewScheduler(schedule, staticRegistry{{ChatID: 1}}, dispatcher, nil)

	clock := time.Date(2025, 3, 12, 6, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	var waitedFor []time.Time
	scheduler.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	scheduler.after = func(time.Duration) <-chan time.Time {
		mu.Lock()
		defer mu.Unlock()
		// Jump the clock straight to the fire time being waited for
		clock = schedule.Next(clock)
		waitedFor = append(waitedFor, clock)
		ch := make(chan time.Time, 1)
		ch <- clock
		return ch
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-dispatcher.fired:
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler did not fire")
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []time.Time{
		time.Date(2025, 3, 12, 7, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 13, 7, 0, 0, 0, time.UTC),
	}
	for i, w := range want {
		if !waitedFor[i].Equal(w) {
			t.Errorf("Fire %d: expected %v, got %v", i, w, waitedFor[i])
		}
	}
}

func TestScheduler_Run_ClockBehindFireTime(t *testing.T) {
	t.Parallel()

	schedule, _ := ParseSchedule([]string{"07:00", "09:00"}, time.UTC)
	dispatcher := &countingDispatcher{fired: make(chan struct{}, 4)}
	scheduler := NewScheduler(schedule, staticRegistry{{ChatID: 1}}, dispatcher, nil)

	clock := time.Date(2025, 3, 12, 6, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	var waitedFor []time.Time
	scheduler.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	scheduler.after = func(d time.Duration) <-chan time.Time {
		mu.Lock()
		defer mu.Unlock()
		target := clock.Add(d)
		waitedFor = append(waitedFor, target)
		// The timer fires but the wall clock reads a second short of the target
		clock = target.Add(-time.Second)
		ch := make(chan time.Time, 1)
		ch <- target
		return ch
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-dispatcher.fired:
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler did not fire")
		}
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	want := []time.Time{
		time.Date(2025, 3, 12, 7, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 13, 7, 0, 0, 0, time.UTC),
	}
	for i, w := range want {
		if !waitedFor[i].Equal(w) {
			t.Errorf("Fire %d: expected %v, got %v", i, w, waitedFor[i])
		}
	}
}

func TestScheduler_Run_SkipsMissedRounds(t *testing.T) {
	t.Parallel()

	schedule, _ := ParseSchedule([]string{"07:00", "09:00"}, time.UTC)
	dispatcher := &countingDispatcher{fired: make(chan struct{}, 4)}
	scheduler := NewScheduler(schedule, staticRegistry{{ChatID: 1}}, dispatcher, nil)

	clock := time.Date(2025, 3, 12, 6, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	var waitedFor []time.Time
	scheduler.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	scheduler.after = func(d time.Duration) <-chan time.Time {
		mu.Lock()
		defer mu.Unlock()
		target := clock.Add(d)
		waitedFor = append(waitedFor, target)
		// The process wakes long after the target, past the 09:00 round
		clock = target.Add(3 * time.Hour)
		ch := make(chan time.Time, 1)
		ch <- target
		return ch
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-dispatcher.fired:
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler did not fire")
		}
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if !waitedFor[1].Equal(time.Date(2025, 3, 13, 7, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected the missed 09:00 round to be skipped, next wait was for %v", waitedFor[1])
	}
}
