// Package wizard drives the guided task creation dialog, one conversation
// per chat.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	logpkg "github.com/benvon/taskbot/internal/logger"
	"github.com/benvon/taskbot/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrNoConversation is returned when the chat has no dialog in progress
	ErrNoConversation = errors.New("no conversation in progress")
	// ErrExpired is returned when the chat's dialog sat idle past the TTL
	ErrExpired = errors.New("conversation expired")
	// ErrNoAssignees is returned when the store lists no team members
	ErrNoAssignees = errors.New("no team members available")
)

// DefaultTTL is how long a conversation may sit idle
const DefaultTTL = 30 * time.Minute

const (
	promptName     = "📝 Enter task name:"
	promptDesc     = "📄 Enter task description (send - to skip):"
	promptDate     = "📅 Enter due date (YYYY-MM-DD):"
	promptPriority = "⚡ Select priority:"
	promptCategory = "📂 Select task category:"
	promptMember   = "👥 Select assignee:"

	// MessageCreated confirms a committed task
	MessageCreated = "✅ Task added successfully!"
	// MessageCancelled confirms a cancelled dialog
	MessageCancelled = "❌ Task creation cancelled."
	// MessageExpired answers input to an expired dialog
	MessageExpired = "⌛ Task creation timed out. Send /addtask to start again."
	// MessageCommitFailed asks the user to retry a failed save
	MessageCommitFailed = "⚠️ Could not save the task. Pick the assignee again to retry."
	// MessageWrongStep answers a button pressed for another step
	MessageWrongStep = "Please answer the current step."
)

// Store is the part of the task store the dialog needs
type Store interface {
	QueryPersons(ctx context.Context) ([]models.Person, error)
	CreateTask(ctx context.Context, task models.NewTask) (string, error)
	CategoryOptions(ctx context.Context) ([]string, error)
}

// Button is a selectable answer
type Button struct {
	Label string
	Token string
}

// Reply is what the chat should show next
type Reply struct {
	Text    string
	Buttons [][]Button
	// Completed is set once the task has been created
	Completed bool
	TaskID    string
}

// Conversation is one chat's dialog state
type Conversation struct {
	ChatID    int64
	Stage     Stage
	Draft     models.NewTask
	StartedAt time.Time
	UpdatedAt time.Time

	categories []string
	persons    []models.Person
}

// Wizard owns every chat's conversation
type Wizard struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu            sync.Mutex
	conversations map[int64]*Conversation
}

// New creates a wizard. A non-positive ttl falls back to DefaultTTL.
func New(store Store, ttl time.Duration, logger *zap.Logger) *Wizard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wizard{
		store:         store,
		ttl:           ttl,
		logger:        logger,
		now:           time.Now,
		conversations: make(map[int64]*Conversation),
	}
}

// Start opens a fresh conversation for the chat, replacing any dialog
// already in progress
func (w *Wizard) Start(ctx context.Context, chatID int64) Reply {
	now := w.now()

	w.mu.Lock()
	_, replaced := w.conversations[chatID]
	w.conversations[chatID] = &Conversation{
		ChatID:    chatID,
		Stage:     StageAskName,
		StartedAt: now,
		UpdatedAt: now,
	}
	w.mu.Unlock()

	w.logger.Debug("conversation_started", zap.Int64("chat_id", chatID), zap.Bool("replaced", replaced))
	return Reply{Text: promptName}
}

// Cancel drops the chat's conversation and reports whether one existed
func (w *Wizard) Cancel(chatID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, ok := w.conversations[chatID]
	delete(w.conversations, chatID)
	return ok
}

// Active reports whether the chat has a live, unexpired conversation
func (w *Wizard) Active(chatID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	conv, ok := w.conversations[chatID]
	return ok && !w.expired(conv, w.now())
}

// Sweep removes conversations idle past the TTL and returns how many it removed
func (w *Wizard) Sweep(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for chatID, conv := range w.conversations {
		if w.expired(conv, now) {
			delete(w.conversations, chatID)
			removed++
		}
	}
	return removed
}

// HandleText feeds a typed answer to the chat's conversation
func (w *Wizard) HandleText(ctx context.Context, chatID int64, text string) (Reply, error) {
	return w.handle(ctx, chatID, text, false)
}

// HandleSelection feeds a button token to the chat's conversation
func (w *Wizard) HandleSelection(ctx context.Context, chatID int64, token string) (Reply, error) {
	return w.handle(ctx, chatID, token, true)
}

// handle runs one dialog step. The lock is held across store calls so a
// chat's answers are applied in order.
func (w *Wizard) handle(ctx context.Context, chatID int64, input string, selection bool) (Reply, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	conv, ok := w.conversations[chatID]
	if !ok {
		return Reply{}, ErrNoConversation
	}
	now := w.now()
	if w.expired(conv, now) {
		delete(w.conversations, chatID)
		return Reply{}, ErrExpired
	}
	conv.UpdatedAt = now

	if selection {
		value, ok := selectionFor(conv, input)
		if !ok {
			return w.reprompt(conv, MessageWrongStep), nil
		}
		input = value
	}

	var verdict Verdict
	switch conv.Stage {
	case StageAskName:
		conv.Draft.Title, verdict = validateName(input)
	case StageAskDesc:
		conv.Draft.Description, verdict = validateDescription(input)
	case StageAskDate:
		conv.Draft.DueDate, verdict = validateDate(input)
	case StageAskPriority:
		conv.Draft.Priority, verdict = validatePriority(input)
	case StageAskCategory:
		conv.Draft.Category, verdict = validateCategory(input, conv.categories)
	case StageAskMember:
		conv.Draft.AssigneeID, verdict = validateMember(input, conv.persons, selection)
	}
	if !verdict.OK {
		w.logger.Debug("answer_rejected",
			zap.Int64("chat_id", chatID),
			zap.Stringer("stage", conv.Stage),
			zap.String("input", logpkg.SanitizeChatText(input)),
		)
		return w.reprompt(conv, verdict.Reason), nil
	}

	if conv.Stage == StageAskMember {
		return w.commit(ctx, conv)
	}
	return w.advance(ctx, conv)
}

// advance moves to the next stage. The stage only changes once its prompt
// could be built, so a store failure leaves the user on the current step.
func (w *Wizard) advance(ctx context.Context, conv *Conversation) (Reply, error) {
	next := conv.Stage + 1
	switch next {
	case StageAskCategory:
		options, err := w.store.CategoryOptions(ctx)
		if err != nil {
			return Reply{}, fmt.Errorf("failed to load categories: %w", err)
		}
		if len(options) == 0 {
			// Nothing to choose from; leave the category empty
			conv.categories = nil
			conv.Stage = StageAskCategory
			return w.advance(ctx, conv)
		}
		conv.categories = options
	case StageAskMember:
		persons, err := w.store.QueryPersons(ctx)
		if err != nil {
			return Reply{}, fmt.Errorf("failed to load team members: %w", err)
		}
		if len(persons) == 0 {
			return Reply{}, ErrNoAssignees
		}
		conv.persons = persons
	}

	conv.Stage = next
	return w.prompt(conv), nil
}

func (w *Wizard) commit(ctx context.Context, conv *Conversation) (Reply, error) {
	taskID, err := w.store.CreateTask(ctx, conv.Draft)
	if err != nil {
		w.logger.Error("task_create_failed",
			zap.Int64("chat_id", conv.ChatID),
			zap.Error(err),
		)
		return w.reprompt(conv, MessageCommitFailed), fmt.Errorf("failed to create task: %w", err)
	}

	delete(w.conversations, conv.ChatID)
	w.logger.Info("task_created",
		zap.Int64("chat_id", conv.ChatID),
		zap.String("task_id", taskID),
		zap.Duration("dialog_duration", w.now().Sub(conv.StartedAt)),
	)
	return Reply{Text: MessageCreated, Completed: true, TaskID: taskID}, nil
}

func (w *Wizard) reprompt(conv *Conversation, reason string) Reply {
	reply := w.prompt(conv)
	reply.Text = "⚠️ " + strings.TrimPrefix(reason, "⚠️ ") + "\n" + reply.Text
	return reply
}

func (w *Wizard) prompt(conv *Conversation) Reply {
	switch conv.Stage {
	case StageAskName:
		return Reply{Text: promptName}
	case StageAskDesc:
		return Reply{Text: promptDesc}
	case StageAskDate:
		return Reply{Text: promptDate}
	case StageAskPriority:
		row := make([]Button, 0, len(models.Priorities))
		for _, p := range models.Priorities {
			row = append(row, Button{Label: string(p), Token: PriorityTokenPrefix + string(p)})
		}
		return Reply{Text: promptPriority, Buttons: [][]Button{row}}
	case StageAskCategory:
		buttons := make([][]Button, 0, len(conv.categories))
		for i, c := range conv.categories {
			buttons = append(buttons, []Button{{Label: c, Token: CategoryTokenPrefix + strconv.Itoa(i)}})
		}
		return Reply{Text: promptCategory, Buttons: buttons}
	default:
		buttons := make([][]Button, 0, len(conv.persons))
		for _, p := range conv.persons {
			label := p.Username
			if label == "" {
				label = p.ID
			}
			buttons = append(buttons, []Button{{Label: label, Token: AssignTokenPrefix + p.ID}})
		}
		return Reply{Text: promptMember, Buttons: buttons}
	}
}

func (w *Wizard) expired(conv *Conversation, now time.Time) bool {
	return now.Sub(conv.UpdatedAt) > w.ttl
}

// selectionFor extracts a token's value when it answers the conversation's
// current stage. Category tokens carry an index into the offered options,
// since option names can exceed Telegram's 64-byte callback data limit.
func selectionFor(conv *Conversation, token string) (string, bool) {
	switch conv.Stage {
	case StageAskPriority:
		return strings.CutPrefix(token, PriorityTokenPrefix)
	case StageAskCategory:
		raw, ok := strings.CutPrefix(token, CategoryTokenPrefix)
		if !ok {
			return "", false
		}
		i, err := strconv.Atoi(raw)
		if err != nil || i < 0 || i >= len(conv.categories) {
			return "", false
		}
		return conv.categories[i], true
	case StageAskMember:
		return strings.CutPrefix(token, AssignTokenPrefix)
	default:
		return "", false
	}
}
