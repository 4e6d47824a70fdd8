package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/benvon/taskbot/internal/database"
	"github.com/benvon/taskbot/internal/identity"
	"github.com/benvon/taskbot/internal/logger"
	"github.com/benvon/taskbot/internal/middleware"
	"github.com/benvon/taskbot/internal/session"
	"github.com/benvon/taskbot/internal/tasks"
	"github.com/benvon/taskbot/internal/telegram"
	"github.com/benvon/taskbot/internal/wizard"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Options wires the router's collaborators. Throttle and Activity are
// optional.
type Options struct {
	Gateway  Gateway
	Resolver identity.ResolverInterface
	Tasks    TaskQueries
	Statuses StatusUpdater
	Wizard   Conversations
	Registry *session.Registry
	Throttle Throttle
	Activity database.ChatActivityRecorder
	Location *time.Location
	Logger   *zap.Logger
}

// Router dispatches Telegram updates
type Router struct {
	gateway    Gateway
	resolver   identity.ResolverInterface
	tasks      TaskQueries
	wizard     Conversations
	registry   *session.Registry
	throttle   Throttle
	activity   database.ChatActivityRecorder
	completion *CompletionHandler
	location   *time.Location
	logger     *zap.Logger
	now        func() time.Time
}

// NewRouter creates a router
func NewRouter(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Registry == nil {
		opts.Registry = session.NewRegistry()
	}
	return &Router{
		gateway:    opts.Gateway,
		resolver:   opts.Resolver,
		tasks:      opts.Tasks,
		wizard:     opts.Wizard,
		registry:   opts.Registry,
		throttle:   opts.Throttle,
		activity:   opts.Activity,
		completion: NewCompletionHandler(opts.Statuses, opts.Gateway, opts.Logger),
		location:   opts.Location,
		logger:     opts.Logger,
		now:        time.Now,
	}
}

// RegisterCommands publishes the command menu
func (r *Router) RegisterCommands(ctx context.Context) error {
	return r.gateway.SetCommands(ctx, Commands)
}

// HandleUpdate handles one update. Failures are reported to the chat and
// logged; nothing is returned to the poll loop.
func (r *Router) HandleUpdate(ctx context.Context, update telegram.Update) {
	ctx, span := otel.Tracer("taskbot/bot").Start(ctx, "bot.update", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.Int64("update.id", update.UpdateID))

	switch {
	case update.Message != nil:
		span.SetAttributes(attribute.Int64("chat.id", update.Message.Chat.ID))
		if !r.admit(ctx, update.Message.Chat.ID, "") {
			return
		}
		r.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		chatID := middleware.UpdateChatID(update)
		span.SetAttributes(attribute.Int64("chat.id", chatID))
		if !r.admit(ctx, chatID, update.CallbackQuery.ID) {
			return
		}
		r.handleCallback(ctx, chatID, update.CallbackQuery)
	default:
		r.logger.Debug("update_ignored", zap.Int64("update_id", update.UpdateID))
	}
}

// admit applies the per-chat throttle. A rejected chat is told once per window.
func (r *Router) admit(ctx context.Context, chatID int64, callbackID string) bool {
	if r.throttle == nil {
		return true
	}
	decision := r.throttle.Check(ctx, chatID)
	if decision.Allowed {
		return true
	}

	r.logger.Info("update_throttled", zap.Int64("chat_id", chatID))
	if callbackID != "" {
		r.answer(ctx, callbackID, msgSlowDown)
	}
	if decision.Notify {
		r.send(ctx, chatID, msgSlowDown, telegram.SendOptions{})
	}
	return false
}

func (r *Router) handleMessage(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID
	username := senderUsername(msg)
	text := strings.TrimSpace(msg.Text)

	command, isCommand := parseCommand(text)
	if isCommand {
		r.record(ctx, chatID, username, "/"+command)
	} else {
		r.record(ctx, chatID, username, "text")
	}

	if !isCommand {
		if text == "" {
			// Photos, stickers and the like carry no answer
			if r.wizard.Active(chatID) {
				r.send(ctx, chatID, msgTextOnly, telegram.SendOptions{})
			}
			return
		}
		// Plain text only means something inside a dialog
		reply, err := r.wizard.HandleText(ctx, chatID, text)
		if errors.Is(err, wizard.ErrNoConversation) {
			r.logger.Debug("text_without_conversation", zap.Int64("chat_id", chatID))
			return
		}
		r.deliverWizardReply(ctx, chatID, nil, reply, err)
		return
	}

	switch command {
	case "start":
		r.handleStart(ctx, chatID, username)
	case "weektasks":
		r.handleWeekTasks(ctx, chatID, username)
	case "addtask":
		reply := r.wizard.Start(ctx, chatID)
		r.sendWizardReply(ctx, chatID, reply)
	case "cancel":
		if r.wizard.Cancel(chatID) {
			r.send(ctx, chatID, wizard.MessageCancelled, telegram.SendOptions{})
			return
		}
		r.send(ctx, chatID, msgNothingToCancel, telegram.SendOptions{})
	case "help":
		r.send(ctx, chatID, helpText, telegram.SendOptions{})
	default:
		r.send(ctx, chatID, msgUnknownCommand, telegram.SendOptions{})
	}
}

// handleStart registers the chat for reminders and lists its pending tasks
func (r *Router) handleStart(ctx context.Context, chatID int64, username string) {
	if r.registry.Add(session.Identity{ChatID: chatID, Username: username}) {
		r.logger.Info("chat_registered",
			zap.Int64("chat_id", chatID),
			zap.String("username", logger.SanitizeUsername(username)),
			zap.Int("registered_chats", r.registry.Len()),
		)
	}

	personID, ok := r.resolve(ctx, chatID, username, msgNotLinked)
	if !ok {
		return
	}

	pending, err := r.tasks.ForPerson(ctx, personID, nil)
	if err != nil {
		r.logger.Error("task_query_failed", zap.Int64("chat_id", chatID), zap.Error(err))
		r.send(ctx, chatID, msgStoreDown, telegram.SendOptions{})
		return
	}
	if len(pending) == 0 {
		r.send(ctx, chatID, msgNoTasks, telegram.SendOptions{})
		return
	}

	for _, task := range pending {
		action := tasks.ActionFor(task)
		r.send(ctx, chatID, tasks.Format(task), telegram.SendOptions{
			Markdown: true,
			Buttons:  [][]telegram.Button{{{Text: action.Label, Data: action.Token}}},
		})
	}
}

func (r *Router) handleWeekTasks(ctx context.Context, chatID int64, username string) {
	personID, ok := r.resolve(ctx, chatID, username, msgNotLinkedWeek)
	if !ok {
		return
	}

	week := tasks.WeekRange(r.now(), r.location)
	pending, err := r.tasks.ForPerson(ctx, personID, &week)
	if err != nil {
		r.logger.Error("task_query_failed", zap.Int64("chat_id", chatID), zap.Error(err))
		r.send(ctx, chatID, msgStoreDown, telegram.SendOptions{})
		return
	}
	r.send(ctx, chatID, tasks.FormatWeek(pending), telegram.SendOptions{})
}

// resolve maps the username to a person, telling the chat when it cannot
func (r *Router) resolve(ctx context.Context, chatID int64, username, notLinked string) (string, bool) {
	personID, err := r.resolver.Resolve(ctx, username)
	switch {
	case err == nil:
		return personID, true
	case errors.Is(err, identity.ErrIdentityNotFound):
		r.logger.Info("identity_not_linked",
			zap.Int64("chat_id", chatID),
			zap.String("username", logger.SanitizeUsername(username)),
		)
		r.send(ctx, chatID, notLinked, telegram.SendOptions{})
	default:
		r.logger.Error("identity_resolve_failed", zap.Int64("chat_id", chatID), zap.Error(err))
		r.send(ctx, chatID, msgStoreDown, telegram.SendOptions{})
	}
	return "", false
}

func (r *Router) handleCallback(ctx context.Context, chatID int64, query *telegram.CallbackQuery) {
	r.record(ctx, chatID, query.From.Username, "callback:"+callbackKind(query.Data))

	switch {
	case strings.HasPrefix(query.Data, tasks.DoneTokenPrefix):
		if err := r.completion.Handle(ctx, query); err != nil {
			r.logger.Warn("completion_callback_failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	case wizard.IsSelectionToken(query.Data):
		reply, err := r.wizard.HandleSelection(ctx, chatID, query.Data)
		if errors.Is(err, wizard.ErrNoConversation) {
			r.answer(ctx, query.ID, msgNoConversation)
			return
		}
		r.answer(ctx, query.ID, "")
		r.deliverWizardReply(ctx, chatID, query.Message, reply, err)
	default:
		r.logger.Debug("unknown_callback", zap.Int64("chat_id", chatID))
		r.answer(ctx, query.ID, msgUnknownAction)
	}
}

// deliverWizardReply shows a dialog step's outcome. A completed dialog
// replaces the message whose button finished it.
func (r *Router) deliverWizardReply(ctx context.Context, chatID int64, origin *telegram.Message, reply wizard.Reply, err error) {
	switch {
	case err == nil:
	case errors.Is(err, wizard.ErrNoConversation):
		return
	case errors.Is(err, wizard.ErrExpired):
		r.send(ctx, chatID, wizard.MessageExpired, telegram.SendOptions{})
		return
	case errors.Is(err, wizard.ErrNoAssignees):
		r.wizard.Cancel(chatID)
		r.send(ctx, chatID, msgNoAssignees, telegram.SendOptions{})
		return
	default:
		r.logger.Error("conversation_step_failed", zap.Int64("chat_id", chatID), zap.Error(err))
		if reply.Text == "" {
			r.send(ctx, chatID, msgStoreDown, telegram.SendOptions{})
			return
		}
	}

	if reply.Completed && origin != nil {
		ref := telegram.MessageRef{ChatID: origin.Chat.ID, MessageID: origin.MessageID}
		if editErr := r.gateway.EditText(ctx, ref, reply.Text); editErr == nil {
			return
		}
	}
	r.sendWizardReply(ctx, chatID, reply)
}

func (r *Router) sendWizardReply(ctx context.Context, chatID int64, reply wizard.Reply) {
	r.send(ctx, chatID, reply.Text, telegram.SendOptions{Buttons: toTelegramButtons(reply.Buttons)})
}

func (r *Router) send(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) {
	if _, err := r.gateway.SendText(ctx, chatID, text, opts); err != nil {
		r.logger.Error("send_message_failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

func (r *Router) answer(ctx context.Context, callbackID, text string) {
	if err := r.gateway.AnswerCallback(ctx, callbackID, text); err != nil {
		r.logger.Warn("answer_callback_failed", zap.Error(err))
	}
}

// record logs the interaction to the activity store; failures are ignored
func (r *Router) record(ctx context.Context, chatID int64, username, command string) {
	if r.activity == nil {
		return
	}
	if err := r.activity.RecordInteraction(ctx, chatID, username, command); err != nil {
		r.logger.Debug("activity_record_failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// parseCommand returns the lowercased command word of "/cmd@bot args"
func parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word := strings.Fields(text)[0][1:]
	if at := strings.Index(word, "@"); at >= 0 {
		word = word[:at]
	}
	if word == "" {
		return "", false
	}
	return strings.ToLower(word), true
}

func senderUsername(msg *telegram.Message) string {
	if msg.From != nil && msg.From.Username != "" {
		return msg.From.Username
	}
	return msg.Chat.Username
}

// callbackKind is the token prefix, without its payload
func callbackKind(data string) string {
	kind, _, found := strings.Cut(data, ":")
	if !found {
		return "unknown"
	}
	return kind
}
