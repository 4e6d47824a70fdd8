package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/taskbot/internal/app"
	"github.com/benvon/taskbot/internal/bot"
	"github.com/benvon/taskbot/internal/config"
	"github.com/benvon/taskbot/internal/handlers"
	"github.com/benvon/taskbot/internal/logger"
	"github.com/benvon/taskbot/internal/middleware"
	"github.com/benvon/taskbot/internal/queue"
	"github.com/benvon/taskbot/internal/ratelimit"
	"github.com/benvon/taskbot/internal/reminder"
	"github.com/benvon/taskbot/internal/session"
	"github.com/benvon/taskbot/internal/tasks"
	"github.com/benvon/taskbot/internal/telegram"
	"github.com/benvon/taskbot/internal/telemetry"
	"github.com/benvon/taskbot/internal/wizard"
	"go.uber.org/zap"
)

const (
	sweepInterval = time.Minute
	dlqInterval   = time.Hour
	dlqRetention  = 24 * time.Hour
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.BotDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if syncErr := zapLogger.Sync(); syncErr != nil {
			// Ignore sync errors in production
			_ = syncErr
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zapLogger.Info("starting_bot",
		zap.Bool("debug_mode", debugMode),
		zap.String("timezone", cfg.Timezone),
		zap.Strings("reminder_times", cfg.ReminderTimes),
		zap.Bool("queue_enabled", cfg.RabbitMQURL != ""),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	shutdownTracing := telemetry.Setup(ctx, cfg.OTELEnabled, "taskbot-bot", cfg.OTELEndpoint, zapLogger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}()

	backends, err := app.Open(ctx, cfg, app.Need{Redis: true, Queue: true, Database: true}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_open_backends", zap.Error(err))
	}
	defer backends.Close()

	schedule, err := reminder.ParseSchedule(cfg.ReminderTimes, cfg.Location())
	if err != nil {
		zapLogger.Fatal("invalid_reminder_schedule", zap.Error(err))
	}

	client := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramAPIRoot, cfg.PollTimeout, zapLogger)
	me, err := client.GetMe(ctx)
	if err != nil {
		zapLogger.Fatal("failed_to_reach_telegram", zap.Error(err))
	}
	zapLogger.Info("telegram_bot_identified", zap.String("bot_username", me.Username))

	engine := tasks.NewEngine(backends.Store, zapLogger)
	registry := session.NewRegistry()
	conversations := wizard.New(backends.Store, cfg.ConversationTTL, zapLogger)

	throttle, err := newThrottle(backends, cfg.ChatRateLimit, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	opts := bot.Options{
		Gateway:  client,
		Resolver: backends.Resolver,
		Tasks:    engine,
		Statuses: backends.Store,
		Wizard:   conversations,
		Registry: registry,
		Throttle: throttle,
		Location: cfg.Location(),
		Logger:   zapLogger,
	}
	if backends.Activity != nil {
		opts.Activity = backends.Activity
	}
	router := bot.NewRouter(opts)

	if err := router.RegisterCommands(ctx); err != nil {
		zapLogger.Warn("failed_to_register_commands", zap.Error(err))
	}

	// Reminders go through the queue when one is configured so the worker
	// can deliver them; otherwise the bot delivers them itself
	var dispatcher reminder.Dispatcher
	if backends.Queue != nil {
		dispatcher = reminder.NewQueueDispatcher(backends.Queue, schedule.Interval(), zapLogger)
		sweeper := queue.NewDeadLetterSweeper(backends.Queue, dlqInterval, dlqRetention, zapLogger)
		go func() {
			if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("dead_letter_sweeper_stopped_with_error", zap.Error(err))
			}
		}()
	} else {
		service := reminder.NewService(client, backends.Resolver, engine, zapLogger)
		dispatcher = reminder.NewDirectDispatcher(service, cfg.HandlerTimeout, zapLogger)
	}
	scheduler := reminder.NewScheduler(schedule, registry, dispatcher, zapLogger)
	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("reminder_scheduler_stopped_with_error", zap.Error(err))
		}
	}()

	go sweepConversations(ctx, conversations, zapLogger)

	health := handlers.NewHealthChecker(zapLogger)
	backends.RegisterHealthChecks(health)
	srv := &http.Server{
		Addr:              ":" + cfg.HealthPort,
		Handler:           handlers.NewRouter(health, "taskbot-bot", zapLogger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		zapLogger.Info("health_server_starting", zap.String("port", cfg.HealthPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Error("health_server_failed", zap.Error(err))
		}
	}()

	handle := middleware.Chain(router.HandleUpdate,
		middleware.LogUpdates(zapLogger),
		middleware.Recover(zapLogger),
		middleware.Timeout(cfg.HandlerTimeout),
	)
	poller := telegram.NewPoller(client, cfg.PollTimeout, zapLogger)
	if err := poller.Run(ctx, handle); err != nil && !errors.Is(err, context.Canceled) {
		zapLogger.Error("poller_stopped_with_error", zap.Error(err))
	}

	zapLogger.Info("bot_shutting_down", zap.Int64("next_update_offset", poller.Offset()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("health_server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("bot_exited")
}

// newThrottle shares counters through Redis when available
func newThrottle(backends *app.Backends, rate string, logger *zap.Logger) (*ratelimit.Throttle, error) {
	if backends.Redis != nil {
		return ratelimit.NewRedisThrottle(backends.Redis, rate, logger)
	}
	return ratelimit.NewMemoryThrottle(rate, logger)
}

// sweepConversations drops idle dialogs so abandoned ones do not pile up
func sweepConversations(ctx context.Context, w *wizard.Wizard, logger *zap.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := w.Sweep(now); removed > 0 {
				logger.Info("conversations_expired", zap.Int("count", removed))
			}
		}
	}
}
