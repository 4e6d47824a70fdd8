package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/taskbot/internal/app"
	"github.com/benvon/taskbot/internal/config"
	"github.com/benvon/taskbot/internal/logger"
	"github.com/benvon/taskbot/internal/reminder"
	"github.com/benvon/taskbot/internal/tasks"
	"github.com/benvon/taskbot/internal/telegram"
	"github.com/benvon/taskbot/internal/telemetry"
	"github.com/benvon/taskbot/internal/workers"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override debug mode if flag is set
	debugMode := cfg.WorkerDebugMode || *debugFlag

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

	if cfg.RabbitMQURL == "" {
		zapLogger.Fatal("rabbitmq_url_required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
	)

	shutdownTracing := telemetry.Setup(ctx, cfg.OTELEnabled, "taskbot-worker", cfg.OTELEndpoint, zapLogger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}()

	backends, err := app.Open(ctx, cfg, app.Need{Redis: true, Queue: true}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_open_backends", zap.Error(err))
	}
	defer backends.Close()

	client := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramAPIRoot, cfg.PollTimeout, zapLogger)
	engine := tasks.NewEngine(backends.Store, zapLogger)
	service := reminder.NewService(client, backends.Resolver, engine, zapLogger)
	worker := workers.NewReminderWorker(service, backends.Queue, cfg.HandlerTimeout, zapLogger)

	zapLogger.Info("worker_started")
	if err := worker.Run(ctx, backends.Queue, cfg.RabbitMQPrefetch); err != nil && !errors.Is(err, context.Canceled) {
		zapLogger.Error("worker_stopped_with_error", zap.Error(err))
	}

	zapLogger.Info("worker_stopped")
}
