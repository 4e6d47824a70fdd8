// Package app opens the external backends shared by the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/taskbot/internal/config"
	"github.com/benvon/taskbot/internal/database"
	"github.com/benvon/taskbot/internal/handlers"
	"github.com/benvon/taskbot/internal/identity"
	"github.com/benvon/taskbot/internal/notion"
	"github.com/benvon/taskbot/internal/queue"
	"github.com/benvon/taskbot/internal/ratelimit"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// notionCheckTTL spaces out readiness reads against Notion's request limit
const notionCheckTTL = 30 * time.Second

// Backends holds the connections a binary needs. Optional backends are nil
// when their URL is not configured.
type Backends struct {
	Store    *notion.Store
	Resolver identity.ResolverInterface
	// Cache is set when resolved identities are cached in Redis
	Cache    *identity.CachedResolver
	Redis    *redis.Client
	Queue    *queue.RabbitMQQueue
	DB       *database.DB
	Activity *database.ChatActivityRepository

	logger  *zap.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Need selects which optional backends Open must connect
type Need struct {
	Redis    bool
	Queue    bool
	Database bool
}

// Open connects the task store and every needed backend that is configured.
// A configured backend that cannot be reached is an error.
func Open(ctx context.Context, cfg *config.Config, need Need, logger *zap.Logger) (*Backends, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backends{logger: logger}

	client := notion.NewClient(ctx, cfg.NotionToken, cfg.NotionAPIBase, cfg.NotionVersion, logger)
	b.Store = notion.NewStore(client, cfg.TasksDBID, cfg.TeamDBID, logger)
	b.Resolver = identity.NewResolver(b.Store, logger)

	if need.Redis && cfg.RedisURL != "" {
		rdb, err := ratelimit.NewRedisClient(cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Redis = rdb
		b.closers = append(b.closers, namedCloser{"redis", rdb.Close})

		b.Cache = identity.NewCachedResolver(b.Resolver, identity.NewRedisCache(rdb), cfg.IdentityCacheTTL, logger)
		b.Resolver = b.Cache
		logger.Info("connected_to_redis")
	}

	if need.Queue && cfg.RabbitMQURL != "" {
		q, err := queue.NewRabbitMQQueue(ctx, cfg.RabbitMQURL, logger)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		b.Queue = q
		b.closers = append(b.closers, namedCloser{"rabbitmq", q.Close})
		logger.Info("connected_to_rabbitmq")
	}

	if need.Database && cfg.DatabaseURL != "" {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		b.DB = db
		b.closers = append(b.closers, namedCloser{"database", db.Close})

		b.Activity = database.NewChatActivityRepository(db)
		if err := b.Activity.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, err
		}
		logger.Info("connected_to_database")
	}

	return b, nil
}

// RegisterHealthChecks adds a check for every open backend
func (b *Backends) RegisterHealthChecks(h *handlers.HealthChecker) {
	h.Register("notion", handlers.CachedCheck(func(ctx context.Context) error {
		_, err := b.Store.CategoryOptions(ctx)
		return err
	}, notionCheckTTL))
	if b.Redis != nil {
		h.Register("redis", func(ctx context.Context) error {
			return b.Redis.Ping(ctx).Err()
		})
	}
	if b.Queue != nil {
		h.Register("rabbitmq", b.Queue.HealthCheck)
	}
	if b.DB != nil {
		h.Register("database", b.DB.HealthCheck)
	}
}

// Close releases the backends in reverse order of opening
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		c := b.closers[i]
		if err := c.close(); err != nil {
			b.logger.Warn("failed_to_close_backend",
				zap.String("backend", c.name),
				zap.Error(err),
			)
		}
	}
	b.closers = nil
}
