package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const (
	// DefaultRate allows twenty updates per chat per minute
	DefaultRate = "20-M"
	storePrefix = "taskbot_limiter"
)

// NewRedisClient parses redisURL and verifies the connection
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Decision is the outcome of a throttle check
type Decision struct {
	Allowed bool
	// Notify is set on the first rejection of a window so the chat is told once
	Notify bool
	Reset  time.Time
}

// Throttle limits inbound updates per chat
type Throttle struct {
	limiter *limiter.Limiter
	logger  *zap.Logger

	mu       sync.Mutex
	notified map[int64]int64 // chat id -> reset of the window already notified
}

// NewThrottle creates a throttle over store with a ulule formatted rate such as "20-M"
func NewThrottle(store limiter.Store, rate string, logger *zap.Logger) (*Throttle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rate == "" {
		rate = DefaultRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rate limit %q: %w", rate, err)
	}
	return &Throttle{
		limiter:  limiter.New(store, parsed),
		logger:   logger,
		notified: make(map[int64]int64),
	}, nil
}

// NewRedisThrottle shares counters between bot replicas through Redis
func NewRedisThrottle(client *redis.Client, rate string, logger *zap.Logger) (*Throttle, error) {
	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   storePrefix,
		MaxRetry: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis store for rate limiter: %w", err)
	}
	return NewThrottle(store, rate, logger)
}

// NewMemoryThrottle keeps counters in process
func NewMemoryThrottle(rate string, logger *zap.Logger) (*Throttle, error) {
	store := memorystore.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          storePrefix,
		CleanUpInterval: time.Minute,
	})
	return NewThrottle(store, rate, logger)
}

// Check counts one update for chatID. A failing store lets the update through.
func (t *Throttle) Check(ctx context.Context, chatID int64) Decision {
	lctx, err := t.limiter.Get(ctx, strconv.FormatInt(chatID, 10))
	if err != nil {
		t.logger.Warn("rate_limiter_unavailable",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
		return Decision{Allowed: true}
	}

	decision := Decision{
		Allowed: !lctx.Reached,
		Reset:   time.Unix(lctx.Reset, 0),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if decision.Allowed {
		delete(t.notified, chatID)
		return decision
	}
	if t.notified[chatID] != lctx.Reset {
		t.notified[chatID] = lctx.Reset
		decision.Notify = true
	}
	return decision
}
