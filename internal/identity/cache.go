package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyPrefix namespaces identity cache entries
const KeyPrefix = "taskbot:identity:"

// Cache stores resolved person ids
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// CachedResolver decorates a resolver with a cache keyed by normalized
// username. Only hits are cached so that a newly linked person is picked up
// on the next lookup.
type CachedResolver struct {
	next   ResolverInterface
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

var _ ResolverInterface = (*CachedResolver)(nil)

// NewCachedResolver creates a caching resolver
func NewCachedResolver(next ResolverInterface, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedResolver{next: next, cache: cache, ttl: ttl, logger: logger}
}

// Resolve returns a cached person id or falls through to the wrapped resolver.
// Cache failures are logged and never fail the lookup.
func (c *CachedResolver) Resolve(ctx context.Context, username string) (string, error) {
	normalized := Normalize(username)
	if normalized == "" {
		return "", ErrIdentityNotFound
	}
	key := KeyPrefix + normalized

	if id, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("identity_cache_get_failed", zap.Error(err))
	} else if ok {
		return id, nil
	}

	id, err := c.next.Resolve(ctx, username)
	if err != nil {
		return "", err
	}

	if err := c.cache.Set(ctx, key, id, c.ttl); err != nil {
		c.logger.Warn("identity_cache_set_failed", zap.Error(err))
	}
	return id, nil
}

// Invalidate drops every cached identity
func (c *CachedResolver) Invalidate(ctx context.Context) (int, error) {
	n, err := c.cache.DeletePrefix(ctx, KeyPrefix)
	if err != nil {
		return n, fmt.Errorf("failed to invalidate identity cache: %w", err)
	}
	return n, nil
}

// RedisCache implements Cache on a Redis client
type RedisCache struct {
	client *redis.Client
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a Redis-backed identity cache
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached value and whether it was present
func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key for ttl
func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix
func (r *RedisCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to scan keys: %w", err)
	}
	return deleted, nil
}
