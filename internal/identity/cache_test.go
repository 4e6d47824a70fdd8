package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benvon/taskbot/internal/models"
)

// memoryCache is an in-process Cache for tests
type memoryCache struct {
	mu      sync.Mutex
	values  map[string]string
	getErr  error
	setErr  error
	setTTLs []time.Duration
}

var _ Cache = (*memoryCache)(nil)

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string]string)}
}

func (m *memoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	m.setTTLs = append(m.setTTLs, ttl)
	return nil
}

func (m *memoryCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			delete(m.values, k)
			n++
		}
	}
	return n, nil
}

func TestCachedResolver_CachesHits(t *testing.T) {
	t.Parallel()

	source := staticPersons(models.Person{ID: "p1", Username: "alice"})
	cache := newMemoryCache()
	resolver := NewCachedResolver(NewResolver(source, nil), cache, time.Minute, nil)

	for _, username := range []string{"alice", "@Alice", " ALICE "} {
		id, err := resolver.Resolve(context.Background(), username)
		if err != nil || id != "p1" {
			t.Fatalf("Resolve(%q) = (%q, %v), want p1", username, id, err)
		}
	}

	if source.calls != 1 {
		t.Errorf("Expected 1 store call, got %d", source.calls)
	}
	if cache.values[KeyPrefix+"alice"] != "p1" {
		t.Errorf("Expected cache entry for alice, got %v", cache.values)
	}
	if len(cache.setTTLs) != 1 || cache.setTTLs[0] != time.Minute {
		t.Errorf("Expected one Set with 1m TTL, got %v", cache.setTTLs)
	}
}

func TestCachedResolver_DoesNotCacheMisses(t *testing.T) {
	t.Parallel()

	source := staticPersons()
	cache := newMemoryCache()
	resolver := NewCachedResolver(NewResolver(source, nil), cache, time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := resolver.Resolve(context.Background(), "ghost"); !errors.Is(err, ErrIdentityNotFound) {
			t.Fatalf("Expected ErrIdentityNotFound, got %v", err)
		}
	}
	if source.calls != 2 {
		t.Errorf("Expected misses to reach the store each time, got %d calls", source.calls)
	}
	if len(cache.values) != 0 {
		t.Errorf("Expected empty cache, got %v", cache.values)
	}
}

func TestCachedResolver_CacheFailureFallsThrough(t *testing.T) {
	t.Parallel()

	cache := newMemoryCache()
	cache.getErr = errors.New("connection refused")
	cache.setErr = errors.New("connection refused")
	resolver := NewCachedResolver(NewResolver(staticPersons(models.Person{ID: "p1", Username: "alice"}), nil), cache, time.Minute, nil)

	id, err := resolver.Resolve(context.Background(), "alice")
	if err != nil || id != "p1" {
		t.Errorf("Expected fallback resolve to p1, got (%q, %v)", id, err)
	}
}

func TestCachedResolver_Invalidate(t *testing.T) {
	t.Parallel()

	cache := newMemoryCache()
	cache.values[KeyPrefix+"alice"] = "p1"
	cache.values[KeyPrefix+"bob"] = "p2"
	cache.values["other:key"] = "x"

	n, err := NewCachedResolver(NewResolver(staticPersons(), nil), cache, time.Minute, nil).Invalidate(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 keys removed, got %d", n)
	}
	if _, ok := cache.values["other:key"]; !ok {
		t.Error("Expected unrelated keys to survive")
	}
}
