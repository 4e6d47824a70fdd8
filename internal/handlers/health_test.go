package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func decodeHealth(t *testing.T, body *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response HealthResponse
	if err := json.NewDecoder(body.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return response
}

func TestHealthChecker_BasicMode(t *testing.T) {
	t.Parallel()

	checker := NewHealthChecker(nil)
	checker.Register("notion", func(ctx context.Context) error {
		t.Error("Basic mode should not run dependency checks")
		return nil
	})

	w := httptest.NewRecorder()
	checker.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	response := decodeHealth(t, w)
	if response.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", response.Status)
	}
	if len(response.Checks) != 0 {
		t.Errorf("Expected no checks in basic mode, got %v", response.Checks)
	}
}

func TestHealthChecker_ExtendedMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		redisErr     error
		expectStatus int
		expectHealth string
	}{
		{
			name:         "all healthy",
			expectStatus: http.StatusOK,
			expectHealth: "healthy",
		},
		{
			name:         "one dependency down",
			redisErr:     errors.New("connection refused"),
			expectStatus: http.StatusServiceUnavailable,
			expectHealth: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			checker := NewHealthChecker(nil)
			checker.Register("notion", func(ctx context.Context) error { return nil })
			checker.Register("redis", func(ctx context.Context) error { return tt.redisErr })

			w := httptest.NewRecorder()
			checker.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz?mode=extended", nil))

			if w.Code != tt.expectStatus {
				t.Errorf("Expected status %d, got %d", tt.expectStatus, w.Code)
			}
			response := decodeHealth(t, w)
			if response.Status != tt.expectHealth {
				t.Errorf("Expected status '%s', got '%s'", tt.expectHealth, response.Status)
			}
			if response.Checks["notion"] != "healthy" {
				t.Errorf("Expected notion check healthy, got '%s'", response.Checks["notion"])
			}
			if tt.redisErr != nil && !strings.Contains(response.Checks["redis"], "connection refused") {
				t.Errorf("Expected redis failure detail, got '%s'", response.Checks["redis"])
			}
		})
	}
}

func TestNewRouter(t *testing.T) {
	t.Parallel()

	checker := NewHealthChecker(nil)
	checker.Register("queue", func(ctx context.Context) error { return errors.New("closed") })
	router := NewRouter(checker, "taskbot-test", nil)

	tests := []struct {
		path         string
		expectStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusServiceUnavailable},
		{"/missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.expectStatus {
			t.Errorf("GET %s: expected status %d, got %d", tt.path, tt.expectStatus, w.Code)
		}
	}
}

func TestCachedCheck(t *testing.T) {
	t.Parallel()

	clock := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	calls := 0
	failing := errors.New("notion unavailable")
	var result error
	check := cachedCheck(func(ctx context.Context) error {
		calls++
		return result
	}, 30*time.Second, func() time.Time { return clock })

	tests := []struct {
		name        string
		advance     time.Duration
		result      error
		expectErr   error
		expectCalls int
	}{
		{name: "first probe runs the check", result: nil, expectErr: nil, expectCalls: 1},
		{name: "probe within ttl reuses the result", advance: 10 * time.Second, result: failing, expectErr: nil, expectCalls: 1},
		{name: "probe after ttl runs again", advance: 25 * time.Second, result: failing, expectErr: failing, expectCalls: 2},
		{name: "cached failure is reported", advance: time.Second, result: nil, expectErr: failing, expectCalls: 2},
	}

	// Steps share one cache, so they run in order
	for _, tt := range tests {
		clock = clock.Add(tt.advance)
		result = tt.result
		err := check(context.Background())
		if !errors.Is(err, tt.expectErr) {
			t.Errorf("%s: expected error %v, got %v", tt.name, tt.expectErr, err)
		}
		if calls != tt.expectCalls {
			t.Errorf("%s: expected %d calls, got %d", tt.name, tt.expectCalls, calls)
		}
	}
}
