package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const checkTimeout = 5 * time.Second

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// HealthChecker handles health check requests
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	logger *zap.Logger
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		checks: make(map[string]CheckFunc),
		logger: logger,
	}
}

// Register adds a named dependency check run in extended mode and by /readyz
func (h *HealthChecker) Register(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint. ?mode=extended runs the
// registered checks.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("mode") == "extended" {
		h.Readiness(w, r)
		return
	}

	// Basic mode - just return that the process is running
	h.respond(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the /readyz endpoint
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	response := h.Run(r.Context())

	statusCode := http.StatusOK
	if response.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	h.respond(w, statusCode, response)
}

// Run executes every registered check
func (h *HealthChecker) Run(ctx context.Context) HealthResponse {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]string, len(names)),
	}
	for _, name := range names {
		h.mu.RLock()
		check := h.checks[name]
		h.mu.RUnlock()

		if err := runCheck(ctx, check); err != nil {
			response.Status = "unhealthy"
			response.Checks[name] = "unhealthy: " + err.Error()
			h.logger.Warn("health_check_failed",
				zap.String("check", name),
				zap.Error(err),
			)
			continue
		}
		response.Checks[name] = "healthy"
	}
	return response
}

// CachedCheck reuses the check's last outcome for ttl, so frequent probes
// do not each hit a rate-limited backend
func CachedCheck(check CheckFunc, ttl time.Duration) CheckFunc {
	return cachedCheck(check, ttl, time.Now)
}

func cachedCheck(check CheckFunc, ttl time.Duration, now func() time.Time) CheckFunc {
	var (
		mu        sync.Mutex
		checkedAt time.Time
		last      error
	)
	return func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()

		if !checkedAt.IsZero() && now().Sub(checkedAt) < ttl {
			return last
		}
		last = check(ctx)
		checkedAt = now()
		return last
	}
}

func runCheck(ctx context.Context, check CheckFunc) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return check(ctx)
}

func (h *HealthChecker) respond(w http.ResponseWriter, status int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed_to_encode_health_response", zap.Error(err))
	}
}
