package handlers

import (
	"net/http"

	"github.com/benvon/taskbot/internal/middleware"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

// NewRouter serves the health endpoints with tracing, logging and panic recovery
func NewRouter(health *HealthChecker, serviceName string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := mux.NewRouter()
	r.Use(otelmux.Middleware(serviceName))
	r.Use(middleware.ErrorHandler(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.SecurityHeaders())

	r.HandleFunc("/healthz", health.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/readyz", health.Readiness).Methods(http.MethodGet)

	return r
}
