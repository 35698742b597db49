package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/promptpilot-hq/promptpilot/pkg/circuitbreaker"
	"github.com/promptpilot-hq/promptpilot/pkg/logger"
	"github.com/promptpilot-hq/promptpilot/pkg/models"
)

// UpstreamChecker reports whether the generation endpoint is reachable.
type UpstreamChecker interface {
	HealthCheck(ctx context.Context) error
}

// StateReporter exposes the tracked retry states for the status endpoint.
type StateReporter interface {
	States() []models.RetryState
}

// Server represents a health check HTTP server
type Server struct {
	port           string
	upstream       UpstreamChecker
	circuitBreaker *circuitbreaker.CircuitBreaker
	states         StateReporter
	logger         logger.Logger
	metricsAPIKey  string
}

// NewServer creates a new health check server
func NewServer(port string, upstream UpstreamChecker, cb *circuitbreaker.CircuitBreaker, states StateReporter, log logger.Logger) *Server {
	return &Server{
		port:           port,
		upstream:       upstream,
		circuitBreaker: cb,
		states:         states,
		logger:         log,
		metricsAPIKey:  os.Getenv("METRICS_API_KEY"),
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start starts the health check server
func (s *Server) Start() {
	// Health check endpoint
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Readiness check: the upstream generation endpoint must answer
	http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if s.upstream == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Upstream client not configured"))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.upstream.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Upstream not ready: %v", err)))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	})

	// Status endpoint: tracked retry states plus circuit state
	http.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]interface{})

		circuitStatus := "closed"
		if s.circuitBreaker != nil && s.circuitBreaker.IsOpen() {
			circuitStatus = "open"
		}
		status["circuit"] = circuitStatus

		if s.circuitBreaker != nil {
			failureCount, lastFailure, window, threshold := s.circuitBreaker.GetState()
			status["circuit_detail"] = map[string]interface{}{
				"enabled":        s.circuitBreaker.IsEnabled(),
				"failure_count":  failureCount,
				"last_failure":   lastFailure,
				"window":         window.String(),
				"fail_threshold": threshold,
			}
		}

		if s.states != nil {
			tracked := s.states.States()
			status["tracked_count"] = len(tracked)
			status["retry_states"] = tracked
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			s.logger.ErrorWithScope(logger.Health, "Error encoding status JSON: %v", err)
		}
	})

	// Circuit breaker admin control endpoint
	http.HandleFunc("/circuit/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if s.circuitBreaker == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("No circuit breaker configured"))
			return
		}

		s.circuitBreaker.Reset()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Circuit breaker reset"))
	})

	// Expose Prometheus metrics with API key authentication
	http.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	s.logger.InfoWithScope(logger.Health, "Starting health and metrics server on port %s", s.port)
	if err := http.ListenAndServe(":"+s.port, nil); err != nil {
		s.logger.ErrorWithScope(logger.Health, "Health server error: %v", err)
	}
}
