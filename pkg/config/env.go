package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/promptpilot-hq/promptpilot/pkg/logger"
)

const (
	// DefaultRetryDelays defines the backoff table in milliseconds, one entry per retry
	DefaultRetryDelays = "5000,10000,20000"

	// DefaultMaxSuggestions defines how many suggestions are kept per message
	DefaultMaxSuggestions = 5

	// DefaultTurnCharBudget defines the per-turn character budget for the context window
	DefaultTurnCharBudget = 4000

	// DefaultWindowCharBudget defines the aggregate character budget for the context window
	DefaultWindowCharBudget = 20000

	// DefaultContextTurns defines how many prior turns are considered for the window
	DefaultContextTurns = 10

	// DefaultUpstreamEndpoint defines the default OpenAI-compatible endpoint
	DefaultUpstreamEndpoint = "http://localhost:1234"

	// DefaultUpstreamTimeout defines the per-call timeout in seconds
	DefaultUpstreamTimeout = 120

	// DefaultMetricsPort defines the default port for the health and metrics server
	DefaultMetricsPort = "8080"

	// DefaultCircuitBreakerEnabled defines whether the upstream circuit breaker is enabled
	DefaultCircuitBreakerEnabled = false

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 60

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 30

	// DefaultStyleGuidelines seeds the style placeholder of the system instruction
	DefaultStyleGuidelines = "detailed, concrete visual descriptions; no named artists"

	// DefaultContentGuidelines seeds the content placeholder of the system instruction
	DefaultContentGuidelines = "only scenes explicitly described in the message"
)

// GetEnvRetryDelays returns the retry backoff table from environment variables
func GetEnvRetryDelays() ([]time.Duration, error) {
	raw := os.Getenv("RETRY_DELAYS")
	if raw == "" {
		raw = DefaultRetryDelays
	}

	parts := strings.Split(raw, ",")
	delays := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		ms, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_DELAYS entry: %s, must be integer milliseconds", part)
		}
		if ms <= 0 {
			return nil, fmt.Errorf("RETRY_DELAYS entries must be greater than 0")
		}
		delays = append(delays, time.Duration(ms)*time.Millisecond)
	}
	if len(delays) == 0 {
		return nil, fmt.Errorf("RETRY_DELAYS must contain at least one entry")
	}
	return delays, nil
}

// GetEnvMaxSuggestions returns the per-message suggestion cap from environment variables
func GetEnvMaxSuggestions() (int, error) {
	raw := os.Getenv("MAX_SUGGESTIONS")
	if raw == "" {
		return DefaultMaxSuggestions, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid MAX_SUGGESTIONS value: %s, must be an integer", raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("MAX_SUGGESTIONS must be greater than 0")
	}
	return n, nil
}

// GetEnvTurnCharBudget returns the per-turn character budget from environment variables
func GetEnvTurnCharBudget() (int, error) {
	raw := os.Getenv("TURN_CHAR_BUDGET")
	if raw == "" {
		return DefaultTurnCharBudget, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid TURN_CHAR_BUDGET value: %s, must be an integer", raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("TURN_CHAR_BUDGET must be greater than 0")
	}
	return n, nil
}

// GetEnvWindowCharBudget returns the aggregate window character budget from environment variables
func GetEnvWindowCharBudget() (int, error) {
	raw := os.Getenv("WINDOW_CHAR_BUDGET")
	if raw == "" {
		return DefaultWindowCharBudget, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid WINDOW_CHAR_BUDGET value: %s, must be an integer", raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("WINDOW_CHAR_BUDGET must be greater than 0")
	}
	return n, nil
}

// GetEnvContextTurns returns the context window size in turns from environment variables
func GetEnvContextTurns() (int, error) {
	raw := os.Getenv("CONTEXT_TURNS")
	if raw == "" {
		return DefaultContextTurns, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid CONTEXT_TURNS value: %s, must be an integer", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("CONTEXT_TURNS must be greater than or equal to 0")
	}
	return n, nil
}

// GetEnvUpstreamEndpoint returns the upstream endpoint from environment variables
func GetEnvUpstreamEndpoint() (string, error) {
	endpoint := os.Getenv("UPSTREAM_ENDPOINT")
	if endpoint == "" {
		return DefaultUpstreamEndpoint, nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return "", fmt.Errorf("invalid UPSTREAM_ENDPOINT value: %s, must be a valid URL", endpoint)
	}
	return endpoint, nil
}

// GetEnvUpstreamTimeout returns the per-call upstream timeout from environment variables
func GetEnvUpstreamTimeout() (time.Duration, error) {
	raw := os.Getenv("UPSTREAM_TIMEOUT")
	if raw == "" {
		return DefaultUpstreamTimeout * time.Second, nil
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid UPSTREAM_TIMEOUT value: %s, must be an integer", raw)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("UPSTREAM_TIMEOUT must be greater than 0")
	}
	return time.Duration(seconds) * time.Second, nil
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	enabled := os.Getenv("CIRCUIT_BREAKER_ENABLED")
	if enabled == "" {
		return DefaultCircuitBreakerEnabled, nil
	}

	if enabled == "true" {
		return true, nil
	} else if enabled == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid CIRCUIT_BREAKER_ENABLED value: %s, must be 'true' or 'false'", enabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	window := os.Getenv("CIRCUIT_BREAKER_WINDOW")
	if window == "" {
		return DefaultCircuitBreakerWindow * time.Second, nil
	}

	// Validate duration format
	parsed, err := time.ParseDuration(window)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_WINDOW value: %s, must be a valid duration string", window)
	}
	return parsed, nil
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	reset := os.Getenv("CIRCUIT_BREAKER_RESET")
	if reset == "" {
		return DefaultCircuitBreakerReset * time.Second, nil
	}

	// Validate duration format
	parsed, err := time.ParseDuration(reset)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_RESET value: %s, must be a valid duration string", reset)
	}
	return parsed, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	raw := os.Getenv("LOG_LEVEL")
	if raw == "" {
		return logger.InfoLevel, nil
	}

	switch strings.ToLower(raw) {
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be debug, info, notice or error", raw)
}

// GetEnvLogColoring returns whether log coloring is enabled from environment variables
func GetEnvLogColoring() (bool, error) {
	coloring := os.Getenv("LOG_COLORING")
	if coloring == "" {
		return true, nil
	}

	if coloring == "true" {
		return true, nil
	} else if coloring == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid LOG_COLORING value: %s, must be 'true' or 'false'", coloring)
}

// GetEnvGuideline returns a guideline fragment from environment variables with a default
func GetEnvGuideline(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
