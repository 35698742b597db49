package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/promptpilot-hq/promptpilot/pkg/logger"
)

// Config holds the configuration for the prompt discovery service
type Config struct {
	UpstreamEndpoint string
	UpstreamModel    string
	UpstreamTimeout  time.Duration
	RetryDelays      []time.Duration
	MaxSuggestions   int
	TurnCharBudget   int
	WindowCharBudget int
	ContextTurns     int
	StyleGuidelines  string
	ContentGuides    string
	MetricsPort      string
	CircuitBreaker   CircuitBreakerConfig
	LoggerConfig     LoggerConfig
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// MaxRetries derives the retry cap from the delay table length
func (c *Config) MaxRetries() int {
	return len(c.RetryDelays)
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	upstreamEndpoint, err := GetEnvUpstreamEndpoint()
	if err != nil {
		return nil, err
	}

	upstreamTimeout, err := GetEnvUpstreamTimeout()
	if err != nil {
		return nil, err
	}

	retryDelays, err := GetEnvRetryDelays()
	if err != nil {
		return nil, err
	}

	maxSuggestions, err := GetEnvMaxSuggestions()
	if err != nil {
		return nil, err
	}

	turnBudget, err := GetEnvTurnCharBudget()
	if err != nil {
		return nil, err
	}

	windowBudget, err := GetEnvWindowCharBudget()
	if err != nil {
		return nil, err
	}

	contextTurns, err := GetEnvContextTurns()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		UpstreamEndpoint: upstreamEndpoint,
		UpstreamModel:    os.Getenv("UPSTREAM_MODEL"),
		UpstreamTimeout:  upstreamTimeout,
		RetryDelays:      retryDelays,
		MaxSuggestions:   maxSuggestions,
		TurnCharBudget:   turnBudget,
		WindowCharBudget: windowBudget,
		ContextTurns:     contextTurns,
		StyleGuidelines:  GetEnvGuideline("STYLE_GUIDELINES", DefaultStyleGuidelines),
		ContentGuides:    GetEnvGuideline("CONTENT_GUIDELINES", DefaultContentGuidelines),
		MetricsPort:      metricsPort,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.UpstreamEndpoint == "" {
		return fmt.Errorf("UPSTREAM_ENDPOINT is required")
	}
	if len(cfg.RetryDelays) == 0 {
		return fmt.Errorf("at least one retry delay is required")
	}
	if cfg.TurnCharBudget > cfg.WindowCharBudget {
		return fmt.Errorf("TURN_CHAR_BUDGET (%d) must not exceed WINDOW_CHAR_BUDGET (%d)",
			cfg.TurnCharBudget, cfg.WindowCharBudget)
	}
	return nil
}
