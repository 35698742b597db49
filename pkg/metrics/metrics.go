package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	AttemptsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptpilot_attempts_started_total",
		Help: "The total number of generation attempts started",
	})

	AttemptOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptpilot_attempt_outcomes_total",
		Help: "Generation attempt outcomes by status",
	}, []string{"status"})

	AttemptErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptpilot_attempt_errors_total",
		Help: "Generation attempt errors by type",
	}, []string{"error_type"})

	AttemptDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "promptpilot_attempt_duration_seconds",
		Help:    "Time taken by one generation attempt including the fallback chain",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // Start at 1s with 10 buckets doubling in size
	})

	FallbackAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptpilot_fallback_attempts_total",
		Help: "Upstream calls by fallback shape and result",
	}, []string{"shape", "result"})

	ContextReductions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptpilot_context_reductions_total",
		Help: "Times the fallback chain was re-run with an emptied context window",
	})

	RetriesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptpilot_retries_scheduled_total",
		Help: "The total number of retries scheduled",
	})

	RetriesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptpilot_retries_executed_total",
		Help: "The total number of scheduled retries that fired",
	})

	MaxRetriesReached = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptpilot_max_retries_reached_total",
		Help: "Number of messages that exhausted the retry table",
	})

	Cancellations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptpilot_cancellations_total",
		Help: "Retry cancellations by reason",
	}, []string{"reason"})

	TrackedStates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptpilot_tracked_states",
		Help: "The number of messages currently under retry tracking",
	})

	SuggestionsParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptpilot_suggestions_parsed_total",
		Help: "Suggestions successfully parsed from upstream responses",
	})

	SuggestionsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptpilot_suggestions_dropped_total",
		Help: "Suggestions dropped during parsing or truncation",
	}, []string{"reason"})

	SessionHandoffs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptpilot_session_handoffs_total",
		Help: "Hand-offs to the image generation session starter by result",
	}, []string{"result"})

	BreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptpilot_breaker_open",
		Help: "Whether the upstream circuit breaker is currently open",
	})
)
