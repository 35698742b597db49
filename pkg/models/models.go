package models

import (
	"time"
)

// ChatMessage is a single chat message under consideration for illustration
type ChatMessage struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ChatTurn is one prior message from the conversation history window
type ChatTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// PromptSuggestion is one image-generation directive discovered in a message.
// AnchorAfter and AnchorBefore are literal substrings of the original message
// surrounding the insertion point; insertion code must tolerate approximate
// matches since the model may paraphrase slightly.
type PromptSuggestion struct {
	Text         string `json:"text"`
	AnchorAfter  string `json:"anchor_after"`
	AnchorBefore string `json:"anchor_before"`
	Rationale    string `json:"rationale,omitempty"`
}

// AttemptStatus classifies the outcome of one generation attempt
type AttemptStatus string

const (
	// AttemptSuccess means at least one suggestion parsed
	AttemptSuccess AttemptStatus = "success"
	// AttemptNoPrompts means the model validly reported nothing to illustrate
	AttemptNoPrompts AttemptStatus = "no_prompts"
	// AttemptError means the call or the parse failed
	AttemptError AttemptStatus = "error"
)

// Error types attached to failed attempts
const (
	ErrTypeGenerationUnavailable = "generation_unavailable"
	ErrTypeCallFailed            = "call_failed"
	ErrTypeInvalidFormat         = "invalid_format"
	ErrTypeInsertionFailed       = "insertion_failed"
	ErrTypeContextUnavailable    = "context_unavailable"
)

// AttemptResult is the classified outcome of one run through the fallback chain
type AttemptResult struct {
	Status       AttemptStatus      `json:"status"`
	Suggestions  []PromptSuggestion `json:"suggestions,omitempty"`
	ErrorType    string             `json:"error_type,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	RawResponse  string             `json:"-"`
}

// RetryStatus is the tracked lifecycle state of a message's retry machine
type RetryStatus string

const (
	// RetryRunning means an attempt is in flight
	RetryRunning RetryStatus = "running"
	// RetryScheduled means a timer is armed for the next attempt
	RetryScheduled RetryStatus = "scheduled"
	// RetryFailed is terminal: retries exhausted
	RetryFailed RetryStatus = "failed"
	// RetryCancelled is terminal: user stopped the retries
	RetryCancelled RetryStatus = "cancelled"
)

// Terminal reports whether the status accepts no further automatic transitions
func (s RetryStatus) Terminal() bool {
	return s == RetryFailed || s == RetryCancelled
}

// RetryState is a read-only snapshot of one message's retry machine.
// NextRetryAt is non-zero only while Status is RetryScheduled.
type RetryState struct {
	MessageID   string      `json:"message_id"`
	Status      RetryStatus `json:"status"`
	RetryCount  int         `json:"retry_count"`
	MaxRetries  int         `json:"max_retries"`
	NextRetryAt time.Time   `json:"next_retry_at,omitempty"`
	LastErrType string      `json:"last_error_type,omitempty"`
	LastErrMsg  string      `json:"last_error_message,omitempty"`
	AttemptID   string      `json:"attempt_id,omitempty"`
}

// QueueTimingSnapshot is an ephemeral view of the downstream generation queue,
// recomputed for every estimate
type QueueTimingSnapshot struct {
	PendingCount     int     `json:"pending_count"`
	CooldownRemainMs float64 `json:"cooldown_remaining_ms"`
	AvgGenerationMs  float64 `json:"avg_generation_ms"` // <= 0 or NaN means unknown
	MinIntervalMs    float64 `json:"min_interval_ms"`
	MaxConcurrent    int     `json:"max_concurrent"`
}
