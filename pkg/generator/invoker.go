package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/promptpilot-hq/promptpilot/pkg/circuitbreaker"
	"github.com/promptpilot-hq/promptpilot/pkg/config"
	"github.com/promptpilot-hq/promptpilot/pkg/llm"
	"github.com/promptpilot-hq/promptpilot/pkg/logger"
	"github.com/promptpilot-hq/promptpilot/pkg/metrics"
	"github.com/promptpilot-hq/promptpilot/pkg/models"
)

// History gives read access to recent conversation turns, oldest first.
type History interface {
	Recent(n int) []models.ChatTurn
}

// Invoker drives one prompt-discovery call: it builds the prompts, walks the
// upstream fallback chain, applies the context-reduction retry and classifies
// the outcome. It never returns a raised error for upstream failures; callers
// always receive a tagged AttemptResult. The returned error is non-nil only
// when the context was cancelled, in which case the result must be discarded.
type Invoker struct {
	upstream llm.Upstream
	breaker  *circuitbreaker.CircuitBreaker
	parser   *Parser
	cfg      *config.Config
	logger   logger.Logger
}

// NewInvoker creates an invoker. upstream may be nil, in which case every
// attempt classifies as generation-unavailable.
func NewInvoker(upstream llm.Upstream, breaker *circuitbreaker.CircuitBreaker, cfg *config.Config, log logger.Logger) *Invoker {
	return &Invoker{
		upstream: upstream,
		breaker:  breaker,
		parser:   NewParser(cfg.MaxSuggestions, log),
		cfg:      cfg,
		logger:   log,
	}
}

// Transient failure indicators checked against the aggregated chain error.
// Matching any of these makes a second chain pass with an emptied context
// window worthwhile.
var transientIndicators = []string{
	"502",
	"503",
	"504",
	"bad gateway",
	"gateway timeout",
	"service unavailable",
	"payload too large",
	"request entity too large",
	"context length",
	"context window",
	"maximum context",
	"token limit",
	"too many tokens",
	"timed out",
	"timeout",
}

// Generate runs the full discovery flow for one message.
func (inv *Invoker) Generate(ctx context.Context, msg models.ChatMessage, history History) (models.AttemptResult, error) {
	if inv.upstream == nil {
		return models.AttemptResult{
			Status:       models.AttemptError,
			ErrorType:    models.ErrTypeGenerationUnavailable,
			ErrorMessage: "no upstream generation capability configured",
		}, nil
	}

	if inv.breaker != nil && inv.breaker.IsEnabled() && inv.breaker.IsOpen() {
		return models.AttemptResult{
			Status:       models.AttemptError,
			ErrorType:    models.ErrTypeCallFailed,
			ErrorMessage: "upstream circuit breaker open",
		}, nil
	}

	window := inv.buildWindow(history)
	system := buildSystemPrompt(inv.cfg.StyleGuidelines, inv.cfg.ContentGuides)

	raw, err := inv.runChain(ctx, system, buildUserPrompt(window, msg.Text))
	if ctx.Err() != nil {
		return models.AttemptResult{}, ctx.Err()
	}

	if err != nil && len(window) > 0 && isTransientFailure(err.Error()) {
		inv.logger.NoticeWithScope(logger.Generator, "Transient failure for message %s, retrying with empty context window", msg.ID)
		metrics.ContextReductions.Inc()

		firstErr := err
		raw, err = inv.runChain(ctx, system, buildUserPrompt(nil, msg.Text))
		if ctx.Err() != nil {
			return models.AttemptResult{}, ctx.Err()
		}
		if err != nil {
			err = fmt.Errorf("with context: %v; reduced context: %v", firstErr, err)
		}
	}

	if err != nil {
		if inv.breaker != nil {
			inv.breaker.RecordFailure()
		}
		return models.AttemptResult{
			Status:       models.AttemptError,
			ErrorType:    models.ErrTypeCallFailed,
			ErrorMessage: err.Error(),
		}, nil
	}

	if inv.breaker != nil {
		inv.breaker.RecordSuccess()
	}
	return inv.parser.Parse(raw), nil
}

// chainStrategy is one independent way of reaching the upstream. Strategies
// run in order; the first success wins.
type chainStrategy struct {
	name string
	call func(ctx context.Context, system, user string) (string, error)
}

func (inv *Invoker) strategies() []chainStrategy {
	return []chainStrategy{
		{
			name: "message_array",
			call: func(ctx context.Context, system, user string) (string, error) {
				return inv.upstream.CompleteMessages(ctx, []llm.Message{
					{Role: "system", Content: system},
					{Role: "user", Content: user},
				})
			},
		},
		{
			name: "system_prompt",
			call: func(ctx context.Context, system, user string) (string, error) {
				return inv.upstream.CompleteWithSystem(ctx, system, user)
			},
		},
		{
			name: "quiet",
			call: func(ctx context.Context, system, user string) (string, error) {
				return inv.upstream.CompleteQuiet(ctx, system+"\n\n"+user)
			},
		},
	}
}

// runChain tries each call shape in order until one succeeds. On total
// exhaustion the error aggregates every attempt's failure reason.
func (inv *Invoker) runChain(ctx context.Context, system, user string) (string, error) {
	var reasons []string
	for _, strat := range inv.strategies() {
		raw, err := strat.call(ctx, system, user)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err == nil {
			metrics.FallbackAttempts.WithLabelValues(strat.name, "success").Inc()
			return raw, nil
		}

		metrics.FallbackAttempts.WithLabelValues(strat.name, "error").Inc()
		inv.logger.DebugWithScope(logger.Generator, "Call shape %s failed: %v", strat.name, err)
		reasons = append(reasons, fmt.Sprintf("%s: %v", strat.name, err))
	}
	return "", fmt.Errorf("all call shapes failed: %s", strings.Join(reasons, "; "))
}

// buildWindow assembles the bounded prior-turn window, newest considered
// first, returned in chronological order. Turns are cleaned, individually
// truncated to the per-turn budget, and accumulated until the aggregate
// budget would be exceeded. If any prior turn exists, at least one is kept,
// truncated to fit.
func (inv *Invoker) buildWindow(history History) []string {
	if history == nil || inv.cfg.ContextTurns == 0 {
		return nil
	}

	turns := history.Recent(inv.cfg.ContextTurns)
	var window []string
	total := 0
	for i := len(turns) - 1; i >= 0; i-- {
		text := cleanTurn(turns[i].Text)
		if text == "" {
			continue
		}
		if turns[i].Speaker != "" {
			text = turns[i].Speaker + ": " + text
		}
		if len(text) > inv.cfg.TurnCharBudget {
			text = truncateWithEllipsis(text, inv.cfg.TurnCharBudget)
		}

		if total+len(text) > inv.cfg.WindowCharBudget {
			if len(window) == 0 {
				// Always include the most recent turn, cut to the budget
				window = append(window, truncateWithEllipsis(text, inv.cfg.WindowCharBudget))
			}
			break
		}

		// Prepend to preserve chronological order
		window = append([]string{text}, window...)
		total += len(text)
	}
	return window
}

func truncateWithEllipsis(text string, budget int) string {
	if budget <= 1 {
		return "…"
	}
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	return string(runes[:budget-1]) + "…"
}

// isTransientFailure checks the aggregated failure text against the fixed
// vocabulary of transient indicators.
func isTransientFailure(errText string) bool {
	lower := strings.ToLower(errText)
	for _, indicator := range transientIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
