package generator

import (
	"strings"

	"github.com/promptpilot-hq/promptpilot/pkg/logger"
	"github.com/promptpilot-hq/promptpilot/pkg/metrics"
	"github.com/promptpilot-hq/promptpilot/pkg/models"
)

// Parser extracts structured suggestions from delimited raw upstream text.
type Parser struct {
	maxSuggestions int
	logger         logger.Logger
}

// NewParser creates a parser that keeps at most maxSuggestions per response.
func NewParser(maxSuggestions int, log logger.Logger) *Parser {
	if maxSuggestions < 1 {
		maxSuggestions = 1
	}
	return &Parser{maxSuggestions: maxSuggestions, logger: log}
}

// Parse classifies a raw response. A response with at least one valid block is
// a success; the end marker alone is a valid empty result; anything else that
// yields zero suggestions is an invalid-format error. Individual malformed
// blocks are dropped with a diagnostic and never fail the batch.
func (p *Parser) Parse(raw string) models.AttemptResult {
	text := stripOuterFence(raw)

	if !strings.Contains(text, SuggestionStart) {
		if strings.Contains(text, SuggestionEnd) {
			return models.AttemptResult{Status: models.AttemptNoPrompts, RawResponse: raw}
		}
		return models.AttemptResult{
			Status:       models.AttemptError,
			ErrorType:    models.ErrTypeInvalidFormat,
			ErrorMessage: "response contains no suggestion blocks",
			RawResponse:  raw,
		}
	}

	segments := strings.Split(text, SuggestionStart)[1:]
	suggestions := make([]models.PromptSuggestion, 0, len(segments))
	for i, segment := range segments {
		if end := strings.Index(segment, SuggestionEnd); end >= 0 {
			segment = segment[:end]
		}

		suggestion, ok := p.parseSegment(segment)
		if !ok {
			p.logger.DebugWithScope(logger.Parser, "Dropping malformed suggestion block %d", i+1)
			metrics.SuggestionsDropped.WithLabelValues("malformed").Inc()
			continue
		}
		suggestions = append(suggestions, suggestion)
	}

	if len(suggestions) == 0 {
		return models.AttemptResult{
			Status:       models.AttemptError,
			ErrorType:    models.ErrTypeInvalidFormat,
			ErrorMessage: "no suggestion block validated",
			RawResponse:  raw,
		}
	}

	if len(suggestions) > p.maxSuggestions {
		for range suggestions[p.maxSuggestions:] {
			metrics.SuggestionsDropped.WithLabelValues("overflow").Inc()
		}
		suggestions = suggestions[:p.maxSuggestions]
	}

	metrics.SuggestionsParsed.Add(float64(len(suggestions)))
	return models.AttemptResult{
		Status:      models.AttemptSuccess,
		Suggestions: suggestions,
		RawResponse: raw,
	}
}

// parseSegment extracts the labeled fields from one block. Text, After and
// Before are required and must be non-empty after trimming; Why is optional.
func (p *Parser) parseSegment(segment string) (models.PromptSuggestion, bool) {
	var s models.PromptSuggestion

	for _, line := range strings.Split(segment, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, labelText):
			s.Text = strings.TrimSpace(strings.TrimPrefix(line, labelText))
		case strings.HasPrefix(line, labelAfter):
			s.AnchorAfter = strings.TrimSpace(strings.TrimPrefix(line, labelAfter))
		case strings.HasPrefix(line, labelBefore):
			s.AnchorBefore = strings.TrimSpace(strings.TrimPrefix(line, labelBefore))
		case strings.HasPrefix(line, labelWhy):
			s.Rationale = strings.TrimSpace(strings.TrimPrefix(line, labelWhy))
		}
	}

	if s.Text == "" || s.AnchorAfter == "" || s.AnchorBefore == "" {
		return models.PromptSuggestion{}, false
	}
	return s, true
}

// stripOuterFence removes a single markdown code fence wrapping the whole
// response, with or without a language tag.
func stripOuterFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") {
		return text
	}

	inner := strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")
	// Drop the language tag on the opening fence line, if any
	if nl := strings.Index(inner, "\n"); nl >= 0 {
		firstLine := strings.TrimSpace(inner[:nl])
		if firstLine == "" || !strings.ContainsAny(firstLine, " \t") && len(firstLine) <= 16 && !strings.Contains(firstLine, SuggestionStart) {
			inner = inner[nl+1:]
		}
	}
	return strings.TrimSpace(inner)
}
