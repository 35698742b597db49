package generator

import (
	"fmt"
	"regexp"
	"strings"
)

// Markers delimiting one suggestion block in the raw upstream response.
const (
	SuggestionStart = "[PROMPT]"
	SuggestionEnd   = "[/PROMPT]"
)

// Field labels inside a suggestion block. Each label owns the remainder of
// its line.
const (
	labelText   = "Text:"
	labelAfter  = "After:"
	labelBefore = "Before:"
	labelWhy    = "Why:"
)

// Inline markers embedded into persisted message text once suggestions have
// been inserted. Their presence short-circuits further generation requests.
const (
	InlineMarkerStart = "{{illustrate:"
	InlineMarkerEnd   = "}}"
)

const systemTemplate = `You are an illustration scout for a chat application.
Read the conversation and the current message, then propose image-generation
prompts for the scenes worth illustrating.

Style guidelines: %s
Content guidelines: %s

For every scene, output one block:

[PROMPT]
Text: <the image-generation prompt>
After: <a short quote from the message immediately before the scene>
Before: <a short quote from the message immediately after the scene>
Why: <one line explaining the choice>
[/PROMPT]

If nothing in the message is worth illustrating, output only [/PROMPT].`

const (
	historyHeader = "Conversation so far:"
	messageHeader = "Current message:"
)

var (
	inlineMarkerRe  = regexp.MustCompile(regexp.QuoteMeta(InlineMarkerStart) + `.*?` + regexp.QuoteMeta(InlineMarkerEnd))
	markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
)

// HasInlineMarkers reports whether message text already carries embedded
// prompt markers from an earlier successful run.
func HasInlineMarkers(text string) bool {
	return strings.Contains(text, InlineMarkerStart)
}

// StripInlineMarkers removes embedded prompt markers from message text.
func StripInlineMarkers(text string) string {
	return inlineMarkerRe.ReplaceAllString(text, "")
}

// buildSystemPrompt substitutes the two guideline placeholders.
func buildSystemPrompt(styleGuidelines, contentGuidelines string) string {
	return fmt.Sprintf(systemTemplate, styleGuidelines, contentGuidelines)
}

// buildUserPrompt concatenates the bounded history window and the current
// message under their headers.
func buildUserPrompt(window []string, messageText string) string {
	var b strings.Builder
	b.WriteString(historyHeader)
	b.WriteString("\n")
	if len(window) == 0 {
		b.WriteString("(none)\n")
	} else {
		for _, turn := range window {
			b.WriteString(turn)
			b.WriteString("\n\n")
		}
	}
	b.WriteString(messageHeader)
	b.WriteString("\n")
	b.WriteString(messageText)
	return b.String()
}

// cleanTurn strips inline prompt markers and embedded images from one prior
// turn and collapses excess blank lines.
func cleanTurn(text string) string {
	text = StripInlineMarkers(text)
	text = markdownImageRe.ReplaceAllString(text, "")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
