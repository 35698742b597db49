package orchestrator

import (
	"context"

	"github.com/promptpilot-hq/promptpilot/pkg/models"
)

// SessionStarter begins image-generation work for a message. HasSession backs
// the idempotent hand-off guard: a message with a live session is never handed
// off twice.
type SessionStarter interface {
	StartSession(ctx context.Context, messageID string) error
	HasSession(messageID string) bool
}

// MessageStore applies discovered suggestions to message text (embedding
// inline prompt markers) and triggers a debounced save. ApplyPrompts returns
// an error when no suggestion could be anchored into the text. SaveSoon must
// not block the caller.
type MessageStore interface {
	ApplyPrompts(messageID string, suggestions []models.PromptSuggestion) error
	SaveSoon()
}

// Notifier surfaces user-visible informational and warning messages. Delivery
// is best-effort; there may be no user interface attached at all.
type Notifier interface {
	Info(format string, args ...interface{})
	Warning(format string, args ...interface{})
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

var _ Notifier = (*NopNotifier)(nil)

func (NopNotifier) Info(_ string, _ ...interface{})    {}
func (NopNotifier) Warning(_ string, _ ...interface{}) {}
