package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/promptpilot-hq/promptpilot/pkg/generator"
	"github.com/promptpilot-hq/promptpilot/pkg/logger"
	"github.com/promptpilot-hq/promptpilot/pkg/models"
)

// MemStore holds the active conversation's messages in memory and anchors
// discovered prompt suggestions into their text as inline markers. Saves are
// debounced: repeated SaveSoon calls inside the delay collapse into one flush.
type MemStore struct {
	saveDelay time.Duration
	onSave    func([]models.ChatMessage)
	logger    logger.Logger

	mu        sync.Mutex
	messages  map[string]*models.ChatMessage
	order     []string
	saveTimer *time.Timer
}

// NewMemStore creates a store. onSave receives a snapshot of all messages on
// each debounced flush and may be nil.
func NewMemStore(saveDelay time.Duration, onSave func([]models.ChatMessage), log logger.Logger) *MemStore {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &MemStore{
		saveDelay: saveDelay,
		onSave:    onSave,
		logger:    log,
		messages:  make(map[string]*models.ChatMessage),
	}
}

// Put inserts or replaces a message.
func (m *MemStore) Put(msg models.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.messages[msg.ID]; !ok {
		m.order = append(m.order, msg.ID)
	}
	copied := msg
	m.messages[msg.ID] = &copied
}

// Get returns a message snapshot by id.
func (m *MemStore) Get(id string) (models.ChatMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return models.ChatMessage{}, false
	}
	return *msg, true
}

// Clear drops every message. Used on conversation switch.
func (m *MemStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = make(map[string]*models.ChatMessage)
	m.order = nil
}

// ApplyPrompts embeds each suggestion into the message text at its anchor
// point. A suggestion whose anchors cannot be located is skipped; if none can
// be placed the whole batch fails.
func (m *MemStore) ApplyPrompts(messageID string, suggestions []models.PromptSuggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return fmt.Errorf("message %s not found", messageID)
	}

	text := msg.Text
	placed := 0
	for _, s := range suggestions {
		marker := generator.InlineMarkerStart + s.Text + generator.InlineMarkerEnd

		pos, found := anchorPosition(text, s)
		if !found {
			m.logger.DebugWithScope(logger.Orchestrator, "Could not anchor suggestion in message %s, skipping", messageID)
			continue
		}
		text = text[:pos] + "\n" + marker + "\n" + text[pos:]
		placed++
	}

	if placed == 0 {
		return fmt.Errorf("no suggestion could be anchored into message %s", messageID)
	}

	msg.Text = text
	return nil
}

// anchorPosition finds the insertion offset for one suggestion: right after
// AnchorAfter when it matches, otherwise right before AnchorBefore. Matching
// falls back to case-insensitive since the model may not quote exactly.
func anchorPosition(text string, s models.PromptSuggestion) (int, bool) {
	if after := strings.TrimSpace(s.AnchorAfter); after != "" {
		if idx := indexFold(text, after); idx >= 0 {
			return idx + len(after), true
		}
	}
	if before := strings.TrimSpace(s.AnchorBefore); before != "" {
		if idx := indexFold(text, before); idx >= 0 {
			return idx, true
		}
	}
	return 0, false
}

func indexFold(haystack, needle string) int {
	if idx := strings.Index(haystack, needle); idx >= 0 {
		return idx
	}
	return strings.Index(strings.ToLower(haystack), strings.ToLower(needle))
}

// SaveSoon schedules a debounced flush. It never blocks.
func (m *MemStore) SaveSoon() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	m.saveTimer = time.AfterFunc(m.saveDelay, m.flush)
}

// Flush forces a pending save out immediately.
func (m *MemStore) Flush() {
	m.mu.Lock()
	if m.saveTimer != nil {
		m.saveTimer.Stop()
		m.saveTimer = nil
	}
	m.mu.Unlock()
	m.flush()
}

func (m *MemStore) flush() {
	if m.onSave == nil {
		return
	}

	m.mu.Lock()
	snapshot := make([]models.ChatMessage, 0, len(m.order))
	for _, id := range m.order {
		snapshot = append(snapshot, *m.messages[id])
	}
	m.mu.Unlock()

	m.onSave(snapshot)
}

// Recent returns up to n messages preceding the newest one as history turns,
// oldest first. The newest message is the one under discovery and is excluded.
func (m *MemStore) Recent(n int) []models.ChatTurn {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) <= 1 || n <= 0 {
		return nil
	}

	prior := m.order[:len(m.order)-1]
	if len(prior) > n {
		prior = prior[len(prior)-n:]
	}

	turns := make([]models.ChatTurn, 0, len(prior))
	for _, id := range prior {
		turns = append(turns, models.ChatTurn{Text: m.messages[id].Text})
	}
	return turns
}
