package store

import (
	"sync"
	"testing"
	"time"

	"github.com/promptpilot-hq/promptpilot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	s := NewMemStore(time.Minute, nil, nil)

	s.Put(models.ChatMessage{ID: "m1", Text: "hello"})

	msg, ok := s.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Text)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestApplyPromptsAnchorsAfter(t *testing.T) {
	s := NewMemStore(time.Minute, nil, nil)
	s.Put(models.ChatMessage{ID: "m1", Text: "the dragon rose and the villagers fled"})

	err := s.ApplyPrompts("m1", []models.PromptSuggestion{
		{Text: "a dragon in flight", AnchorAfter: "the dragon rose", AnchorBefore: "the villagers fled"},
	})

	require.NoError(t, err)
	msg, _ := s.Get("m1")
	assert.Contains(t, msg.Text, "{{illustrate:a dragon in flight}}")

	// The marker lands between the two anchors
	afterIdx := indexOf(t, msg.Text, "the dragon rose")
	markerIdx := indexOf(t, msg.Text, "{{illustrate:")
	beforeIdx := indexOf(t, msg.Text, "the villagers fled")
	assert.Less(t, afterIdx, markerIdx)
	assert.Less(t, markerIdx, beforeIdx)
}

func TestApplyPromptsFallsBackToBeforeAnchor(t *testing.T) {
	s := NewMemStore(time.Minute, nil, nil)
	s.Put(models.ChatMessage{ID: "m1", Text: "then the villagers fled downhill"})

	err := s.ApplyPrompts("m1", []models.PromptSuggestion{
		{Text: "fleeing villagers", AnchorAfter: "no such quote", AnchorBefore: "the villagers fled"},
	})

	require.NoError(t, err)
	msg, _ := s.Get("m1")
	markerIdx := indexOf(t, msg.Text, "{{illustrate:")
	beforeIdx := indexOf(t, msg.Text, "the villagers fled")
	assert.Less(t, markerIdx, beforeIdx)
}

func TestApplyPromptsMatchesCaseInsensitively(t *testing.T) {
	s := NewMemStore(time.Minute, nil, nil)
	s.Put(models.ChatMessage{ID: "m1", Text: "The Dragon Rose over the hills"})

	err := s.ApplyPrompts("m1", []models.PromptSuggestion{
		{Text: "a dragon", AnchorAfter: "the dragon rose", AnchorBefore: "over the hills"},
	})

	require.NoError(t, err)
	msg, _ := s.Get("m1")
	assert.Contains(t, msg.Text, "{{illustrate:a dragon}}")
}

func TestApplyPromptsFailsWhenNothingAnchors(t *testing.T) {
	s := NewMemStore(time.Minute, nil, nil)
	s.Put(models.ChatMessage{ID: "m1", Text: "completely unrelated text"})

	err := s.ApplyPrompts("m1", []models.PromptSuggestion{
		{Text: "a dragon", AnchorAfter: "the dragon rose", AnchorBefore: "the villagers fled"},
	})

	require.Error(t, err)
	msg, _ := s.Get("m1")
	assert.Equal(t, "completely unrelated text", msg.Text)
}

func TestApplyPromptsPartialPlacementSucceeds(t *testing.T) {
	s := NewMemStore(time.Minute, nil, nil)
	s.Put(models.ChatMessage{ID: "m1", Text: "the dragon rose into the sky"})

	err := s.ApplyPrompts("m1", []models.PromptSuggestion{
		{Text: "a dragon", AnchorAfter: "the dragon rose", AnchorBefore: "into the sky"},
		{Text: "unanchorable", AnchorAfter: "nowhere", AnchorBefore: "also nowhere"},
	})

	require.NoError(t, err)
	msg, _ := s.Get("m1")
	assert.Contains(t, msg.Text, "{{illustrate:a dragon}}")
	assert.NotContains(t, msg.Text, "unanchorable")
}

func TestApplyPromptsUnknownMessage(t *testing.T) {
	s := NewMemStore(time.Minute, nil, nil)

	err := s.ApplyPrompts("missing", []models.PromptSuggestion{
		{Text: "x", AnchorAfter: "a", AnchorBefore: "b"},
	})

	assert.Error(t, err)
}

func TestSaveSoonDebounces(t *testing.T) {
	var mu sync.Mutex
	flushes := 0
	s := NewMemStore(20*time.Millisecond, func([]models.ChatMessage) {
		mu.Lock()
		flushes++
		mu.Unlock()
	}, nil)
	s.Put(models.ChatMessage{ID: "m1", Text: "hello"})

	s.SaveSoon()
	s.SaveSoon()
	s.SaveSoon()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return flushes == 1
	}, time.Second, 5*time.Millisecond)

	// No further flushes arrive for the collapsed calls
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, flushes)
}

func TestFlushForcesPendingSave(t *testing.T) {
	saved := make(chan []models.ChatMessage, 1)
	s := NewMemStore(time.Hour, func(msgs []models.ChatMessage) {
		saved <- msgs
	}, nil)
	s.Put(models.ChatMessage{ID: "m1", Text: "hello"})
	s.SaveSoon()

	s.Flush()

	select {
	case msgs := <-saved:
		require.Len(t, msgs, 1)
		assert.Equal(t, "m1", msgs[0].ID)
	case <-time.After(time.Second):
		t.Fatal("flush did not save")
	}
}

func TestRecentExcludesNewestAndPreservesOrder(t *testing.T) {
	s := NewMemStore(time.Minute, nil, nil)
	s.Put(models.ChatMessage{ID: "m1", Text: "first"})
	s.Put(models.ChatMessage{ID: "m2", Text: "second"})
	s.Put(models.ChatMessage{ID: "m3", Text: "third"})

	turns := s.Recent(10)

	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Text)
	assert.Equal(t, "second", turns[1].Text)
}

func TestRecentCapsAtN(t *testing.T) {
	s := NewMemStore(time.Minute, nil, nil)
	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		s.Put(models.ChatMessage{ID: id, Text: id})
	}

	turns := s.Recent(2)

	require.Len(t, turns, 2)
	assert.Equal(t, "m2", turns[0].Text)
	assert.Equal(t, "m3", turns[1].Text)
}

func TestClearDropsEverything(t *testing.T) {
	s := NewMemStore(time.Minute, nil, nil)
	s.Put(models.ChatMessage{ID: "m1", Text: "hello"})

	s.Clear()

	_, ok := s.Get("m1")
	assert.False(t, ok)
	assert.Empty(t, s.Recent(10))
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	idx := indexFold(haystack, needle)
	require.GreaterOrEqual(t, idx, 0, "expected %q in %q", needle, haystack)
	return idx
}
