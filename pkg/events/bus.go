package events

import (
	"sync"
	"time"
)

// StateChange announces that the retry state for a message changed. Status is
// empty when the message left tracking entirely (success, no-prompts, bulk
// clear).
type StateChange struct {
	MessageID string
	Status    string
	Timestamp time.Time
}

// Subscriber is a function that receives state change events.
type Subscriber func(StateChange)

// Bus is a non-blocking broadcast registry using the Publish/Subscribe
// pattern. Events are delivered asynchronously via buffered channels; if a
// subscriber's channel is full, the event is dropped silently. Delivery order
// across subscribers is unspecified and no acknowledgment is expected.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan StateChange
	bufferSize  int
}

// NewBus creates a new event bus with the specified buffer size per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe registers a subscriber. The function is called asynchronously in
// a dedicated goroutine. Returns an unsubscribe function.
func (b *Bus) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan StateChange, b.bufferSize)
	b.subscribers = append(b.subscribers, ch)

	go func() {
		for event := range ch {
			func() {
				defer func() {
					if r := recover(); r != nil {
						// A panicking subscriber must not take the bus down
					}
				}()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, subCh := range b.subscribers {
			if subCh == ch {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish sends an event to all subscribers. Uses select with default to stay
// non-blocking: a full subscriber channel drops the event for that subscriber.
func (b *Bus) Publish(messageID, status string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := StateChange{
		MessageID: messageID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, drop for this subscriber
		}
	}
}

// Close closes all subscriber channels and clears the registry.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
