package agentsession

import (
	"fmt"
	"sync"
	"time"

	"github.com/cabinetrun/cabinet/internal/blocks"
)

// EventBuffer is a ring buffer giving a reconnecting transport listener a
// resumption protocol independent of the Event Bus's synchronous fan-out:
// a listener that missed events while disconnected replays them by index
// instead of losing them. Ported from the teacher's
// internal/session/event_buffer.go, generalized from agent.StreamEvent to
// blocks.StreamEvent — an ambient concern the distilled spec doesn't
// mention but that every production streaming session layer needs.
const (
	DefaultEventBufferSize = 1000
)

// BufferedEvent wraps a StreamEvent with the metadata needed to resume a
// disconnected listener at the right point.
type BufferedEvent struct {
	Index     int
	Timestamp time.Time
	Event     blocks.StreamEvent
}

// EventBuffer is a bounded, append-only ring buffer of BufferedEvents for
// one session.
type EventBuffer struct {
	sessionID     string
	events        []BufferedEvent
	maxSize       int
	startIndex    int
	droppedEvents int64
	mu            sync.RWMutex
}

// NewEventBuffer creates a buffer for sessionID with the given capacity
// (DefaultEventBufferSize if maxSize <= 0).
func NewEventBuffer(sessionID string, maxSize int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = DefaultEventBufferSize
	}
	return &EventBuffer{
		sessionID: sessionID,
		events:    make([]BufferedEvent, 0, maxSize),
		maxSize:   maxSize,
	}
}

// Append adds event to the buffer and returns its logical index.
func (b *EventBuffer) Append(event blocks.StreamEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	index := b.startIndex + len(b.events)
	be := BufferedEvent{Index: index, Timestamp: time.Now(), Event: event}

	if len(b.events) >= b.maxSize {
		b.events = b.events[1:]
		b.startIndex++
		b.droppedEvents++
	}
	b.events = append(b.events, be)
	return index
}

// After returns events after the given logical index (exclusive). index
// == -1 returns every buffered event. Returns an error if index names an
// already-purged event.
func (b *EventBuffer) After(index int) ([]BufferedEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if index == -1 {
		result := make([]BufferedEvent, len(b.events))
		copy(result, b.events)
		return result, nil
	}

	if index < b.startIndex {
		return nil, fmt.Errorf("agentsession: events before index %d have been purged (oldest available: %d)", index, b.startIndex)
	}

	start := index - b.startIndex + 1
	if start < 0 {
		start = 0
	}
	if start >= len(b.events) {
		return []BufferedEvent{}, nil
	}

	result := make([]BufferedEvent, len(b.events)-start)
	copy(result, b.events[start:])
	return result, nil
}

// LastIndex returns the most recently appended event's index, or -1 if
// the buffer is empty.
func (b *EventBuffer) LastIndex() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.events) == 0 {
		return -1
	}
	return b.startIndex + len(b.events) - 1
}

// Len returns the number of events currently buffered.
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// DroppedEvents returns how many events have been evicted by the ring
// buffer wrapping, a signal that a listener isn't keeping up.
func (b *EventBuffer) DroppedEvents() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.droppedEvents
}
