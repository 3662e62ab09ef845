// Package eventbus implements the Event Bus: a closed catalogue of typed
// domain events fanned out synchronously to subscribers. It generalizes
// the teacher's ActiveSession.NotifyEvent — which pushed one event kind to
// a single MCP client — into an N-subscriber bus decoupled from any
// particular transport, so the MCP transport, audit log, and metrics
// recorder can each subscribe independently.
package eventbus

import (
	"sync"

	"github.com/cabinetrun/cabinet/internal/logger"
)

// Topic is one of the closed set of domain event names. The set is fixed
// by the wire contract every client is written against; it is not meant
// to grow ad hoc.
type Topic string

const (
	TopicSessionCreated         Topic = "session:created"
	TopicSessionLoaded          Topic = "session:loaded"
	TopicSessionDestroyed       Topic = "session:destroyed"
	TopicSessionStatus          Topic = "session:status"
	TopicSessionsChanged        Topic = "sessions:changed"
	TopicSessionBlockStart      Topic = "session:block:start"
	TopicSessionBlockDelta      Topic = "session:block:delta"
	TopicSessionBlockUpdate     Topic = "session:block:update"
	TopicSessionBlockComplete   Topic = "session:block:complete"
	TopicSessionMetadataUpdate  Topic = "session:metadata:update"
	TopicSessionSubagentFound   Topic = "session:subagent:discovered"
	TopicSessionSubagentDone    Topic = "session:subagent:completed"
	TopicSessionSubagentChanged Topic = "session:subagent:changed"
	TopicSessionFileModified    Topic = "session:file:modified"
	TopicSessionFileDeleted     Topic = "session:file:deleted"
	TopicSessionTranscript      Topic = "session:transcript:changed"
	TopicSessionOptionsUpdate   Topic = "session:options:update"
	TopicSessionError           Topic = "session:error"
	TopicSandboxStatus          Topic = "sandbox:status"
)

// allTopics is used to validate subscriptions and published events fall
// inside the closed catalogue.
var allTopics = map[Topic]struct{}{
	TopicSessionCreated: {}, TopicSessionLoaded: {}, TopicSessionDestroyed: {},
	TopicSessionStatus: {}, TopicSessionsChanged: {}, TopicSessionBlockStart: {},
	TopicSessionBlockDelta: {}, TopicSessionBlockUpdate: {}, TopicSessionBlockComplete: {},
	TopicSessionMetadataUpdate: {}, TopicSessionSubagentFound: {}, TopicSessionSubagentDone: {},
	TopicSessionSubagentChanged: {}, TopicSessionFileModified: {}, TopicSessionFileDeleted: {},
	TopicSessionTranscript: {}, TopicSessionOptionsUpdate: {}, TopicSessionError: {},
	TopicSandboxStatus: {},
}

// Event is one published occurrence. SessionID is empty only for events
// with no single session owner; every publisher in this module, including
// the Session Manager's sessions:changed, sets it to the session concerned.
type Event struct {
	Topic     Topic
	SessionID string
	Payload   map[string]interface{}
}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine and must not block or call back into the Bus.
type Handler func(Event)

// Bus is a synchronous multi-subscriber event fan-out. Safe for
// concurrent Publish and Subscribe from any number of goroutines.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]subscription
	nextID      int
}

type subscription struct {
	topics map[Topic]struct{} // nil means "all topics"
	fn     Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[int]subscription)}
}

// Subscription is an opaque handle returned by Subscribe, used to
// Unsubscribe later.
type Subscription struct {
	id  int
	bus *Bus
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subscribers, s.id)
}

// Subscribe registers fn for the given topics. An empty topics list
// subscribes to every topic in the catalogue.
func (b *Bus) Subscribe(fn Handler, topics ...Topic) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	var set map[Topic]struct{}
	if len(topics) > 0 {
		set = make(map[Topic]struct{}, len(topics))
		for _, t := range topics {
			set[t] = struct{}{}
		}
	}
	b.subscribers[id] = subscription{topics: set, fn: fn}
	return Subscription{id: id, bus: b}
}

// Publish fans out ev to every matching subscriber synchronously, in
// subscription order is not guaranteed (map iteration). Publishing an
// event outside the closed catalogue is a programmer error: it is logged
// and dropped rather than panicking, since a bad event should not take
// down the session actor that produced it.
func (b *Bus) Publish(ev Event) {
	if _, ok := allTopics[ev.Topic]; !ok {
		logger.Error("eventbus: dropping event on unknown topic %q", string(ev.Topic))
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.topics != nil {
			if _, ok := sub.topics[ev.Topic]; !ok {
				continue
			}
		}
		sub.fn(ev)
	}
}

// Emit is a convenience wrapper for the common case of publishing a
// session-scoped event with a payload map.
func (b *Bus) Emit(topic Topic, sessionID string, payload map[string]interface{}) {
	b.Publish(Event{Topic: topic, SessionID: sessionID, Payload: payload})
}
