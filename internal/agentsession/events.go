package agentsession

import (
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/eventbus"
)

// streamEventTopic maps a StreamEvent's kind onto the Event Bus topic
// transport listeners subscribe to, one-to-one.
func streamEventTopic(kind blocks.StreamEventKind) eventbus.Topic {
	switch kind {
	case blocks.StreamEventBlockStart:
		return eventbus.TopicSessionBlockStart
	case blocks.StreamEventTextDelta:
		return eventbus.TopicSessionBlockDelta
	case blocks.StreamEventBlockUpdate:
		return eventbus.TopicSessionBlockUpdate
	case blocks.StreamEventBlockComplete:
		return eventbus.TopicSessionBlockComplete
	case blocks.StreamEventMetadataUpdate:
		return eventbus.TopicSessionMetadataUpdate
	default:
		return eventbus.TopicSessionBlockUpdate
	}
}

// streamEventPayload turns a StreamEvent into the map payload Emit
// expects, carrying only the fields meaningful for its kind.
func streamEventPayload(ev blocks.StreamEvent) map[string]interface{} {
	payload := map[string]interface{}{"conversationId": ev.ConversationID}
	switch ev.Kind {
	case blocks.StreamEventBlockStart, blocks.StreamEventBlockComplete:
		payload["block"] = ev.Block
	case blocks.StreamEventTextDelta:
		payload["blockId"] = ev.BlockID
		payload["delta"] = ev.Delta
	case blocks.StreamEventBlockUpdate:
		payload["blockId"] = ev.BlockID
		payload["updates"] = ev.Updates
	case blocks.StreamEventMetadataUpdate:
		payload["metadata"] = ev.Metadata
	}
	return payload
}
