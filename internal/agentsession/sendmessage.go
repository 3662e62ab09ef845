package agentsession

import (
	"context"
	"fmt"
	"time"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/eventbus"
)

// SendMessage runs one user turn: lazily activating the sandbox if the
// session is still Initialized, appending a user_message block,
// streaming the adapter's translated events into the in-memory
// conversation state, the Event Bus, and the event buffer, and
// persisting the result. Only one SendMessage may be in flight per
// session; a concurrent call returns ErrBusy immediately rather than
// queuing, per the spec's single-actor concurrency model.
func (s *Session) SendMessage(ctx context.Context, text string, opts adapter.QueryOptions) error {
	s.sendMu.Lock()
	if s.sending {
		s.sendMu.Unlock()
		return ErrBusy
	}
	s.sending = true
	s.sendMu.Unlock()
	defer func() {
		s.sendMu.Lock()
		s.sending = false
		s.sendMu.Unlock()
	}()

	s.mu.Lock()
	lifecycle := s.lifecycle
	s.mu.Unlock()

	if lifecycle == blocks.SessionDestroyed {
		return ErrNotFound
	}
	if lifecycle == blocks.SessionInitialized {
		if err := s.activate(ctx); err != nil {
			return err
		}
	}

	userBlock := blocks.Block{
		ID:        fmt.Sprintf("%s-user-%d", s.id, time.Now().UnixNano()),
		Timestamp: time.Now(),
		Kind:      blocks.BlockKindUserMessage,
		Content:   text,
	}
	s.mu.Lock()
	s.conv.Blocks = append(s.conv.Blocks, userBlock)
	sb := s.sb
	s.mu.Unlock()

	userStart := blocks.StreamEvent{
		Kind:           blocks.StreamEventBlockStart,
		ConversationID: blocks.MainConversationID,
		Block:          &userBlock,
	}
	s.eventBuffer.Append(userStart)
	s.emit(streamEventTopic(userStart.Kind), streamEventPayload(userStart))

	userComplete := blocks.StreamEvent{
		Kind:           blocks.StreamEventBlockComplete,
		ConversationID: blocks.MainConversationID,
		Block:          &userBlock,
	}
	s.eventBuffer.Append(userComplete)
	s.emit(streamEventTopic(userComplete.Kind), streamEventPayload(userComplete))

	if sb == nil {
		return fmt.Errorf("%w: sandbox missing after activation", ErrSandboxUnavailable)
	}

	events, errs := s.adapter.ExecuteQuery(ctx, sb, s.id, text, opts)
	for ev := range events {
		s.applyStreamEvent(ev)
	}

	var execErr error
	if err := <-errs; err != nil {
		execErr = fmt.Errorf("%w: %v", ErrAgentExecution, err)
		s.emit(eventbus.TopicSessionError, map[string]interface{}{"error": execErr.Error()})
	}

	s.touchActivity()
	if err := s.deps.Store.UpdateSessionRecord(context.Background(), s.id, s.recordPatch()); err != nil {
		s.logf("sendMessage: persist session record for %s: %v", s.id, err)
	}

	return execErr
}

// applyStreamEvent folds one adapter-translated event into the in-memory
// conversation state and the main/subagent blocks it targets, appends it
// to the event buffer, and republishes it on the Event Bus.
func (s *Session) applyStreamEvent(ev blocks.StreamEvent) {
	s.mu.Lock()
	switch ev.Kind {
	case blocks.StreamEventBlockStart:
		if ev.Block != nil {
			s.appendBlockLocked(ev.ConversationID, *ev.Block)
		}
	case blocks.StreamEventBlockComplete:
		if ev.Block != nil {
			s.replaceBlockLocked(ev.ConversationID, *ev.Block)
		}
	case blocks.StreamEventBlockUpdate:
		s.updateBlockLocked(ev.ConversationID, ev.BlockID, ev.Updates)
	case blocks.StreamEventTextDelta:
		s.appendDeltaLocked(ev.ConversationID, ev.BlockID, ev.Delta)
	case blocks.StreamEventMetadataUpdate:
		// Forwarded to subscribers as-is; the spec keeps no persistent
		// metadata state on the conversation itself.
	}
	s.mu.Unlock()

	s.eventBuffer.Append(ev)
	s.emit(streamEventTopic(ev.Kind), streamEventPayload(ev))
}

func (s *Session) appendBlockLocked(conversationID string, b blocks.Block) {
	blocksSlice := append(s.getBlocksLocked(conversationID), b)
	s.setBlocksLocked(conversationID, blocksSlice)
}

func (s *Session) replaceBlockLocked(conversationID string, b blocks.Block) {
	blocksSlice := s.getBlocksLocked(conversationID)
	for i := range blocksSlice {
		if blocksSlice[i].ID == b.ID {
			blocksSlice[i] = b
			s.setBlocksLocked(conversationID, blocksSlice)
			return
		}
	}
	s.setBlocksLocked(conversationID, append(blocksSlice, b))
}

func (s *Session) updateBlockLocked(conversationID, blockID string, updates map[string]any) {
	blocksSlice := s.getBlocksLocked(conversationID)
	for i := range blocksSlice {
		if blocksSlice[i].ID != blockID {
			continue
		}
		applyBlockUpdates(&blocksSlice[i], updates)
		s.setBlocksLocked(conversationID, blocksSlice)
		return
	}
}

func (s *Session) appendDeltaLocked(conversationID, blockID, delta string) {
	blocksSlice := s.getBlocksLocked(conversationID)
	for i := range blocksSlice {
		if blocksSlice[i].ID == blockID {
			blocksSlice[i].Content += delta
			s.setBlocksLocked(conversationID, blocksSlice)
			return
		}
	}
}

// getBlocksLocked returns the block slice the event targets. Callers
// must hold s.mu.
func (s *Session) getBlocksLocked(conversationID string) []blocks.Block {
	if conversationID == blocks.MainConversationID || conversationID == "" {
		return s.conv.Blocks
	}
	return s.conv.Subagents[conversationID].Blocks
}

// setBlocksLocked writes back the block slice the event targets,
// creating an empty subagent state if needed. Callers must hold s.mu.
func (s *Session) setBlocksLocked(conversationID string, blocksSlice []blocks.Block) {
	if conversationID == blocks.MainConversationID || conversationID == "" {
		s.conv.Blocks = blocksSlice
		return
	}
	if s.conv.Subagents == nil {
		s.conv.Subagents = make(map[string]blocks.SubagentState)
	}
	state := s.conv.Subagents[conversationID]
	state.Blocks = blocksSlice
	s.conv.Subagents[conversationID] = state
}

func applyBlockUpdates(b *blocks.Block, updates map[string]any) {
	if status, ok := updates["status"].(string); ok {
		b.Status = blocks.ToolStatus(status)
	}
	if output, ok := updates["output"].(string); ok {
		b.Output = output
	}
	if isError, ok := updates["isError"].(bool); ok {
		b.IsError = isError
	}
	if content, ok := updates["content"].(string); ok {
		b.Content = content
	}
}
