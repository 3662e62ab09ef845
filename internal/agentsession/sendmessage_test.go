package agentsession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageLazilyActivates(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	ad := testAdapter()
	deps := testDeps(t, store, provider, ad)

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.NoError(t, err)
	require.Equal(t, blocks.SessionInitialized, sess.Lifecycle())

	err = sess.SendMessage(context.Background(), "hello", adapter.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, blocks.SessionReady, sess.Lifecycle())

	defer sess.Destroy(context.Background())
}

func TestSendMessageAppendsUserBlock(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	ad := testAdapter()
	deps := testDeps(t, store, provider, ad)

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.NoError(t, err)

	require.NoError(t, sess.SendMessage(context.Background(), "what is 2+2", adapter.QueryOptions{}))
	defer sess.Destroy(context.Background())

	snap := sess.Snapshot()
	require.GreaterOrEqual(t, len(snap.Blocks), 1)
	assert.Equal(t, blocks.BlockKindUserMessage, snap.Blocks[0].Kind)
	assert.Equal(t, "what is 2+2", snap.Blocks[0].Content)
}

func TestSendMessageAppliesStreamEventsToMainAndSubagent(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	ad := testAdapter()
	ad.events = []blocks.StreamEvent{
		{
			Kind:           blocks.StreamEventBlockStart,
			ConversationID: blocks.MainConversationID,
			Block:          &blocks.Block{ID: "b1", Kind: blocks.BlockKindAssistantText, Content: "thinking"},
		},
		{
			Kind:           blocks.StreamEventTextDelta,
			ConversationID: blocks.MainConversationID,
			BlockID:        "b1",
			Delta:          "...",
		},
		{
			Kind:           blocks.StreamEventBlockStart,
			ConversationID: "sub-1",
			Block:          &blocks.Block{ID: "s1", Kind: blocks.BlockKindAssistantText, Content: "sub working"},
		},
		{
			Kind:           blocks.StreamEventBlockUpdate,
			ConversationID: "sub-1",
			BlockID:        "s1",
			Updates:        map[string]any{"status": string(blocks.ToolStatusSuccess)},
		},
	}
	deps := testDeps(t, store, provider, ad)

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.NoError(t, err)
	require.NoError(t, sess.SendMessage(context.Background(), "go", adapter.QueryOptions{}))
	defer sess.Destroy(context.Background())

	snap := sess.Snapshot()

	var mainBlock *blocks.Block
	for i := range snap.Blocks {
		if snap.Blocks[i].ID == "b1" {
			mainBlock = &snap.Blocks[i]
		}
	}
	require.NotNil(t, mainBlock)
	assert.Equal(t, "thinking...", mainBlock.Content)

	subState, ok := snap.Subagents["sub-1"]
	require.True(t, ok, "subagent block must be written back into the subagent map, not lost via a stale pointer")
	require.Len(t, subState.Blocks, 1)
	assert.Equal(t, blocks.ToolStatusSuccess, subState.Blocks[0].Status)
}

func TestSendMessageReturnsErrBusyWhenAlreadySending(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	ad := testAdapter()
	deps := testDeps(t, store, provider, ad)

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.NoError(t, err)

	sess.sendMu.Lock()
	sess.sending = true
	sess.sendMu.Unlock()

	err = sess.SendMessage(context.Background(), "hi", adapter.QueryOptions{})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestSendMessageReturnsErrNotFoundWhenDestroyed(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	ad := testAdapter()
	deps := testDeps(t, store, provider, ad)

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Destroy(context.Background()))

	err = sess.SendMessage(context.Background(), "hi", adapter.QueryOptions{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendMessageWrapsExecutionError(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	ad := testAdapter()
	ad.execErr = errors.New("agent crashed")
	deps := testDeps(t, store, provider, ad)

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.NoError(t, err)
	defer sess.Destroy(context.Background())

	err = sess.SendMessage(context.Background(), "hi", adapter.QueryOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAgentExecution)
}

func TestSendMessageConcurrentCallsOnlyOneProceeds(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	ad := testAdapter()
	gate := make(chan struct{})
	ad.gate = gate
	deps := testDeps(t, store, provider, ad)

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.NoError(t, err)
	require.NoError(t, sess.activate(context.Background()))
	defer sess.Destroy(context.Background())

	firstStarted := make(chan struct{})
	var firstErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(firstStarted)
		firstErr = sess.SendMessage(context.Background(), "hi", adapter.QueryOptions{})
	}()

	<-firstStarted
	// Give the first call a head start to set s.sending before the second
	// call observes it; ExecuteQuery is blocked on gate so it cannot have
	// finished yet.
	time.Sleep(20 * time.Millisecond)
	secondErr := sess.SendMessage(context.Background(), "hi again", adapter.QueryOptions{})
	assert.ErrorIs(t, secondErr, ErrBusy)

	close(gate)
	wg.Wait()
	assert.NoError(t, firstErr)
}
