package agentsession

import (
	"context"
	"testing"

	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckHealthNoopWithoutSandbox(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	ad := testAdapter()
	deps := testDeps(t, store, provider, ad)

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.NoError(t, err)

	assert.False(t, sess.checkHealth(context.Background()))
}

func TestCheckHealthMarksReadyWhenSandboxAlive(t *testing.T) {
	sess, _ := activatedSession(t)
	defer sess.Destroy(context.Background())

	stopped := sess.checkHealth(context.Background())
	assert.False(t, stopped)
	assert.Equal(t, blocks.SandboxStatusReady, sess.Record().Sandbox.Status)
}

func TestCheckHealthDetectsSandboxExitAndNotifiesManager(t *testing.T) {
	var notified string
	store := newFakeStore()
	provider := &fakeProvider{}
	ad := testAdapter()
	deps := testDeps(t, store, provider, ad)
	deps.OnSandboxTerminated = func(sessionID string) { notified = sessionID }

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.NoError(t, err)
	require.NoError(t, sess.activate(context.Background()))

	sb := provider.created[0]
	code := 1
	sb.mu.Lock()
	sb.exitCode = &code
	sb.mu.Unlock()

	stopped := sess.checkHealth(context.Background())
	assert.True(t, stopped)

	rec := sess.Record()
	assert.Equal(t, blocks.SandboxStatusTerminated, rec.Sandbox.Status)
	assert.Equal(t, blocks.SessionReady, rec.Lifecycle)
	assert.Equal(t, "sess-1", notified)

	// checkHealth already cancelled both loops via stopLoops; Destroy only
	// waits for them and finishes the teardown.
	require.NoError(t, sess.Destroy(context.Background()))
}
