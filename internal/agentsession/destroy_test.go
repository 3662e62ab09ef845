package agentsession

import (
	"context"
	"testing"

	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestroyTerminatesSandboxAndMarksDestroyed(t *testing.T) {
	sess, sb := activatedSession(t)

	require.NoError(t, sess.Destroy(context.Background()))

	assert.Equal(t, blocks.SessionDestroyed, sess.Lifecycle())
	assert.True(t, sb.terminated)

	rec := sess.Record()
	assert.Equal(t, blocks.SandboxStatusTerminated, rec.Sandbox.Status)
}

func TestDestroyIsIdempotent(t *testing.T) {
	sess, sb := activatedSession(t)

	require.NoError(t, sess.Destroy(context.Background()))
	require.NoError(t, sess.Destroy(context.Background()))

	assert.Equal(t, blocks.SessionDestroyed, sess.Lifecycle())
	assert.True(t, sb.terminated)
}

func TestDestroyOnNeverActivatedSessionIsNoop(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	ad := testAdapter()
	deps := testDeps(t, store, provider, ad)

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.NoError(t, err)

	require.NoError(t, sess.Destroy(context.Background()))
	assert.Equal(t, blocks.SessionDestroyed, sess.Lifecycle())
	assert.Empty(t, provider.created)
}

func TestDestroyRunsFinalSyncBeforeTerminating(t *testing.T) {
	sess, sb := activatedSession(t)

	sb.mu.Lock()
	sb.files["/workspace/result.txt"] = "final output"
	sb.mu.Unlock()

	require.NoError(t, sess.Destroy(context.Background()))

	files := sess.WorkspaceFiles()
	var found bool
	for _, f := range files {
		if f.Path == "/workspace/result.txt" {
			found = true
			require.NotNil(t, f.Content)
			assert.Equal(t, "final output", *f.Content)
		}
	}
	assert.True(t, found, "final syncOnce should have picked up the workspace file before sandbox termination")
}
