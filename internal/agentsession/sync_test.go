package agentsession

import (
	"context"
	"testing"

	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncOnceNoopWithoutSandbox(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	ad := testAdapter()
	deps := testDeps(t, store, provider, ad)

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.NoError(t, err)

	sess.syncOnce(context.Background())
}

func TestSyncWorkspaceFilesReconcilesAddsAndRemovals(t *testing.T) {
	sess, sb := activatedSession(t)
	defer sess.Destroy(context.Background())

	sb.mu.Lock()
	sb.files["/workspace/keep.txt"] = "kept"
	sb.files["/workspace/other.txt"] = "other"
	sb.mu.Unlock()

	sess.syncWorkspaceFiles(context.Background(), sb)

	files := sess.WorkspaceFiles()
	byPath := make(map[string]blocks.WorkspaceFile, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}
	require.Contains(t, byPath, "/workspace/keep.txt")
	require.Contains(t, byPath, "/workspace/other.txt")

	sb.mu.Lock()
	delete(sb.files, "/workspace/other.txt")
	sb.mu.Unlock()

	sess.syncWorkspaceFiles(context.Background(), sb)

	files = sess.WorkspaceFiles()
	byPath = make(map[string]blocks.WorkspaceFile, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}
	assert.Contains(t, byPath, "/workspace/keep.txt")
	assert.NotContains(t, byPath, "/workspace/other.txt")
}

func TestSyncTranscriptsWithEmptyReadLeavesBlocksEmpty(t *testing.T) {
	sess, sb := activatedSession(t)
	defer sess.Destroy(context.Background())

	sb.mu.Lock()
	sb.files["/agent-storage/main.jsonl"] = "assistant reply"
	sb.mu.Unlock()

	sess.syncTranscripts(context.Background(), sb)

	// fakeAdapter.ReadSessionTranscripts always returns an empty
	// SessionTranscripts regardless of sandbox contents, so syncTranscripts
	// should leave the in-memory transcript unchanged rather than erroring.
	snap := sess.Snapshot()
	assert.Empty(t, snap.Blocks)
}

func TestRecordPatchReflectsCurrentState(t *testing.T) {
	sess, _ := activatedSession(t)
	defer sess.Destroy(context.Background())

	patch := sess.recordPatch()
	require.NotNil(t, patch.Lifecycle)
	assert.Equal(t, blocks.SessionReady, *patch.Lifecycle)
	require.NotNil(t, patch.Sandbox)
	assert.Equal(t, blocks.SandboxStatusReady, patch.Sandbox.Status)
	require.NotNil(t, patch.LastActivity)
	require.NotNil(t, patch.StatusText)
}
