package agentsession

import (
	"context"
	"errors"
	"testing"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAdapter() *fakeAdapter {
	return &fakeAdapter{
		arch: blocks.ArchitectureClaude,
		paths: adapter.Paths{
			AgentStorageDir: "/agent-storage",
			WorkspaceDir:    "/workspace",
			ProfileDir:      "/home/agent/.claude",
		},
	}
}

func TestActivateSucceeds(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	ad := testAdapter()
	deps := testDeps(t, store, provider, ad)

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{ID: "profile-1"}, deps, nil)
	require.NoError(t, err)

	err = sess.activate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, blocks.SessionReady, sess.Lifecycle())
	assert.Len(t, provider.created, 1)
	assert.Equal(t, blocks.SandboxStatusReady, sess.Record().Sandbox.Status)

	// loops were spawned; Destroy should stop them cleanly.
	require.NoError(t, sess.Destroy(context.Background()))
}

func TestNewFailsWhenAdapterUnregistered(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	ad := testAdapter()
	deps := testDeps(t, store, provider, ad)
	delete(deps.Adapters, blocks.ArchitectureClaude)

	_, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.Error(t, err)
}

func TestActivateFailsWhenSandboxCreateErrors(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{createErr: errors.New("docker daemon unreachable")}
	ad := testAdapter()
	deps := testDeps(t, store, provider, ad)

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.NoError(t, err)

	err = sess.activate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSandboxUnavailable)
	assert.Equal(t, blocks.SessionInitialized, sess.Lifecycle())
	assert.Equal(t, blocks.SandboxStatusTerminated, sess.Record().Sandbox.Status)
}

func TestActivateFailsWhenWatcherStartErrors(t *testing.T) {
	store := newFakeStore()
	ad := testAdapter()
	provider := &fakeProvider{failWatchPaths: []string{ad.paths.WorkspaceDir}}
	deps := testDeps(t, store, provider, ad)

	sess, err := New("sess-1", blocks.ArchitectureClaude, blocks.AgentProfile{}, deps, nil)
	require.NoError(t, err)

	err = sess.activate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWatcherStartTimeout)
	assert.Equal(t, blocks.SessionInitialized, sess.Lifecycle())
	assert.True(t, provider.created[0].terminated)
}
