package session

import (
	"context"
	"testing"
	"time"

	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	provider := &fakeProvider{}
	deps := testManagerDeps(t, store, provider)
	bus := eventbus.New()
	m := NewManager(store, bus, deps)
	t.Cleanup(func() { m.Close(context.Background()) })
	return m, store
}

func TestCreateSessionRegistersAndPersists(t *testing.T) {
	m, store := newTestManager(t)

	sess, err := m.CreateSession(context.Background(), blocks.ArchitectureClaude, CreateOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID())

	live, ok := m.GetSession(sess.ID())
	require.True(t, ok)
	assert.Same(t, sess, live)

	_, ok, err = store.LoadSession(context.Background(), sess.ID())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateSessionWithParentSetsDepth(t *testing.T) {
	m, _ := newTestManager(t)

	parent, err := m.CreateSession(context.Background(), blocks.ArchitectureClaude, CreateOptions{})
	require.NoError(t, err)

	child, err := m.CreateSession(context.Background(), blocks.ArchitectureClaude, CreateOptions{ParentID: parent.ID()})
	require.NoError(t, err)

	assert.Equal(t, parent.ID(), child.Record().ParentID)
	assert.Equal(t, parent.Record().Depth+1, child.Record().Depth)
}

func TestGetSessionUnknownReturnsFalse(t *testing.T) {
	m, _ := newTestManager(t)

	_, ok := m.GetSession("nonexistent")
	assert.False(t, ok)
}

func TestLoadSessionReturnsAlreadyLiveSession(t *testing.T) {
	m, _ := newTestManager(t)

	sess, err := m.CreateSession(context.Background(), blocks.ArchitectureClaude, CreateOptions{})
	require.NoError(t, err)

	loaded, err := m.LoadSession(context.Background(), sess.ID())
	require.NoError(t, err)
	assert.Same(t, sess, loaded)
}

func TestLoadSessionHydratesFromPersistenceAfterUnload(t *testing.T) {
	m, _ := newTestManager(t)

	sess, err := m.CreateSession(context.Background(), blocks.ArchitectureClaude, CreateOptions{})
	require.NoError(t, err)
	id := sess.ID()

	m.unload(id)
	_, ok := m.GetSession(id)
	require.False(t, ok)

	reloaded, err := m.LoadSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, reloaded.ID())

	_, ok = m.GetSession(id)
	assert.True(t, ok)
}

func TestLoadSessionUnknownReturnsErrNotFound(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.LoadSession(context.Background(), "nonexistent")
	require.Error(t, err)
}

func TestDestroySessionRemovesFromLiveMap(t *testing.T) {
	m, _ := newTestManager(t)

	sess, err := m.CreateSession(context.Background(), blocks.ArchitectureClaude, CreateOptions{})
	require.NoError(t, err)

	err = m.DestroySession(context.Background(), sess.ID())
	require.NoError(t, err)

	_, ok := m.GetSession(sess.ID())
	assert.False(t, ok)
}

func TestDestroySessionUnknownReturnsErrNotFound(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.DestroySession(context.Background(), "nonexistent")
	require.Error(t, err)
}

func TestListAllSessionsDelegatesToStore(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateSession(context.Background(), blocks.ArchitectureClaude, CreateOptions{})
	require.NoError(t, err)
	_, err = m.CreateSession(context.Background(), blocks.ArchitectureClaude, CreateOptions{})
	require.NoError(t, err)

	records, err := m.ListAllSessions(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestHandleSandboxTerminatedUnloadsSession(t *testing.T) {
	m, _ := newTestManager(t)

	sess, err := m.CreateSession(context.Background(), blocks.ArchitectureClaude, CreateOptions{})
	require.NoError(t, err)

	m.handleSandboxTerminated(sess.ID())

	_, ok := m.GetSession(sess.ID())
	assert.False(t, ok)
}

func TestCollectIdleSessionsDestroysStaleSessions(t *testing.T) {
	m, _ := newTestManager(t)
	m.idleTimeout = time.Millisecond

	sess, err := m.CreateSession(context.Background(), blocks.ArchitectureClaude, CreateOptions{})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	m.collectIdleSessions()

	_, ok := m.GetSession(sess.ID())
	assert.False(t, ok)
}

func TestCollectIdleSessionsLeavesActiveSessionsAlone(t *testing.T) {
	m, _ := newTestManager(t)
	m.idleTimeout = time.Hour

	sess, err := m.CreateSession(context.Background(), blocks.ArchitectureClaude, CreateOptions{})
	require.NoError(t, err)

	m.collectIdleSessions()

	_, ok := m.GetSession(sess.ID())
	assert.True(t, ok)
}

func TestRecoverStaleSessionsResetsActivatingRecordsOlderThanMaxAge(t *testing.T) {
	m, store := newTestManager(t)

	staleTime := time.Now().Add(-time.Hour)
	store.records["stale-1"] = blocks.SessionRecord{
		ID:        "stale-1",
		Lifecycle: blocks.SessionActivating,
		Sandbox:   blocks.SandboxState{Status: blocks.SandboxStatusReady},
		UpdatedAt: staleTime,
	}
	store.records["fresh-1"] = blocks.SessionRecord{
		ID:        "fresh-1",
		Lifecycle: blocks.SessionReady,
		Sandbox:   blocks.SandboxState{Status: blocks.SandboxStatusReady},
		UpdatedAt: time.Now(),
	}

	recovered, err := m.RecoverStaleSessions(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	assert.Equal(t, blocks.SessionInitialized, store.records["stale-1"].Lifecycle)
	assert.Equal(t, blocks.SandboxStatusTerminated, store.records["stale-1"].Sandbox.Status)
	assert.Equal(t, blocks.SessionReady, store.records["fresh-1"].Lifecycle)
}

func TestCloseDestroysAllLiveSessions(t *testing.T) {
	m, _ := newTestManager(t)

	s1, err := m.CreateSession(context.Background(), blocks.ArchitectureClaude, CreateOptions{})
	require.NoError(t, err)
	s2, err := m.CreateSession(context.Background(), blocks.ArchitectureClaude, CreateOptions{})
	require.NoError(t, err)

	m.Close(context.Background())

	_, ok := m.GetSession(s1.ID())
	assert.False(t, ok)
	_, ok = m.GetSession(s2.ID())
	assert.False(t, ok)
}
