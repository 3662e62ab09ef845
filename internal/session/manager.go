package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cabinetrun/cabinet/internal/agentsession"
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/eventbus"
	"github.com/cabinetrun/cabinet/internal/logger"
	"github.com/cabinetrun/cabinet/internal/persistence"
	"github.com/google/uuid"
)

// Manager is the process-wide registry of live Agent Sessions. It owns
// the mapping sessionId -> *agentsession.Session described in spec.md
// §4.5, the idle-GC loop, and the sandbox-terminated callback. Sessions
// hold no back-pointer to the Manager (spec.md §8's cyclic-reference
// avoidance); the only coupling is the OnSandboxTerminated callback
// injected into agentsession.Deps.
type Manager struct {
	store persistence.Store
	bus   *eventbus.Bus
	deps  agentsession.Deps

	idleTimeout time.Duration
	idleCheck   time.Duration

	mu       sync.RWMutex
	sessions map[string]*agentsession.Session

	locks *SessionLockMap

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager constructs a Manager. deps.OnSandboxTerminated is
// overwritten to route through the Manager's own unload path; callers
// should not rely on a previously set value.
func NewManager(store persistence.Store, bus *eventbus.Bus, deps agentsession.Deps) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:       store,
		bus:         bus,
		idleTimeout: deps.Config.IdleTimeout,
		idleCheck:   time.Minute,
		sessions:    make(map[string]*agentsession.Session),
		locks:       NewSessionLockMap(),
		ctx:         ctx,
		cancel:      cancel,
	}
	deps.OnSandboxTerminated = m.handleSandboxTerminated
	m.deps = deps

	m.wg.Add(1)
	go m.idleGCLoop()

	return m
}

// CreateSession generates a new sessionId, loads the referenced profile
// (if any), constructs an Agent Session with no sandbox, persists the
// session record, registers it in the live map, and emits
// session:created + sessions:changed.
func (m *Manager) CreateSession(ctx context.Context, architecture blocks.Architecture, opts CreateOptions) (*agentsession.Session, error) {
	id := "sess_" + uuid.New().String()

	profile, err := m.resolveProfile(ctx, opts)
	if err != nil {
		return nil, err
	}

	depth := 0
	if opts.ParentID != "" {
		if parent, ok := m.GetSession(opts.ParentID); ok {
			depth = parent.Record().Depth + 1
		}
	}

	m.locks.Lock(id)
	defer m.locks.Unlock(id)

	sess, err := agentsession.New(id, architecture, profile, m.deps, nil)
	if err != nil {
		return nil, fmt.Errorf("session: create %s: %w", id, err)
	}

	record := sess.Record()
	record.ParentID = opts.ParentID
	record.Depth = depth
	record.Labels = opts.Labels

	if err := m.store.CreateSessionRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("session: persist new record for %s: %w", id, err)
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	m.emit(eventbus.TopicSessionCreated, id, nil)
	m.emit(eventbus.TopicSessionsChanged, id, nil)

	return sess, nil
}

func (m *Manager) resolveProfile(ctx context.Context, opts CreateOptions) (blocks.AgentProfile, error) {
	ref := opts.Labels["profileRef"]
	if ref == "" {
		return blocks.AgentProfile{}, nil
	}
	profile, ok, err := m.store.LoadAgentProfile(ctx, ref)
	if err != nil {
		return blocks.AgentProfile{}, fmt.Errorf("session: load profile %s: %w", ref, err)
	}
	if !ok {
		return blocks.AgentProfile{}, fmt.Errorf("session: %w: profile %s", agentsession.ErrNotFound, ref)
	}
	return *profile, nil
}

// LoadSession is a no-op if sessionId is already live; otherwise it loads
// the record + transcripts + workspace files from persistence,
// constructs an Agent Session, adds it to the map, and emits
// session:loaded + sessions:changed.
func (m *Manager) LoadSession(ctx context.Context, sessionID string) (*agentsession.Session, error) {
	if sess, ok := m.GetSession(sessionID); ok {
		return sess, nil
	}

	m.locks.Lock(sessionID)
	defer m.locks.Unlock(sessionID)

	// Re-check under the per-session lock: another goroutine may have
	// loaded it while we waited.
	if sess, ok := m.GetSession(sessionID); ok {
		return sess, nil
	}

	loaded, ok, err := m.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", sessionID, err)
	}
	if !ok {
		return nil, fmt.Errorf("session: %w: %s", agentsession.ErrNotFound, sessionID)
	}

	profile := blocks.AgentProfile{ID: loaded.Record.ProfileID, Architecture: loaded.Record.Architecture}
	if loaded.Record.ProfileID != "" {
		if p, ok, err := m.store.LoadAgentProfile(ctx, loaded.Record.ProfileID); err == nil && ok {
			profile = *p
		}
	}

	sess, err := agentsession.New(sessionID, loaded.Record.Architecture, profile, m.deps, &loaded)
	if err != nil {
		return nil, fmt.Errorf("session: construct %s: %w", sessionID, err)
	}

	m.mu.Lock()
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	m.emit(eventbus.TopicSessionLoaded, sessionID, nil)
	m.emit(eventbus.TopicSessionsChanged, sessionID, nil)

	return sess, nil
}

// GetSession returns the live handle for sessionId, if any.
func (m *Manager) GetSession(sessionID string) (*agentsession.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// DestroySession tears down the Agent Session and removes it from the
// live map, regardless of whether destroy itself succeeds.
func (m *Manager) DestroySession(ctx context.Context, sessionID string) error {
	m.locks.Lock(sessionID)
	defer m.locks.Unlock(sessionID)

	sess, ok := m.GetSession(sessionID)
	if !ok {
		return fmt.Errorf("session: %w: %s", agentsession.ErrNotFound, sessionID)
	}

	err := sess.Destroy(ctx)
	if err != nil {
		logger.Error("session: destroy %s: %v", sessionID, err)
	}

	m.unload(sessionID)
	m.locks.Delete(sessionID)

	return err
}

// ListAllSessions delegates to persistence, returning both active and
// inactive session records.
func (m *Manager) ListAllSessions(ctx context.Context) ([]blocks.SessionRecord, error) {
	return m.store.ListAllSessions(ctx)
}

// unload removes sessionId from the live map and emits sessions:changed.
// Persisted state is untouched — a subsequent LoadSession can revive it.
func (m *Manager) unload(sessionID string) {
	m.mu.Lock()
	_, existed := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if existed {
		m.emit(eventbus.TopicSessionsChanged, sessionID, nil)
	}
}

// handleSandboxTerminated is the callback agentsession.Deps wires into
// every Session's health loop: when the sandbox process exits
// unexpectedly, unload the session from the live map so a future
// sendMessage re-activates a fresh sandbox. The session has already
// stopped its own sync loop and watch handles before invoking this
// callback, so unload only needs to forget the live-map entry; session
// state remains in persistence per spec.md §4.5.
func (m *Manager) handleSandboxTerminated(sessionID string) {
	logger.Info("session: sandbox for %s terminated unexpectedly, unloading", sessionID)
	m.unload(sessionID)
}

// idleGCLoop runs every idleCheck interval (default 60s per spec.md
// §4.5), destroying any live session whose LastActivity exceeds
// idleTimeout (default 15 min).
func (m *Manager) idleGCLoop() {
	defer m.wg.Done()

	interval := m.idleCheck
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.collectIdleSessions()
		}
	}
}

func (m *Manager) collectIdleSessions() {
	timeout := m.idleTimeout
	if timeout <= 0 {
		return
	}

	m.mu.RLock()
	var stale []string
	now := time.Now()
	for id, sess := range m.sessions {
		if now.Sub(sess.LastActivity()) > timeout {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		if err := m.DestroySession(context.Background(), id); err != nil {
			logger.Error("session: idle GC destroy %s: %v", id, err)
		}
	}
}

// RecoverStaleSessions scans persisted records for sessions left in
// Activating/Ready at the time of an ungraceful shutdown (their
// UpdatedAt heartbeat is older than maxAge) and reverts them to
// Initialized: the sandbox they referenced is gone, but the
// conversation/workspace state survives for a future LoadSession. Kept
// from the teacher's own stale-session-recovery feature
// (internal/session/manager.go's RecoverStaleSessions), retargeted from
// a StatusActive->StatusFailed filesystem scan to a persistence-backed
// Activating/Ready->Initialized reconciliation.
func (m *Manager) RecoverStaleSessions(ctx context.Context, maxAge time.Duration) (recovered int, err error) {
	records, err := m.store.ListAllSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("session: recover stale sessions: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	for _, rec := range records {
		if rec.Lifecycle != blocks.SessionActivating && rec.Lifecycle != blocks.SessionReady {
			continue
		}
		if rec.UpdatedAt.After(cutoff) {
			continue
		}

		lifecycle := blocks.SessionInitialized
		statusText := "recovered after unexpected shutdown"
		sandbox := rec.Sandbox
		sandbox.Status = blocks.SandboxStatusTerminated
		patch := persistence.SessionRecordPatch{
			Lifecycle:  &lifecycle,
			StatusText: &statusText,
			Sandbox:    &sandbox,
		}
		if err := m.store.UpdateSessionRecord(ctx, rec.ID, patch); err != nil {
			logger.Error("session: recover stale session %s: %v", rec.ID, err)
			continue
		}
		recovered++
	}
	return recovered, nil
}

// Close stops the idle-GC loop and destroys every live session. Intended
// for process shutdown.
func (m *Manager) Close(ctx context.Context) {
	m.cancel()
	m.wg.Wait()

	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.DestroySession(ctx, id); err != nil {
			logger.Error("session: shutdown destroy %s: %v", id, err)
		}
	}
}

func (m *Manager) emit(topic eventbus.Topic, sessionID string, payload map[string]interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(topic, sessionID, payload)
}
