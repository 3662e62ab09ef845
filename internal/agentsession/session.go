// Package agentsession implements the Agent Session: the per-conversation
// actor that owns one sandbox and one Architecture Adapter and drives the
// state machine Initialized -> Activating -> Ready -> Destroyed. It is
// grounded on the teacher's internal/session/active.go ActiveSession
// (status enum, SendMessage, the collectEvents goroutine pumping an
// executor's channels into a buffer), generalized from "one executor + one
// event buffer" into "one sandbox + one adapter + blocks/subagents/
// workspaceFiles model + two watchers + sync/health loops".
package agentsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/eventbus"
	"github.com/cabinetrun/cabinet/internal/logger"
	"github.com/cabinetrun/cabinet/internal/persistence"
	"github.com/cabinetrun/cabinet/internal/sandbox"
)

// Deps bundles the collaborators a Session needs that are shared across
// every session in the process: the sandbox provider + image resolver,
// the adapter registry, persistence, and the event bus. One Deps is
// constructed once by the Session Manager and handed to every Session it
// builds.
type Deps struct {
	Provider sandbox.Provider
	Images   *sandbox.ImageResolver
	Adapters map[blocks.Architecture]adapter.Adapter
	Store    persistence.Store
	Bus      *eventbus.Bus
	Config   Config

	// WorkspacesDir is the host directory under which each session gets
	// its own bind-mounted workspace subdirectory (named by session id).
	// A bind mount, not a named volume, is required so Watch can resolve
	// a host path for fsnotify.
	WorkspacesDir string

	// OnSandboxTerminated is invoked by the health loop when it detects
	// the sandbox process has exited. The Session Manager uses this to
	// unload the session from its live map.
	OnSandboxTerminated func(sessionID string)
}

// Session is the per-conversation actor. Its in-memory state (blocks,
// subagents, workspace files, sandbox handle) is mutated only by
// sendMessage, the two watcher handlers, the periodic sync loop, the
// health loop, and destroy — all serialized against one another via mu,
// per the spec's single-actor concurrency model.
type Session struct {
	deps Deps

	id           string
	architecture blocks.Architecture
	profile      blocks.AgentProfile
	adapter      adapter.Adapter

	mu           sync.Mutex
	lifecycle    blocks.SessionLifecycle
	statusText   string
	sandboxState blocks.SandboxState
	createdAt    time.Time
	lastActivity time.Time

	sb sandbox.Sandbox

	conv               blocks.ConversationState
	rawTranscript      string
	subagentRaw        map[string]string
	workspaceFiles     map[string]blocks.WorkspaceFile
	seenSubagents      map[string]struct{}
	completedSubagents map[string]struct{}

	eventBuffer *EventBuffer

	sendMu  sync.Mutex
	sending bool

	watchHandles []sandbox.WatchHandle
	loopCancel   context.CancelFunc
	loopsWG      sync.WaitGroup
}

// New constructs a Session in the Initialized state: in-memory model
// populated (typically from persistence by the caller before or after
// New), no sandbox, loops idle. Used by the Session Manager for both
// createSession (empty loaded) and loadSession (loaded populated from
// persistence.LoadedSession).
func New(id string, architecture blocks.Architecture, profile blocks.AgentProfile, deps Deps, loaded *persistence.LoadedSession) (*Session, error) {
	ad, ok := deps.Adapters[architecture]
	if !ok {
		return nil, fmt.Errorf("agentsession: no adapter registered for architecture %q", architecture)
	}

	now := time.Now()
	s := &Session{
		deps:           deps,
		id:             id,
		architecture:   architecture,
		profile:        profile,
		adapter:        ad,
		lifecycle:      blocks.SessionInitialized,
		createdAt:      now,
		lastActivity:   now,
		subagentRaw:    make(map[string]string),
		workspaceFiles: make(map[string]blocks.WorkspaceFile),
		seenSubagents:  make(map[string]struct{}),
		eventBuffer:    NewEventBuffer(id, DefaultEventBufferSize),
	}

	if loaded != nil {
		s.statusText = loaded.Record.StatusText
		s.sandboxState = loaded.Record.Sandbox
		s.createdAt = loaded.Record.CreatedAt
		s.lastActivity = loaded.Record.LastActivity
		s.rawTranscript = loaded.RawTranscript
		for k, v := range loaded.SubagentRaw {
			s.subagentRaw[k] = v
		}
		for _, f := range loaded.WorkspaceFiles {
			if f.Content == nil {
				continue
			}
			s.workspaceFiles[f.Path] = f
		}
		parsed := ad.ParseTranscripts(s.rawTranscript, s.subagentRaw)
		s.conv.Blocks = parsed.Blocks
		s.conv.Subagents = make(map[string]blocks.SubagentState, len(parsed.Subagents))
		for subID, subBlocks := range parsed.Subagents {
			s.conv.Subagents[subID] = blocks.SubagentState{Blocks: subBlocks, RawTranscript: s.subagentRaw[subID]}
			s.seenSubagents[subID] = struct{}{}
		}
	}

	return s, nil
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// Architecture returns the session's agent family.
func (s *Session) Architecture() blocks.Architecture { return s.architecture }

// Lifecycle returns the session's current coarse state.
func (s *Session) Lifecycle() blocks.SessionLifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle
}

// LastActivity returns the last time sendMessage completed or a watcher
// event was processed — the clock the idle-GC loop reads.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touchActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Snapshot returns a copy of the in-memory conversation state, suitable
// for a transport listener's initial render.
func (s *Session) Snapshot() blocks.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := blocks.ConversationState{
		Blocks:    append([]blocks.Block(nil), s.conv.Blocks...),
		Subagents: make(map[string]blocks.SubagentState, len(s.conv.Subagents)),
	}
	for id, st := range s.conv.Subagents {
		out.Subagents[id] = blocks.SubagentState{
			Blocks:        append([]blocks.Block(nil), st.Blocks...),
			RawTranscript: st.RawTranscript,
		}
	}
	return out
}

// WorkspaceFiles returns a copy of the current workspace file set.
func (s *Session) WorkspaceFiles() []blocks.WorkspaceFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]blocks.WorkspaceFile, 0, len(s.workspaceFiles))
	for _, f := range s.workspaceFiles {
		out = append(out, f)
	}
	return out
}

// Record returns the durable view of this session's current state, for
// the Session Manager to persist.
func (s *Session) Record() blocks.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return blocks.SessionRecord{
		ID:           s.id,
		Architecture: s.architecture,
		ProfileID:    s.profile.ID,
		Lifecycle:    s.lifecycle,
		StatusText:   s.statusText,
		Sandbox:      s.sandboxState,
		CreatedAt:    s.createdAt,
		UpdatedAt:    time.Now(),
		LastActivity: s.lastActivity,
	}
}

// Events returns the session's event buffer, for a reconnecting
// transport listener's resumption protocol.
func (s *Session) Events() *EventBuffer { return s.eventBuffer }

func (s *Session) emit(topic eventbus.Topic, payload map[string]interface{}) {
	if s.deps.Bus == nil {
		return
	}
	s.deps.Bus.Emit(topic, s.id, payload)
}

func (s *Session) setStatus(lifecycle blocks.SessionLifecycle, statusText string) {
	s.mu.Lock()
	s.lifecycle = lifecycle
	s.statusText = statusText
	s.mu.Unlock()
	s.emit(eventbus.TopicSessionStatus, map[string]interface{}{"lifecycle": string(lifecycle), "statusText": statusText})
}

func (s *Session) setSandboxStatus(status blocks.SandboxStatus, message string) {
	s.mu.Lock()
	s.sandboxState.Status = status
	s.sandboxState.StatusMessage = message
	s.sandboxState.LastHealthCheck = time.Now()
	s.mu.Unlock()
	s.emit(eventbus.TopicSandboxStatus, map[string]interface{}{"status": string(status), "statusMessage": message})
}

func (s *Session) logf(format string, args ...interface{}) {
	logger.InfoContext(context.WithValue(context.Background(), logger.ContextKeySessionID, s.id), fmt.Sprintf(format, args...))
}
