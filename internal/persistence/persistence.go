// Package persistence defines the pluggable storage collaborator used by
// the Session Manager and Agent Session to durably record session
// records, transcripts, and workspace files. The core session runtime
// depends only on this interface; internal/persistence/sqlite is the
// reference implementation.
package persistence

import (
	"context"
	"time"

	"github.com/cabinetrun/cabinet/internal/blocks"
)

// SessionRecordPatch merges into an existing session record. Nil fields
// are left unchanged.
type SessionRecordPatch struct {
	LastActivity   *time.Time
	Lifecycle      *blocks.SessionLifecycle
	StatusText     *string
	Sandbox        *blocks.SandboxState
	SessionOptions map[string]any
}

// WorkspaceFileUpsert is one file to persist for a session.
type WorkspaceFileUpsert struct {
	Path    string
	Content *string
}

// LoadedSession is everything persistence knows about one session: its
// record, main + subagent raw transcripts, and current workspace files.
type LoadedSession struct {
	Record         blocks.SessionRecord
	RawTranscript  string
	SubagentRaw    map[string]string
	WorkspaceFiles []blocks.WorkspaceFile
}

// Store is the persistence collaborator contract from the spec's
// external-interfaces table. Implementations must be safe for concurrent
// invocation on distinct sessionIds; the Agent Session actor model
// already serializes calls for a single session.
type Store interface {
	// CreateSessionRecord inserts a new session record. Idempotent on
	// record.ID: calling it twice with the same ID is a no-op the
	// second time.
	CreateSessionRecord(ctx context.Context, record blocks.SessionRecord) error

	// UpdateSessionRecord merges patch into the stored record for id.
	UpdateSessionRecord(ctx context.Context, id string, patch SessionRecordPatch) error

	// LoadSession returns the full persisted session state, or
	// (LoadedSession{}, false, nil) if id is unknown.
	LoadSession(ctx context.Context, id string) (LoadedSession, bool, error)

	// LoadAgentProfile returns a stored profile by reference, or
	// (nil, false, nil) if ref is unknown.
	LoadAgentProfile(ctx context.Context, ref string) (*blocks.AgentProfile, bool, error)

	// ListAllSessions returns list-view records for every known
	// session, active or not.
	ListAllSessions(ctx context.Context) ([]blocks.SessionRecord, error)

	// SaveTranscript overwrites the named transcript blob. subagentID
	// empty means the main transcript.
	SaveTranscript(ctx context.Context, id, subagentID, content string) error

	// SaveWorkspaceFile upserts a workspace file by (id, path).
	SaveWorkspaceFile(ctx context.Context, id string, file WorkspaceFileUpsert) error

	// DestroySessionRecord removes a session record and its associated
	// transcripts/workspace files. Optional per spec; callers must
	// tolerate ErrNotImplemented.
	DestroySessionRecord(ctx context.Context, id string) error

	// Close releases any underlying resources (database handles, etc).
	Close() error
}
