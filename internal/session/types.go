// Package session implements the Session Manager: the process-wide
// registry and lifecycle governor for all live Agent Sessions. Grounded
// on the teacher's internal/session/manager.go (Manager, SessionIndex,
// SessionLockMap, RecoverStaleSessions) and internal/session/active.go's
// ActiveSessionManager (registry map + cleanupLoop ticker), merged into
// one manager over *agentsession.Session actors per spec.md §4.5 —
// spec.md's single Session Manager collapses the teacher's split between
// a persisted-session manager and a separate active-session manager.
package session

// CreateOptions carries the caller-supplied parameters for CreateSession.
type CreateOptions struct {
	// ParentID, when set, records this session as a child of another —
	// spec.md's recursion hierarchy (blocks.SessionRecord.ParentID/Depth).
	ParentID string
	// Labels are opaque caller metadata carried on the session record.
	Labels map[string]string
}
