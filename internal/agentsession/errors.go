package agentsession

import "errors"

// Sentinel error kinds per the session runtime's error-handling design:
// each path that can fail surfaces one of these, wrapped with context via
// fmt.Errorf("...: %w", Err...), mirroring the teacher's
// internal/auth (ErrTokenNotFound, ErrTokenExpired, ...) idiom of
// package-level sentinels rather than a custom error type hierarchy.
var (
	// ErrNotFound is returned when a session or profile reference is
	// unknown to persistence.
	ErrNotFound = errors.New("agentsession: not found")

	// ErrBusy is returned when sendMessage is called while another
	// sendMessage is already in flight for the same session.
	ErrBusy = errors.New("agentsession: busy")

	// ErrSandboxUnavailable marks a failed sandbox creation. The
	// session remains Initialized and the call is retryable.
	ErrSandboxUnavailable = errors.New("agentsession: sandbox unavailable")

	// ErrSandboxIOError marks a readFile/writeFile/exec failure against
	// an otherwise-healthy sandbox.
	ErrSandboxIOError = errors.New("agentsession: sandbox io error")

	// ErrWatcherStartTimeout marks activation failing to observe both
	// watchers running within the configured timeout.
	ErrWatcherStartTimeout = errors.New("agentsession: watcher start timeout")

	// ErrAgentExecution marks the agent subprocess failing with no
	// output (re-exported from adapter.ErrAgentExecution's wrapping
	// point of view; sendMessage callers match on this one).
	ErrAgentExecution = errors.New("agentsession: agent execution failed")

	// ErrParse marks a malformed native transcript or stream record.
	// Non-fatal: the offending record is dropped.
	ErrParse = errors.New("agentsession: parse error")

	// ErrPersistence marks a persistence call failing. Non-fatal: state
	// remains in memory and the next periodic sync retries.
	ErrPersistence = errors.New("agentsession: persistence error")

	// ErrInterrupted marks caller-initiated cancellation propagating
	// out of a suspending call. Not logged as an error.
	ErrInterrupted = errors.New("agentsession: interrupted")
)
