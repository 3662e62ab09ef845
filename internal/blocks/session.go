package blocks

import "time"

// SessionLifecycle is the coarse state machine of an Agent Session.
type SessionLifecycle string

const (
	SessionInitialized SessionLifecycle = "initialized"
	SessionActivating  SessionLifecycle = "activating"
	SessionReady       SessionLifecycle = "ready"
	SessionDestroyed   SessionLifecycle = "destroyed"
)

// SessionRecord is the durable, persistence-facing view of a session: the
// subset of state that survives process restarts. The in-memory actor
// (internal/agentsession) wraps a SessionRecord with live sandbox handles,
// subscribers, and the conversation blocks themselves.
type SessionRecord struct {
	ID           string            `json:"id"`
	ParentID     string            `json:"parentId,omitempty"`
	Depth        int               `json:"depth"`
	Architecture Architecture      `json:"architecture"`
	ProfileID    string            `json:"profileId"`
	Lifecycle    SessionLifecycle  `json:"lifecycle"`
	StatusText   string            `json:"statusText,omitempty"`
	Sandbox      SandboxState      `json:"sandbox"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	LastActivity time.Time         `json:"lastActivity"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// ConversationState is the full in-memory conversation held by an Agent
// Session: the main block list plus any discovered subagent conversations,
// keyed by subagent id.
type ConversationState struct {
	Blocks    []Block                  `json:"blocks"`
	Subagents map[string]SubagentState `json:"subagents,omitempty"`
}
