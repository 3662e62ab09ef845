// Package blocks defines the architecture-neutral conversation schema
// shared by every Architecture Adapter, Agent Session, and transport
// listener: Block, StreamEvent, and the in-memory conversation state they
// compose into. These are stable wire types — field names and enum
// string values are a client-facing contract.
package blocks

import "time"

// Architecture identifies an agent family. It selects which Adapter
// implementation an Agent Session is built around.
type Architecture string

const (
	ArchitectureClaude   Architecture = "claude"
	ArchitectureOpenCode Architecture = "opencode"
)

// ToolStatus is the lifecycle of a tool_use or subagent block.
type ToolStatus string

const (
	ToolStatusPending ToolStatus = "pending"
	ToolStatusRunning ToolStatus = "running"
	ToolStatusSuccess ToolStatus = "success"
	ToolStatusError   ToolStatus = "error"
)

// SystemSubtype enumerates the kinds of system block.
type SystemSubtype string

const (
	SystemSubtypeSessionStart  SystemSubtype = "session_start"
	SystemSubtypeSessionEnd    SystemSubtype = "session_end"
	SystemSubtypeError         SystemSubtype = "error"
	SystemSubtypeStatus        SystemSubtype = "status"
	SystemSubtypeHookResponse  SystemSubtype = "hook_response"
	SystemSubtypeAuthStatus    SystemSubtype = "auth_status"
)

// BlockKind discriminates the Block tagged union.
type BlockKind string

const (
	BlockKindUserMessage  BlockKind = "user_message"
	BlockKindAssistantText BlockKind = "assistant_text"
	BlockKindToolUse      BlockKind = "tool_use"
	BlockKindToolResult   BlockKind = "tool_result"
	BlockKindThinking     BlockKind = "thinking"
	BlockKindSystem       BlockKind = "system"
	BlockKindSubagent     BlockKind = "subagent"
)

// Block is a single unit of conversation content rendered by clients.
// Exactly one of the Kind-selected fields below is meaningful for a
// given Block; the others are zero-valued and omitted from the wire
// form by their omitempty tags. Clients switch on Kind to know which
// fields to read.
type Block struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      BlockKind `json:"kind"`

	// user_message
	Content string `json:"content,omitempty"`

	// assistant_text (Content reused; Model optional)
	Model string `json:"model,omitempty"`

	// tool_use
	ToolName    string         `json:"toolName,omitempty"`
	ToolUseID   string         `json:"toolUseId,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Status      ToolStatus     `json:"status,omitempty"`
	DisplayName string         `json:"displayName,omitempty"`
	Description string         `json:"description,omitempty"`

	// tool_result
	Output     string `json:"output,omitempty"`
	IsError    bool   `json:"isError,omitempty"`
	DurationMs *int   `json:"durationMs,omitempty"`

	// thinking
	Summary string `json:"summary,omitempty"`

	// system
	Subtype  SystemSubtype  `json:"subtype,omitempty"`
	Message  string         `json:"message,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// subagent
	SubagentID string `json:"subagentId,omitempty"`
	Name       string `json:"name,omitempty"`
}

// StreamEventKind discriminates the StreamEvent tagged union.
type StreamEventKind string

const (
	StreamEventBlockStart     StreamEventKind = "block_start"
	StreamEventTextDelta      StreamEventKind = "text_delta"
	StreamEventBlockUpdate    StreamEventKind = "block_update"
	StreamEventBlockComplete  StreamEventKind = "block_complete"
	StreamEventMetadataUpdate StreamEventKind = "metadata_update"
)

// MainConversationID is the well-known conversationId for the primary
// (non-subagent) conversation stream.
const MainConversationID = "main"

// StreamEvent is the adapter-neutral delta emitted while an agent turn
// is being produced. conversationId is either MainConversationID or a
// subagent id.
type StreamEvent struct {
	Kind           StreamEventKind `json:"kind"`
	ConversationID string          `json:"conversationId"`

	// block_start / block_complete
	Block *Block `json:"block,omitempty"`

	// text_delta / block_update
	BlockID string         `json:"blockId,omitempty"`
	Delta   string         `json:"delta,omitempty"`
	Updates map[string]any `json:"updates,omitempty"`

	// metadata_update
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SubagentState is the tracked state of a child conversation spawned by
// the main agent.
type SubagentState struct {
	Blocks        []Block `json:"blocks"`
	RawTranscript string  `json:"rawTranscript"`
}

// SandboxStatus is the lifecycle of a session's sandbox handle.
type SandboxStatus string

const (
	SandboxStatusStarting   SandboxStatus = "starting"
	SandboxStatusReady      SandboxStatus = "ready"
	SandboxStatusTerminated SandboxStatus = "terminated"
)

// SandboxState tracks the session's sandbox lifecycle as surfaced to
// clients via sandbox:status events.
type SandboxState struct {
	SandboxID       string        `json:"sandboxId"`
	Status          SandboxStatus `json:"status"`
	StatusMessage   string        `json:"statusMessage,omitempty"`
	RestartCount    int           `json:"restartCount"`
	LastHealthCheck time.Time     `json:"lastHealthCheck"`
}

// WorkspaceFile is a single file in the session's workspace as surfaced
// to clients. Binary or >1 MiB files are represented with Content == nil
// and are not persisted.
type WorkspaceFile struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
}
