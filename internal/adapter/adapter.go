// Package adapter defines the Architecture Adapter contract: the
// family-specific plug-in point that knows an agent binary's on-disk
// layout, how to materialize a profile into it, how to spawn a query and
// decode its native output, and how to parse its transcript format into
// the shared blocks schema. internal/adapter/claude and
// internal/adapter/opencode are the two reference implementations.
package adapter

import (
	"context"

	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/sandbox"
)

// Paths are the fixed sandbox-relative directories an Architecture uses.
type Paths struct {
	AgentStorageDir     string // where the agent binary writes transcript files
	WorkspaceDir        string
	ProfileDir          string
	MainInstructionsPath string
}

// TranscriptClassification is the result of identifying a file observed
// by the agent-storage watcher.
type TranscriptClassification struct {
	IsMain     bool
	SubagentID string // set when neither IsMain nor Unrecognized
	Unrecognized bool
}

// TranscriptFile is one file seen by the watcher, handed to
// IdentifyTranscriptFile for classification.
type TranscriptFile struct {
	FileName string
	Content  string
}

// QueryOptions carries free-form per-query tuning (model override, etc.)
// forwarded to ExecuteQuery without interpretation by the Agent Session.
type QueryOptions map[string]interface{}

// ParsedTranscripts is the result of parsing a main transcript plus its
// subagents' raw transcripts into the shared block schema.
type ParsedTranscripts struct {
	Blocks    []blocks.Block
	Subagents map[string][]blocks.Block
}

// SessionTranscripts is the raw, unparsed transcript state for one
// session: the main transcript and each subagent's raw blob keyed by id.
type SessionTranscripts struct {
	Main      string
	Subagents map[string]string
}

// Adapter is the per-architecture contract. Every method that takes a
// context may fail with an error wrapping sandbox.ErrSandboxIO when the
// underlying sandbox call fails.
type Adapter interface {
	Architecture() blocks.Architecture
	Paths() Paths

	IdentifyTranscriptFile(f TranscriptFile) TranscriptClassification

	// SetupAgentProfile materializes profile assets (main instructions,
	// subagent files, commands, skills, MCP config, and any
	// family-specific config) into the sandbox via a bulk writeFiles.
	SetupAgentProfile(ctx context.Context, sb sandbox.Sandbox, profile blocks.AgentProfile) error

	// SetupSessionTranscripts recreates raw transcripts on a fresh
	// sandbox so the agent binary can resume a loaded session.
	SetupSessionTranscripts(ctx context.Context, sb sandbox.Sandbox, sessionID string, t SessionTranscripts) error

	// ReadSessionTranscripts reads transcripts back verbatim, filtering
	// placeholder subagent files. Each family decides what a placeholder
	// is: <=1 non-empty line for claude, an export with no messages for
	// opencode.
	ReadSessionTranscripts(ctx context.Context, sb sandbox.Sandbox, sessionID string) (SessionTranscripts, error)

	// ExecuteQuery spawns the agent process for one query and returns a
	// channel of StreamEvents translated from its native output. The
	// channel is closed when the process exits; the returned error
	// channel carries at most one terminal error (e.g. AgentExecutionError).
	ExecuteQuery(ctx context.Context, sb sandbox.Sandbox, sessionID string, query string, opts QueryOptions) (<-chan blocks.StreamEvent, <-chan error)

	// ParseTranscripts is pure: same input always yields the same
	// output, with no sandbox access. Used both offline (on session
	// load) and online (on transcript-file change).
	ParseTranscripts(main string, subagents map[string]string) ParsedTranscripts
}
