// Package claude implements the Claude-family Architecture Adapter.
// executeQuery's spawn-and-decode idiom is grounded on the teacher's
// droid StreamingExecutor (internal/agent/droid/executor.go): a
// scanner-loop goroutine over a sandbox Exec's stdout feeding a channel
// of translated events. The teacher's droid adapter keeps one
// long-lived bidirectional JSON-RPC session per container; this adapter
// instead spawns one process per query per the spec's executeQuery
// contract, matching the invariant that at most one query is ever
// outstanding per session.
package claude

import (
	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
)

// Adapter implements adapter.Adapter for the Claude agent family.
type Adapter struct {
	// BinaryPath is the agent executable invoked inside the sandbox.
	BinaryPath string
}

var _ adapter.Adapter = (*Adapter)(nil)

// New constructs a Claude Adapter. binaryPath defaults to "claude" on
// the sandbox's PATH when empty.
func New(binaryPath string) *Adapter {
	if binaryPath == "" {
		binaryPath = "claude"
	}
	return &Adapter{BinaryPath: binaryPath}
}

func (a *Adapter) Architecture() blocks.Architecture { return blocks.ArchitectureClaude }

func (a *Adapter) Paths() adapter.Paths {
	return adapter.Paths{
		AgentStorageDir:      "/home/agent/.claude/projects/workspace",
		WorkspaceDir:         "/workspace",
		ProfileDir:           "/home/agent/.claude",
		MainInstructionsPath: "/home/agent/.claude/CLAUDE.md",
	}
}

// mainTranscriptFile and subagentTranscriptFile name the two known
// transcript file shapes inside AgentStorageDir, per the spec's Claude
// mapping: the main file is "<sessionId>.jsonl"; subagent files are
// "agent-<uuid>.jsonl".
func mainTranscriptFile(sessionID string) string {
	return sessionID + ".jsonl"
}

const subagentFilePrefix = "agent-"
const subagentFileSuffix = ".jsonl"
