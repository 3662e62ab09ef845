// Package opencode implements the OpenCode-family Architecture Adapter.
// It is grounded closely on the teacher's internal/agent/opencode
// package: the long-lived per-container server (nohup + curl health
// check) from server.go is kept as serverManager for ExecuteQuery, while
// ParseTranscripts is new — the teacher never parsed OpenCode's export
// JSON into the shared blocks schema, since it only streamed live SSE
// events. The part-type taxonomy here is extended past the teacher's
// events.go constants (text, tool-invocation, tool-result, file,
// compaction, subtask) to match the spec's full OpenCode part-type
// mapping (reasoning, snapshot, patch, agent, retry, step-start,
// step-finish).
package opencode

import (
	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
)

// Adapter implements adapter.Adapter for the OpenCode agent family.
type Adapter struct {
	BinaryPath string
	servers    *serverManager
}

var _ adapter.Adapter = (*Adapter)(nil)

// New constructs an OpenCode Adapter. binaryPath defaults to "opencode".
func New(binaryPath string) *Adapter {
	if binaryPath == "" {
		binaryPath = "opencode"
	}
	return &Adapter{BinaryPath: binaryPath, servers: newServerManager()}
}

func (a *Adapter) Architecture() blocks.Architecture { return blocks.ArchitectureOpenCode }

func (a *Adapter) Paths() adapter.Paths {
	return adapter.Paths{
		AgentStorageDir:      "/home/agent/.local/share/opencode/storage",
		WorkspaceDir:         "/workspace",
		ProfileDir:           "/home/agent/.config/opencode",
		MainInstructionsPath: "/home/agent/.config/opencode/AGENTS.md",
	}
}

func mainTranscriptFile(sessionID string) string {
	return sessionID + ".json"
}

const subagentFilePrefix = "subtask-"
const subagentFileSuffix = ".json"
