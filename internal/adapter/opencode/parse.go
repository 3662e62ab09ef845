package opencode

import (
	"encoding/json"
	"time"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
)

// exportDoc is the shape of one `opencode export --format json` document:
// a flat list of messages, each carrying an ordered parts[] list. Both
// fields tolerate unknown sibling keys since json.Unmarshal ignores them.
type exportDoc struct {
	Messages []exportMessage `json:"messages"`
}

type exportMessage struct {
	ID    string       `json:"id"`
	Role  string       `json:"role"`
	Model string       `json:"model"`
	Parts []exportPart `json:"parts"`
}

type exportPart struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text"`
	ToolName  string                 `json:"tool"`
	CallID    string                 `json:"callID"`
	Input     map[string]interface{} `json:"input"`
	State     *exportToolState       `json:"state"`
	SubtaskID string                 `json:"subtaskID"`
	AgentName string                 `json:"agent"`
	Message   string                 `json:"message"`
}

type exportToolState struct {
	Status     string `json:"status"`
	Output     string `json:"output"`
	DurationMs *int   `json:"durationMs"`
}

// ParseTranscripts is pure. main and each subagents[id] are
// `opencode export` JSON documents per the adapter's ReadSessionTranscripts
// / SetupSessionTranscripts round-trip. Malformed documents parse to no
// blocks rather than failing, matching the claude adapter's tolerance of
// malformed input.
func (a *Adapter) ParseTranscripts(main string, subagents map[string]string) adapter.ParsedTranscripts {
	out := adapter.ParsedTranscripts{Subagents: make(map[string][]blocks.Block)}
	out.Blocks = parseExportDoc(main)
	for id, raw := range subagents {
		if isPlaceholder(raw) {
			continue
		}
		out.Subagents[id] = parseExportDoc(raw)
	}
	return out
}

func parseExportDoc(raw string) []blocks.Block {
	var doc exportDoc
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil
	}

	var out []blocks.Block
	for _, msg := range doc.Messages {
		for _, part := range msg.Parts {
			out = append(out, translatePart(msg, part)...)
		}
	}
	return out
}

// translatePart maps one OpenCode part to zero or more Blocks, per the
// spec's OpenCode-family mapping: text -> assistant_text, reasoning ->
// thinking, tool -> tool_use (+ tool_result once its state settles),
// subtask/agent -> subagent, step-start/step-finish -> system, retry ->
// system(error); file/snapshot/patch/compaction are never surfaced.
func translatePart(msg exportMessage, part exportPart) []blocks.Block {
	base := blocks.Block{ID: msg.ID, Timestamp: time.Time{}}
	switch part.Type {
	case "text":
		base.Kind = blocks.BlockKindAssistantText
		base.Content = part.Text
		base.Model = msg.Model
		return []blocks.Block{base}
	case "reasoning":
		base.Kind = blocks.BlockKindThinking
		base.Summary = part.Text
		return []blocks.Block{base}
	case "tool":
		base.Kind = blocks.BlockKindToolUse
		base.ToolName = part.ToolName
		base.ToolUseID = part.CallID
		base.Input = part.Input
		base.Status = toolStatus(part.State)
		out := []blocks.Block{base}
		if part.State != nil && (part.State.Status == "completed" || part.State.Status == "error") {
			out = append(out, blocks.Block{
				ID: msg.ID, Kind: blocks.BlockKindToolResult, ToolUseID: part.CallID,
				Output: part.State.Output, IsError: part.State.Status == "error", DurationMs: part.State.DurationMs,
			})
		}
		return out
	case "subtask", "agent":
		base.Kind = blocks.BlockKindSubagent
		base.SubagentID = part.SubtaskID
		base.Name = part.AgentName
		base.Input = part.Input
		base.Status = toolStatus(part.State)
		return []blocks.Block{base}
	case "step-start", "step-finish":
		base.Kind = blocks.BlockKindSystem
		base.Subtype = blocks.SystemSubtypeStatus
		base.Message = part.Type
		return []blocks.Block{base}
	case "retry":
		base.Kind = blocks.BlockKindSystem
		base.Subtype = blocks.SystemSubtypeError
		base.Message = part.Message
		return []blocks.Block{base}
	default: // file, snapshot, patch, compaction, and anything unrecognized
		return nil
	}
}

func toolStatus(state *exportToolState) blocks.ToolStatus {
	if state == nil {
		return blocks.ToolStatusPending
	}
	switch state.Status {
	case "completed":
		return blocks.ToolStatusSuccess
	case "error":
		return blocks.ToolStatusError
	case "running":
		return blocks.ToolStatusRunning
	default:
		return blocks.ToolStatusPending
	}
}
