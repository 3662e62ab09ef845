package claude

import (
	"bufio"
	"encoding/json"
	"strings"
	"time"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
)

// ParseTranscripts is pure: it never touches the sandbox, and the same
// input always produces the same output. It is used both on session
// load (offline) and from the transcript-change watcher handler
// (online). Subagent transcripts with <=1 non-empty line are dropped,
// mirroring the placeholder filter applied when transcripts are read
// back from the sandbox.
func (a *Adapter) ParseTranscripts(main string, subagents map[string]string) adapter.ParsedTranscripts {
	out := adapter.ParsedTranscripts{Subagents: make(map[string][]blocks.Block)}
	out.Blocks = parseJSONL(main)
	for id, raw := range subagents {
		if isPlaceholder(raw) {
			continue
		}
		out.Subagents[id] = parseJSONL(raw)
	}
	return out
}

// parseJSONL maps each transcript line to blocks. toolIndex records where
// each tool_use block sits, keyed by toolUseId, so a later tool_result can
// set that block's status to success or error; the result itself
// (output/isError/durationMs) is appended as its own tool_result block.
func parseJSONL(raw string) []blocks.Block {
	var out []blocks.Block
	if strings.TrimSpace(raw) == "" {
		return out
	}
	toolIndex := make(map[string]int) // toolUseId -> index into out

	scanner := bufio.NewScanner(strings.NewReader(raw))
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg map[string]interface{}
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue // tolerate non-JSON noise, never fail the parse
		}
		appendNativeMessage(&out, toolIndex, msg)
	}
	return out
}

func appendNativeMessage(out *[]blocks.Block, toolIndex map[string]int, msg map[string]interface{}) {
	msgType, _ := msg["type"].(string)
	switch msgType {
	case "user":
		appendUserMessage(out, toolIndex, msg)
	case "assistant":
		appendAssistantMessage(out, toolIndex, msg)
	case "system":
		appendSystemMessage(out, msg)
	case "result":
		appendResultMessage(out, msg)
	case "auth_status":
		appendAuthStatus(out, msg)
	case "stream_event", "tool_progress":
		// Carry no independently renderable content; deltas for these
		// arrive live via executeQuery's StreamEvents instead.
	}
}

func appendUserMessage(out *[]blocks.Block, toolIndex map[string]int, msg map[string]interface{}) {
	content, _ := msg["content"].([]interface{})
	if content == nil {
		if text, ok := msg["content"].(string); ok && text != "" {
			*out = append(*out, blocks.Block{ID: blockID(msg), Timestamp: blockTime(msg), Kind: blocks.BlockKindUserMessage, Content: text})
		}
		return
	}
	matchedResult := false
	for _, item := range content {
		part, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		partType, _ := part["type"].(string)
		if partType == "tool_result" {
			matchedResult = true
			toolUseID, _ := part["tool_use_id"].(string)
			isError, _ := part["is_error"].(bool)
			if idx, ok := toolIndex[toolUseID]; ok {
				(*out)[idx].Status = blocks.ToolStatusSuccess
				if isError {
					(*out)[idx].Status = blocks.ToolStatusError
				}
			}
			*out = append(*out, toolResultBlock(msg, toolUseID, part))
		}
	}
	if !matchedResult {
		if text := flattenText(content); text != "" {
			*out = append(*out, blocks.Block{ID: blockID(msg), Timestamp: blockTime(msg), Kind: blocks.BlockKindUserMessage, Content: text})
		}
	}
}

func appendAssistantMessage(out *[]blocks.Block, toolIndex map[string]int, msg map[string]interface{}) {
	content, _ := msg["content"].([]interface{})
	model, _ := msg["model"].(string)
	for _, item := range content {
		part, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		partType, _ := part["type"].(string)
		switch partType {
		case "text":
			text, _ := part["text"].(string)
			*out = append(*out, blocks.Block{ID: blockID(msg), Timestamp: blockTime(msg), Kind: blocks.BlockKindAssistantText, Content: text, Model: model})
		case "thinking":
			text, _ := part["thinking"].(string)
			*out = append(*out, blocks.Block{ID: blockID(msg), Timestamp: blockTime(msg), Kind: blocks.BlockKindThinking, Summary: text})
		case "tool_use":
			id, _ := part["id"].(string)
			name, _ := part["name"].(string)
			input, _ := part["input"].(map[string]interface{})
			b := blocks.Block{
				ID: blockID(msg), Timestamp: blockTime(msg), Kind: blocks.BlockKindToolUse,
				ToolName: name, ToolUseID: id, Input: input, Status: blocks.ToolStatusRunning,
			}
			*out = append(*out, b)
			toolIndex[id] = len(*out) - 1
		}
	}
}

func toolResultBlock(msg map[string]interface{}, toolUseID string, part map[string]interface{}) blocks.Block {
	isError, _ := part["is_error"].(bool)
	var output string
	switch v := part["content"].(type) {
	case string:
		output = v
	case []interface{}:
		output = flattenText(v)
	}
	return blocks.Block{
		ID: blockID(msg), Timestamp: blockTime(msg), Kind: blocks.BlockKindToolResult,
		ToolUseID: toolUseID, Output: output, IsError: isError,
	}
}

func appendSystemMessage(out *[]blocks.Block, msg map[string]interface{}) {
	subtype, _ := msg["subtype"].(string)
	var mapped blocks.SystemSubtype
	switch subtype {
	case "init":
		mapped = blocks.SystemSubtypeSessionStart
	case "hook_response":
		mapped = blocks.SystemSubtypeHookResponse
	case "status", "compact_boundary":
		mapped = blocks.SystemSubtypeStatus
	default:
		mapped = blocks.SystemSubtypeStatus
	}
	message, _ := msg["message"].(string)
	*out = append(*out, blocks.Block{
		ID: blockID(msg), Timestamp: blockTime(msg), Kind: blocks.BlockKindSystem,
		Subtype: mapped, Message: message, Metadata: msg,
	})
}

func appendResultMessage(out *[]blocks.Block, msg map[string]interface{}) {
	subtype, _ := msg["subtype"].(string)
	subsys := blocks.SystemSubtypeSessionEnd
	message := "session ended"
	if subtype != "success" {
		subsys = blocks.SystemSubtypeError
		message, _ = msg["result"].(string)
		if message == "" {
			message = "agent run failed: " + subtype
		}
	}
	*out = append(*out, blocks.Block{
		ID: blockID(msg), Timestamp: blockTime(msg), Kind: blocks.BlockKindSystem,
		Subtype: subsys, Message: message, Metadata: msg,
	})
}

func appendAuthStatus(out *[]blocks.Block, msg map[string]interface{}) {
	message, _ := msg["message"].(string)
	*out = append(*out, blocks.Block{
		ID: blockID(msg), Timestamp: blockTime(msg), Kind: blocks.BlockKindSystem,
		Subtype: blocks.SystemSubtypeAuthStatus, Message: message, Metadata: msg,
	})
}

func flattenText(content []interface{}) string {
	var sb strings.Builder
	for _, item := range content {
		part, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if partType, _ := part["type"].(string); partType == "text" {
			if text, ok := part["text"].(string); ok {
				sb.WriteString(text)
			}
		}
	}
	return sb.String()
}

func blockID(msg map[string]interface{}) string {
	if id, ok := msg["uuid"].(string); ok && id != "" {
		return id
	}
	if id, ok := msg["id"].(string); ok && id != "" {
		return id
	}
	return ""
}

func blockTime(msg map[string]interface{}) time.Time {
	if ts, ok := msg["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return t
		}
	}
	return time.Time{}
}
