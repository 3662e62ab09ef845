package claude

import (
	"strings"

	"github.com/cabinetrun/cabinet/internal/adapter"
)

// IdentifyTranscriptFile classifies a file observed under AgentStorageDir.
// The main transcript is named "<sessionId>.jsonl"; subagent transcripts
// are "agent-<uuid>.jsonl". The session id is not compared: any other
// ".jsonl" name is classified as the main transcript.
func (a *Adapter) IdentifyTranscriptFile(f adapter.TranscriptFile) adapter.TranscriptClassification {
	name := f.FileName
	switch {
	case strings.HasSuffix(name, subagentFileSuffix) && strings.HasPrefix(name, subagentFilePrefix):
		id := strings.TrimSuffix(strings.TrimPrefix(name, subagentFilePrefix), subagentFileSuffix)
		return adapter.TranscriptClassification{SubagentID: id}
	case strings.HasSuffix(name, ".jsonl"):
		return adapter.TranscriptClassification{IsMain: true}
	default:
		return adapter.TranscriptClassification{Unrecognized: true}
	}
}
