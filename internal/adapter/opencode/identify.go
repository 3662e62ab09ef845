package opencode

import (
	"strings"

	"github.com/cabinetrun/cabinet/internal/adapter"
)

// IdentifyTranscriptFile classifies a file observed under
// AgentStorageDir. The main session export is "<sessionId>.json";
// subtask exports are "subtask-<id>.json".
func (a *Adapter) IdentifyTranscriptFile(f adapter.TranscriptFile) adapter.TranscriptClassification {
	name := f.FileName
	switch {
	case strings.HasPrefix(name, subagentFilePrefix) && strings.HasSuffix(name, subagentFileSuffix):
		id := strings.TrimSuffix(strings.TrimPrefix(name, subagentFilePrefix), subagentFileSuffix)
		return adapter.TranscriptClassification{SubagentID: id}
	case strings.HasSuffix(name, ".json"):
		return adapter.TranscriptClassification{IsMain: true}
	default:
		return adapter.TranscriptClassification{Unrecognized: true}
	}
}
