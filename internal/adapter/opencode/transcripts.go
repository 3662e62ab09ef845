package opencode

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/logger"
	"github.com/cabinetrun/cabinet/internal/sandbox"
)

// SetupSessionTranscripts writes each raw export document back into
// AgentStorageDir so a fresh sandbox can be seeded with a loaded
// session's prior transcripts.
func (a *Adapter) SetupSessionTranscripts(ctx context.Context, sb sandbox.Sandbox, sessionID string, t adapter.SessionTranscripts) error {
	dir := a.Paths().AgentStorageDir
	var files []sandbox.FileToWrite
	if t.Main != "" {
		files = append(files, sandbox.FileToWrite{Path: path.Join(dir, mainTranscriptFile(sessionID)), Content: t.Main})
	}
	for id, raw := range t.Subagents {
		if raw == "" {
			continue
		}
		files = append(files, sandbox.FileToWrite{Path: path.Join(dir, subagentFilePrefix+id+subagentFileSuffix), Content: raw})
	}
	if len(files) == 0 {
		return nil
	}
	result, err := sb.WriteFiles(ctx, files)
	if err != nil {
		return fmt.Errorf("opencode: setup transcripts: %w", err)
	}
	for _, f := range result.Failed {
		logger.Error("opencode: write failed for %s: %s", f.Path, f.Error)
	}
	return nil
}

// ReadSessionTranscripts runs the family's export command to regenerate
// the main session's JSON document, and reads back any subtask exports
// already materialized under AgentStorageDir, dropping placeholders.
func (a *Adapter) ReadSessionTranscripts(ctx context.Context, sb sandbox.Sandbox, sessionID string) (adapter.SessionTranscripts, error) {
	out := adapter.SessionTranscripts{Subagents: make(map[string]string)}
	dir := a.Paths().AgentStorageDir

	exported, err := a.runExport(ctx, sb, sessionID)
	if err != nil {
		return out, err
	}
	out.Main = exported

	names, err := sb.ListFiles(ctx, dir, subagentFilePrefix+"*"+subagentFileSuffix)
	if err != nil {
		return out, fmt.Errorf("opencode: list subtask exports: %w", err)
	}
	for _, full := range names {
		name := path.Base(full)
		id := strings.TrimSuffix(strings.TrimPrefix(name, subagentFilePrefix), subagentFileSuffix)
		content, err := sb.ReadFile(ctx, full)
		if err != nil || content == nil || isPlaceholder(*content) {
			continue
		}
		out.Subagents[id] = *content
	}
	return out, nil
}

// isPlaceholder treats an export document with no messages as not worth
// surfacing yet, the JSON-document analogue of the claude adapter's
// <=1-line placeholder rule.
func isPlaceholder(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return trimmed == "" || trimmed == "{}" || trimmed == `{"messages":[]}`
}

func (a *Adapter) runExport(ctx context.Context, sb sandbox.Sandbox, sessionID string) (string, error) {
	exec, err := sb.Exec(ctx, []string{a.BinaryPath, "export", "--session", sessionID, "--format", "json"}, sandbox.ExecOptions{WorkingDir: a.Paths().WorkspaceDir})
	if err != nil {
		return "", fmt.Errorf("opencode: spawn export: %w", err)
	}
	_ = exec.Stdin.Close()
	out, code, readErr := captureAll(exec)
	if readErr != nil {
		return "", readErr
	}
	if code != 0 {
		return "", nil
	}
	return out, nil
}
