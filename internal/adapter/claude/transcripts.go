package claude

import (
	"bufio"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/logger"
	"github.com/cabinetrun/cabinet/internal/sandbox"
)

func adapterLogWriteFailure(path, reason string) {
	logger.Error("claude: write failed for %s: %s", path, reason)
}

// SetupSessionTranscripts recreates raw transcripts on a fresh sandbox,
// via bulk writeFiles, so the agent binary resumes from where it left
// off rather than starting a blank session.
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
		return fmt.Errorf("claude: setup transcripts: %w", err)
	}
	for _, f := range result.Failed {
		adapterLogWriteFailure(f.Path, f.Error)
	}
	return nil
}

// ReadSessionTranscripts reads transcripts back verbatim, dropping
// subagent files that are mere placeholders (<=1 non-empty line).
func (a *Adapter) ReadSessionTranscripts(ctx context.Context, sb sandbox.Sandbox, sessionID string) (adapter.SessionTranscripts, error) {
	dir := a.Paths().AgentStorageDir
	out := adapter.SessionTranscripts{Subagents: make(map[string]string)}

	mainContent, err := sb.ReadFile(ctx, path.Join(dir, mainTranscriptFile(sessionID)))
	if err != nil {
		return out, fmt.Errorf("claude: read main transcript: %w", err)
	}
	if mainContent != nil {
		out.Main = *mainContent
	}

	names, err := sb.ListFiles(ctx, dir, subagentFilePrefix+"*"+subagentFileSuffix)
	if err != nil {
		return out, fmt.Errorf("claude: list subagent transcripts: %w", err)
	}
	for _, full := range names {
		name := path.Base(full)
		id := strings.TrimSuffix(strings.TrimPrefix(name, subagentFilePrefix), subagentFileSuffix)
		content, err := sb.ReadFile(ctx, full)
		if err != nil || content == nil {
			continue
		}
		if isPlaceholder(*content) {
			continue
		}
		out.Subagents[id] = *content
	}
	return out, nil
}

// isPlaceholder reports whether raw has at most one non-empty line, the
// spec's definition of a subagent transcript not worth surfacing yet.
func isPlaceholder(raw string) bool {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	nonEmpty := 0
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			nonEmpty++
			if nonEmpty > 1 {
				return false
			}
		}
	}
	return true
}
