package agentsession

import (
	"context"
	"time"

	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/metrics"
	"github.com/cabinetrun/cabinet/internal/persistence"
	"github.com/cabinetrun/cabinet/internal/sandbox"
)

// syncLoop periodically reconciles in-memory state against the sandbox,
// a safety net against missed or coalesced watcher events. It re-reads
// every transcript and the full workspace file listing, re-parses, and
// persists, on Config.SyncInterval.
func (s *Session) syncLoop(ctx context.Context) {
	defer s.loopsWG.Done()

	ticker := time.NewTicker(s.deps.Config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

func (s *Session) syncOnce(ctx context.Context) {
	s.mu.Lock()
	sb := s.sb
	s.mu.Unlock()
	if sb == nil {
		return
	}

	s.syncTranscripts(ctx, sb)
	s.syncWorkspaceFiles(ctx, sb)

	result := "ok"
	if err := s.deps.Store.UpdateSessionRecord(ctx, s.id, s.recordPatch()); err != nil {
		s.logf("periodic sync: persist session record for %s: %v", s.id, err)
		result = "error"
	}
	metrics.RecordSyncRun(result)
}

func (s *Session) syncTranscripts(ctx context.Context, sb sandbox.Sandbox) {
	transcripts, err := s.adapter.ReadSessionTranscripts(ctx, sb, s.id)
	if err != nil {
		s.logf("periodic sync: read transcripts for %s: %v", s.id, err)
		return
	}

	s.mu.Lock()
	s.rawTranscript = transcripts.Main
	for subID, raw := range transcripts.Subagents {
		s.subagentRaw[subID] = raw
		s.seenSubagents[subID] = struct{}{}
	}
	subagentRaw := copyStringMap(s.subagentRaw)
	s.mu.Unlock()

	parsed := s.adapter.ParseTranscripts(transcripts.Main, subagentRaw)
	s.applyParsedTranscripts(parsed)

	if err := s.deps.Store.SaveTranscript(ctx, s.id, "", transcripts.Main); err != nil {
		s.logf("periodic sync: persist main transcript for %s: %v", s.id, err)
	}
	for subID, raw := range transcripts.Subagents {
		if err := s.deps.Store.SaveTranscript(ctx, s.id, subID, raw); err != nil {
			s.logf("periodic sync: persist subagent %s transcript for %s: %v", subID, s.id, err)
		}
	}
}

// syncWorkspaceFiles lists every file under the workspace directory and
// refreshes its in-memory content, dropping entries for files no longer
// present on disk.
func (s *Session) syncWorkspaceFiles(ctx context.Context, sb sandbox.Sandbox) {
	paths := s.adapter.Paths()
	names, err := sb.ListFiles(ctx, paths.WorkspaceDir, "")
	if err != nil {
		s.logf("periodic sync: list workspace files for %s: %v", s.id, err)
		return
	}

	current := make(map[string]struct{}, len(names))
	for _, name := range names {
		current[name] = struct{}{}
		content, err := sb.ReadFile(ctx, name)
		if err != nil {
			s.logf("periodic sync: read workspace file %s for %s: %v", name, s.id, err)
			continue
		}
		file := blocks.WorkspaceFile{Path: name, Content: content}
		s.mu.Lock()
		s.workspaceFiles[name] = file
		s.mu.Unlock()
		if content != nil {
			if err := s.deps.Store.SaveWorkspaceFile(ctx, s.id, workspaceUpsert(file)); err != nil {
				s.logf("periodic sync: persist workspace file %s for %s: %v", name, s.id, err)
			}
		}
	}

	s.mu.Lock()
	for path := range s.workspaceFiles {
		if _, ok := current[path]; !ok {
			delete(s.workspaceFiles, path)
		}
	}
	s.mu.Unlock()
}

func (s *Session) recordPatch() persistence.SessionRecordPatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	lastActivity := s.lastActivity
	lifecycle := s.lifecycle
	statusText := s.statusText
	sandboxState := s.sandboxState
	return persistence.SessionRecordPatch{
		LastActivity: &lastActivity,
		Lifecycle:    &lifecycle,
		StatusText:   &statusText,
		Sandbox:      &sandboxState,
	}
}
