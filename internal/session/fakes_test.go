package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/agentsession"
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/persistence"
	"github.com/cabinetrun/cabinet/internal/sandbox"
)

// fakeStore is an in-memory persistence.Store, mirroring the one built
// for internal/agentsession's test suite.
type fakeStore struct {
	mu          sync.Mutex
	records     map[string]blocks.SessionRecord
	transcripts map[string]map[string]string
	workspace   map[string]map[string]blocks.WorkspaceFile
	profiles    map[string]blocks.AgentProfile
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:     make(map[string]blocks.SessionRecord),
		transcripts: make(map[string]map[string]string),
		workspace:   make(map[string]map[string]blocks.WorkspaceFile),
		profiles:    make(map[string]blocks.AgentProfile),
	}
}

func (s *fakeStore) CreateSessionRecord(ctx context.Context, record blocks.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return nil
	}
	s.records[record.ID] = record
	return nil
}

func (s *fakeStore) UpdateSessionRecord(ctx context.Context, id string, patch persistence.SessionRecordPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("fakeStore: unknown session %s", id)
	}
	if patch.LastActivity != nil {
		rec.LastActivity = *patch.LastActivity
	}
	if patch.Lifecycle != nil {
		rec.Lifecycle = *patch.Lifecycle
	}
	if patch.StatusText != nil {
		rec.StatusText = *patch.StatusText
	}
	if patch.Sandbox != nil {
		rec.Sandbox = *patch.Sandbox
	}
	s.records[id] = rec
	return nil
}

func (s *fakeStore) LoadSession(ctx context.Context, id string) (persistence.LoadedSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return persistence.LoadedSession{}, false, nil
	}
	var files []blocks.WorkspaceFile
	for _, f := range s.workspace[id] {
		files = append(files, f)
	}
	subagents := make(map[string]string)
	for k, v := range s.transcripts[id] {
		if k != "" {
			subagents[k] = v
		}
	}
	return persistence.LoadedSession{
		Record:         rec,
		RawTranscript:  s.transcripts[id][""],
		SubagentRaw:    subagents,
		WorkspaceFiles: files,
	}, true, nil
}

func (s *fakeStore) LoadAgentProfile(ctx context.Context, ref string) (*blocks.AgentProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[ref]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (s *fakeStore) ListAllSessions(ctx context.Context) ([]blocks.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []blocks.SessionRecord
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeStore) SaveTranscript(ctx context.Context, id, subagentID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transcripts[id] == nil {
		s.transcripts[id] = make(map[string]string)
	}
	s.transcripts[id][subagentID] = content
	return nil
}

func (s *fakeStore) SaveWorkspaceFile(ctx context.Context, id string, file persistence.WorkspaceFileUpsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workspace[id] == nil {
		s.workspace[id] = make(map[string]blocks.WorkspaceFile)
	}
	s.workspace[id][file.Path] = blocks.WorkspaceFile{Path: file.Path, Content: file.Content}
	return nil
}

func (s *fakeStore) DestroySessionRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	delete(s.transcripts, id)
	delete(s.workspace, id)
	return nil
}

func (s *fakeStore) Close() error { return nil }

// fakeProvider always returns a fresh no-op sandbox.Sandbox from Create.
type fakeProvider struct {
	createErr error
}

func (p *fakeProvider) Name() string                        { return "fake" }
func (p *fakeProvider) IsAvailable() bool                    { return true }
func (p *fakeProvider) Ping(ctx context.Context) error       { return nil }
func (p *fakeProvider) Close() error                         { return nil }
func (p *fakeProvider) Create(ctx context.Context, cfg sandbox.CreateConfig) (sandbox.Sandbox, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	return &fakeSandbox{id: "fake-" + cfg.Name, files: make(map[string]string)}, nil
}
func (p *fakeProvider) Attach(ctx context.Context, id string) (sandbox.Sandbox, error) {
	return &fakeSandbox{id: id, files: make(map[string]string)}, nil
}
func (p *fakeProvider) ImageExists(ctx context.Context, image string) (bool, error) { return true, nil }
func (p *fakeProvider) Pull(ctx context.Context, image string) error                { return nil }

// fakeSandbox is a minimal in-memory sandbox.Sandbox. Watch always
// succeeds and never fires; the Session Manager's tests don't exercise
// watcher callbacks directly, that's internal/agentsession's concern.
type fakeSandbox struct {
	mu    sync.Mutex
	id    string
	files map[string]string
}

func (f *fakeSandbox) ID() string { return f.id }
func (f *fakeSandbox) BasePaths() sandbox.BasePaths {
	return sandbox.BasePaths{AppDir: "/app", WorkspaceDir: "/workspace", HomeDir: "/home/agent"}
}
func (f *fakeSandbox) Exec(ctx context.Context, argv []string, opts sandbox.ExecOptions) (*sandbox.Exec, error) {
	return nil, fmt.Errorf("fakeSandbox: Exec not supported")
}
func (f *fakeSandbox) ReadFile(ctx context.Context, path string) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[path]
	if !ok {
		return nil, nil
	}
	return &content, nil
}
func (f *fakeSandbox) WriteFile(ctx context.Context, path, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
	return nil
}
func (f *fakeSandbox) WriteFiles(ctx context.Context, files []sandbox.FileToWrite) (sandbox.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res sandbox.WriteResult
	for _, file := range files {
		f.files[file.Path] = file.Content
		res.Succeeded = append(res.Succeeded, file.Path)
	}
	return res, nil
}
func (f *fakeSandbox) CreateDirectory(ctx context.Context, path string) error { return nil }
func (f *fakeSandbox) ListFiles(ctx context.Context, dir, pattern string) ([]string, error) {
	return nil, nil
}
func (f *fakeSandbox) Watch(ctx context.Context, path string, cb func(sandbox.WatchEvent)) (sandbox.WatchHandle, error) {
	return fakeWatchHandle{}, nil
}
func (f *fakeSandbox) Poll(ctx context.Context) (*int, error) { return nil, nil }
func (f *fakeSandbox) Terminate(ctx context.Context) error    { return nil }

type fakeWatchHandle struct{}

func (fakeWatchHandle) Stop() error { return nil }

// fakeAdapter is a minimal Architecture Adapter for tests.
type fakeAdapter struct {
	arch blocks.Architecture
}

func (a *fakeAdapter) Architecture() blocks.Architecture { return a.arch }
func (a *fakeAdapter) Paths() adapter.Paths              { return adapter.Paths{} }
func (a *fakeAdapter) IdentifyTranscriptFile(f adapter.TranscriptFile) adapter.TranscriptClassification {
	return adapter.TranscriptClassification{Unrecognized: true}
}
func (a *fakeAdapter) SetupAgentProfile(ctx context.Context, sb sandbox.Sandbox, profile blocks.AgentProfile) error {
	return nil
}
func (a *fakeAdapter) SetupSessionTranscripts(ctx context.Context, sb sandbox.Sandbox, sessionID string, t adapter.SessionTranscripts) error {
	return nil
}
func (a *fakeAdapter) ReadSessionTranscripts(ctx context.Context, sb sandbox.Sandbox, sessionID string) (adapter.SessionTranscripts, error) {
	return adapter.SessionTranscripts{}, nil
}
func (a *fakeAdapter) ExecuteQuery(ctx context.Context, sb sandbox.Sandbox, sessionID string, query string, opts adapter.QueryOptions) (<-chan blocks.StreamEvent, <-chan error) {
	events := make(chan blocks.StreamEvent)
	errs := make(chan error, 1)
	close(events)
	close(errs)
	return events, errs
}
func (a *fakeAdapter) ParseTranscripts(main string, subagents map[string]string) adapter.ParsedTranscripts {
	return adapter.ParsedTranscripts{Subagents: make(map[string][]blocks.Block)}
}

func testManagerDeps(t *testing.T, store persistence.Store, provider sandbox.Provider) agentsession.Deps {
	t.Helper()
	ad := &fakeAdapter{arch: blocks.ArchitectureClaude}
	return agentsession.Deps{
		Provider:      provider,
		Images:        sandbox.NewImageResolver(map[blocks.Architecture]string{blocks.ArchitectureClaude: "cabinet/claude:latest"}, provider),
		Adapters:      map[blocks.Architecture]adapter.Adapter{blocks.ArchitectureClaude: ad},
		Store:         store,
		Config:        agentsession.DefaultConfig(),
		WorkspacesDir: t.TempDir(),
	}
}
