package agentsession

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/persistence"
	"github.com/cabinetrun/cabinet/internal/sandbox"
)

// fakeSandbox is an in-memory sandbox.Sandbox for tests. Watch never
// actually observes filesystem changes; tests that need watcher
// callbacks invoke them directly via triggerWatch.
type fakeSandbox struct {
	mu       sync.Mutex
	id       string
	files    map[string]string
	exitCode *int
	watches  map[string]func(sandbox.WatchEvent)
	failWatch map[string]bool
	terminated bool
}

func newFakeSandbox(id string) *fakeSandbox {
	return &fakeSandbox{id: id, files: make(map[string]string), watches: make(map[string]func(sandbox.WatchEvent)), failWatch: make(map[string]bool)}
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
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for path := range f.files {
		names = append(names, path)
	}
	return names, nil
}
func (f *fakeSandbox) Watch(ctx context.Context, path string, cb func(sandbox.WatchEvent)) (sandbox.WatchHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWatch[path] {
		return nil, fmt.Errorf("fakeSandbox: watch failed for %s", path)
	}
	f.watches[path] = cb
	return fakeWatchHandle{}, nil
}
func (f *fakeSandbox) Poll(ctx context.Context) (*int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitCode, nil
}
func (f *fakeSandbox) Terminate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = true
	return nil
}

// triggerWatch invokes the callback registered for exactly root, if any,
// simulating a filesystem event.
func (f *fakeSandbox) triggerWatch(root string, ev sandbox.WatchEvent) {
	f.mu.Lock()
	cb := f.watches[root]
	f.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

type fakeWatchHandle struct{}

func (fakeWatchHandle) Stop() error { return nil }

// fakeProvider always returns a fresh fakeSandbox from Create.
type fakeProvider struct {
	createErr      error
	created        []*fakeSandbox
	failWatchPaths []string
}

func (p *fakeProvider) Name() string          { return "fake" }
func (p *fakeProvider) IsAvailable() bool     { return true }
func (p *fakeProvider) Ping(ctx context.Context) error { return nil }
func (p *fakeProvider) Close() error          { return nil }
func (p *fakeProvider) Create(ctx context.Context, cfg sandbox.CreateConfig) (sandbox.Sandbox, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	sb := newFakeSandbox("fake-" + cfg.Name)
	for _, path := range p.failWatchPaths {
		sb.failWatch[path] = true
	}
	p.created = append(p.created, sb)
	return sb, nil
}
func (p *fakeProvider) Attach(ctx context.Context, id string) (sandbox.Sandbox, error) {
	return newFakeSandbox(id), nil
}
func (p *fakeProvider) ImageExists(ctx context.Context, image string) (bool, error) { return true, nil }
func (p *fakeProvider) Pull(ctx context.Context, image string) error                { return nil }

// fakeStore is an in-memory persistence.Store.
type fakeStore struct {
	mu         sync.Mutex
	records    map[string]blocks.SessionRecord
	transcripts map[string]map[string]string // sessionID -> subagentID("" = main) -> content
	workspace   map[string]map[string]blocks.WorkspaceFile
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:     make(map[string]blocks.SessionRecord),
		transcripts: make(map[string]map[string]string),
		workspace:   make(map[string]map[string]blocks.WorkspaceFile),
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
	rec := s.records[id]
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
	return nil, false, nil
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

// fakeAdapter is a minimal Architecture Adapter for tests: a main
// transcript parses to one assistant_text block holding the whole raw
// string, each subagent transcript likewise, and ExecuteQuery is
// scripted per-test via the events/execErr fields.
type fakeAdapter struct {
	arch   blocks.Architecture
	paths  adapter.Paths
	events []blocks.StreamEvent
	execErr error

	// gate, when non-nil, is read from before ExecuteQuery returns its
	// results — used to hold a call open so tests can deterministically
	// exercise concurrent-SendMessage rejection.
	gate <-chan struct{}
}

func (a *fakeAdapter) Architecture() blocks.Architecture { return a.arch }
func (a *fakeAdapter) Paths() adapter.Paths              { return a.paths }
func (a *fakeAdapter) IdentifyTranscriptFile(f adapter.TranscriptFile) adapter.TranscriptClassification {
	if f.FileName == "main.jsonl" {
		return adapter.TranscriptClassification{IsMain: true}
	}
	if len(f.FileName) > 4 && f.FileName[:4] == "sub-" {
		return adapter.TranscriptClassification{SubagentID: f.FileName[4 : len(f.FileName)-6]}
	}
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
	if a.gate != nil {
		<-a.gate
	}
	events := make(chan blocks.StreamEvent, len(a.events))
	errs := make(chan error, 1)
	for _, ev := range a.events {
		events <- ev
	}
	close(events)
	if a.execErr != nil {
		errs <- a.execErr
	}
	close(errs)
	return events, errs
}
func (a *fakeAdapter) ParseTranscripts(main string, subagents map[string]string) adapter.ParsedTranscripts {
	out := adapter.ParsedTranscripts{Subagents: make(map[string][]blocks.Block)}
	if main != "" {
		out.Blocks = []blocks.Block{{ID: "main-block", Kind: blocks.BlockKindAssistantText, Content: main}}
	}
	for id, raw := range subagents {
		out.Subagents[id] = []blocks.Block{{ID: id + "-block", Kind: blocks.BlockKindAssistantText, Content: raw}}
	}
	return out
}

func testDeps(t *testing.T, store persistence.Store, provider sandbox.Provider, ad adapter.Adapter) Deps {
	t.Helper()
	return Deps{
		Provider:      provider,
		Images:        sandbox.NewImageResolver(map[blocks.Architecture]string{blocks.ArchitectureClaude: "cabinet/claude:latest"}, provider),
		Adapters:      map[blocks.Architecture]adapter.Adapter{blocks.ArchitectureClaude: ad},
		Store:         store,
		Config:        DefaultConfig(),
		WorkspacesDir: t.TempDir(),
	}
}
