package agentsession

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/eventbus"
	"github.com/cabinetrun/cabinet/internal/metrics"
	"github.com/cabinetrun/cabinet/internal/sandbox"
)

// activate runs the Initialized -> Activating -> Ready transition
// described in the spec: sandbox creation, profile/transcript/workspace
// materialization fanned out in parallel, two recursive watchers, and the
// periodic sync + health loops, all gated behind a human-readable status
// sequence. On any failure the sandbox (if created) is torn down and the
// session reverts to Initialized.
func (s *Session) activate(ctx context.Context) error {
	s.setStatus(blocks.SessionActivating, "Preparing…")
	s.setSandboxStatus(blocks.SandboxStatusStarting, "Preparing…")

	image, err := s.deps.Images.ImageFor(s.architecture)
	if err != nil {
		return s.failActivation(ctx, nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err))
	}
	if err := s.deps.Images.EnsureImageExists(ctx, s.architecture); err != nil {
		return s.failActivation(ctx, nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err))
	}

	s.setStatus(blocks.SessionActivating, "Creating sandbox container…")
	paths := s.adapter.Paths()
	hostWorkspace := filepath.Join(s.deps.WorkspacesDir, s.id, "workspace")
	hostAgentStorage := filepath.Join(s.deps.WorkspacesDir, s.id, "agent-storage")
	for _, dir := range []string{hostWorkspace, hostAgentStorage} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return s.failActivation(ctx, nil, fmt.Errorf("%w: create host directory %s: %v", ErrSandboxUnavailable, dir, err))
		}
	}
	sb, err := s.deps.Provider.Create(ctx, sandbox.CreateConfig{
		Name:  "cabinet-session-" + s.id,
		Image: image,
		Mounts: []sandbox.Mount{
			{Type: sandbox.MountBind, Source: hostWorkspace, Target: paths.WorkspaceDir},
			{Type: sandbox.MountBind, Source: hostAgentStorage, Target: paths.AgentStorageDir},
		},
		Labels: map[string]string{"cabinet.session_id": s.id, "cabinet.architecture": string(s.architecture)},
	})
	if err != nil {
		return s.failActivation(ctx, nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err))
	}

	s.setStatus(blocks.SessionActivating, "Setting up session files…")
	if err := s.materialize(ctx, sb); err != nil {
		return s.failActivation(ctx, sb, err)
	}

	s.setStatus(blocks.SessionActivating, "Initializing file watchers…")
	watchCtx, cancel := context.WithTimeout(ctx, s.deps.Config.WatcherReadyTimeout)
	handles, err := s.startWatchers(watchCtx, sb)
	cancel()
	if err != nil {
		return s.failActivation(ctx, sb, fmt.Errorf("%w: %v", ErrWatcherStartTimeout, err))
	}

	s.mu.Lock()
	s.sb = sb
	s.watchHandles = handles
	s.sandboxState.SandboxID = sb.ID()
	s.mu.Unlock()

	loopCtx, loopCancel := context.WithCancel(context.Background())
	s.loopCancel = loopCancel
	s.loopsWG.Add(2)
	go s.syncLoop(loopCtx)
	go s.healthLoop(loopCtx)

	s.setSandboxStatus(blocks.SandboxStatusReady, "")
	s.setStatus(blocks.SessionReady, "Ready")
	metrics.IncSandboxesActive(string(s.architecture))
	return nil
}

// materialize fans out profile setup (which includes the profile's
// default workspace files) and transcript setup in parallel, as the
// spec's activation sequence requires.
func (s *Session) materialize(ctx context.Context, sb sandbox.Sandbox) error {
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.adapter.SetupAgentProfile(ctx, sb, s.profile); err != nil {
			errs <- fmt.Errorf("%w: setup agent profile: %v", ErrSandboxIOError, err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		transcripts := adapter.SessionTranscripts{Main: s.rawTranscript, Subagents: s.subagentRaw}
		if err := s.adapter.SetupSessionTranscripts(ctx, sb, s.id, transcripts); err != nil {
			errs <- fmt.Errorf("%w: setup session transcripts: %v", ErrSandboxIOError, err)
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// failActivation tears down a partially-created sandbox (best-effort) and
// reverts the session to Initialized.
func (s *Session) failActivation(ctx context.Context, sb sandbox.Sandbox, cause error) error {
	if sb != nil {
		termCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = sb.Terminate(termCtx)
		cancel()
	}
	s.setSandboxStatus(blocks.SandboxStatusTerminated, cause.Error())
	s.setStatus(blocks.SessionInitialized, "")
	s.emit(eventbus.TopicSessionError, map[string]interface{}{"error": cause.Error()})
	return cause
}
