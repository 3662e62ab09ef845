package agentsession

import (
	"context"
	"time"

	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/metrics"
)

// healthLoop polls the sandbox's exit code on Config.HealthInterval. A
// non-nil exit code means the container process is gone: the session is
// marked Terminated, the loops stop, and the Session Manager is notified
// via OnSandboxTerminated so it can unload the session. A nil exit code
// while the session isn't yet Ready is treated as "became healthy".
func (s *Session) healthLoop(ctx context.Context) {
	defer s.loopsWG.Done()

	ticker := time.NewTicker(s.deps.Config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.checkHealth(ctx) {
				return
			}
		}
	}
}

// checkHealth runs one poll, returning true if the loop should stop
// (the sandbox has exited).
func (s *Session) checkHealth(ctx context.Context) bool {
	s.mu.Lock()
	sb := s.sb
	s.mu.Unlock()
	if sb == nil {
		return false
	}

	exitCode, err := sb.Poll(ctx)
	if err != nil {
		s.logf("health poll failed for session %s: %v", s.id, err)
		return false
	}

	if exitCode != nil {
		s.setSandboxStatus(blocks.SandboxStatusTerminated, "sandbox process exited")
		s.setStatus(blocks.SessionReady, "Sandbox terminated unexpectedly")
		metrics.RecordSandboxRestart(string(s.architecture))
		metrics.DecSandboxesActive(string(s.architecture))
		// The health loop only stops itself by returning true; nothing else
		// observes the dead sandbox, so the sync loop and watch handles
		// must be torn down here rather than left for a Destroy call that
		// may never come (the Session Manager only unloads this session
		// from its live map on this path).
		s.stopLoops()
		if s.deps.OnSandboxTerminated != nil {
			s.deps.OnSandboxTerminated(s.id)
		}
		return true
	}

	s.mu.Lock()
	ready := s.sandboxState.Status == blocks.SandboxStatusReady
	s.mu.Unlock()
	if !ready {
		s.setSandboxStatus(blocks.SandboxStatusReady, "")
	}
	return false
}
