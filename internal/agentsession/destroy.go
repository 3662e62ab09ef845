package agentsession

import (
	"context"
	"time"

	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/eventbus"
	"github.com/cabinetrun/cabinet/internal/metrics"
)

// Destroy stops the session's loops and watchers, runs one final sync so
// persistence reflects the last observed state, terminates the sandbox,
// and marks the session Destroyed. Idempotent: calling Destroy on an
// already-destroyed session is a no-op.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.lifecycle == blocks.SessionDestroyed {
		s.mu.Unlock()
		return nil
	}
	sb := s.sb
	handles := s.watchHandles
	cancel := s.loopCancel
	alreadyTerminated := s.sandboxState.Status == blocks.SandboxStatusTerminated
	s.mu.Unlock()

	for _, h := range handles {
		_ = h.Stop()
	}
	if cancel != nil {
		cancel()
	}
	s.loopsWG.Wait()

	if sb != nil {
		s.syncOnce(ctx)
		termCtx, cancelTerm := context.WithTimeout(ctx, 10*time.Second)
		_ = sb.Terminate(termCtx)
		cancelTerm()
		if !alreadyTerminated {
			metrics.DecSandboxesActive(string(s.architecture))
		}
	}

	s.mu.Lock()
	s.sb = nil
	s.watchHandles = nil
	s.lifecycle = blocks.SessionDestroyed
	s.statusText = ""
	s.sandboxState.Status = blocks.SandboxStatusTerminated
	s.mu.Unlock()

	s.emit(eventbus.TopicSessionDestroyed, map[string]interface{}{})
	return nil
}

// stopLoops cancels the sync/health loop context and stops the watch
// handles, without touching the sandbox or persisted session record. It
// is the lightweight counterpart to Destroy for the case where the
// sandbox has already exited out from under the session (detected by
// checkHealth): the health loop stops itself by returning, but nothing
// else would otherwise cancel the sync loop or close the still-open
// watch handles, since the Session Manager only unloads the session
// from its live map on this path rather than calling Destroy.
func (s *Session) stopLoops() {
	s.mu.Lock()
	handles := s.watchHandles
	s.watchHandles = nil
	cancel := s.loopCancel
	s.loopCancel = nil
	s.mu.Unlock()

	for _, h := range handles {
		_ = h.Stop()
	}
	if cancel != nil {
		cancel()
	}
}
