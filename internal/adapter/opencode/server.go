package opencode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cabinetrun/cabinet/internal/sandbox"
)

const (
	serverStartTimeout = 30 * time.Second
	healthCheckRetries = 30
	healthCheckDelay   = time.Second
)

// serverManager tracks whether the OpenCode HTTP server has already been
// started inside a given sandbox, keyed by sandbox id, adapted from the
// teacher's per-container Server map in runtime.go. executeQuery no
// longer talks to this server over HTTP (that lived entirely in the
// teacher's bidirectional SSE executor); it only needs the server alive
// so `opencode run`/`opencode export` share one underlying session store.
type serverManager struct {
	mu      sync.Mutex
	started map[string]bool
}

func newServerManager() *serverManager {
	return &serverManager{started: make(map[string]bool)}
}

// ensureStarted launches `opencode serve` in the background the first
// time it's asked for a given sandbox, then waits for its health
// endpoint to respond before returning.
func (m *serverManager) ensureStarted(ctx context.Context, sb sandbox.Sandbox, workingDir string) error {
	m.mu.Lock()
	if m.started[sb.ID()] {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	cmd := "export XDG_CACHE_HOME=/tmp/opencode-cache && mkdir -p /tmp/opencode-cache && " +
		"nohup opencode serve --port 4096 --hostname 127.0.0.1 > /tmp/opencode.log 2>&1 &"
	exec, err := sb.Exec(ctx, []string{"sh", "-c", cmd}, sandbox.ExecOptions{WorkingDir: workingDir})
	if err != nil {
		return fmt.Errorf("opencode: start server: %w", err)
	}
	_ = exec.Close()

	if err := m.waitForHealth(ctx, sb); err != nil {
		return fmt.Errorf("opencode: server did not become healthy: %w", err)
	}

	m.mu.Lock()
	m.started[sb.ID()] = true
	m.mu.Unlock()
	return nil
}

func (m *serverManager) waitForHealth(ctx context.Context, sb sandbox.Sandbox) error {
	deadline := time.Now().Add(serverStartTimeout)
	for i := 0; i < healthCheckRetries; i++ {
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for server")
		}
		exec, err := sb.Exec(ctx, []string{"sh", "-c", "curl -sf http://127.0.0.1:4096/global/health"}, sandbox.ExecOptions{})
		if err == nil {
			_ = exec.Stdin.Close()
			if code, waitErr := exec.Wait(); waitErr == nil && code == 0 {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(healthCheckDelay):
		}
	}
	return fmt.Errorf("server did not become healthy after %d retries", healthCheckRetries)
}
