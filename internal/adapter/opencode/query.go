package opencode

import (
	"context"
	"fmt"
	"io"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/logger"
	"github.com/cabinetrun/cabinet/internal/sandbox"
)

// ExecuteQuery ensures the OpenCode server is running, runs the query
// non-interactively via `opencode run`, and translates its freshly
// exported session document into StreamEvents. Unlike the claude
// adapter's incremental line-by-line translation, OpenCode only offers a
// whole-document export, so one query produces a block_start+
// block_complete pair per block found in the post-query export, in
// document order — there is no true mid-turn delta here, matching the
// spec's note that OpenCode's `export` is the only transcript source.
func (a *Adapter) ExecuteQuery(ctx context.Context, sb sandbox.Sandbox, sessionID string, query string, opts adapter.QueryOptions) (<-chan blocks.StreamEvent, <-chan error) {
	events := make(chan blocks.StreamEvent, 64)
	errs := make(chan error, 1)

	go a.runQuery(ctx, sb, sessionID, query, opts, events, errs)
	return events, errs
}

func (a *Adapter) runQuery(ctx context.Context, sb sandbox.Sandbox, sessionID, query string, opts adapter.QueryOptions, events chan<- blocks.StreamEvent, errs chan<- error) {
	defer close(events)
	defer close(errs)

	if err := a.servers.ensureStarted(ctx, sb, a.Paths().WorkspaceDir); err != nil {
		errs <- err
		return
	}

	argv := []string{a.BinaryPath, "run", "--session", sessionID, query}
	if model, ok := opts["model"].(string); ok && model != "" {
		argv = append(argv, "--model", model)
	}

	exec, err := sb.Exec(ctx, argv, sandbox.ExecOptions{WorkingDir: a.Paths().WorkspaceDir})
	if err != nil {
		errs <- fmt.Errorf("opencode: spawn query: %w", err)
		return
	}
	_ = exec.Stdin.Close()

	stderrDone := make(chan struct{})
	var stderrBuf []byte
	go func() {
		defer close(stderrDone)
		stderrBuf, _ = io.ReadAll(exec.Stderr)
	}()

	out, code, readErr := captureAll(exec)
	<-stderrDone
	_ = out // the run command's own stdout is log noise; the export is authoritative

	if readErr != nil {
		errs <- fmt.Errorf("opencode: query process: %w", readErr)
		return
	}

	exported, err := a.runExport(ctx, sb, sessionID)
	if err != nil {
		logger.Error("opencode: export after query failed for session %s: %v", sessionID, err)
	}

	sawOutput := exported != ""
	if code != 0 && !sawOutput && len(stderrBuf) > 0 {
		errs <- fmt.Errorf("%w: %s", adapter.ErrAgentExecution, string(stderrBuf))
		return
	}

	for _, b := range parseExportDoc(exported) {
		block := b
		events <- blocks.StreamEvent{Kind: blocks.StreamEventBlockStart, ConversationID: blocks.MainConversationID, Block: &block}
		events <- blocks.StreamEvent{Kind: blocks.StreamEventBlockComplete, ConversationID: blocks.MainConversationID, Block: &block}
	}
}
