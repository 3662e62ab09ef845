package claude

import (
	"context"
	"fmt"
	"io"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/logger"
	"github.com/cabinetrun/cabinet/internal/sandbox"
	"github.com/cabinetrun/cabinet/internal/stream"
)

// ExecuteQuery spawns the claude binary for one query and decodes its
// stdout as the same line-delimited JSON transcript format parsed by
// ParseTranscripts, translating each native message into StreamEvents on
// the fly. Unlike the teacher's droid executor, which kept one
// bidirectional JSON-RPC process alive per container, this spawns a
// fresh process per query: the spec's executeQuery contract is a lazy,
// one-shot stream, not a persistent session.
func (a *Adapter) ExecuteQuery(ctx context.Context, sb sandbox.Sandbox, sessionID string, query string, opts adapter.QueryOptions) (<-chan blocks.StreamEvent, <-chan error) {
	events := make(chan blocks.StreamEvent, 64)
	errs := make(chan error, 1)

	go a.runQuery(ctx, sb, sessionID, query, opts, events, errs)
	return events, errs
}

func (a *Adapter) runQuery(ctx context.Context, sb sandbox.Sandbox, sessionID, query string, opts adapter.QueryOptions, events chan<- blocks.StreamEvent, errs chan<- error) {
	defer close(events)
	defer close(errs)

	argv := []string{a.BinaryPath, "--session-id", sessionID, "--output-format", "stream-json", "--print", query}
	if model, ok := opts["model"].(string); ok && model != "" {
		argv = append(argv, "--model", model)
	}

	exec, err := sb.Exec(ctx, argv, sandbox.ExecOptions{WorkingDir: a.Paths().WorkspaceDir})
	if err != nil {
		errs <- fmt.Errorf("claude: spawn query: %w", err)
		return
	}
	_ = exec.Stdin.Close()

	var stderrBuf []byte
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		stderrBuf, _ = io.ReadAll(exec.Stderr)
	}()

	sawOutput := false
	decodeErr := stream.Decode(ctx, exec.Stdout, func(raw stream.Raw) error {
		if !raw.IsJSON() {
			return nil
		}
		sawOutput = true
		translateNativeMessage(raw.Value, events)
		return nil
	})

	<-stderrDone
	code, waitErr := exec.Wait()

	if decodeErr != nil && ctx.Err() == nil {
		logger.Error("claude: decode error for session %s: %v", sessionID, decodeErr)
	}
	if waitErr != nil && ctx.Err() == nil {
		errs <- fmt.Errorf("claude: query process: %w", waitErr)
		return
	}
	if code != 0 && !sawOutput && len(stderrBuf) > 0 {
		errs <- fmt.Errorf("%w: %s", adapter.ErrAgentExecution, string(stderrBuf))
	}
}

// translateNativeMessage converts one decoded transcript-format message
// into zero or more StreamEvents, reusing the same block shapes produced
// by ParseTranscripts. Each message is translated on its own: a tool_use
// block keeps the running status it was emitted with, and its later
// tool_result arrives as a separate tool_result block, whereas an
// offline parse also sets the tool_use block's status from that result.
func translateNativeMessage(msg map[string]interface{}, events chan<- blocks.StreamEvent) {
	var scratch []blocks.Block
	appendNativeMessage(&scratch, make(map[string]int), msg)
	for i := range scratch {
		b := scratch[i]
		events <- blocks.StreamEvent{Kind: blocks.StreamEventBlockStart, ConversationID: blocks.MainConversationID, Block: &b}
		events <- blocks.StreamEvent{Kind: blocks.StreamEventBlockComplete, ConversationID: blocks.MainConversationID, Block: &b}
	}

	if msgType, _ := msg["type"].(string); msgType == "result" {
		if usage, ok := msg["usage"].(map[string]interface{}); ok {
			events <- blocks.StreamEvent{Kind: blocks.StreamEventMetadataUpdate, ConversationID: blocks.MainConversationID, Metadata: map[string]interface{}{"usage": usage}}
		}
	}
}
