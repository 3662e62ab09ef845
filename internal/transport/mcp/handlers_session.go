package mcp

import (
	"context"
	"fmt"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/agentsession"
	"github.com/cabinetrun/cabinet/internal/audit"
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/metrics"
	"github.com/cabinetrun/cabinet/internal/session"
	"github.com/cabinetrun/cabinet/internal/validation"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Session lifecycle tools. Each handler is registered with
// mcp_sdk.AddTool, which derives the JSON schema for the In/Out structs
// via reflection (github.com/google/jsonschema-go/jsonschema) instead of
// a hand-rolled generator.

// SessionCreateInput is the payload for session_create.
type SessionCreateInput struct {
	Architecture string            `json:"architecture" jsonschema:"agent architecture to run: claude or opencode"`
	ProfileRef   string            `json:"profile_ref,omitempty" jsonschema:"id of a stored agent profile to materialize into the session workspace"`
	ParentID     string            `json:"parent_id,omitempty" jsonschema:"id of the parent session, for a subagent-spawned session"`
	Labels       map[string]string `json:"labels,omitempty" jsonschema:"opaque caller metadata stored on the session record"`
}

// SessionCreateOutput is the result of session_create.
type SessionCreateOutput struct {
	SessionID string `json:"session_id"`
	Lifecycle string `json:"lifecycle"`
}

func (s *Server) handleSessionCreate(ctx context.Context, req *mcp_sdk.CallToolRequest, in SessionCreateInput) (*mcp_sdk.CallToolResult, SessionCreateOutput, error) {
	authCtx, err := requireWriteAccess(ctx)
	if err != nil {
		return nil, SessionCreateOutput{}, err
	}

	var architecture blocks.Architecture
	switch in.Architecture {
	case string(blocks.ArchitectureClaude):
		architecture = blocks.ArchitectureClaude
	case string(blocks.ArchitectureOpenCode):
		architecture = blocks.ArchitectureOpenCode
	default:
		return nil, SessionCreateOutput{}, fmt.Errorf("architecture must be %q or %q", blocks.ArchitectureClaude, blocks.ArchitectureOpenCode)
	}

	opts := session.CreateOptions{ParentID: in.ParentID, Labels: in.Labels}
	if in.ProfileRef != "" {
		if opts.Labels == nil {
			opts.Labels = map[string]string{}
		}
		opts.Labels["profileRef"] = in.ProfileRef
	}

	tokenID, tokenScope := tokenInfo(authCtx)
	sess, err := s.sessionMgr.CreateSession(ctx, architecture, opts)
	if err != nil {
		audit.LogFailure(audit.OpSessionCreate, tokenID, tokenScope, "", err)
		return nil, SessionCreateOutput{}, SanitizeError(err, "session_create")
	}

	audit.LogSuccess(audit.OpSessionCreate, tokenID, tokenScope, sess.ID())
	metrics.SetSessionsTotal(float64(len(s.mustListAll(ctx))))

	return nil, SessionCreateOutput{SessionID: sess.ID(), Lifecycle: string(sess.Lifecycle())}, nil
}

// SessionLoadInput is the payload for session_load.
type SessionLoadInput struct {
	SessionID string `json:"session_id" jsonschema:"id of a previously-created session to bring back into memory"`
}

// SessionLoadOutput summarises the live session: its id, lifecycle, block
// count and workspace file paths. It is not session_get's record/snapshot shape.
type SessionLoadOutput struct {
	SessionID string   `json:"session_id"`
	Lifecycle string   `json:"lifecycle"`
	Blocks    int      `json:"block_count"`
	Files     []string `json:"workspace_files"`
}

func (s *Server) handleSessionLoad(ctx context.Context, req *mcp_sdk.CallToolRequest, in SessionLoadInput) (*mcp_sdk.CallToolResult, SessionLoadOutput, error) {
	if err := validation.ValidateSessionID(in.SessionID); err != nil {
		return nil, SessionLoadOutput{}, err
	}
	authCtx, err := requireSessionAccess(ctx, in.SessionID)
	if err != nil {
		return nil, SessionLoadOutput{}, err
	}

	tokenID, tokenScope := tokenInfo(authCtx)
	sess, err := s.sessionMgr.LoadSession(ctx, in.SessionID)
	if err != nil {
		audit.LogFailure(audit.OpSessionLoad, tokenID, tokenScope, in.SessionID, err)
		return nil, SessionLoadOutput{}, SanitizeError(err, "session_load")
	}
	audit.LogSuccess(audit.OpSessionLoad, tokenID, tokenScope, in.SessionID)

	return nil, toLoadOutput(sess), nil
}

func toLoadOutput(sess *agentsession.Session) SessionLoadOutput {
	snap := sess.Snapshot()
	files := make([]string, 0, len(sess.WorkspaceFiles()))
	for _, f := range sess.WorkspaceFiles() {
		files = append(files, f.Path)
	}
	return SessionLoadOutput{
		SessionID: sess.ID(),
		Lifecycle: string(sess.Lifecycle()),
		Blocks:    len(snap.Blocks),
		Files:     files,
	}
}

// SessionGetInput is the payload for session_get.
type SessionGetInput struct {
	SessionID string `json:"session_id" jsonschema:"id of a live session"`
}

// SessionGetOutput is the full conversation snapshot for a session.
type SessionGetOutput struct {
	SessionID string         `json:"session_id"`
	Record    blocks.SessionRecord `json:"record"`
	Snapshot  blocks.ConversationState `json:"snapshot"`
}

func (s *Server) handleSessionGet(ctx context.Context, req *mcp_sdk.CallToolRequest, in SessionGetInput) (*mcp_sdk.CallToolResult, SessionGetOutput, error) {
	if _, err := requireSessionAccess(ctx, in.SessionID); err != nil {
		return nil, SessionGetOutput{}, err
	}

	sess, ok := s.sessionMgr.GetSession(in.SessionID)
	if !ok {
		return nil, SessionGetOutput{}, fmt.Errorf("session not loaded: %s", in.SessionID)
	}

	return nil, SessionGetOutput{SessionID: sess.ID(), Record: sess.Record(), Snapshot: sess.Snapshot()}, nil
}

// SessionListInput is the (empty) payload for session_list.
type SessionListInput struct{}

// SessionListOutput enumerates every persisted session record.
type SessionListOutput struct {
	Sessions []blocks.SessionRecord `json:"sessions"`
}

func (s *Server) handleSessionList(ctx context.Context, req *mcp_sdk.CallToolRequest, in SessionListInput) (*mcp_sdk.CallToolResult, SessionListOutput, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, SessionListOutput{}, err
	}

	records, err := s.sessionMgr.ListAllSessions(ctx)
	if err != nil {
		return nil, SessionListOutput{}, SanitizeError(err, "session_list")
	}
	return nil, SessionListOutput{Sessions: records}, nil
}

// SessionDestroyInput is the payload for session_destroy.
type SessionDestroyInput struct {
	SessionID string `json:"session_id" jsonschema:"id of the session to tear down"`
}

// SessionDestroyOutput confirms the destroy.
type SessionDestroyOutput struct {
	SessionID string `json:"session_id"`
	Destroyed bool   `json:"destroyed"`
}

func (s *Server) handleSessionDestroy(ctx context.Context, req *mcp_sdk.CallToolRequest, in SessionDestroyInput) (*mcp_sdk.CallToolResult, SessionDestroyOutput, error) {
	authCtx, err := requireSessionAccess(ctx, in.SessionID)
	if err != nil {
		return nil, SessionDestroyOutput{}, err
	}
	if !authCtx.CanWrite() {
		return nil, SessionDestroyOutput{}, fmt.Errorf("read-only access, write operations not permitted")
	}

	tokenID, tokenScope := tokenInfo(authCtx)
	if err := s.sessionMgr.DestroySession(ctx, in.SessionID); err != nil {
		audit.LogFailure(audit.OpSessionDestroy, tokenID, tokenScope, in.SessionID, err)
		return nil, SessionDestroyOutput{}, SanitizeError(err, "session_destroy")
	}
	audit.LogSuccess(audit.OpSessionDestroy, tokenID, tokenScope, in.SessionID)
	metrics.SetSessionsTotal(float64(len(s.mustListAll(ctx))))

	return nil, SessionDestroyOutput{SessionID: in.SessionID, Destroyed: true}, nil
}

// SessionSendMessageInput is the payload for session_send_message.
type SessionSendMessageInput struct {
	SessionID string         `json:"session_id" jsonschema:"id of the session to message; loaded automatically if not already live"`
	Message   string         `json:"message" jsonschema:"the user message to send to the agent"`
	Options   map[string]any `json:"options,omitempty" jsonschema:"adapter-specific query options, passed through verbatim"`
}

// SessionSendMessageOutput is the resulting conversation snapshot.
type SessionSendMessageOutput struct {
	SessionID string                   `json:"session_id"`
	Snapshot  blocks.ConversationState `json:"snapshot"`
}

func (s *Server) handleSessionSendMessage(ctx context.Context, req *mcp_sdk.CallToolRequest, in SessionSendMessageInput) (*mcp_sdk.CallToolResult, SessionSendMessageOutput, error) {
	if in.Message == "" {
		return nil, SessionSendMessageOutput{}, fmt.Errorf("message is required")
	}
	authCtx, err := requireSessionAccess(ctx, in.SessionID)
	if err != nil {
		return nil, SessionSendMessageOutput{}, err
	}
	if !authCtx.CanWrite() {
		return nil, SessionSendMessageOutput{}, fmt.Errorf("read-only access, write operations not permitted")
	}

	sess, err := s.sessionMgr.LoadSession(ctx, in.SessionID)
	if err != nil {
		return nil, SessionSendMessageOutput{}, SanitizeError(err, "session_send_message")
	}

	if err := sess.SendMessage(ctx, in.Message, adapter.QueryOptions(in.Options)); err != nil {
		return nil, SessionSendMessageOutput{}, SanitizeError(err, "session_send_message")
	}

	return nil, SessionSendMessageOutput{SessionID: sess.ID(), Snapshot: sess.Snapshot()}, nil
}

// mustListAll fetches the current session count for gauge updates,
// swallowing errors since metrics are best-effort.
func (s *Server) mustListAll(ctx context.Context) []blocks.SessionRecord {
	records, err := s.sessionMgr.ListAllSessions(ctx)
	if err != nil {
		return nil
	}
	return records
}
