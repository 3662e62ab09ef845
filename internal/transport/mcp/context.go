package mcp

import (
	"context"
	"strconv"
)

// Context keys for MCP request-scoped values.
type contextKey string

const (
	contextKeySessionID  contextKey = "cabinet-session-id"
	contextKeyDepth      contextKey = "cabinet-depth"
	contextKeyRemoteAddr contextKey = "cabinet-remote-addr"
)

// MCPContext holds Cabinet-specific context carried alongside an MCP
// request. Unlike the project-scoped transport this replaces, there is
// no ProjectID here: spec.md's flat Session Manager has no project
// concept to thread through.
type MCPContext struct {
	SessionID  string
	Depth      int
	RemoteAddr string
}

// ExtractMCPContext reads Cabinet-specific values out of an MCP request
// context.
func ExtractMCPContext(ctx context.Context) MCPContext {
	return MCPContext{
		SessionID: getStringFromContext(ctx, contextKeySessionID),
		Depth:     getIntFromContext(ctx, contextKeyDepth),
	}
}

// WithRemoteAddr adds the remote address to context.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, contextKeyRemoteAddr, addr)
}

// GetRemoteAddr extracts the remote address from context.
func GetRemoteAddr(ctx context.Context) string {
	return getStringFromContext(ctx, contextKeyRemoteAddr)
}

// WithMCPHeaders adds Cabinet-specific headers to context.
func WithMCPHeaders(ctx context.Context, sessionID string, depth int) context.Context {
	ctx = context.WithValue(ctx, contextKeySessionID, sessionID)
	ctx = context.WithValue(ctx, contextKeyDepth, strconv.Itoa(depth))
	return ctx
}

// GenerateMCPHeaders creates the header map a child session's MCP client
// carries back to the parent server.
func GenerateMCPHeaders(sessionID string, depth int) map[string]string {
	return map[string]string{
		"X-Cabinet-Session-ID": sessionID,
		"X-Cabinet-Depth":      strconv.Itoa(depth),
	}
}

func getStringFromContext(ctx context.Context, key contextKey) string {
	if val := ctx.Value(key); val != nil {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getIntFromContext(ctx context.Context, key contextKey) int {
	if val := ctx.Value(key); val != nil {
		if str, ok := val.(string); ok {
			if i, err := strconv.Atoi(str); err == nil {
				return i
			}
		}
		if i, ok := val.(int); ok {
			return i
		}
	}
	return 0
}
