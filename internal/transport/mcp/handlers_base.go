package mcp

import (
	"context"
	"fmt"

	"github.com/cabinetrun/cabinet/internal/auth"
)

// requireAuth extracts the auth context and errors if it is missing.
func requireAuth(ctx context.Context) (*auth.AuthContext, error) {
	authCtx := auth.FromContext(ctx)
	if authCtx == nil {
		return nil, fmt.Errorf("authentication required")
	}
	return authCtx, nil
}

// requireSessionAccess checks that the auth context can access sessionID,
// the flat-session equivalent of the old requireProjectAccess.
func requireSessionAccess(ctx context.Context, sessionID string) (*auth.AuthContext, error) {
	authCtx, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if !authCtx.CanAccessSession(sessionID) {
		return nil, fmt.Errorf("not authorized to access session %s", sessionID)
	}
	return authCtx, nil
}

// requireWriteAccess checks if the auth context can perform write operations.
func requireWriteAccess(ctx context.Context) (*auth.AuthContext, error) {
	authCtx, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if !authCtx.CanWrite() {
		return nil, fmt.Errorf("read-only access, write operations not permitted")
	}
	return authCtx, nil
}

// requireAdmin checks if the auth context has admin scope.
func requireAdmin(ctx context.Context) (*auth.AuthContext, error) {
	authCtx, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if !authCtx.IsAdmin() {
		return nil, fmt.Errorf("admin access required")
	}
	return authCtx, nil
}

// tokenInfo extracts the caller's token id and scope for audit logging,
// tolerating an anonymous/nil auth context.
func tokenInfo(authCtx *auth.AuthContext) (tokenID, scope string) {
	if authCtx == nil || authCtx.Token == nil {
		return "", ""
	}
	return authCtx.Token.ID, authCtx.Token.Scope
}
