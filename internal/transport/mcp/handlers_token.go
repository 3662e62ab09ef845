package mcp

import (
	"context"
	"fmt"

	"github.com/cabinetrun/cabinet/internal/audit"
	"github.com/cabinetrun/cabinet/internal/auth"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Token management tools, admin-only.

// TokenCreateInput is the payload for token_create.
type TokenCreateInput struct {
	Name  string `json:"name" jsonschema:"human-readable label for the token"`
	Scope string `json:"scope" jsonschema:"admin, admin:ro, or session:<session_id>[:ro]"`
}

// TokenCreateOutput returns the newly minted token. The raw secret is
// only ever returned here; it cannot be retrieved again.
type TokenCreateOutput struct {
	TokenID string `json:"token_id"`
	Secret  string `json:"secret"`
	Name    string `json:"name"`
	Scope   string `json:"scope"`
}

func (s *Server) handleTokenCreate(ctx context.Context, req *mcp_sdk.CallToolRequest, in TokenCreateInput) (*mcp_sdk.CallToolResult, TokenCreateOutput, error) {
	authCtx, err := requireAdmin(ctx)
	if err != nil {
		return nil, TokenCreateOutput{}, err
	}
	if in.Name == "" {
		return nil, TokenCreateOutput{}, fmt.Errorf("name is required")
	}
	if !isValidScope(in.Scope) {
		return nil, TokenCreateOutput{}, fmt.Errorf("invalid scope %q: must be admin, admin:ro, or session:<id>[:ro]", in.Scope)
	}

	callerID, callerScope := tokenInfo(authCtx)
	token, secret, err := s.authStore.CreateToken(in.Name, in.Scope, nil)
	if err != nil {
		audit.LogFailure(audit.OpTokenCreate, callerID, callerScope, "", err)
		return nil, TokenCreateOutput{}, fmt.Errorf("failed to create token: %w", err)
	}

	audit.Log(&audit.Event{
		Operation:  audit.OpTokenCreate,
		TokenID:    callerID,
		TokenScope: callerScope,
		Success:    true,
		Details:    map[string]interface{}{"new_token_name": in.Name, "new_token_scope": in.Scope},
	})

	return nil, TokenCreateOutput{TokenID: token.ID, Secret: secret, Name: token.Name, Scope: token.Scope}, nil
}

// TokenListInput is the (empty) payload for token_list.
type TokenListInput struct{}

// TokenInfo is the redacted view of a token returned by token_list.
type TokenInfo struct {
	TokenID    string `json:"token_id"`
	Name       string `json:"name"`
	Scope      string `json:"scope"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at,omitempty"`
}

// TokenListOutput enumerates every issued token.
type TokenListOutput struct {
	Tokens []TokenInfo `json:"tokens"`
}

func (s *Server) handleTokenList(ctx context.Context, req *mcp_sdk.CallToolRequest, in TokenListInput) (*mcp_sdk.CallToolResult, TokenListOutput, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, TokenListOutput{}, err
	}

	tokens, err := s.authStore.ListTokens()
	if err != nil {
		return nil, TokenListOutput{}, fmt.Errorf("failed to list tokens: %w", err)
	}

	out := make([]TokenInfo, 0, len(tokens))
	for _, t := range tokens {
		info := TokenInfo{TokenID: maskToken(t.ID), Name: t.Name, Scope: t.Scope, CreatedAt: t.CreatedAt.Format("2006-01-02 15:04")}
		if t.LastUsedAt != nil {
			info.LastUsedAt = t.LastUsedAt.Format("2006-01-02 15:04")
		}
		out = append(out, info)
	}

	return nil, TokenListOutput{Tokens: out}, nil
}

// TokenRevokeInput is the payload for token_revoke.
type TokenRevokeInput struct {
	TokenID string `json:"token_id" jsonschema:"id of the token to revoke"`
}

// TokenRevokeOutput confirms the revoke.
type TokenRevokeOutput struct {
	TokenID string `json:"token_id"`
	Revoked bool   `json:"revoked"`
}

func (s *Server) handleTokenRevoke(ctx context.Context, req *mcp_sdk.CallToolRequest, in TokenRevokeInput) (*mcp_sdk.CallToolResult, TokenRevokeOutput, error) {
	authCtx, err := requireAdmin(ctx)
	if err != nil {
		return nil, TokenRevokeOutput{}, err
	}
	if in.TokenID == "" {
		return nil, TokenRevokeOutput{}, fmt.Errorf("token_id is required")
	}

	callerID, callerScope := tokenInfo(authCtx)
	if err := s.authStore.RevokeToken(in.TokenID); err != nil {
		audit.LogFailure(audit.OpTokenRevoke, callerID, callerScope, "", err)
		return nil, TokenRevokeOutput{}, fmt.Errorf("failed to revoke token: %w", err)
	}

	audit.Log(&audit.Event{
		Operation:  audit.OpTokenRevoke,
		TokenID:    callerID,
		TokenScope: callerScope,
		Success:    true,
		Details:    map[string]interface{}{"revoked_token_id": maskToken(in.TokenID)},
	})

	return nil, TokenRevokeOutput{TokenID: maskToken(in.TokenID), Revoked: true}, nil
}

// isValidScope reports whether scope is one token_create will accept.
func isValidScope(scope string) bool {
	if scope == auth.ScopeAdmin || scope == auth.ScopeAdminRO {
		return true
	}
	return auth.IsSessionScope(scope) && auth.ExtractSessionID(scope) != ""
}

func maskToken(tokenID string) string {
	if len(tokenID) <= 12 {
		return "***"
	}
	return tokenID[:8] + "..." + tokenID[len(tokenID)-4:]
}
