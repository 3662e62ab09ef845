package auth

import (
	"strings"
	"time"
)

// Token represents an API token for transport-boundary access.
type Token struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Scope      string     `json:"scope"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Scope constants
const (
	ScopeAdmin    = "admin"
	ScopeAdminRO  = "admin:ro"
	ScopeReadOnly = "read-only" // Deprecated: use ScopeAdminRO
)

// ScopeSession returns a session-scoped scope string, restricting a
// token to operations against one sessionId.
func ScopeSession(sessionID string) string {
	return "session:" + sessionID
}

// ScopeSessionRO returns a read-only session-scoped scope string.
func ScopeSessionRO(sessionID string) string {
	return "session:" + sessionID + ":ro"
}

// IsAdminScope returns true if scope is admin or admin:ro.
func IsAdminScope(scope string) bool {
	return scope == ScopeAdmin || scope == ScopeAdminRO || scope == ScopeReadOnly
}

// IsSessionScope returns true if scope is session:<id> or session:<id>:ro.
func IsSessionScope(scope string) bool {
	return strings.HasPrefix(scope, "session:")
}

// IsReadOnlyScope returns true if scope is read-only (admin:ro,
// session:*:ro, or legacy read-only).
func IsReadOnlyScope(scope string) bool {
	return scope == ScopeAdminRO || scope == ScopeReadOnly || strings.HasSuffix(scope, ":ro")
}

// ExtractSessionID extracts the sessionId from a session scope, or
// returns empty if scope isn't session-scoped.
func ExtractSessionID(scope string) string {
	if !strings.HasPrefix(scope, "session:") {
		return ""
	}
	rest := scope[len("session:"):]
	if strings.HasSuffix(rest, ":ro") {
		return rest[:len(rest)-3]
	}
	return rest
}

// AuthType represents the type of authentication used.
type AuthType int

const (
	AuthTypeToken AuthType = iota
)

// AuthContext holds authentication information for a request.
type AuthContext struct {
	Type  AuthType
	Token *Token
}

// CanAccessSession checks if the auth context allows access to sessionId.
func (a *AuthContext) CanAccessSession(sessionID string) bool {
	if a.Token == nil {
		return false
	}
	if IsAdminScope(a.Token.Scope) {
		return true
	}
	if IsSessionScope(a.Token.Scope) {
		return ExtractSessionID(a.Token.Scope) == sessionID
	}
	return false
}

// CanWrite checks if the auth context allows write operations.
func (a *AuthContext) CanWrite() bool {
	if a.Token == nil {
		return false
	}
	return !IsReadOnlyScope(a.Token.Scope)
}

// IsAdmin checks if the auth context has full admin scope (not
// read-only).
func (a *AuthContext) IsAdmin() bool {
	if a.Type != AuthTypeToken || a.Token == nil {
		return false
	}
	return a.Token.Scope == ScopeAdmin
}
