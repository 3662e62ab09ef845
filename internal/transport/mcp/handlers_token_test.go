package mcp

import (
	"testing"

	"github.com/cabinetrun/cabinet/internal/auth"
)

func TestIsValidScope(t *testing.T) {
	tests := []struct {
		name  string
		scope string
		want  bool
	}{
		{"admin scope", auth.ScopeAdmin, true},
		{"admin:ro scope", auth.ScopeAdminRO, true},
		{"session scope", "session:sess_abc", true},
		{"session ro scope", "session:sess_abc:ro", true},
		{"empty", "", false},
		{"random string", "invalid", false},
		{"session without id", "session:", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isValidScope(tt.scope)
			if got != tt.want {
				t.Errorf("isValidScope(%q) = %v, want %v", tt.scope, got, tt.want)
			}
		})
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name    string
		tokenID string
		want    string
	}{
		{"empty", "", "***"},
		{"short token", "abc", "***"},
		{"12 char token", "123456789012", "***"},
		{"13 char token", "1234567890123", "12345678...0123"},
		{"long token", "abc123def456ghi789", "abc123de...i789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := maskToken(tt.tokenID)
			if got != tt.want {
				t.Errorf("maskToken(%q) = %q, want %q", tt.tokenID, got, tt.want)
			}
		})
	}
}

func TestTokenInfo_EdgeCases(t *testing.T) {
	t.Run("nil context", func(t *testing.T) {
		id, scope := tokenInfo(nil)
		if id != "" || scope != "" {
			t.Errorf("tokenInfo(nil) = (%q, %q), want (\"\", \"\")", id, scope)
		}
	})

	t.Run("nil token", func(t *testing.T) {
		authCtx := &auth.AuthContext{Token: nil}
		id, scope := tokenInfo(authCtx)
		if id != "" || scope != "" {
			t.Errorf("tokenInfo(nil token) = (%q, %q), want (\"\", \"\")", id, scope)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		authCtx := &auth.AuthContext{
			Token: &auth.Token{ID: "token-123", Scope: "admin"},
		}
		id, scope := tokenInfo(authCtx)
		if id != "token-123" {
			t.Errorf("tokenInfo().id = %q, want %q", id, "token-123")
		}
		if scope != "admin" {
			t.Errorf("tokenInfo().scope = %q, want %q", scope, "admin")
		}
	})
}

func TestTokenCreateInput(t *testing.T) {
	in := TokenCreateInput{Name: "test-token", Scope: "admin"}
	if in.Name != "test-token" {
		t.Errorf("Name = %q, want %q", in.Name, "test-token")
	}
	if in.Scope != "admin" {
		t.Errorf("Scope = %q, want %q", in.Scope, "admin")
	}
}

func TestTokenRevokeInput(t *testing.T) {
	in := TokenRevokeInput{TokenID: "token-to-revoke"}
	if in.TokenID != "token-to-revoke" {
		t.Errorf("TokenID = %q, want %q", in.TokenID, "token-to-revoke")
	}
}
