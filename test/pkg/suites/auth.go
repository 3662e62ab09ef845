package suites

import (
	"fmt"
	"time"

	testpkg "github.com/cabinetrun/cabinet/test/pkg/testing"
)

// GetAuthTests returns authentication-related tests
func GetAuthTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_auth_token_lifecycle",
			Description: "Test token_list, token_create, and token_revoke tools (requires admin scope)",
			Tags:        []string{"auth", "admin"},
			Timeout:     30 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				listResult, err := ctx.Client.InvokeTool("token_list", map[string]interface{}{})
				ctx.Assertions.AssertNoError(err, "Should invoke token_list without error")
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFalse(listResult.IsError, "token_list should not return error")

				createResult, err := ctx.Client.InvokeTool("token_create", map[string]interface{}{
					"name":  "test-token-integration",
					"scope": "admin:ro",
				})
				ctx.Assertions.AssertNoError(err, "Should invoke token_create without error")
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFalse(createResult.IsError, "token_create should not return error")

				createContent := createResult.GetToolContent()
				ctx.Log("token_create result: %s", createContent)
				ctx.Assertions.AssertContains(createContent, "secret", "Should include the minted secret")

				tokenID, err := testpkg.ExtractJSONField(createContent, "token_id")
				ctx.Assertions.AssertNoError(err, "Should extract token_id from create response")
				if err != nil {
					return err
				}

				listResult2, err := ctx.Client.InvokeTool("token_list", map[string]interface{}{})
				ctx.Assertions.AssertNoError(err, "Should invoke token_list again without error")
				if err != nil {
					return err
				}
				ctx.Assertions.AssertContains(listResult2.GetToolContent(), "test-token-integration", "Token should appear in list")

				revokeResult, err := ctx.Client.InvokeTool("token_revoke", map[string]interface{}{"token_id": tokenID})
				ctx.Assertions.AssertNoError(err, "Should invoke token_revoke without error")
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFalse(revokeResult.IsError, "token_revoke should not return error")

				return nil
			},
		},

		{
			Name:        "test_auth_token_create_invalid_scope",
			Description: "Test that token_create rejects a malformed scope string",
			Tags:        []string{"auth", "admin", "validation"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.Client.InvokeTool("token_create", map[string]interface{}{
					"name":  "bad-scope-token",
					"scope": "invalid-scope",
				})
				ctx.Assertions.AssertNoError(err, "Should invoke token_create without transport error")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertTrue(result.IsError, "Should reject an invalid scope")
				return nil
			},
		},

		{
			Name:        "test_auth_token_create_missing_name",
			Description: "Test that token_create rejects a missing name",
			Tags:        []string{"auth", "admin", "validation"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.Client.InvokeTool("token_create", map[string]interface{}{
					"scope": "admin:ro",
				})
				ctx.Assertions.AssertNoError(err, "Should invoke token_create without transport error")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertTrue(result.IsError, "Should reject a missing name")
				return nil
			},
		},

		{
			Name:        "test_auth_token_session_scope",
			Description: "Test creating a token scoped to a single session",
			Tags:        []string{"auth", "admin", "scopes"},
			Timeout:     30 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				sessionID, err := ctx.CreateSession("claude", nil)
				ctx.Assertions.AssertNoError(err, "Should create session")
				if err != nil {
					return err
				}

				scope := fmt.Sprintf("session:%s:ro", sessionID)
				createResult, err := ctx.Client.InvokeTool("token_create", map[string]interface{}{
					"name":  "test-session-scoped-token",
					"scope": scope,
				})
				ctx.Assertions.AssertNoError(err, "Should invoke token_create without error")
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFalse(createResult.IsError, "token_create should not return error")
				ctx.Assertions.AssertContains(createResult.GetToolContent(), scope, "Should echo back the requested scope")

				tokenID, err := testpkg.ExtractJSONField(createResult.GetToolContent(), "token_id")
				ctx.Assertions.AssertNoError(err, "Should extract token_id")
				if err != nil {
					return err
				}

				_, err = ctx.Client.InvokeTool("token_revoke", map[string]interface{}{"token_id": tokenID})
				ctx.Assertions.AssertNoError(err, "Should revoke the session-scoped token")

				return nil
			},
		},
	}
}
