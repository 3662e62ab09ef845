package suites

import (
	"fmt"
	"time"

	testpkg "github.com/cabinetrun/cabinet/test/pkg/testing"
)

// GetSessionTests returns the session lifecycle test suite
func GetSessionTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_session_create_and_get",
			Description: "Test creating a session and reading it back",
			Tags:        []string{"session", "lifecycle"},
			Timeout:     90 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				ctx.PreTestCleanup("session-create-get")

				sessionID, err := ctx.CreateSession("claude", nil)
				ctx.Assertions.AssertNoError(err, "Should create session")
				if err != nil {
					return err
				}

				result, err := ctx.Client.InvokeTool("session_get", map[string]interface{}{"session_id": sessionID})
				ctx.Assertions.AssertNoError(err, "Should get session")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertFalse(result.IsError, "session_get should not return error")
				ctx.Assertions.AssertContains(result.GetToolContent(), sessionID, "Result should reference the session ID")

				return nil
			},
		},

		{
			Name:        "test_session_send_message",
			Description: "Test sending a message to a live session",
			Tags:        []string{"session", "message"},
			Timeout:     120 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				ctx.PreTestCleanup("session-send-message")

				sessionID, err := ctx.CreateSession("claude", nil)
				ctx.Assertions.AssertNoError(err, "Should create session")
				if err != nil {
					return err
				}

				result, err := ctx.SendMessage(sessionID, "Say hello")
				ctx.Assertions.AssertNoError(err, "Should send message")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertFalse(result.IsError, "session_send_message should not return error")
				ctx.Assertions.AssertContains(result.GetToolContent(), sessionID, "Result should reference the session ID")

				return nil
			},
		},

		{
			Name:        "test_session_load_after_create",
			Description: "Test that session_load brings a previously created session back into memory",
			Tags:        []string{"session", "load"},
			Timeout:     90 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				ctx.PreTestCleanup("session-load")

				sessionID, err := ctx.CreateSession("opencode", nil)
				ctx.Assertions.AssertNoError(err, "Should create session")
				if err != nil {
					return err
				}

				result, err := ctx.Client.InvokeTool("session_load", map[string]interface{}{"session_id": sessionID})
				ctx.Assertions.AssertNoError(err, "Should load session")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertFalse(result.IsError, "session_load should not return error")
				ctx.Assertions.AssertContains(result.GetToolContent(), sessionID, "Result should reference the session ID")

				return nil
			},
		},

		{
			Name:        "test_session_load_invalid_id",
			Description: "Test session_load rejects a malformed session ID",
			Tags:        []string{"session", "validation"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.Client.InvokeTool("session_load", map[string]interface{}{"session_id": "not-a-valid-id"})
				ctx.Assertions.AssertNoError(err, "Should invoke session_load without transport error")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertTrue(result.IsError, "Should return error for invalid session id")
				return nil
			},
		},

		{
			Name:        "test_session_destroy",
			Description: "Test destroying a session removes it from the live set",
			Tags:        []string{"session", "destroy"},
			Timeout:     90 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				ctx.PreTestCleanup("session-destroy")

				sessionID, err := ctx.CreateSession("claude", nil)
				ctx.Assertions.AssertNoError(err, "Should create session")
				if err != nil {
					return err
				}

				result, err := ctx.Client.InvokeTool("session_destroy", map[string]interface{}{"session_id": sessionID})
				ctx.Assertions.AssertNoError(err, "Should destroy session")
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFalse(result.IsError, "session_destroy should not return error")

				// Already destroyed, don't double-destroy in Cleanup.
				ctx.CreatedSessions = nil

				getResult, err := ctx.Client.InvokeTool("session_get", map[string]interface{}{"session_id": sessionID})
				ctx.Assertions.AssertNoError(err, "Should invoke session_get without transport error")
				if err == nil {
					ctx.Assertions.AssertTrue(getResult.IsError, "session_get should fail for a destroyed session")
				}

				return nil
			},
		},

		{
			Name:        "test_session_create_with_parent",
			Description: "Test creating a subagent session with a parent_id argument",
			Tags:        []string{"session", "subagent"},
			Timeout:     90 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				ctx.PreTestCleanup("session-parent")

				parentID, err := ctx.CreateSession("claude", nil)
				ctx.Assertions.AssertNoError(err, "Should create parent session")
				if err != nil {
					return err
				}

				result, err := ctx.Client.InvokeTool("session_create", map[string]interface{}{
					"architecture": "claude",
					"parent_id":    parentID,
				})
				ctx.Assertions.AssertNoError(err, "Should create child session")
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFalse(result.IsError, "session_create should not return error for a valid parent")

				childID := testpkg.ExtractSessionID(result.GetToolContent())
				if childID == "" {
					return fmt.Errorf("failed to extract child session id from response: %s", result.GetToolContent())
				}
				ctx.CreatedSessions = append(ctx.CreatedSessions, childID)

				return nil
			},
		},
	}
}
