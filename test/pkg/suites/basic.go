package suites

import (
	"time"

	testpkg "github.com/cabinetrun/cabinet/test/pkg/testing"
)

// GetBasicTests returns basic smoke tests
func GetBasicTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_connection",
			Description: "Verify MCP server connection and tool listing",
			Tags:        []string{"basic", "smoke"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				tools, err := ctx.Client.ListTools()
				ctx.Assertions.AssertNoError(err, "Should list tools without error")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertGreaterThan(len(tools), 0, "Should have at least 1 tool")

				hasSessionCreate := false
				hasSessionList := false
				for _, tool := range tools {
					switch tool.Name {
					case "session_create":
						hasSessionCreate = true
					case "session_list":
						hasSessionList = true
					}
				}

				ctx.Assertions.AssertTrue(hasSessionCreate, "Should have session_create tool")
				ctx.Assertions.AssertTrue(hasSessionList, "Should have session_list tool")

				return nil
			},
		},

		{
			Name:        "test_list_sessions",
			Description: "Test listing all sessions (admin scope)",
			Tags:        []string{"basic", "session"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.Client.InvokeTool("session_list", map[string]interface{}{})
				ctx.Assertions.AssertNoError(err, "Should invoke session_list without error")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertFalse(result.IsError, "Should not return error result")
				ctx.Assertions.AssertContains(result.GetToolContent(), "sessions", "Result should mention sessions")

				return nil
			},
		},

		{
			Name:        "test_session_create_invalid_architecture",
			Description: "Test session_create rejects an unknown architecture",
			Tags:        []string{"basic", "session"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.Client.InvokeTool("session_create", map[string]interface{}{
					"architecture": "not-a-real-architecture",
				})
				ctx.Assertions.AssertNoError(err, "Should invoke session_create without transport error")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertTrue(result.IsError, "Should return an error result for unknown architecture")
				return nil
			},
		},

		{
			Name:        "test_session_send_message_requires_message",
			Description: "Test session_send_message rejects an empty message",
			Tags:        []string{"basic", "session"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.Client.InvokeTool("session_send_message", map[string]interface{}{
					"session_id": "nonexistent_session",
					"message":    "",
				})
				ctx.Assertions.AssertNoError(err, "Should invoke session_send_message without transport error")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertTrue(result.IsError, "Should return error for empty message")
				return nil
			},
		},
	}
}
