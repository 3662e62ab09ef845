package testing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cabinetrun/cabinet/test/pkg/client"
)

// TestCase represents a single test scenario
type TestCase struct {
	Name        string
	Description string
	Tags        []string
	Covers      []string // Coverage annotations like "cli:cabinet-client"
	Setup       func(*TestContext) error
	Execute     func(*TestContext) error
	Teardown    func(*TestContext) error
	Timeout     time.Duration
}

// TestContext provides state and utilities for test execution
type TestContext struct {
	Client          *client.MCPClient
	Assertions      *Assertions
	SessionID       string
	CreatedSessions []string // Track sessions for cleanup
	Logs            []string
	Failed          bool
}

// NewTestContext creates a new test context with the given MCP client
func NewTestContext(mcpClient *client.MCPClient) *TestContext {
	ctx := &TestContext{
		Client:          mcpClient,
		CreatedSessions: []string{},
		Logs:            []string{},
		Failed:          false,
	}
	ctx.Assertions = NewAssertions(ctx)
	return ctx
}

// Log adds a log message to the test context
func (tc *TestContext) Log(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	tc.Logs = append(tc.Logs, msg)
}

// MarkFailed marks the test as failed
func (tc *TestContext) MarkFailed() {
	tc.Failed = true
}

// PreTestCleanup waits for any previous test's session teardown to settle
// before starting a new one. Session destroy is asynchronous on the
// sandbox side (container teardown), so a fixed pause avoids flaky
// collisions between back-to-back tests.
func (tc *TestContext) PreTestCleanup(label string) error {
	tc.Log("Pre-test cleanup for: %s (waiting for any previous cleanup to complete)", label)
	time.Sleep(1000 * time.Millisecond)
	tc.Log("Pre-test cleanup complete")
	return nil
}

// Cleanup performs automatic cleanup of created resources
func (tc *TestContext) Cleanup() error {
	tc.Log("Starting cleanup...")

	for _, sessionID := range tc.CreatedSessions {
		tc.Log("Destroying session: %s", sessionID)
		params := map[string]interface{}{"session_id": sessionID}

		for i := 0; i < 3; i++ {
			result, err := tc.Client.InvokeTool("session_destroy", params)
			if err != nil {
				if i == 2 {
					tc.Log("Warning: Failed to destroy session %s: %v", sessionID, err)
				}
				time.Sleep(time.Second)
				continue
			}
			if result.IsError {
				if i == 2 {
					tc.Log("Warning: Error destroying session %s: %s", sessionID, result.GetToolContent())
				}
				time.Sleep(time.Second)
				continue
			}
			break // Success
		}
	}

	tc.Log("Cleanup complete")
	return nil
}

// CreateSession is a helper to create a session of the given architecture
// and track it for cleanup. Returns the session ID on success.
func (tc *TestContext) CreateSession(architecture string, labels map[string]string) (string, error) {
	tc.Log("Creating %s session", architecture)
	params := map[string]interface{}{"architecture": architecture}
	if len(labels) > 0 {
		params["labels"] = labels
	}

	result, err := tc.Client.InvokeTool("session_create", params)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	if result.IsError {
		return "", fmt.Errorf("session_create returned error: %s", result.GetToolContent())
	}

	sessionID, err := extractJSONString(result.GetToolContent(), "session_id")
	if err != nil {
		return "", fmt.Errorf("failed to extract session_id: %w", err)
	}

	tc.CreatedSessions = append(tc.CreatedSessions, sessionID)
	tc.SessionID = sessionID

	tc.Log("Session created: %s", sessionID)
	return sessionID, nil
}

// SendMessage is a helper for invoking session_send_message.
func (tc *TestContext) SendMessage(sessionID, message string) (*client.ToolResult, error) {
	tc.Log("Sending message to session %s", sessionID)
	result, err := tc.Client.InvokeTool("session_send_message", map[string]interface{}{
		"session_id": sessionID,
		"message":    message,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return result, nil
}

// ExtractJSONField pulls a single string field out of a tool result's
// JSON-encoded text content without requiring callers to know the full
// output schema.
func ExtractJSONField(content, field string) (string, error) {
	return extractJSONString(content, field)
}

func extractJSONString(content, field string) (string, error) {
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return "", fmt.Errorf("response is not JSON: %w", err)
	}
	value, ok := decoded[field]
	if !ok {
		return "", fmt.Errorf("field %q not present in response: %s", field, content)
	}
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("field %q is not a string in response: %s", field, content)
	}
	return str, nil
}

// ExtractSessionID pulls session_id out of a JSON tool response.
func ExtractSessionID(content string) string {
	id, err := extractJSONString(content, "session_id")
	if err != nil {
		return ""
	}
	return id
}

// TestResult represents the outcome of a test execution
type TestResult struct {
	TestName    string
	Passed      bool
	Duration    time.Duration
	Error       error
	Logs        []string
	Assertions  int
	FailedAt    string // Which phase failed: "setup", "execute", "teardown", or "timeout"
}

// Run executes the test case and returns the result
func (t *TestCase) Run(mcpClient *client.MCPClient) *TestResult {
	start := time.Now()
	ctx := NewTestContext(mcpClient)
	result := &TestResult{
		TestName:   t.Name,
		Passed:     true,
		Assertions: 0,
	}

	// Ensure cleanup always runs
	defer func() {
		if err := ctx.Cleanup(); err != nil {
			ctx.Log("Cleanup error: %v", err)
		}
		result.Logs = ctx.Logs
		result.Duration = time.Since(start)
		result.Assertions = ctx.Assertions.Count
	}()

	// Apply timeout if specified
	if t.Timeout > 0 {
		done := make(chan bool, 1)
		go func() {
			// Run test phases
			if err := t.runPhases(ctx, result); err != nil {
				result.Passed = false
				result.Error = err
			}
			done <- true
		}()

		select {
		case <-done:
			// Test completed
		case <-time.After(t.Timeout):
			result.Passed = false
			result.Error = fmt.Errorf("test timeout after %v", t.Timeout)
			result.FailedAt = "timeout"
		}
	} else {
		// Run without timeout
		if err := t.runPhases(ctx, result); err != nil {
			result.Passed = false
			result.Error = err
		}
	}

	return result
}

// runPhases executes setup, execute, and teardown phases
func (t *TestCase) runPhases(ctx *TestContext, result *TestResult) error {
	// Setup phase
	if t.Setup != nil {
		ctx.Log("Running setup...")
		if err := t.Setup(ctx); err != nil {
			result.FailedAt = "setup"
			return fmt.Errorf("setup failed: %w", err)
		}
	}

	// Execute phase
	ctx.Log("Running test...")
	if err := t.Execute(ctx); err != nil {
		result.FailedAt = "execute"
		return fmt.Errorf("test failed: %w", err)
	}

	// Check if any assertions failed
	if ctx.Failed {
		result.FailedAt = "execute"
		return fmt.Errorf("test assertions failed")
	}

	// Teardown phase
	if t.Teardown != nil {
		ctx.Log("Running teardown...")
		if err := t.Teardown(ctx); err != nil {
			result.FailedAt = "teardown"
			return fmt.Errorf("teardown failed: %w", err)
		}
	}

	return nil
}
