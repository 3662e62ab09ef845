package mcp

import (
	"testing"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestNewTextResult(t *testing.T) {
	result := NewTextResult("hello")
	if result.IsError {
		t.Error("NewTextResult() should not be an error result")
	}
	if len(result.Content) != 1 {
		t.Fatalf("len(Content) = %d, want 1", len(result.Content))
	}
	text, ok := result.Content[0].(*mcp_sdk.TextContent)
	if !ok {
		t.Fatalf("Content[0] is not *TextContent")
	}
	if text.Text != "hello" {
		t.Errorf("Text = %q, want %q", text.Text, "hello")
	}
}

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("boom")
	if !result.IsError {
		t.Error("NewErrorResult() should be an error result")
	}
	text, ok := result.Content[0].(*mcp_sdk.TextContent)
	if !ok {
		t.Fatalf("Content[0] is not *TextContent")
	}
	if text.Text != "boom" {
		t.Errorf("Text = %q, want %q", text.Text, "boom")
	}
}
