package docker

import (
	"testing"

	"github.com/cabinetrun/cabinet/internal/sandbox"
)

func TestParseMemoryString(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"", 0},
		{"0", 0},
		{"1024", 1024},
		{"1K", 1024},
		{"1M", 1024 * 1024},
		{"4G", 4 * 1024 * 1024 * 1024},
		{"2048M", 2048 * 1024 * 1024},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseMemoryString(tt.input); got != tt.expected {
				t.Errorf("parseMemoryString(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestBuildResourceConstraints(t *testing.T) {
	r := buildResourceConstraints("2G", 2)
	if r.Memory != 2*1024*1024*1024 {
		t.Errorf("Memory = %d, want %d", r.Memory, 2*1024*1024*1024)
	}
	if r.NanoCPUs != 2e9 {
		t.Errorf("NanoCPUs = %d, want %d", r.NanoCPUs, int64(2e9))
	}
}

func TestHostPathResolvesBindMountPrefix(t *testing.T) {
	s := &Sandbox{mounts: []sandbox.Mount{
		{Type: sandbox.MountBind, Source: "/host/ws/proj1", Target: "/workspace"},
	}}

	host, ok := s.hostPath("/workspace/sub/file.txt")
	if !ok {
		t.Fatal("expected hostPath to resolve")
	}
	if host != "/host/ws/proj1/sub/file.txt" {
		t.Errorf("hostPath = %q, want %q", host, "/host/ws/proj1/sub/file.txt")
	}

	if _, ok := s.hostPath("/other/path"); ok {
		t.Error("expected hostPath to fail for an unmounted path")
	}
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	got := shellQuote("it's/a/path")
	want := `'it'\''s/a/path'`
	if got != want {
		t.Errorf("shellQuote = %q, want %q", got, want)
	}
}
