package opencode

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/logger"
	"github.com/cabinetrun/cabinet/internal/sandbox"
)

// openCodeConfig is a reduced view of opencode.json, holding only the
// fields a profile needs to set: custom agents/commands are files under
// ProfileDir rather than config keys, so this only carries MCP servers.
type openCodeConfig struct {
	MCP map[string]mcpServerEntry `json:"mcp"`
}

type mcpServerEntry struct {
	Type    string            `json:"type"`
	Command []string          `json:"command,omitempty"`
	URL     string            `json:"url,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
}

// SetupAgentProfile materializes a profile into the sandbox: AGENTS.md
// instructions, one markdown file per sub-agent under agent/, one per
// command under command/, one directory per skill, and opencode.json
// wiring the cabinet MCP bridge. All via a single bulk writeFiles.
func (a *Adapter) SetupAgentProfile(ctx context.Context, sb sandbox.Sandbox, profile blocks.AgentProfile) error {
	paths := a.Paths()
	var files []sandbox.FileToWrite

	if profile.MainInstructions != "" {
		files = append(files, sandbox.FileToWrite{Path: paths.MainInstructionsPath, Content: profile.MainInstructions})
	}

	agentDir := path.Join(paths.ProfileDir, "agent")
	for _, sa := range profile.SubAgents {
		body := fmt.Sprintf("---\ndescription: %s\n---\n\n%s\n", sa.Description, sa.Prompt)
		files = append(files, sandbox.FileToWrite{Path: path.Join(agentDir, sa.Name+".md"), Content: body})
	}

	commandDir := path.Join(paths.ProfileDir, "command")
	for _, c := range profile.Commands {
		files = append(files, sandbox.FileToWrite{Path: path.Join(commandDir, c.Name+".md"), Content: c.Prompt})
	}

	skillDir := path.Join(paths.ProfileDir, "skill")
	for _, sk := range profile.Skills {
		base := path.Join(skillDir, sk.Name)
		body := fmt.Sprintf("---\ndescription: %s\n---\n\n%s\n", sk.Description, sk.Body)
		files = append(files, sandbox.FileToWrite{Path: path.Join(base, "SKILL.md"), Content: body})
		for _, sf := range sk.Files {
			files = append(files, sandbox.FileToWrite{Path: path.Join(base, sf.Path), Content: sf.Content})
		}
	}

	for _, df := range profile.DefaultFiles {
		if df.Content != nil {
			files = append(files, sandbox.FileToWrite{Path: path.Join(paths.WorkspaceDir, df.Path), Content: *df.Content})
		}
	}

	cfg := openCodeConfig{MCP: map[string]mcpServerEntry{
		"cabinet": {Type: "local", Command: []string{"cabinet-mcp-bridge"}},
	}}
	cfgJSON, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("opencode: marshal config: %w", err)
	}
	files = append(files, sandbox.FileToWrite{Path: path.Join(paths.ProfileDir, "opencode.json"), Content: string(cfgJSON)})

	result, err := sb.WriteFiles(ctx, files)
	if err != nil {
		return fmt.Errorf("opencode: setup profile: %w", err)
	}
	for _, f := range result.Failed {
		logger.Error("opencode: write failed for %s: %s", f.Path, f.Error)
	}
	return nil
}
