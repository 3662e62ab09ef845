package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/cabinetrun/cabinet/internal/adapter"
	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/sandbox"
)

// mcpConfig is the agent's on-disk MCP config shape, grounded on the
// teacher's DroidMCPConfig (internal/agent/config/droid.go) generalized
// away from Droid's specific field names.
type mcpConfig struct {
	MCPServers map[string]mcpServer `json:"mcpServers"`
}

type mcpServer struct {
	Type    string            `json:"type"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	URL     string            `json:"url,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// SetupAgentProfile materializes a profile into the sandbox as one bulk
// writeFiles call: main instructions, one markdown file per sub-agent, one
// per command, one directory per skill (SKILL.md + supporting files), and
// an MCP config referencing the cabinet-supplied MCP transport.
func (a *Adapter) SetupAgentProfile(ctx context.Context, sb sandbox.Sandbox, profile blocks.AgentProfile) error {
	paths := a.Paths()
	var files []sandbox.FileToWrite

	if profile.MainInstructions != "" {
		files = append(files, sandbox.FileToWrite{Path: paths.MainInstructionsPath, Content: profile.MainInstructions})
	}

	agentsDir := path.Join(paths.ProfileDir, "agents")
	for _, sa := range profile.SubAgents {
		body := fmt.Sprintf("---\nname: %s\ndescription: %s\n---\n\n%s\n", sa.Name, sa.Description, sa.Prompt)
		files = append(files, sandbox.FileToWrite{Path: path.Join(agentsDir, sa.Name+".md"), Content: body})
	}

	commandsDir := path.Join(paths.ProfileDir, "commands")
	for _, c := range profile.Commands {
		files = append(files, sandbox.FileToWrite{Path: path.Join(commandsDir, c.Name+".md"), Content: c.Prompt})
	}

	skillsDir := path.Join(paths.ProfileDir, "skills")
	for _, sk := range profile.Skills {
		base := path.Join(skillsDir, sk.Name)
		body := fmt.Sprintf("---\nname: %s\ndescription: %s\n---\n\n%s\n", sk.Name, sk.Description, sk.Body)
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

	cfg := mcpConfig{MCPServers: map[string]mcpServer{
		"cabinet": {Type: "stdio", Command: "cabinet-mcp-bridge"},
	}}
	mcpJSON, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("claude: marshal mcp config: %w", err)
	}
	files = append(files, sandbox.FileToWrite{Path: path.Join(paths.ProfileDir, "mcp.json"), Content: string(mcpJSON)})

	result, err := sb.WriteFiles(ctx, files)
	if err != nil {
		return fmt.Errorf("claude: setup profile: %w", err)
	}
	for _, f := range result.Failed {
		adapterLogWriteFailure(f.Path, f.Error)
	}
	return nil
}
