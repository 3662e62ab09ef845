package blocks

// AgentProfile declaratively describes an agent's working environment.
// Immutable after load; the Architecture Adapter materializes it into a
// sandbox via SetupAgentProfile.
type AgentProfile struct {
	ID               string            `json:"id"`
	Architecture     Architecture      `json:"architecture"`
	MainInstructions string            `json:"mainInstructions,omitempty"`
	SubAgents        []SubAgentSpec    `json:"subAgents,omitempty"`
	Commands         []CommandSpec     `json:"commands,omitempty"`
	Skills           []SkillSpec       `json:"skills,omitempty"`
	DefaultFiles     []WorkspaceFile   `json:"defaultFiles,omitempty"`
}

// SubAgentSpec is a named sub-agent descriptor materialized as a
// family-specific markdown/config file.
type SubAgentSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

// CommandSpec is a named command prompt exposed to the agent.
type CommandSpec struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// SkillFile is a supporting file shipped alongside a skill, relative to
// the skill's own directory.
type SkillFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// SkillSpec is a named skill: description, body, and supporting files.
type SkillSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Body        string      `json:"body"`
	Files       []SkillFile `json:"files,omitempty"`
}
