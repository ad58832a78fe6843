package protocol

import "slices"

// AgentSpec defines the assistant's configuration and which operations it may use.
type AgentSpec struct {
	ID             string   `json:"id" mapstructure:"id"`
	Model          string   `json:"model,omitempty" mapstructure:"model"`
	Instructions   string   `json:"instructions" mapstructure:"instructions"`
	Language       string   `json:"language,omitempty" mapstructure:"language"`
	ToolsWhitelist []string `json:"tools_whitelist,omitempty" mapstructure:"tools_whitelist"`
	ToolsBlacklist []string `json:"tools_blacklist,omitempty" mapstructure:"tools_blacklist"`
	ReadOnly       bool     `json:"read_only,omitempty" mapstructure:"read_only"`
	MaxIterations  int      `json:"max_iterations,omitempty" mapstructure:"max_iterations"`
}

// ToolAllowed reports whether the named tool is permitted for this agent.
// If a whitelist is set, only listed tools are allowed (blacklist is ignored).
// If only a blacklist is set, all tools except listed ones are allowed.
// If neither is set, all tools are allowed.
func (s AgentSpec) ToolAllowed(name string) bool {
	if len(s.ToolsWhitelist) > 0 {
		return slices.Contains(s.ToolsWhitelist, name)
	}
	if len(s.ToolsBlacklist) > 0 {
		return !slices.Contains(s.ToolsBlacklist, name)
	}
	return true
}
