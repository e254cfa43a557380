// Package config holds the orchestration core's configuration surface:
// WorkspaceConfig, LLMConfig, AgentDefaults, SpawnAgentConfig,
// TokenManagerConfig, SessionConfig, RunLogConfig, and LoggingConfig.
//
// This file defines the interface every one of those section types
// implements so Config.Validate can drive them uniformly.
package config

// ConfigInterface is implemented by each config section (WorkspaceConfig,
// LLMConfig, AgentDefaults, SpawnAgentConfig, TokenManagerConfig,
// SessionConfig, RunLogConfig, LoggingConfig). Config.Validate iterates its
// sections through this interface rather than calling each one by name.
type ConfigInterface interface {
	// Validate checks if the section is internally consistent (e.g. an LLM
	// provider name agentctl recognizes, a positive token limit) and
	// returns an error describing the first problem found.
	Validate() error

	// SetDefaults fills in any zero-valued fields with this section's
	// defaults before Validate runs.
	SetDefaults()
}
