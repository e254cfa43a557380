// Package config provides configuration types and loading for the agent
// orchestration core.
// This file contains the main unified configuration entry point.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the single entry point for configuring a run of the core:
// LLM endpoint/key/model, workspace root, session backend selector,
// step/token defaults, spawn-agent depth budget, and run-log sink
// (spec §6's "Environment/config inputs").
type Config struct {
	Version string `yaml:"version,omitempty"`

	Workspace    WorkspaceConfig    `yaml:"workspace,omitempty"`
	LLM          LLMConfig          `yaml:"llm,omitempty"`
	Agent        AgentDefaults      `yaml:"agent,omitempty"`
	SpawnAgent   SpawnAgentConfig   `yaml:"spawn_agent,omitempty"`
	TokenManager TokenManagerConfig `yaml:"token_manager,omitempty"`
	Session      SessionConfig      `yaml:"session,omitempty"`
	RunLog       RunLogConfig       `yaml:"runlog,omitempty"`
	Logging      LoggingConfig      `yaml:"logging,omitempty"`
}

var _ ConfigInterface = (*Config)(nil)

// Validate checks every section; the core refuses to start an LLM call
// with an empty API key (spec §6), enforced by LLMConfig.Validate.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    ConfigInterface
	}{
		{"workspace", &c.Workspace},
		{"llm", &c.LLM},
		{"agent", &c.Agent},
		{"spawn_agent", &c.SpawnAgent},
		{"token_manager", &c.TokenManager},
		{"session", &c.Session},
		{"runlog", &c.RunLog},
		{"logging", &c.Logging},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// SetDefaults fills in every section's zero-config defaults.
func (c *Config) SetDefaults() {
	c.Workspace.SetDefaults()
	c.LLM.SetDefaults()
	c.Agent.SetDefaults()
	c.SpawnAgent.SetDefaults()
	c.TokenManager.SetDefaults()
	c.Session.SetDefaults()
	c.RunLog.SetDefaults()
	c.Logging.SetDefaults()
}

// LoadConfig loads configuration from a YAML file, expanding ${VAR},
// ${VAR:-default}, and $VAR references against the process environment
// before unmarshaling (matching hector's config/env.go expansion pass).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return LoadConfigFromString(string(data))
}

// LoadConfigFromString loads configuration from a YAML document already
// held in memory.
func LoadConfigFromString(yamlContent string) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &raw); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	expanded := ExpandEnvVarsInData(raw)

	reencoded, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("config: re-encode expanded config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(reencoded, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode config: %w", err)
	}
	return &cfg, nil
}

// ZeroConfigOptions seeds a Config purely from CLI flags / environment
// variables, for the case where no YAML file is present (mirrors hector's
// own zero-config CLI fallback in cmd/hector/config_loader.go).
type ZeroConfigOptions struct {
	Provider string
	APIKey   string
	Model    string
	Workspace string
}

// CreateZeroConfig builds a minimal Config from flags, falling back to
// ANTHROPIC_API_KEY / GEMINI_API_KEY when opts.APIKey is empty.
func CreateZeroConfig(opts ZeroConfigOptions) *Config {
	provider := opts.Provider
	if provider == "" {
		provider = "anthropic"
	}
	apiKey := opts.APIKey
	if apiKey == "" {
		switch provider {
		case "gemini":
			apiKey = os.Getenv("GEMINI_API_KEY")
		default:
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	cfg := &Config{
		LLM: LLMConfig{
			Provider: provider,
			APIKey:   apiKey,
			Model:    opts.Model,
		},
		Workspace: WorkspaceConfig{Dir: opts.Workspace},
	}
	cfg.SetDefaults()
	return cfg
}
