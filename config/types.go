// Package config provides configuration types and loading for the agent
// orchestration core.
package config

import "fmt"

// WorkspaceConfig controls the directory tools operate against.
type WorkspaceConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

func (c *WorkspaceConfig) Validate() error { return nil }

func (c *WorkspaceConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "."
	}
}

// LLMConfig selects and configures the model backend. Provider is one of
// "anthropic" or "gemini" (§9's multi-provider adapter requirement); the
// core refuses to start an LLM call with an empty API key (§6).
type LLMConfig struct {
	Provider    string  `yaml:"provider,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	Host        string  `yaml:"host,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
}

func (c *LLMConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	switch c.Provider {
	case "anthropic", "gemini":
	default:
		return fmt.Errorf("llm.provider must be 'anthropic' or 'gemini', got %q", c.Provider)
	}
	return nil
}

func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "anthropic"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	switch c.Provider {
	case "anthropic":
		if c.Model == "" {
			c.Model = "claude-3-5-sonnet-latest"
		}
	case "gemini":
		if c.Model == "" {
			c.Model = "gemini-2.0-flash"
		}
	}
}

// AgentDefaults configures the per-run step loop (spec §4.1/§4.3).
type AgentDefaults struct {
	MaxSteps        int `yaml:"max_steps,omitempty"`
	ToolOutputLimit int `yaml:"tool_output_limit,omitempty"`
}

func (c *AgentDefaults) Validate() error {
	if c.MaxSteps < 1 || c.MaxSteps > 30 {
		return fmt.Errorf("agent.max_steps must be in [1, 30], got %d", c.MaxSteps)
	}
	return nil
}

func (c *AgentDefaults) SetDefaults() {
	if c.MaxSteps == 0 {
		c.MaxSteps = 15
	}
	if c.ToolOutputLimit == 0 {
		c.ToolOutputLimit = 8000
	}
}

// SpawnAgentConfig bounds recursive sub-agent spawning (spec §4.4).
type SpawnAgentConfig struct {
	Enabled         bool `yaml:"enabled"`
	MaxDepth        int  `yaml:"max_depth,omitempty"`
	DefaultMaxSteps int  `yaml:"default_max_steps,omitempty"`
}

func (c *SpawnAgentConfig) Validate() error {
	if c.MaxDepth < 1 || c.MaxDepth > 5 {
		return fmt.Errorf("spawn_agent.max_depth must be in [1, 5], got %d", c.MaxDepth)
	}
	return nil
}

func (c *SpawnAgentConfig) SetDefaults() {
	if c.MaxDepth == 0 {
		c.MaxDepth = 3
	}
	if c.DefaultMaxSteps == 0 {
		c.DefaultMaxSteps = 15
	}
}

// TokenManagerConfig configures history compression (spec §4.2).
type TokenManagerConfig struct {
	TokenLimit           int    `yaml:"token_limit,omitempty"`
	SummarizeAfterRounds int    `yaml:"summarize_after_rounds,omitempty"`
	EnableSummarization  bool   `yaml:"enable_summarization"`
	SummarizerModel      string `yaml:"summarizer_model,omitempty"`
}

func (c *TokenManagerConfig) Validate() error {
	if c.TokenLimit <= 0 {
		return fmt.Errorf("token_manager.token_limit must be positive, got %d", c.TokenLimit)
	}
	if c.SummarizeAfterRounds <= 0 {
		return fmt.Errorf("token_manager.summarize_after_rounds must be positive, got %d", c.SummarizeAfterRounds)
	}
	return nil
}

func (c *TokenManagerConfig) SetDefaults() {
	if c.TokenLimit == 0 {
		c.TokenLimit = 120000
	}
	if c.SummarizeAfterRounds == 0 {
		c.SummarizeAfterRounds = 2
	}
}

// SessionConfig selects the session backend (spec §4.6/§6): "file", "sql",
// or "etcd".
type SessionConfig struct {
	Backend string `yaml:"backend,omitempty"`

	FilePath string `yaml:"file_path,omitempty"`

	SQLDialect string `yaml:"sql_dialect,omitempty"` // sqlite, postgres, mysql
	SQLDSN     string `yaml:"sql_dsn,omitempty"`

	EtcdEndpoints []string `yaml:"etcd_endpoints,omitempty"`
	EtcdKeyPrefix string   `yaml:"etcd_key_prefix,omitempty"`

	LeaderOnlyHistory bool `yaml:"leader_only_history"`
}

func (c *SessionConfig) Validate() error {
	switch c.Backend {
	case "file":
		if c.FilePath == "" {
			return fmt.Errorf("session.file_path is required for the file backend")
		}
	case "sql":
		if c.SQLDialect == "" || c.SQLDSN == "" {
			return fmt.Errorf("session.sql_dialect and session.sql_dsn are required for the sql backend")
		}
		switch c.SQLDialect {
		case "sqlite", "postgres", "mysql":
		default:
			return fmt.Errorf("session.sql_dialect must be sqlite, postgres, or mysql, got %q", c.SQLDialect)
		}
	case "etcd":
		if len(c.EtcdEndpoints) == 0 {
			return fmt.Errorf("session.etcd_endpoints is required for the etcd backend")
		}
	default:
		return fmt.Errorf("session.backend must be file, sql, or etcd, got %q", c.Backend)
	}
	return nil
}

func (c *SessionConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "file"
	}
	if c.Backend == "file" && c.FilePath == "" {
		c.FilePath = "./data/sessions.json"
	}
	if c.Backend == "etcd" && c.EtcdKeyPrefix == "" {
		c.EtcdKeyPrefix = "/agentcore/sessions/"
	}
}

// RunLogConfig selects the run-event sink (spec §4.7): "noop", "file", or
// "etcd", optionally wrapped with Prometheus metrics.
type RunLogConfig struct {
	Backend string `yaml:"backend,omitempty"`

	Dir string `yaml:"dir,omitempty"`

	EtcdEndpoints []string `yaml:"etcd_endpoints,omitempty"`
	EtcdKeyPrefix string   `yaml:"etcd_key_prefix,omitempty"`

	MetricsEnabled   bool   `yaml:"metrics_enabled"`
	MetricsNamespace string `yaml:"metrics_namespace,omitempty"`
}

func (c *RunLogConfig) Validate() error {
	switch c.Backend {
	case "noop", "file", "etcd":
	default:
		return fmt.Errorf("runlog.backend must be noop, file, or etcd, got %q", c.Backend)
	}
	if c.Backend == "etcd" && len(c.EtcdEndpoints) == 0 {
		return fmt.Errorf("runlog.etcd_endpoints is required for the etcd backend")
	}
	return nil
}

func (c *RunLogConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "file"
	}
	if c.Backend == "file" && c.Dir == "" {
		c.Dir = "./data/runlogs"
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = "agentcore"
	}
}

// LoggingConfig configures the zap logger shared across agent/team/runlog.
type LoggingConfig struct {
	Level       string `yaml:"level,omitempty"`
	Development bool   `yaml:"development"`
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Level)
	}
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}
