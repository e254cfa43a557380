package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_SetDefaults_FillsEverySection(t *testing.T) {
	var cfg Config
	cfg.LLM.APIKey = "sk-test"
	cfg.SetDefaults()

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-3-5-sonnet-latest", cfg.LLM.Model)
	assert.Equal(t, 15, cfg.Agent.MaxSteps)
	assert.Equal(t, 3, cfg.SpawnAgent.MaxDepth)
	assert.Equal(t, 120000, cfg.TokenManager.TokenLimit)
	assert.Equal(t, 2, cfg.TokenManager.SummarizeAfterRounds)
	assert.Equal(t, "file", cfg.Session.Backend)
	assert.Equal(t, "file", cfg.RunLog.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestConfig_Validate_RejectsEmptyAPIKey(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestConfig_Validate_RejectsOutOfRangeSpawnDepth(t *testing.T) {
	var cfg Config
	cfg.LLM.APIKey = "sk-test"
	cfg.SetDefaults()
	cfg.SpawnAgent.MaxDepth = 9
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spawn_agent.max_depth")
}

func TestConfig_Validate_RejectsUnknownSessionBackend(t *testing.T) {
	var cfg Config
	cfg.LLM.APIKey = "sk-test"
	cfg.SetDefaults()
	cfg.Session.Backend = "redis"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.backend")
}

func TestLoadConfigFromString_ExpandsEnvVars(t *testing.T) {
	require.NoError(t, os.Setenv("TEST_AGENTCORE_API_KEY", "sk-from-env"))
	defer os.Unsetenv("TEST_AGENTCORE_API_KEY")

	yamlContent := `
llm:
  provider: anthropic
  api_key: ${TEST_AGENTCORE_API_KEY}
  model: claude-3-5-sonnet-latest
agent:
  max_steps: 10
`
	cfg, err := LoadConfigFromString(yamlContent)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
}

func TestLoadConfigFromString_EnvVarWithDefault(t *testing.T) {
	os.Unsetenv("TEST_AGENTCORE_MODEL")
	yamlContent := `
llm:
  provider: gemini
  api_key: sk-test
  model: ${TEST_AGENTCORE_MODEL:-gemini-2.0-flash}
`
	cfg, err := LoadConfigFromString(yamlContent)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
}

func TestCreateZeroConfig_FallsBackToEnvAPIKey(t *testing.T) {
	require.NoError(t, os.Setenv("ANTHROPIC_API_KEY", "sk-zero-config"))
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	cfg := CreateZeroConfig(ZeroConfigOptions{})
	assert.Equal(t, "sk-zero-config", cfg.LLM.APIKey)
	require.NoError(t, cfg.Validate())
}

func TestSessionConfig_Validate_SQLRequiresDialectAndDSN(t *testing.T) {
	cfg := SessionConfig{Backend: "sql"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sql_dialect")
}
