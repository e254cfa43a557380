// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package spawnagent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/llm"
	"github.com/agentcore/orchestrator/tool"
)

type canned struct {
	content string
	calls   int
}

func (c *canned) Generate(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (*core.LLMResponse, error) {
	c.calls++
	return &core.LLMResponse{Content: c.content, FinishReason: core.FinishStop}, nil
}

func (c *canned) GenerateStream(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (<-chan llm.StreamEvent, error) {
	panic("not used")
}

func (c *canned) ModelName() string   { return "canned" }
func (c *canned) MaxTokenCeiling() int { return 100000 }

var _ llm.Client = (*canned)(nil)

type stubTool struct{ name string }

func (s *stubTool) Name() string                 { return s.name }
func (s *stubTool) Description() string          { return "stub" }
func (s *stubTool) Parameters() map[string]any    { return map[string]any{"type": "object"} }
func (s *stubTool) AddInstructionsToPrompt() bool { return false }
func (s *stubTool) Instructions() string          { return "" }
func (s *stubTool) Execute(ctx context.Context, args map[string]any) tool.Result {
	return tool.Result{Success: true, Content: "ok"}
}

var _ tool.Tool = (*stubTool)(nil)

func TestSpawnAgent_DepthExceeded_NeverCallsLLM(t *testing.T) {
	llmClient := &canned{content: "should never run"}
	parentTools := tool.NewRegistry()
	st := New(Config{LLM: llmClient, ParentTools: parentTools, WorkspaceDir: "/ws", CurrentDepth: 3, MaxDepth: 3})

	result := st.Execute(context.Background(), map[string]any{"task": "do something"})
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "Maximum agent nesting depth (3) reached")
	assert.Equal(t, 0, llmClient.calls)
}

func TestSpawnAgent_Execute_RunsChildAndFormatsResult(t *testing.T) {
	llmClient := &canned{content: "the sub-agent's answer"}
	parentTools := tool.NewRegistry()
	require.NoError(t, parentTools.Register(&stubTool{name: "read_file"}))

	st := New(Config{LLM: llmClient, ParentTools: parentTools, WorkspaceDir: "/ws", CurrentDepth: 0, MaxDepth: 3})

	result := st.Execute(context.Background(), map[string]any{
		"task": "investigate the bug",
		"role": "debugger",
	})
	require.True(t, result.Success)
	assert.Contains(t, result.Content, "Sub-Agent Execution Result (debugger)")
	assert.Contains(t, result.Content, "investigate the bug")
	assert.Contains(t, result.Content, "the sub-agent's answer")
	assert.Contains(t, result.Content, "Depth:** 1/3")
}

func TestSpawnAgent_Execute_MissingTask(t *testing.T) {
	st := New(Config{LLM: &canned{}, ParentTools: tool.NewRegistry(), MaxDepth: 3})
	result := st.Execute(context.Background(), map[string]any{})
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "task is required")
}

func TestSpawnAgent_Execute_TaskTruncatedInResult(t *testing.T) {
	long := strings.Repeat("a", 400)
	st := New(Config{LLM: &canned{content: "done"}, ParentTools: tool.NewRegistry(), WorkspaceDir: "/ws", MaxDepth: 3})

	result := st.Execute(context.Background(), map[string]any{"task": long})
	require.True(t, result.Success)
	assert.Contains(t, result.Content, strings.Repeat("a", 300)+"...")
	assert.NotContains(t, result.Content, strings.Repeat("a", 301)+"a")
}

func TestBuildChildTools_ExplicitSubset_DropsSpawnAgentAtMaxDepthMinusOne(t *testing.T) {
	parentTools := tool.NewRegistry()
	require.NoError(t, parentTools.Register(&stubTool{name: "read_file"}))
	st := New(Config{ParentTools: parentTools, CurrentDepth: 1, MaxDepth: 2})
	// Register a spawn_agent instance on the parent set for this scenario.
	parentTools.Replace(New(Config{ParentTools: parentTools, CurrentDepth: 1, MaxDepth: 2}))

	filtered := st.buildChildTools([]string{"read_file", ToolName})
	_, hasSpawn := filtered.Get(ToolName)
	assert.False(t, hasSpawn, "spawn_agent must be dropped when the child would already be at max depth")
	_, hasRead := filtered.Get("read_file")
	assert.True(t, hasRead)
}

func TestBuildChildTools_InheritAll_IncrementsSpawnAgentDepth(t *testing.T) {
	parentTools := tool.NewRegistry()
	require.NoError(t, parentTools.Register(&stubTool{name: "read_file"}))
	parentSpawn := New(Config{ParentTools: parentTools, CurrentDepth: 0, MaxDepth: 3})
	parentTools.Replace(parentSpawn)

	inherited := parentSpawn.buildChildTools(nil)
	got, ok := inherited.Get(ToolName)
	require.True(t, ok)
	childSpawn, ok := got.(*Tool)
	require.True(t, ok)
	assert.Equal(t, 1, childSpawn.cfg.CurrentDepth)
}

func TestBuildChildTools_InheritAll_OmitsSpawnAgentAtMaxDepth(t *testing.T) {
	parentTools := tool.NewRegistry()
	parentSpawn := New(Config{ParentTools: parentTools, CurrentDepth: 2, MaxDepth: 3})
	parentTools.Replace(parentSpawn)

	inherited := parentSpawn.buildChildTools(nil)
	_, ok := inherited.Get(ToolName)
	assert.False(t, ok, "spawn_agent should be omitted entirely once the child would be at max depth")
}
