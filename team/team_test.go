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

package team

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/llm"
	"github.com/agentcore/orchestrator/session"
	"github.com/agentcore/orchestrator/tool"
)

// routedLLM returns a canned response keyed by the identity of the calling
// "role": it inspects the system message (index 0) to decide which member
// is speaking, and otherwise drives the leader through one delegation then
// a final answer.
type routedLLM struct {
	mu          sync.Mutex
	leaderCalls int
}

func (r *routedLLM) Generate(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (*core.LLMResponse, error) {
	sys := ""
	if len(messages) > 0 {
		sys = messages[0].Content
	}

	if strings.Contains(sys, "leader of the") {
		r.mu.Lock()
		r.leaderCalls++
		call := r.leaderCalls
		r.mu.Unlock()

		if call == 1 {
			if strings.Contains(sys, "delegate_task_to_all_members") || hasToolNamed(tools, "delegate_task_to_all_members") {
				return &core.LLMResponse{
					ToolCalls:    []core.ToolCall{{ID: "c1", Name: "delegate_task_to_all_members", Arguments: map[string]any{"task": "summarize asyncio"}}},
					FinishReason: core.FinishToolUse,
				}, nil
			}
			return &core.LLMResponse{
				ToolCalls:    []core.ToolCall{{ID: "c1", Name: "delegate_task_to_member", Arguments: map[string]any{"member_id": "A", "task": "summarize asyncio"}}},
				FinishReason: core.FinishToolUse,
			}, nil
		}
		return &core.LLMResponse{Content: "final synthesized answer", FinishReason: core.FinishStop}, nil
	}

	// A member agent: answer immediately.
	return &core.LLMResponse{Content: fmt.Sprintf("member response for: %s", sys), FinishReason: core.FinishStop}, nil
}

func hasToolNamed(tools []llm.ToolDefinition, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

func (r *routedLLM) GenerateStream(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (<-chan llm.StreamEvent, error) {
	panic("not used")
}
func (r *routedLLM) ModelName() string   { return "routed" }
func (r *routedLLM) MaxTokenCeiling() int { return 100000 }

var _ llm.Client = (*routedLLM)(nil)

func testConfig(delegateToAll bool) Config {
	return Config{
		Name:        "research",
		Description: "a test team",
		Members: []MemberConfig{
			{ID: "A", Name: "Researcher", Role: "researcher"},
			{ID: "B", Name: "Writer", Role: "writer"},
		},
		DelegateToAll: delegateToAll,
	}
}

func TestTeam_Run_SingleDelegation_RecordsLeaderAndMemberRuns(t *testing.T) {
	sessions, err := session.NewFileManager(filepath.Join(t.TempDir(), "team_sessions.json"), true)
	require.NoError(t, err)

	tm := New(Options{TeamConfig: testConfig(false), LLM: &routedLLM{}, Sessions: sessions})
	result, err := tm.Run(context.Background(), "Summarize asyncio", 5, "sess-1", "user-1", 3)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "final synthesized answer", result.Message)
	require.Len(t, result.MemberRuns, 1)
	assert.Equal(t, "A", result.MemberRuns[0].MemberID)

	runs, ok, err := sessions.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, runs, 2)

	var leaderRunID string
	for _, r := range runs {
		if r.RunnerType == session.RunnerTeamLeader {
			leaderRunID = r.RunID
		}
	}
	require.NotEmpty(t, leaderRunID)
	for _, r := range runs {
		if r.RunnerType == session.RunnerTeamMember {
			assert.Equal(t, leaderRunID, r.ParentRunID)
		}
	}
}

func TestTeam_Run_Broadcast_RunsEveryMember(t *testing.T) {
	sessions, err := session.NewFileManager(filepath.Join(t.TempDir(), "team_sessions.json"), true)
	require.NoError(t, err)

	tm := New(Options{TeamConfig: testConfig(true), LLM: &routedLLM{}, Sessions: sessions})
	result, err := tm.Run(context.Background(), "Describe async", 5, "sess-1", "", 3)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.MemberRuns, 2)

	runs, ok, err := sessions.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, ok)

	memberCount := 0
	for _, r := range runs {
		if r.RunnerType == session.RunnerTeamMember {
			memberCount++
		}
	}
	assert.Equal(t, 2, memberCount)
}

func TestDelegationTool_UnknownMemberID_ReturnsErrorWithAvailableIDs(t *testing.T) {
	tm := New(Options{TeamConfig: testConfig(false), LLM: &routedLLM{}})
	d := tm.buildDelegationTool("", "")

	result := d.Execute(context.Background(), map[string]any{"member_id": "Z", "task": "x"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Z")
	assert.Contains(t, result.Error, "A")
	assert.Contains(t, result.Error, "B")
}

func TestBuildLeaderSystemPrompt_ListsAllMembers(t *testing.T) {
	tm := New(Options{TeamConfig: testConfig(false), LLM: &routedLLM{}})
	prompt := tm.buildLeaderSystemPrompt("")
	assert.Contains(t, prompt, "Researcher")
	assert.Contains(t, prompt, "Writer")
	assert.Contains(t, prompt, "research")
}

func TestRunWithDependencies_ParallelizableLayerAndAppendix(t *testing.T) {
	tm := New(Options{TeamConfig: testConfig(false), LLM: &failingMemberLLM{}})
	tasks := []Task{
		{ID: "t1", Task: "root", AssignedTo: "A"},
		{ID: "t2", Task: "uses t1", AssignedTo: "A", DependsOn: []string{"t1"}},
		{ID: "t3", Task: "also uses t1", AssignedTo: "B", DependsOn: []string{"t1"}},
		{ID: "t4", Task: "uses t2 and t3", AssignedTo: "A", DependsOn: []string{"t2", "t3"}},
	}

	result, err := tm.RunWithDependencies(context.Background(), tasks, "", "")
	require.NoError(t, err)
	require.False(t, result.AnyFailed)

	require.Len(t, result.Layers, 3)
	assert.ElementsMatch(t, []string{"t1"}, result.Layers[0])
	assert.ElementsMatch(t, []string{"t2", "t3"}, result.Layers[1])
	assert.ElementsMatch(t, []string{"t4"}, result.Layers[2])

	var t4Result string
	for _, tr := range result.Tasks {
		assert.Equal(t, TaskCompleted, tr.Status)
		if tr.ID == "t4" {
			t4Result = tr.Result
		}
	}
	// failingMemberLLM echoes its prompt, so t4's result shows the appendix
	// it was given: one entry per direct dependency.
	assert.Contains(t, t4Result, "Dependency task results:\n[t2]: ok: uses t1")
	assert.Contains(t, t4Result, "[t3]: ok: also uses t1")
}

func TestRunWithDependencies_CycleDetected(t *testing.T) {
	tm := New(Options{TeamConfig: testConfig(false), LLM: &routedLLM{}})
	tasks := []Task{
		{ID: "t1", Task: "a", AssignedTo: "A", DependsOn: []string{"t2"}},
		{ID: "t2", Task: "b", AssignedTo: "A", DependsOn: []string{"t1"}},
	}
	_, err := tm.RunWithDependencies(context.Background(), tasks, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestRunWithDependencies_DanglingDependencyDetected(t *testing.T) {
	tm := New(Options{TeamConfig: testConfig(false), LLM: &routedLLM{}})
	tasks := []Task{
		{ID: "t1", Task: "a", AssignedTo: "A", DependsOn: []string{"ghost"}},
	}
	_, err := tm.RunWithDependencies(context.Background(), tasks, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}

// failingMemberLLM fails whenever the member task contains "fail-me".
type failingMemberLLM struct{}

func (f *failingMemberLLM) Generate(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (*core.LLMResponse, error) {
	last := messages[len(messages)-1]
	if strings.Contains(last.Content, "fail-me") {
		return &core.LLMResponse{Content: "", FinishReason: core.FinishStop}, nil
	}
	return &core.LLMResponse{Content: "ok: " + last.Content, FinishReason: core.FinishStop}, nil
}
func (f *failingMemberLLM) GenerateStream(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (<-chan llm.StreamEvent, error) {
	panic("not used")
}
func (f *failingMemberLLM) ModelName() string   { return "failing" }
func (f *failingMemberLLM) MaxTokenCeiling() int { return 100000 }

var _ llm.Client = (*failingMemberLLM)(nil)

func TestRunWithDependencies_FailureSkipsLaterLayers(t *testing.T) {
	tm := New(Options{TeamConfig: testConfig(false), LLM: &failingMemberLLM{}})
	tasks := []Task{
		{ID: "t1", Task: "ok", AssignedTo: "A"},
		{ID: "t2", Task: "fail-me", AssignedTo: "A", DependsOn: []string{"t1"}},
		{ID: "t3", Task: "ok too", AssignedTo: "A", DependsOn: []string{"t1"}},
		{ID: "t4", Task: "uses t2", AssignedTo: "A", DependsOn: []string{"t2", "t3"}},
	}

	result, err := tm.RunWithDependencies(context.Background(), tasks, "", "")
	require.NoError(t, err)
	assert.True(t, result.AnyFailed)

	byID := map[string]TaskResult{}
	for _, tr := range result.Tasks {
		byID[tr.ID] = tr
	}
	assert.Equal(t, TaskCompleted, byID["t1"].Status)
	assert.Equal(t, TaskFailed, byID["t2"].Status)
	assert.Equal(t, TaskSkipped, byID["t4"].Status)
	assert.Contains(t, byID["t4"].Reason, "t2")
}

var _ tool.Tool = (*delegationTool)(nil)
