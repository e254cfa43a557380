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

package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/llm"
	"github.com/agentcore/orchestrator/tool"
)

// scriptedLLM returns one canned response per call, in order, and records
// the messages it was called with.
type scriptedLLM struct {
	responses []*core.LLMResponse
	errs      []error
	calls     [][]core.Message
	idx       int
}

func (s *scriptedLLM) Generate(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (*core.LLMResponse, error) {
	s.calls = append(s.calls, messages)
	i := s.idx
	s.idx++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.responses) {
		return &core.LLMResponse{Content: "done", FinishReason: core.FinishStop}, nil
	}
	return s.responses[i], nil
}

func (s *scriptedLLM) GenerateStream(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (<-chan llm.StreamEvent, error) {
	panic("not used in these tests")
}

func (s *scriptedLLM) ModelName() string   { return "scripted" }
func (s *scriptedLLM) MaxTokenCeiling() int { return 100000 }

var _ llm.Client = (*scriptedLLM)(nil)

// streamingLLM fakes GenerateStream only, emitting one canned stream of
// events per call, in order.
type streamingLLM struct {
	streams [][]llm.StreamEvent
	idx     int
}

func (s *streamingLLM) Generate(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (*core.LLMResponse, error) {
	panic("not used in these tests")
}

func (s *streamingLLM) GenerateStream(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (<-chan llm.StreamEvent, error) {
	i := s.idx
	s.idx++
	out := make(chan llm.StreamEvent, len(s.streams[i]))
	for _, ev := range s.streams[i] {
		out <- ev
	}
	close(out)
	return out, nil
}

func (s *streamingLLM) ModelName() string   { return "streaming" }
func (s *streamingLLM) MaxTokenCeiling() int { return 100000 }

var _ llm.Client = (*streamingLLM)(nil)

// cancellingLLM returns ctx.Err() the moment ctx is already cancelled,
// mimicking an in-flight LLM call racing against an external cancellation.
type cancellingLLM struct{}

func (c *cancellingLLM) Generate(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (*core.LLMResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *cancellingLLM) GenerateStream(ctx context.Context, messages []core.Message, tools []llm.ToolDefinition, maxTokens int) (<-chan llm.StreamEvent, error) {
	panic("not used in these tests")
}

func (c *cancellingLLM) ModelName() string   { return "cancelling" }
func (c *cancellingLLM) MaxTokenCeiling() int { return 100000 }

var _ llm.Client = (*cancellingLLM)(nil)

type echoTool struct {
	name    string
	result  tool.Result
	lastArg map[string]any
}

func (e *echoTool) Name() string                   { return e.name }
func (e *echoTool) Description() string             { return "echoes its argument" }
func (e *echoTool) Parameters() map[string]any      { return map[string]any{"type": "object"} }
func (e *echoTool) AddInstructionsToPrompt() bool   { return false }
func (e *echoTool) Instructions() string            { return "" }
func (e *echoTool) Execute(ctx context.Context, args map[string]any) tool.Result {
	e.lastArg = args
	return e.result
}

var _ tool.Tool = (*echoTool)(nil)

func newTestAgent(t *testing.T, llmClient llm.Client, registry *tool.Registry) *Agent {
	t.Helper()
	return New(Config{LLM: llmClient, Tools: registry, WorkspaceDir: "/workspace"})
}

func TestAgent_Run_NoToolCalls_CompletesImmediately(t *testing.T) {
	fake := &scriptedLLM{responses: []*core.LLMResponse{
		{Content: "hello there", FinishReason: core.FinishStop},
	}}
	a := newTestAgent(t, fake, tool.NewRegistry())

	result, err := a.Run(context.Background(), "hi", nil, Limits{MaxSteps: 5})
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Content)
	assert.Equal(t, ReasonTaskCompleted, result.Reason)
	assert.Equal(t, 1, result.Steps)
}

func TestAgent_Run_ToolCall_ThenCompletion(t *testing.T) {
	fake := &scriptedLLM{responses: []*core.LLMResponse{
		{
			Content:      "let me check",
			ToolCalls:    []core.ToolCall{{ID: "call_1", Name: "echo", Arguments: map[string]any{"x": 1}}},
			FinishReason: core.FinishToolUse,
		},
		{Content: "final answer", FinishReason: core.FinishStop},
	}}
	registry := tool.NewRegistry()
	et := &echoTool{name: "echo", result: tool.Result{Success: true, Content: "echoed"}}
	require.NoError(t, registry.Register(et))

	a := newTestAgent(t, fake, registry)
	result, err := a.Run(context.Background(), "hi", nil, Limits{MaxSteps: 5})
	require.NoError(t, err)
	assert.Equal(t, "final answer", result.Content)
	assert.Equal(t, ReasonTaskCompleted, result.Reason)
	assert.Equal(t, 2, result.Steps)
	assert.Equal(t, map[string]any{"x": 1}, et.lastArg)

	// the tool message referencing call_1 must appear immediately after the
	// assistant message that requested it, before any further assistant turn.
	var sawAssistantWithCall, sawToolResult bool
	for i, msg := range result.Messages {
		if msg.Role == core.RoleAssistant && len(msg.ToolCalls) == 1 {
			sawAssistantWithCall = true
			require.Less(t, i+1, len(result.Messages))
			next := result.Messages[i+1]
			assert.Equal(t, core.RoleTool, next.Role)
			assert.Equal(t, "call_1", next.ToolCallID)
			sawToolResult = true
		}
	}
	assert.True(t, sawAssistantWithCall)
	assert.True(t, sawToolResult)
}

func TestAgent_Run_UnknownTool_FedBackAsToolMessage(t *testing.T) {
	fake := &scriptedLLM{responses: []*core.LLMResponse{
		{
			ToolCalls:    []core.ToolCall{{ID: "call_1", Name: "does_not_exist"}},
			FinishReason: core.FinishToolUse,
		},
		{Content: "ok recovered", FinishReason: core.FinishStop},
	}}
	a := newTestAgent(t, fake, tool.NewRegistry())

	result, err := a.Run(context.Background(), "hi", nil, Limits{MaxSteps: 5})
	require.NoError(t, err)
	assert.Equal(t, "ok recovered", result.Content)

	found := false
	for _, msg := range result.Messages {
		if msg.Role == core.RoleTool && strings.Contains(msg.Content, "Unknown tool") {
			found = true
		}
	}
	assert.True(t, found, "expected an unknown-tool message fed back to the LLM")
}

func TestAgent_Run_LLMFailure_ReturnsSentinel(t *testing.T) {
	fake := &scriptedLLM{errs: []error{errors.New("connection reset")}}
	a := newTestAgent(t, fake, tool.NewRegistry())

	result, err := a.Run(context.Background(), "hi", nil, Limits{MaxSteps: 5})
	require.NoError(t, err)
	assert.Equal(t, ReasonError, result.Reason)
	assert.True(t, strings.HasPrefix(result.Content, LLMFailedSentinel))
}

func TestAgent_Run_MaxStepsReached_NonFatalCompletion(t *testing.T) {
	fake := &scriptedLLM{responses: []*core.LLMResponse{
		{ToolCalls: []core.ToolCall{{ID: "c1", Name: "noop"}}, FinishReason: core.FinishToolUse},
		{ToolCalls: []core.ToolCall{{ID: "c2", Name: "noop"}}, FinishReason: core.FinishToolUse},
	}}
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(&echoTool{name: "noop", result: tool.Result{Success: true, Content: "ok"}}))

	a := newTestAgent(t, fake, registry)
	result, err := a.Run(context.Background(), "hi", nil, Limits{MaxSteps: 2})
	require.NoError(t, err)
	assert.Equal(t, ReasonMaxStepsReached, result.Reason)
	assert.Equal(t, MaxStepsSentinel, result.Content)
	assert.Equal(t, 2, result.Steps)
}

func TestAgent_Run_MaxStepsOne_StopsAfterSingleStep(t *testing.T) {
	fake := &scriptedLLM{responses: []*core.LLMResponse{
		{ToolCalls: []core.ToolCall{{ID: "c1", Name: "noop"}}, FinishReason: core.FinishToolUse},
	}}
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(&echoTool{name: "noop", result: tool.Result{Success: true, Content: "ok"}}))

	a := newTestAgent(t, fake, registry)
	result, err := a.Run(context.Background(), "hi", nil, Limits{MaxSteps: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Steps)
	assert.Equal(t, ReasonMaxStepsReached, result.Reason)
	assert.Equal(t, 1, len(fake.calls))
}

func TestAgent_Run_ToolOutputTruncation(t *testing.T) {
	longOutput := strings.Repeat("x", 100)
	fake := &scriptedLLM{responses: []*core.LLMResponse{
		{ToolCalls: []core.ToolCall{{ID: "c1", Name: "verbose"}}, FinishReason: core.FinishToolUse},
		{Content: "ok", FinishReason: core.FinishStop},
	}}
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(&echoTool{name: "verbose", result: tool.Result{Success: true, Content: longOutput}}))

	a := New(Config{LLM: fake, Tools: registry, ToolOutputLimit: 10})
	result, err := a.Run(context.Background(), "hi", nil, Limits{MaxSteps: 5})
	require.NoError(t, err)

	var toolMsg *core.Message
	for i := range result.Messages {
		if result.Messages[i].Role == core.RoleTool {
			toolMsg = &result.Messages[i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.True(t, strings.HasPrefix(toolMsg.Content, strings.Repeat("x", 10)))
	assert.Contains(t, toolMsg.Content, "truncated")
}

func TestBuildSystemPrompt_WorkspaceFooterIdempotent(t *testing.T) {
	first := BuildSystemPrompt("base prompt", "", nil, "/workspace/root")
	assert.Equal(t, 1, strings.Count(first, "Current Workspace:"))

	// simulate re-assembling from a prompt that already carries the footer
	second := BuildSystemPrompt(first, "", nil, "/workspace/root")
	assert.Equal(t, 1, strings.Count(second, "Current Workspace:"))
}

func TestBuildSystemPrompt_DefaultsWhenEmpty(t *testing.T) {
	got := BuildSystemPrompt("", "", nil, "")
	assert.Equal(t, DefaultSystemPrompt, got)
}

func TestAgent_Run_CancelledDuringGenerate_ReturnsReasonCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := newTestAgent(t, &cancellingLLM{}, tool.NewRegistry())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result, err := a.Run(ctx, "hi", nil, Limits{MaxSteps: 5})
	require.Error(t, err)
	assert.Equal(t, ReasonCancelled, result.Reason)
	assert.Empty(t, result.Content)
}

func drainStream(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestAgent_RunStream_NoToolCalls_EmitsDeltasThenDone(t *testing.T) {
	fake := &streamingLLM{streams: [][]llm.StreamEvent{{
		{Type: llm.StreamContentDelta, Delta: "hel"},
		{Type: llm.StreamContentDelta, Delta: "lo"},
		{Type: llm.StreamDone, Response: &core.LLMResponse{Content: "hello", FinishReason: core.FinishStop}},
	}}}
	a := newTestAgent(t, fake, tool.NewRegistry())

	events := drainStream(a.RunStream(context.Background(), "hi", nil, Limits{MaxSteps: 5}))

	var deltas []string
	var done *Event
	for i, ev := range events {
		if ev.Type == EventContentDelta {
			deltas = append(deltas, ev.Delta)
		}
		if ev.Type == EventDone {
			done = &events[i]
		}
	}
	require.NotNil(t, done)
	assert.Equal(t, []string{"hel", "lo"}, deltas)
	assert.Equal(t, "hello", done.Result.Content)
	assert.Equal(t, ReasonTaskCompleted, done.Result.Reason)
}

func TestAgent_RunStream_ToolCall_EmitsToolResultThenCompletes(t *testing.T) {
	fake := &streamingLLM{streams: [][]llm.StreamEvent{
		{
			{Type: llm.StreamToolUse, ToolCall: &core.ToolCall{ID: "call_1", Name: "echo", Arguments: map[string]any{"x": 1}}},
			{Type: llm.StreamDone, Response: &core.LLMResponse{
				ToolCalls:    []core.ToolCall{{ID: "call_1", Name: "echo", Arguments: map[string]any{"x": 1}}},
				FinishReason: core.FinishToolUse,
			}},
		},
		{
			{Type: llm.StreamDone, Response: &core.LLMResponse{Content: "final answer", FinishReason: core.FinishStop}},
		},
	}}
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(&echoTool{name: "echo", result: tool.Result{Success: true, Content: "echoed"}}))
	a := newTestAgent(t, fake, registry)

	events := drainStream(a.RunStream(context.Background(), "hi", nil, Limits{MaxSteps: 5}))

	var sawToolResult bool
	var done *Event
	for i, ev := range events {
		if ev.Type == EventToolResult {
			sawToolResult = true
			assert.Equal(t, "call_1", ev.ToolCallID)
			assert.Equal(t, "echoed", ev.ToolResultValue)
			assert.True(t, ev.ToolSuccess)
		}
		if ev.Type == EventDone {
			done = &events[i]
		}
	}
	assert.True(t, sawToolResult)
	require.NotNil(t, done)
	assert.Equal(t, "final answer", done.Result.Content)
	assert.Equal(t, ReasonTaskCompleted, done.Result.Reason)
}

func TestAgent_RunStream_LLMFailure_EmitsErrorThenDone(t *testing.T) {
	fake := &streamingLLM{streams: [][]llm.StreamEvent{{
		{Type: llm.StreamError, Err: errors.New("connection reset")},
	}}}
	a := newTestAgent(t, fake, tool.NewRegistry())

	events := drainStream(a.RunStream(context.Background(), "hi", nil, Limits{MaxSteps: 5}))

	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, EventDone, events[1].Type)
	assert.Equal(t, ReasonError, events[1].Result.Reason)
	assert.True(t, strings.HasPrefix(events[1].Result.Content, LLMFailedSentinel))
}
