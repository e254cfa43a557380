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
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/llm"
	"github.com/agentcore/orchestrator/tokenmanager"
	"github.com/agentcore/orchestrator/tool"
)

const defaultMaxSteps = 15
const defaultToolOutputLimit = 8000
const defaultLLMTimeout = 120 * time.Second
const truncationSuffix = "\n... [truncated, %d characters omitted]"

// RunLogger receives structured events as a run progresses. Implementations
// must not block the step loop for long; runlog.Logger satisfies this.
type RunLogger interface {
	Step(step, maxSteps, estimatedTokens int)
	Request(messages []core.Message)
	Response(resp *core.LLMResponse)
	ToolExecution(call core.ToolCall, result tool.Result, label string)
	Event(name string, payload map[string]any)
}

type noopLogger struct{}

func (noopLogger) Step(int, int, int)                               {}
func (noopLogger) Request([]core.Message)                           {}
func (noopLogger) Response(*core.LLMResponse)                        {}
func (noopLogger) ToolExecution(core.ToolCall, tool.Result, string)  {}
func (noopLogger) Event(string, map[string]any)                      {}

// Limits bounds one Run/RunStream call.
type Limits struct {
	MaxSteps  int
	MaxTokens int
}

// Config constructs an Agent.
type Config struct {
	LLM             llm.Client
	Tools           *tool.Registry
	TokenManager    *tokenmanager.Manager
	Logger          *zap.Logger
	RunLog          RunLogger
	SystemPrompt    string
	Instructions    string
	WorkspaceDir    string
	ToolOutputLimit int
	LLMTimeout      time.Duration
}

// Agent runs the step loop over one LLM client and tool registry.
type Agent struct {
	llmClient    llm.Client
	tools        *tool.Registry
	tokens       *tokenmanager.Manager
	log          *zap.Logger
	runLog       RunLogger
	systemPrompt string

	toolOutputLimit int
	llmTimeout      time.Duration
}

// New constructs an Agent from cfg, assembling the system prompt from the
// base prompt, instructions, and any tool-contributed instruction text.
func New(cfg Config) *Agent {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	runLog := cfg.RunLog
	if runLog == nil {
		runLog = noopLogger{}
	}
	toolOutputLimit := cfg.ToolOutputLimit
	if toolOutputLimit <= 0 {
		toolOutputLimit = defaultToolOutputLimit
	}
	timeout := cfg.LLMTimeout
	if timeout <= 0 {
		timeout = defaultLLMTimeout
	}

	tools := cfg.Tools
	if tools == nil {
		tools = tool.NewRegistry()
	}

	var toolInstructions []string
	for _, t := range tools.List() {
		if t.AddInstructionsToPrompt() && t.Instructions() != "" {
			toolInstructions = append(toolInstructions, t.Instructions())
		}
	}

	systemPrompt := BuildSystemPrompt(cfg.SystemPrompt, cfg.Instructions, toolInstructions, cfg.WorkspaceDir)

	return &Agent{
		llmClient:       cfg.LLM,
		tools:           tools,
		tokens:          cfg.TokenManager,
		log:             log,
		runLog:          runLog,
		systemPrompt:    systemPrompt,
		toolOutputLimit: toolOutputLimit,
		llmTimeout:      timeout,
	}
}

// SystemPrompt returns the assembled system prompt (useful for session
// history rendering and tests).
func (a *Agent) SystemPrompt() string { return a.systemPrompt }

// Tools exposes the agent's tool registry, e.g. so SpawnAgentTool can read
// the parent's tool set when constructing a child.
func (a *Agent) Tools() *tool.Registry { return a.tools }

func (a *Agent) toolDefinitions() []llm.ToolDefinition {
	list := a.tools.List()
	defs := make([]llm.ToolDefinition, len(list))
	for i, t := range list {
		defs[i] = llm.ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
	}
	return defs
}

func withLimits(limits Limits) Limits {
	if limits.MaxSteps <= 0 {
		limits.MaxSteps = defaultMaxSteps
	}
	return limits
}

// buildInitialMessages assembles the system/history/user seed shared by Run
// and RunStream.
func (a *Agent) buildInitialMessages(userMessage string, history []core.Message) []core.Message {
	messages := make([]core.Message, 0, len(history)+2)
	messages = append(messages, core.Message{Role: core.RoleSystem, Content: a.systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, core.Message{Role: core.RoleUser, Content: userMessage})
	return messages
}

// isCancellation reports whether err reflects ctx's own cancellation rather
// than a transient LLM failure (e.g. a per-call timeout derived from ctx),
// so the two can be told apart in the returned CompletionReason (spec §5/§7:
// cancellation must never be silently reported as an LLM failure).
func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

// Run executes the step loop to completion, blocking until the model stops
// requesting tools, the step budget is exhausted, or ctx is cancelled.
func (a *Agent) Run(ctx context.Context, userMessage string, history []core.Message, limits Limits) (*Result, error) {
	limits = withLimits(limits)

	messages := a.buildInitialMessages(userMessage, history)

	var usage core.TokenUsage
	step := 0

	for step < limits.MaxSteps {
		select {
		case <-ctx.Done():
			return &Result{Reason: ReasonCancelled, Steps: step, Messages: messages, Usage: usage}, ctx.Err()
		default:
		}

		step++

		if a.tokens != nil {
			compressed, err := a.tokens.MaybeCompress(ctx, messages)
			if err != nil {
				a.log.Warn("token compression failed, continuing with uncompressed history", zap.Error(err))
			} else {
				messages = compressed
			}
		}

		estimated := 0
		if a.tokens != nil {
			estimated = a.tokens.EstimatedTokens(messages)
		}
		a.runLog.Step(step, limits.MaxSteps, estimated)

		callCtx, cancel := context.WithTimeout(ctx, a.llmTimeout)
		a.runLog.Request(messages)
		resp, err := a.llmClient.Generate(callCtx, messages, a.toolDefinitions(), limits.MaxTokens)
		cancel()
		if err != nil {
			if isCancellation(ctx, err) {
				return &Result{Reason: ReasonCancelled, Steps: step, Messages: messages, Usage: usage}, ctx.Err()
			}
			return &Result{
				Content:  LLMFailedSentinel + err.Error(),
				Reason:   ReasonError,
				Steps:    step,
				Messages: messages,
				Usage:    usage,
			}, nil
		}
		a.runLog.Response(resp)

		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens

		assistantMsg := core.Message{
			Role:      core.RoleAssistant,
			Content:   resp.Content,
			Reasoning: resp.Reasoning,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistantMsg)

		if !resp.HasToolCalls() {
			return &Result{Content: resp.Content, Reason: ReasonTaskCompleted, Steps: step, Messages: messages, Usage: usage}, nil
		}

		for _, call := range resp.ToolCalls {
			result := a.dispatch(ctx, call)
			a.runLog.ToolExecution(call, result, toolLabel(resp.Content, call.Name))

			content := result.Content
			if !result.Success {
				content = result.Error
			} else if len(content) > a.toolOutputLimit {
				omitted := len(content) - a.toolOutputLimit
				content = content[:a.toolOutputLimit] + fmt.Sprintf(truncationSuffix, omitted)
			}

			messages = append(messages, core.Message{
				Role:       core.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}

	return &Result{Content: MaxStepsSentinel, Reason: ReasonMaxStepsReached, Steps: step, Messages: messages, Usage: usage}, nil
}

// RunStream drives the same step loop as Run, but emits incremental Events
// over the returned channel as each LLM call streams in, rather than
// blocking until the whole run finishes. The channel always ends with
// exactly one EventDone carrying the same *Result Run would have returned;
// an EventError may precede it when a step failed. The channel is closed
// once the terminal event has been sent.
func (a *Agent) RunStream(ctx context.Context, userMessage string, history []core.Message, limits Limits) <-chan Event {
	limits = withLimits(limits)
	out := make(chan Event, 64)
	go a.runStream(ctx, userMessage, history, limits, out)
	return out
}

func (a *Agent) runStream(ctx context.Context, userMessage string, history []core.Message, limits Limits, out chan<- Event) {
	defer close(out)

	messages := a.buildInitialMessages(userMessage, history)

	var usage core.TokenUsage
	step := 0

	done := func(content string, reason CompletionReason) {
		out <- Event{Type: EventDone, Result: &Result{Content: content, Reason: reason, Steps: step, Messages: messages, Usage: usage}}
	}
	failed := func(err error) {
		if isCancellation(ctx, err) {
			done("", ReasonCancelled)
			return
		}
		out <- Event{Type: EventError, Err: err}
		done(LLMFailedSentinel+err.Error(), ReasonError)
	}

	for step < limits.MaxSteps {
		select {
		case <-ctx.Done():
			done("", ReasonCancelled)
			return
		default:
		}

		step++

		if a.tokens != nil {
			compressed, err := a.tokens.MaybeCompress(ctx, messages)
			if err != nil {
				a.log.Warn("token compression failed, continuing with uncompressed history", zap.Error(err))
			} else {
				messages = compressed
			}
		}

		estimated := 0
		if a.tokens != nil {
			estimated = a.tokens.EstimatedTokens(messages)
		}
		a.runLog.Step(step, limits.MaxSteps, estimated)
		out <- Event{Type: EventStep, Step: step, MaxSteps: limits.MaxSteps, EstimatedTokens: estimated}

		callCtx, cancel := context.WithTimeout(ctx, a.llmTimeout)
		a.runLog.Request(messages)
		stream, err := a.llmClient.GenerateStream(callCtx, messages, a.toolDefinitions(), limits.MaxTokens)
		if err != nil {
			cancel()
			failed(err)
			return
		}

		var resp *core.LLMResponse
		var streamErr error
		for ev := range stream {
			switch ev.Type {
			case llm.StreamThinkingDelta:
				out <- Event{Type: EventThinkingDelta, Delta: ev.Delta}
			case llm.StreamContentDelta:
				out <- Event{Type: EventContentDelta, Delta: ev.Delta}
			case llm.StreamToolUse:
				out <- Event{Type: EventToolCall, ToolCall: ev.ToolCall}
			case llm.StreamDone:
				resp = ev.Response
			case llm.StreamError:
				streamErr = ev.Err
			}
		}
		cancel()

		if streamErr != nil {
			failed(streamErr)
			return
		}
		if resp == nil {
			failed(fmt.Errorf("agent: stream closed without a terminal event"))
			return
		}
		a.runLog.Response(resp)

		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens

		assistantMsg := core.Message{
			Role:      core.RoleAssistant,
			Content:   resp.Content,
			Reasoning: resp.Reasoning,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistantMsg)

		if !resp.HasToolCalls() {
			done(resp.Content, ReasonTaskCompleted)
			return
		}

		for _, call := range resp.ToolCalls {
			result := a.dispatch(ctx, call)
			a.runLog.ToolExecution(call, result, toolLabel(resp.Content, call.Name))

			content := result.Content
			if !result.Success {
				content = result.Error
			} else if len(content) > a.toolOutputLimit {
				omitted := len(content) - a.toolOutputLimit
				content = content[:a.toolOutputLimit] + fmt.Sprintf(truncationSuffix, omitted)
			}
			out <- Event{Type: EventToolResult, ToolCallID: call.ID, ToolResultValue: content, ToolSuccess: result.Success}

			messages = append(messages, core.Message{
				Role:       core.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}

	done(MaxStepsSentinel, ReasonMaxStepsReached)
}

// dispatch executes one tool call, translating an unknown tool name or a
// tool-reported error into a failed tool.Result rather than aborting the
// run (spec §7, error kinds 2-3).
func (a *Agent) dispatch(ctx context.Context, call core.ToolCall) tool.Result {
	t, ok := a.tools.Get(call.Name)
	if !ok {
		return tool.Result{Success: false, Error: fmt.Sprintf("Unknown tool: %s", call.Name)}
	}
	return t.Execute(ctx, call.Arguments)
}

// toolLabel derives a short human-readable label for a tool call from the
// assistant's accompanying text, falling back to the tool name. Used only
// for log readability, never part of the message history.
func toolLabel(accompanyingText, toolName string) string {
	trimmed := strings.TrimSpace(accompanyingText)
	if trimmed == "" {
		return toolName
	}
	first := strings.TrimSpace(strings.SplitN(trimmed, "\n", 2)[0])
	if first == "" {
		return toolName
	}
	if len(first) > 80 {
		first = first[:80] + "..."
	}
	return first
}
