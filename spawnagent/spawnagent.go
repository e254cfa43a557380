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

// Package spawnagent implements the tool that lets a running Agent spawn a
// bounded-depth child Agent to handle a focused subtask, similar in spirit
// to Claude Code's own Task tool.
package spawnagent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agentcore/orchestrator/agent"
	"github.com/agentcore/orchestrator/llm"
	"github.com/agentcore/orchestrator/tokenmanager"
	"github.com/agentcore/orchestrator/tool"
)

// ToolName is the fixed name the LLM calls this tool by.
const ToolName = "spawn_agent"

const defaultMaxSteps = 15
const hardMaxSteps = 30
const taskTruncateChars = 300

// Config configures a Tool instance. A fresh Tool (with incremented
// CurrentDepth) is constructed by the parent each time depth needs to
// change; Config itself carries the depth-invariant parts.
type Config struct {
	LLM             llm.Client
	ParentTools     *tool.Registry
	WorkspaceDir    string
	CurrentDepth    int
	MaxDepth        int
	Logger          *zap.Logger
	RunLog          agent.RunLogger
	DefaultMaxSteps int
	TokenManager    *tokenmanager.Manager
}

// Tool is the spawn_agent tool. One instance is bound to a specific nesting
// depth; New constructs the next depth's instance when building a child's
// inherited tool set.
type Tool struct {
	cfg Config
}

// New constructs a spawn_agent Tool at the depth given in cfg.
func New(cfg Config) *Tool {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	if cfg.DefaultMaxSteps <= 0 {
		cfg.DefaultMaxSteps = defaultMaxSteps
	}
	return &Tool{cfg: cfg}
}

func (t *Tool) Name() string { return ToolName }

func (t *Tool) Description() string {
	return fmt.Sprintf(`Spawn a specialized sub-agent to handle a specific task autonomously.

Use this when:
- A task requires specialized expertise or a different approach
- Breaking down a complex task into independent subtasks
- You need focused work on a specific problem without cluttering your main context
- Parallel exploration of different solutions

The sub-agent will execute the task and return its final result to you.
You remain in control and can use the result to continue your work.

Current depth: %d/%d`, t.cfg.CurrentDepth, t.cfg.MaxDepth)
}

func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        "string",
				"description": "Clear, specific description of what the sub-agent should accomplish",
			},
			"role": map[string]any{
				"type":        "string",
				"description": "Specialized role for the sub-agent (e.g., 'security auditor', 'test writer', 'documentation expert')",
			},
			"context": map[string]any{
				"type":        "string",
				"description": "Relevant background information or context from your current work",
			},
			"tools": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Specific tools to enable. If not specified, inherits parent tools (except spawn_agent at max depth).",
			},
			"max_steps": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"maximum":     hardMaxSteps,
				"description": fmt.Sprintf("Maximum steps for sub-agent execution (default: %d)", t.cfg.DefaultMaxSteps),
			},
		},
		"required": []string{"task"},
	}
}

func (t *Tool) AddInstructionsToPrompt() bool { return true }

func (t *Tool) Instructions() string {
	return `## Sub-Agent (spawn_agent) Usage Guidelines

When using spawn_agent to delegate tasks:

1. Be specific: provide clear, focused tasks with concrete success criteria
2. Provide context: share relevant information the sub-agent needs to understand the task
3. Choose appropriate tools: only enable tools the sub-agent actually needs
4. Set reasonable limits: smaller max_steps for simple tasks, larger for complex ones

Good use cases:
- "Analyze the security of the authentication module in /src/auth" (role: security auditor)
- "Write unit tests for the calculate_total function" (role: test writer)
- "Review this code for performance issues" (role: performance analyst)

Poor use cases:
- Vague tasks like "help me with this project"
- Tasks that require your current conversation context (sub-agents start fresh)
- Simple tasks you could do directly with one or two tool calls`
}

var _ tool.Tool = (*Tool)(nil)

// args is the decoded shape of Execute's arguments.
type args struct {
	Task     string   `json:"task"`
	Role     string   `json:"role"`
	Context  string   `json:"context"`
	Tools    []string `json:"tools"`
	MaxSteps int      `json:"max_steps"`
}

func decodeArgs(raw map[string]any) args {
	var a args
	if v, ok := raw["task"].(string); ok {
		a.Task = v
	}
	if v, ok := raw["role"].(string); ok {
		a.Role = v
	}
	if v, ok := raw["context"].(string); ok {
		a.Context = v
	}
	if v, ok := raw["max_steps"].(float64); ok {
		a.MaxSteps = int(v)
	}
	if v, ok := raw["tools"].([]any); ok {
		for _, item := range v {
			if s, ok := item.(string); ok {
				a.Tools = append(a.Tools, s)
			}
		}
	}
	return a
}

// Execute spawns a child Agent at depth+1, runs it to completion on the
// given task, and returns a formatted summary. Failure modes (depth
// exceeded, child error) surface as a failed tool.Result, never a panic or
// an aborted parent run.
func (t *Tool) Execute(ctx context.Context, raw map[string]any) tool.Result {
	a := decodeArgs(raw)
	if a.Task == "" {
		return tool.Result{Success: false, Error: "task is required"}
	}

	if t.cfg.CurrentDepth >= t.cfg.MaxDepth {
		return tool.Result{
			Success: false,
			Error: fmt.Sprintf(
				"Maximum agent nesting depth (%d) reached. Cannot spawn more sub-agents. Consider completing the task with available tools instead.",
				t.cfg.MaxDepth,
			),
		}
	}

	childTools := t.buildChildTools(a.Tools)
	systemPrompt := t.buildChildPrompt(a.Role, a.Context)

	maxSteps := a.MaxSteps
	if maxSteps <= 0 {
		maxSteps = t.cfg.DefaultMaxSteps
	}
	if maxSteps > hardMaxSteps {
		maxSteps = hardMaxSteps
	}

	child := agent.New(agent.Config{
		LLM:          t.cfg.LLM,
		Tools:        childTools,
		TokenManager: t.cfg.TokenManager,
		Logger:       t.cfg.Logger,
		RunLog:       t.cfg.RunLog,
		SystemPrompt: systemPrompt,
		WorkspaceDir: t.cfg.WorkspaceDir,
	})

	if t.cfg.Logger != nil {
		t.cfg.Logger.Info("spawning sub-agent",
			zap.String("task", truncate(a.Task, 200)),
			zap.String("role", a.Role),
			zap.Int("depth", t.cfg.CurrentDepth+1),
			zap.Int("max_depth", t.cfg.MaxDepth),
			zap.Int("max_steps", maxSteps),
		)
	}

	result, err := child.Run(ctx, a.Task, nil, agent.Limits{MaxSteps: maxSteps})
	if err != nil {
		return tool.Result{Success: false, Error: fmt.Sprintf("Sub-agent execution failed: %v", err)}
	}

	toolCalls := 0
	for _, msg := range result.Messages {
		toolCalls += len(msg.ToolCalls)
	}

	formatted := t.formatResult(a.Task, a.Role, result.Content, result.Steps, toolCalls, maxSteps)
	return tool.Result{Success: true, Content: formatted}
}

// buildChildTools implements the tool-inheritance policy (spec §4.4): an
// explicit tools list filters the parent's registry to that subset (dropping
// spawn_agent if the child would already be at max depth); omitting it
// inherits everything, with spawn_agent replaced by a fresh depth+1 instance
// (or dropped entirely at max depth).
func (t *Tool) buildChildTools(names []string) *tool.Registry {
	if t.cfg.ParentTools == nil {
		return tool.NewRegistry()
	}

	if names != nil {
		filtered := t.cfg.ParentTools.Filter(names)
		if t.cfg.CurrentDepth+1 >= t.cfg.MaxDepth {
			filtered.Remove(ToolName)
		}
		return filtered
	}

	inherited := t.cfg.ParentTools.Clone()
	if t.cfg.CurrentDepth+1 < t.cfg.MaxDepth {
		childCfg := t.cfg
		childCfg.CurrentDepth = t.cfg.CurrentDepth + 1
		inherited.Replace(New(childCfg))
	} else {
		inherited.Remove(ToolName)
	}
	return inherited
}

// buildChildPrompt assembles the system prompt for the spawned child (spec
// §4.4's "child system prompt").
func (t *Tool) buildChildPrompt(role, context string) string {
	var parts []string

	if role != "" {
		parts = append(parts, fmt.Sprintf("You are a specialized AI assistant acting as a **%s**.", role))
	} else {
		parts = append(parts, "You are an AI assistant executing a delegated task.")
	}

	parts = append(parts, `Your task has been delegated from a parent agent. Focus on completing it efficiently and thoroughly.

Guidelines:
- Stay focused on the assigned task, do not deviate
- Be thorough but concise in your work
- Use available tools when necessary
- Report your findings and results clearly at the end
- If you encounter blockers, explain them clearly

You have independent context: you don't see the parent's conversation. Complete your task fully before finishing and provide actionable results the parent can use.`)

	if context != "" {
		parts = append(parts, fmt.Sprintf("## Context from Parent Agent\n%s", context))
	}

	parts = append(parts, fmt.Sprintf("## Workspace\nYou are working in: `%s`\nAll relative paths are resolved from this directory.", t.cfg.WorkspaceDir))

	if t.cfg.CurrentDepth+1 < t.cfg.MaxDepth {
		parts = append(parts, fmt.Sprintf("## Sub-Agent Capability\nYou can spawn sub-agents if needed (depth %d/%d). Use this sparingly and only for truly independent subtasks.", t.cfg.CurrentDepth+1, t.cfg.MaxDepth))
	}

	return strings.Join(parts, "\n\n")
}

func (t *Tool) formatResult(task, role, result string, stepsUsed, toolCalls, maxSteps int) string {
	header := "## Sub-Agent Execution Result"
	if role != "" {
		header += fmt.Sprintf(" (%s)", role)
	}

	return fmt.Sprintf(`%s

**Task:** %s
**Execution:** %d/%d steps, %d tool calls
**Depth:** %d/%d

---

%s
`, header, truncate(task, taskTruncateChars), stepsUsed, maxSteps, toolCalls, t.cfg.CurrentDepth+1, t.cfg.MaxDepth, result)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
