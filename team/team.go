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

// Package team implements hierarchical agent composition: a leader Agent
// that delegates subtasks to a fixed roster of member Agents, plus a
// dependency-DAG executor for running a task graph across that roster.
package team

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agentcore/orchestrator/agent"
	"github.com/agentcore/orchestrator/llm"
	"github.com/agentcore/orchestrator/session"
	"github.com/agentcore/orchestrator/spawnagent"
	"github.com/agentcore/orchestrator/tokenmanager"
	"github.com/agentcore/orchestrator/tool"
)

const defaultMemberMaxSteps = 10

// MemberRunResult is what one delegated member execution produces.
type MemberRunResult struct {
	MemberID   string
	MemberName string
	MemberRole string
	Task       string
	Response   string
	Success    bool
	Error      string
	Steps      int
}

// Result is what Team.Run returns.
type Result struct {
	Success    bool
	TeamName   string
	Message    string
	MemberRuns []MemberRunResult
	TotalSteps int
	RunID      string
}

// Options bundles the dependencies a Team needs beyond its static
// configuration: the shared LLM client, the pool of tools members may draw
// from, and the optional session/logging/spawn-agent wiring.
type Options struct {
	TeamConfig Config
	LLM        llm.Client

	// AvailableTools is the pool every member's declared tool names are
	// filtered against (spec §4.5).
	AvailableTools *tool.Registry
	WorkspaceDir   string

	Sessions     session.Manager
	TokenManager *tokenmanager.Manager
	Logger       *zap.Logger
	RunLog       agent.RunLogger

	EnableSpawnAgent   bool
	SpawnAgentMaxDepth int
	SpawnAgentMaxSteps int
	CurrentDepth       int
}

// Team runs a leader Agent that delegates to a fixed member roster, either
// one member at a time or to the whole roster at once (spec §4.5).
type Team struct {
	cfg Config
	opt Options

	log    *zap.Logger
	runLog agent.RunLogger
}

// New constructs a Team.
func New(opt Options) *Team {
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opt.SpawnAgentMaxDepth <= 0 {
		opt.SpawnAgentMaxDepth = 3
	}
	if opt.SpawnAgentMaxSteps <= 0 {
		opt.SpawnAgentMaxSteps = 15
	}
	if opt.AvailableTools == nil {
		opt.AvailableTools = tool.NewRegistry()
	}
	return &Team{cfg: opt.TeamConfig, opt: opt, log: log, runLog: opt.RunLog}
}

// memberTools filters the available tool pool to member's declared tool
// names, attaching a fresh SpawnAgentTool when the member declared one and
// the depth budget has room (mirrors spawnagent's own inheritance policy,
// grounded on the Python reference's `_run_member`).
func (t *Team) memberTools(member MemberConfig) *tool.Registry {
	filtered := t.opt.AvailableTools.Filter(member.Tools)

	wantsSpawn := false
	for _, name := range member.Tools {
		if name == spawnagent.ToolName {
			wantsSpawn = true
			break
		}
	}

	if t.opt.EnableSpawnAgent && wantsSpawn && t.opt.CurrentDepth < t.opt.SpawnAgentMaxDepth {
		filtered.Replace(spawnagent.New(spawnagent.Config{
			LLM:             t.opt.LLM,
			ParentTools:     filtered,
			WorkspaceDir:    t.opt.WorkspaceDir,
			CurrentDepth:    t.opt.CurrentDepth + 1,
			MaxDepth:        t.opt.SpawnAgentMaxDepth,
			Logger:          t.log,
			RunLog:          t.runLog,
			DefaultMaxSteps: t.opt.SpawnAgentMaxSteps,
			TokenManager:    t.opt.TokenManager,
		}))
	} else {
		filtered.Remove(spawnagent.ToolName)
	}
	return filtered
}

// memberSystemPrompt builds "You are <name>, a <role>. <instructions>".
func memberSystemPrompt(member MemberConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a %s.", member.Name, member.Role)
	if member.Instructions != "" {
		fmt.Fprintf(&b, " %s", member.Instructions)
	}
	b.WriteString("\n\nFocus on your area of expertise and provide clear, actionable responses.")
	return b.String()
}

// runMember runs one member Agent to completion on task, with no visibility
// into the leader's conversation (spec §4.5 "member task context") and
// records a member RunRecord linked to leaderRunID when sessionID is set.
func (t *Team) runMember(ctx context.Context, member MemberConfig, task string, sessionID string, leaderRunID string) MemberRunResult {
	child := agent.New(agent.Config{
		LLM:          t.opt.LLM,
		Tools:        t.memberTools(member),
		TokenManager: t.opt.TokenManager,
		Logger:       t.log,
		RunLog:       t.runLog,
		SystemPrompt: memberSystemPrompt(member),
		WorkspaceDir: t.opt.WorkspaceDir,
	})

	result, err := child.Run(ctx, task, nil, agent.Limits{MaxSteps: defaultMemberMaxSteps})

	mr := MemberRunResult{MemberID: member.ID, MemberName: member.Name, MemberRole: member.Role, Task: task}
	if err != nil {
		mr.Error = err.Error()
		t.recordMemberRun(ctx, sessionID, leaderRunID, member, mr)
		return mr
	}

	mr.Response = result.Content
	mr.Steps = result.Steps
	mr.Success = result.Reason == agent.ReasonTaskCompleted && result.Content != ""
	if !mr.Success && mr.Error == "" {
		mr.Error = result.Content
	}

	t.recordMemberRun(ctx, sessionID, leaderRunID, member, mr)
	return mr
}

func (t *Team) recordMemberRun(ctx context.Context, sessionID, leaderRunID string, member MemberConfig, mr MemberRunResult) {
	if sessionID == "" || t.opt.Sessions == nil {
		return
	}
	response := mr.Response
	if !mr.Success {
		response = "Error: " + mr.Error
	}
	if _, err := t.opt.Sessions.AddRun(ctx, session.AddRunInput{
		SessionID:   sessionID,
		ParentRunID: leaderRunID,
		RunnerType:  session.RunnerTeamMember,
		MemberID:    member.ID,
		UserMessage: mr.Task,
		Response:    response,
		Success:     mr.Success,
		Steps:       mr.Steps,
	}); err != nil {
		t.log.Warn("failed to record member run", zap.Error(err), zap.String("member_id", member.ID))
	}
}

// Run executes the team on message: builds a leader Agent with the
// delegation tool installed, runs it to completion, and records the leader
// and member RunRecords (spec §4.5 "run bookkeeping").
func (t *Team) Run(ctx context.Context, message string, maxSteps int, sessionID, userID string, numHistoryRuns int) (*Result, error) {
	if maxSteps <= 0 {
		maxSteps = 50
	}
	runID := session.NewRunID()

	var historyContext string
	if sessionID != "" && t.opt.Sessions != nil {
		ctxStr, err := t.opt.Sessions.GetHistoryContext(ctx, sessionID, numHistoryRuns, 0, false)
		if err != nil {
			t.log.Warn("failed to load team history", zap.Error(err))
		} else {
			historyContext = ctxStr
		}
	}

	leaderTools := tool.NewRegistry()
	delegation := t.buildDelegationTool(sessionID, runID)
	if err := leaderTools.Register(delegation); err != nil {
		return nil, fmt.Errorf("team: register delegation tool: %w", err)
	}

	leader := agent.New(agent.Config{
		LLM:          t.opt.LLM,
		Tools:        leaderTools,
		TokenManager: t.opt.TokenManager,
		Logger:       t.log,
		RunLog:       t.runLog,
		SystemPrompt: t.buildLeaderSystemPrompt(historyContext),
		WorkspaceDir: t.opt.WorkspaceDir,
	})

	runResult, err := leader.Run(ctx, message, nil, agent.Limits{MaxSteps: maxSteps})
	if err != nil {
		return nil, fmt.Errorf("team: leader run: %w", err)
	}

	totalSteps := runResult.Steps
	for _, mr := range delegation.memberRuns() {
		totalSteps += mr.Steps
	}

	success := runResult.Reason == agent.ReasonTaskCompleted && runResult.Content != ""

	if sessionID != "" && t.opt.Sessions != nil {
		if _, err := t.opt.Sessions.AddRun(ctx, session.AddRunInput{
			SessionID:   sessionID,
			UserID:      userID,
			RunnerType:  session.RunnerTeamLeader,
			UserMessage: message,
			Response:    runResult.Content,
			Success:     success,
			Steps:       totalSteps,
		}); err != nil {
			t.log.Warn("failed to record leader run", zap.Error(err))
		}
	}

	return &Result{
		Success:    success,
		TeamName:   t.cfg.Name,
		Message:    runResult.Content,
		MemberRuns: delegation.memberRuns(),
		TotalSteps: totalSteps,
		RunID:      runID,
	}, nil
}

// buildLeaderSystemPrompt assembles the structured leader document (spec
// §4.5): team name/description, enumerated members, delegation protocol,
// optional leader instructions, and rendered history.
func (t *Team) buildLeaderSystemPrompt(historyContext string) string {
	var members strings.Builder
	for _, m := range t.cfg.Members {
		toolsStr := "No tools"
		if len(m.Tools) > 0 {
			toolsStr = strings.Join(m.Tools, ", ")
		}
		instructions := m.Instructions
		if instructions == "" {
			instructions = "General purpose agent"
		}
		fmt.Fprintf(&members, "- **%s** (%s, id=%s)\n  Tools: %s\n  %s\n", m.Name, m.Role, m.ID, toolsStr, instructions)
	}

	var delegation string
	if t.cfg.DelegateToAll {
		delegation = `When you receive a task:
1. Use the "delegate_task_to_all_members" tool to send the task to ALL team members
2. Analyze and synthesize the responses from all members
3. Provide a comprehensive final answer based on the collaborative input`
	} else {
		delegation = `When you receive a task:
1. Analyze which team member is best suited for the task, by id
2. Use the "delegate_task_to_member" tool to assign work to that member
3. You can delegate to multiple members in sequence if needed
4. Synthesize the responses and provide a final answer
5. If a member's response is insufficient, delegate to another member or ask for clarification`
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are the leader of the %s team.\n\n", t.cfg.Name)
	fmt.Fprintf(&b, "TEAM DESCRIPTION:\n%s\n\n", firstNonEmpty(t.cfg.Description, "A collaborative team of specialized agents"))
	fmt.Fprintf(&b, "TEAM MEMBERS:\n%s\n", members.String())
	fmt.Fprintf(&b, "YOUR ROLE AS LEADER:\n%s\n", delegation)
	if t.cfg.LeaderInstructions != "" {
		fmt.Fprintf(&b, "\n%s\n", t.cfg.LeaderInstructions)
	}
	if historyContext != "" {
		fmt.Fprintf(&b, "\nPREVIOUS INTERACTIONS:\n%s\nUse the previous interactions to maintain continuity and context.\n", historyContext)
	}
	return b.String()
}

func firstNonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
