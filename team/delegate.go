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
	"strings"
	"sync"

	"github.com/agentcore/orchestrator/tool"
)

// delegationTool is the dynamically-built leader tool: either
// "delegate_task_to_member" (single-member mode, spec §4.5) or
// "delegate_task_to_all_members" (broadcast mode), depending on the team's
// DelegateToAll setting. It is rebuilt fresh per Team.Run because its
// parameter enum depends on the live member list and its closure captures
// the current session_id and leader run_id (spec §9 "dynamic tool
// construction").
type delegationTool struct {
	team        *Team
	sessionID   string
	leaderRunID string

	mu   sync.Mutex
	runs []MemberRunResult
}

// buildDelegationTool constructs the single tool the leader Agent is given,
// per spec §4.5's single-member-vs-broadcast switch.
func (t *Team) buildDelegationTool(sessionID, leaderRunID string) *delegationTool {
	return &delegationTool{team: t, sessionID: sessionID, leaderRunID: leaderRunID}
}

func (d *delegationTool) memberRuns() []MemberRunResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]MemberRunResult(nil), d.runs...)
}

func (d *delegationTool) record(mr MemberRunResult) {
	d.mu.Lock()
	d.runs = append(d.runs, mr)
	d.mu.Unlock()
}

func (d *delegationTool) Name() string {
	if d.team.cfg.DelegateToAll {
		return "delegate_task_to_all_members"
	}
	return "delegate_task_to_member"
}

func (d *delegationTool) Description() string {
	if d.team.cfg.DelegateToAll {
		return "Delegate a task to ALL team members to get diverse perspectives. " +
			"Use this when you need collaborative input from the entire team."
	}
	return "Delegate a task to a specific team member. " +
		"Use this to assign work to the team member best suited for the task."
}

func (d *delegationTool) Parameters() map[string]any {
	if d.team.cfg.DelegateToAll {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task": map[string]any{
					"type":        "string",
					"description": "Task description to send to all members",
				},
			},
			"required": []string{"task"},
		}
	}

	ids := d.team.cfg.memberIDs()
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"member_id": map[string]any{
				"type":        "string",
				"enum":        ids,
				"description": fmt.Sprintf("Id of the team member to delegate to. Available members: %s", strings.Join(ids, ", ")),
			},
			"task": map[string]any{
				"type":        "string",
				"description": "Clear description of the task to delegate",
			},
		},
		"required": []string{"member_id", "task"},
	}
}

func (d *delegationTool) AddInstructionsToPrompt() bool { return false }
func (d *delegationTool) Instructions() string          { return "" }

func (d *delegationTool) Execute(ctx context.Context, raw map[string]any) tool.Result {
	task, _ := raw["task"].(string)
	if task == "" {
		return tool.Result{Success: false, Error: "task is required"}
	}

	if d.team.cfg.DelegateToAll {
		return d.executeBroadcast(ctx, task)
	}
	return d.executeSingle(ctx, raw, task)
}

func (d *delegationTool) executeSingle(ctx context.Context, raw map[string]any, task string) tool.Result {
	memberID, _ := raw["member_id"].(string)
	member, ok := d.team.cfg.memberByID(memberID)
	if !ok {
		return tool.Result{
			Success: false,
			Error:   fmt.Sprintf("Member %q not found in team. Available: %s", memberID, strings.Join(d.team.cfg.memberIDs(), ", ")),
		}
	}

	mr := d.team.runMember(ctx, member, task, d.sessionID, d.leaderRunID)
	d.record(mr)

	if mr.Success {
		return tool.Result{Success: true, Content: fmt.Sprintf("%s completed task:\n%s", member.Name, mr.Response)}
	}
	return tool.Result{Success: true, Content: fmt.Sprintf("%s failed: %s", member.Name, mr.Error)}
}

// executeBroadcast runs every member sequentially on the same task (spec
// §4.5: order must be deterministic given the member list; parallel
// execution is permitted but not required).
func (d *delegationTool) executeBroadcast(ctx context.Context, task string) tool.Result {
	var parts []string
	for _, member := range d.team.cfg.Members {
		mr := d.team.runMember(ctx, member, task, d.sessionID, d.leaderRunID)
		d.record(mr)

		if mr.Success {
			parts = append(parts, fmt.Sprintf("%s: %s", member.Name, mr.Response))
		} else {
			parts = append(parts, fmt.Sprintf("%s: failed: %s", member.Name, mr.Error))
		}
	}
	return tool.Result{Success: true, Content: strings.Join(parts, "\n\n")}
}

var _ tool.Tool = (*delegationTool)(nil)
