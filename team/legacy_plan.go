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
	"encoding/json"
	"fmt"
)

// legacyPlanTask is one entry of a legacy JSON coordination plan: a flat
// array of {member, task, dependencies} triples, where each dependency
// names the member id of an earlier entry in the same array rather than a
// task id (the shape produced by older callers, spec §9).
type legacyPlanTask struct {
	Member       string   `json:"member"`
	Task         string   `json:"task"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// LegacyPlanCoordinator accepts a JSON coordination plan in that legacy
// shape and converts it into the Task graph RunWithDependencies already
// drives, rather than introducing a second execution path. New code should
// delegate via tool calls (spec §9's preferred path); this exists only as a
// migration shim for callers still producing the legacy plan shape.
type LegacyPlanCoordinator struct {
	team *Team
}

// NewLegacyPlanCoordinator wraps team for legacy JSON-plan execution.
func NewLegacyPlanCoordinator(t *Team) *LegacyPlanCoordinator {
	return &LegacyPlanCoordinator{team: t}
}

// Run parses planJSON, converts it to a dependency graph keyed by array
// position, and executes it via Team.RunWithDependencies.
func (l *LegacyPlanCoordinator) Run(ctx context.Context, planJSON, sessionID, userID string) (*DependencyResult, error) {
	plan, err := parseCoordinationPlan(planJSON)
	if err != nil {
		return nil, err
	}
	tasks, err := plan.toTasks()
	if err != nil {
		return nil, err
	}
	return l.team.RunWithDependencies(ctx, tasks, sessionID, userID)
}

type coordinationPlan []legacyPlanTask

func parseCoordinationPlan(planJSON string) (coordinationPlan, error) {
	var plan coordinationPlan
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return nil, fmt.Errorf("team: parse legacy coordination plan: %w", err)
	}
	return plan, nil
}

// toTasks assigns each plan entry a synthetic task id ("task-<index>") and
// resolves its dependency member ids to the synthetic id of that member's
// own (first) entry in the plan.
func (p coordinationPlan) toTasks() ([]Task, error) {
	ids := make([]string, len(p))
	firstByMember := make(map[string]string, len(p))
	for i, entry := range p {
		ids[i] = fmt.Sprintf("task-%d", i)
		if _, seen := firstByMember[entry.Member]; !seen {
			firstByMember[entry.Member] = ids[i]
		}
	}

	tasks := make([]Task, len(p))
	for i, entry := range p {
		deps := make([]string, 0, len(entry.Dependencies))
		for _, dep := range entry.Dependencies {
			depID, ok := firstByMember[dep]
			if !ok {
				return nil, fmt.Errorf("team: legacy plan dependency references unknown member %q", dep)
			}
			deps = append(deps, depID)
		}
		tasks[i] = Task{ID: ids[i], Task: entry.Task, AssignedTo: entry.Member, DependsOn: deps}
	}
	return tasks, nil
}
