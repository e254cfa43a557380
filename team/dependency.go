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
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agentcore/orchestrator/session"
)

// TaskStatus is one task's lifecycle state in a dependency run.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Task is one node of a dependency graph submitted to RunWithDependencies
// (spec §4.5's TaskWithDependencies).
type Task struct {
	ID         string
	Task       string
	AssignedTo string // member id
	DependsOn  []string
}

// TaskResult is the execution outcome of one Task.
type TaskResult struct {
	ID     string
	Status TaskStatus
	Result string
	Reason string
}

// DependencyResult is what RunWithDependencies returns: the final status of
// every task plus the layering that was used (spec §6's execution_order,
// for visualization/testing).
type DependencyResult struct {
	Tasks     []TaskResult
	Layers    [][]string
	AnyFailed bool
}

// validateGraph rejects dangling depends_on ids and returns an index by id.
func validateGraph(tasks []Task) (map[string]Task, error) {
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		if _, dup := byID[t.ID]; dup {
			return nil, fmt.Errorf("team: duplicate task id %q", t.ID)
		}
		byID[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("team: task %q depends on unknown task %q", t.ID, dep)
			}
		}
	}
	return byID, nil
}

// layerTasks performs Kahn's-algorithm topological layering: each layer is
// every task whose dependencies are all in an earlier layer. A non-empty
// remainder after the graph is exhausted means a cycle exists (spec §7
// error kind 6, "fatal to the dependency run, raised before any task
// executes").
func layerTasks(byID map[string]Task) ([][]string, error) {
	indegree := make(map[string]int, len(byID))
	dependents := make(map[string][]string, len(byID))
	for id, t := range byID {
		indegree[id] = len(t.DependsOn)
		for _, dep := range t.DependsOn {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var layers [][]string
	remaining := len(byID)
	for remaining > 0 {
		var layer []string
		for id, deg := range indegree {
			if deg == 0 {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			return nil, fmt.Errorf("team: dependency graph contains a cycle")
		}
		sort.Strings(layer)
		for _, id := range layer {
			delete(indegree, id)
			remaining--
			for _, dependent := range dependents[id] {
				indegree[dependent]--
			}
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

// dependencyAppendix renders the "dependency results" block injected into a
// task's prompt for each of its direct dependencies (spec §4.5, translated
// from the Python reference's Chinese-language "依赖任务结果" heading).
func dependencyAppendix(task Task, results map[string]string) string {
	if len(task.DependsOn) == 0 {
		return task.Task
	}
	var b strings.Builder
	b.WriteString(task.Task)
	b.WriteString("\n\nDependency task results:\n")
	for _, dep := range task.DependsOn {
		fmt.Fprintf(&b, "[%s]: %s\n", dep, results[dep])
	}
	return b.String()
}

// RunWithDependencies executes tasks in topological layers, running every
// task within a layer concurrently via errgroup. On any task failure, every
// task in a later layer is marked skipped and execution stops without
// running them (spec §4.5/§7 error kind 7; spec §8 scenario 5).
func (t *Team) RunWithDependencies(ctx context.Context, tasks []Task, sessionID, userID string) (*DependencyResult, error) {
	byID, err := validateGraph(tasks)
	if err != nil {
		return nil, err
	}
	layers, err := layerTasks(byID)
	if err != nil {
		return nil, err
	}

	runID := session.NewRunID()

	results := make(map[string]*TaskResult, len(byID))
	for id := range byID {
		results[id] = &TaskResult{ID: id, Status: TaskPending}
	}

	var mu sync.Mutex
	resultText := make(map[string]string, len(byID))

	anyFailed := false
	var failedTaskID string

	for _, layer := range layers {
		if anyFailed {
			for _, id := range layer {
				mu.Lock()
				results[id].Status = TaskSkipped
				results[id].Reason = fmt.Sprintf("skipped: upstream task %q failed", failedTaskID)
				mu.Unlock()
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, id := range layer {
			id := id
			task := byID[id]
			mu.Lock()
			results[id].Status = TaskRunning
			mu.Unlock()

			g.Go(func() error {
				member, ok := t.cfg.memberByID(task.AssignedTo)
				if !ok {
					mu.Lock()
					results[id].Status = TaskFailed
					results[id].Reason = fmt.Sprintf("assigned member %q not found", task.AssignedTo)
					mu.Unlock()
					return nil
				}

				mu.Lock()
				prompt := dependencyAppendix(task, resultText)
				mu.Unlock()

				mr := t.runMember(gctx, member, prompt, sessionID, runID)

				mu.Lock()
				if mr.Success {
					results[id].Status = TaskCompleted
					results[id].Result = mr.Response
					resultText[id] = mr.Response
				} else {
					results[id].Status = TaskFailed
					results[id].Reason = mr.Error
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		for _, id := range layer {
			if results[id].Status == TaskFailed {
				anyFailed = true
				failedTaskID = id
			}
		}
	}

	out := make([]TaskResult, 0, len(results))
	for _, layer := range layers {
		for _, id := range layer {
			out = append(out, *results[id])
		}
	}

	return &DependencyResult{Tasks: out, Layers: layers, AnyFailed: anyFailed}, nil
}
