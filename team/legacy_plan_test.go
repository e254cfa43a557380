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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegacyPlanCoordinator_ConvertsPlanAndRunsInDependencyOrder(t *testing.T) {
	tm := New(Options{TeamConfig: testConfig(false), LLM: &routedLLM{}})
	coord := NewLegacyPlanCoordinator(tm)

	plan := `[
		{"member": "A", "task": "research asyncio"},
		{"member": "B", "task": "write it up", "dependencies": ["A"]}
	]`

	result, err := coord.Run(context.Background(), plan, "", "")
	require.NoError(t, err)
	require.False(t, result.AnyFailed)
	require.Len(t, result.Layers, 2)
	assert.Equal(t, []string{"task-0"}, result.Layers[0])
	assert.Equal(t, []string{"task-1"}, result.Layers[1])

	for _, tr := range result.Tasks {
		assert.Equal(t, TaskCompleted, tr.Status)
	}
}

func TestLegacyPlanCoordinator_UnknownDependencyMember_ReturnsError(t *testing.T) {
	tm := New(Options{TeamConfig: testConfig(false), LLM: &routedLLM{}})
	coord := NewLegacyPlanCoordinator(tm)

	plan := `[{"member": "A", "task": "x", "dependencies": ["ghost"]}]`
	_, err := coord.Run(context.Background(), plan, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestLegacyPlanCoordinator_InvalidJSON_ReturnsError(t *testing.T) {
	tm := New(Options{TeamConfig: testConfig(false), LLM: &routedLLM{}})
	coord := NewLegacyPlanCoordinator(tm)

	_, err := coord.Run(context.Background(), "not json", "", "")
	require.Error(t, err)
}
