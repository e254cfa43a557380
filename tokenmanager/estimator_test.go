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

package tokenmanager

import (
	"testing"

	"github.com/agentcore/orchestrator/core"
)

func TestNewEstimator(t *testing.T) {
	tests := []struct {
		name  string
		model string
	}{
		{"gpt-4o model", "gpt-4o"},
		{"gpt-4 model", "gpt-4"},
		{"claude model uses fallback", "claude-3-5-sonnet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEstimator(tt.model)
			if e == nil {
				t.Fatal("NewEstimator returned nil")
			}
			if e.model != tt.model {
				t.Errorf("model = %v, want %v", e.model, tt.model)
			}
		})
	}
}

func TestEstimator_Count(t *testing.T) {
	e := NewEstimator("gpt-4o")

	empty := e.Count(core.Message{Role: core.RoleUser, Content: ""})
	if empty != messageOverheadTokens {
		t.Errorf("empty message tokens = %d, want %d", empty, messageOverheadTokens)
	}

	longer := e.Count(core.Message{Role: core.RoleUser, Content: "This is a longer sentence with more words to count tokens accurately."})
	if longer <= empty {
		t.Errorf("longer message should estimate more tokens than empty, got %d vs %d", longer, empty)
	}
}

func TestEstimator_Count_ToolCallsIncluded(t *testing.T) {
	e := NewEstimator("gpt-4o")

	withoutCalls := e.Count(core.Message{Role: core.RoleAssistant, Content: "ok"})
	withCalls := e.Count(core.Message{
		Role:    core.RoleAssistant,
		Content: "ok",
		ToolCalls: []core.ToolCall{
			{ID: "1", Name: "search", Arguments: map[string]any{"query": "weather in paris tomorrow"}},
		},
	})
	if withCalls <= withoutCalls {
		t.Errorf("tool call arguments should add to the estimate, got %d vs %d", withCalls, withoutCalls)
	}
}

func TestEstimator_CountAll(t *testing.T) {
	e := NewEstimator("gpt-4o")
	messages := []core.Message{
		{Role: core.RoleSystem, Content: "you are a helpful assistant"},
		{Role: core.RoleUser, Content: "hello"},
	}

	total := e.CountAll(messages)
	want := e.Count(messages[0]) + e.Count(messages[1])
	if total != want {
		t.Errorf("CountAll = %d, want %d", total, want)
	}
}

func TestEstimator_FallbackUnavailableEncoding(t *testing.T) {
	e := &Estimator{model: "unknown", available: false}
	got := e.Count(core.Message{Role: core.RoleUser, Content: "12345678901234567890"})
	want := messageOverheadTokens + int(20.0/charsPerTokenFallback)
	if got != want {
		t.Errorf("fallback Count = %d, want %d", got, want)
	}
}
