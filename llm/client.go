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

// Package llm defines the abstract contract the agent step loop drives an
// LLM through. The wire protocol of any given provider is deliberately kept
// out of this package; concrete adapters live in sibling packages
// (anthropicllm, geminillm) and translate to/from it.
package llm

import (
	"context"

	"github.com/agentcore/orchestrator/core"
)

// ToolDefinition is the subset of tool.Tool an LLMClient needs to build a
// provider-specific function-calling request.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Client is the opaque adapter the Agent step loop calls. Implementations
// translate to the provider wire format, extract content/reasoning/tool
// calls, and report token usage. Implementations must be safe for
// concurrent use across runs (stateless per call).
type Client interface {
	// Generate performs one blocking LLM call.
	Generate(ctx context.Context, messages []core.Message, tools []ToolDefinition, maxTokens int) (*core.LLMResponse, error)

	// GenerateStream performs one LLM call, emitting incremental events as
	// they arrive. A successful stream ends with StreamDone carrying the
	// fully reconstructed core.LLMResponse; a failed one ends with
	// StreamError instead, with no StreamDone.
	GenerateStream(ctx context.Context, messages []core.Message, tools []ToolDefinition, maxTokens int) (<-chan StreamEvent, error)

	// ModelName identifies the concrete model for token-estimator selection
	// and logging.
	ModelName() string

	// MaxTokenCeiling is the provider-known ceiling Generate/GenerateStream
	// clamp maxTokens to.
	MaxTokenCeiling() int
}

// StreamEventType enumerates the kinds of events emitted by GenerateStream.
type StreamEventType string

const (
	StreamThinkingDelta StreamEventType = "thinking_delta"
	StreamContentDelta  StreamEventType = "content_delta"
	StreamToolUse       StreamEventType = "tool_use"
	StreamDone          StreamEventType = "done"
	StreamError         StreamEventType = "error"
)

// StreamEvent is one increment of a streaming LLM call.
type StreamEvent struct {
	Type StreamEventType

	// Delta carries text for StreamThinkingDelta / StreamContentDelta.
	Delta string

	// ToolCall carries the completed, parsed tool call for StreamToolUse.
	ToolCall *core.ToolCall

	// Response carries the fully reconstructed response for StreamDone.
	Response *core.LLMResponse

	// Err carries the failure for StreamError.
	Err error
}

// ClampMaxTokens returns maxTokens clamped to ceiling, reporting whether it
// adjusted the value (callers log a warning when true, per spec §6).
func ClampMaxTokens(maxTokens, ceiling int) (int, bool) {
	if ceiling <= 0 {
		return maxTokens, false
	}
	if maxTokens <= 0 || maxTokens > ceiling {
		return ceiling, true
	}
	return maxTokens, false
}
