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

// Package agent implements the LLM step loop: repeatedly calling an
// llm.Client, dispatching any requested tool calls, and feeding results back
// until the model stops requesting tools or the step budget is exhausted.
package agent

import "github.com/agentcore/orchestrator/core"

// CompletionReason explains why a run stopped producing further steps.
type CompletionReason string

const (
	ReasonTaskCompleted  CompletionReason = "task_completed"
	ReasonMaxStepsReached CompletionReason = "max_steps_reached"
	ReasonError          CompletionReason = "error"
	ReasonCancelled      CompletionReason = "cancelled"
)

// LLMFailedSentinel prefixes the response text of a run that aborted
// because the LLM call itself failed (spec §7, error kind 1).
const LLMFailedSentinel = "LLM call failed: "

// MaxStepsSentinel is the canonical response text for a run that exhausted
// its step budget without the model ever stopping on its own.
const MaxStepsSentinel = "I was unable to complete this task within the allotted number of steps."

// EventType enumerates the events a streaming run emits.
type EventType string

const (
	EventStep          EventType = "step"
	EventThinkingDelta EventType = "thinking_delta"
	EventContentDelta  EventType = "content_delta"
	EventToolCall      EventType = "tool_call"
	EventToolResult    EventType = "tool_result"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// Event is one increment of a streaming run.
type Event struct {
	Type EventType

	// Step/MaxSteps/EstimatedTokens populate EventStep.
	Step            int
	MaxSteps        int
	EstimatedTokens int

	// Delta populates EventThinkingDelta / EventContentDelta.
	Delta string

	// ToolCall populates EventToolCall.
	ToolCall *core.ToolCall

	// ToolResultValue populates EventToolResult, paired with ToolCallID.
	ToolCallID      string
	ToolResultValue string
	ToolSuccess     bool

	// Result populates EventDone.
	Result *Result

	// Err populates EventError.
	Err error
}

// Result is what Run (and the reconstructed terminal event of RunStream)
// returns.
type Result struct {
	Content  string
	Reason   CompletionReason
	Steps    int
	Messages []core.Message
	Usage    core.TokenUsage
}
