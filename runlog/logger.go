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

package runlog

import (
	"sync"
	"time"

	"github.com/agentcore/orchestrator/agent"
	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/tool"
)

const defaultMaxPayloadChars = 2000

// Logger implements agent.RunLogger for one run: it assigns each event a
// monotonically increasing index and forwards it to Sink. A fresh Logger
// must be created per run (per-run loggers are never shared across runs,
// spec §5).
type Logger struct {
	sink            Sink
	runID           string
	maxPayloadChars int

	mu      sync.Mutex
	nextIdx int

	startedAt  time.Time
	steps      int
	toolCalls  int
}

// New constructs a Logger for runID, writing to sink. A nil sink is
// replaced with NoopSink.
func New(sink Sink, runID string) *Logger {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Logger{sink: sink, runID: runID, maxPayloadChars: defaultMaxPayloadChars}
}

func (l *Logger) emit(t EventType, payload map[string]any) {
	l.mu.Lock()
	idx := l.nextIdx
	l.nextIdx++
	l.mu.Unlock()

	_ = l.sink.Write(Event{
		RunID:     l.runID,
		Index:     idx,
		Type:      t,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

func (l *Logger) truncate(s string) (string, bool) {
	if len(s) <= l.maxPayloadChars {
		return s, false
	}
	return s[:l.maxPayloadChars], true
}

// Start emits RUN_START and records the run's start time for the summary
// computed by Finish.
func (l *Logger) Start(userMessage string) {
	l.mu.Lock()
	l.startedAt = time.Now()
	l.mu.Unlock()
	l.emit(EventRunStart, map[string]any{"user_message": userMessage})
}

// Step implements agent.RunLogger.
func (l *Logger) Step(step, maxSteps, estimatedTokens int) {
	l.mu.Lock()
	l.steps = step
	l.mu.Unlock()
	l.emit(EventStep, map[string]any{"step": step, "max_steps": maxSteps, "estimated_tokens": estimatedTokens})
}

// Request implements agent.RunLogger.
func (l *Logger) Request(messages []core.Message) {
	l.emit(EventRequest, map[string]any{"message_count": len(messages)})
}

// Response implements agent.RunLogger.
func (l *Logger) Response(resp *core.LLMResponse) {
	if resp == nil {
		return
	}
	content, truncated := l.truncate(resp.Content)
	l.emit(EventResponse, map[string]any{
		"content":        content,
		"truncated":      truncated,
		"tool_call_count": len(resp.ToolCalls),
		"finish_reason":  string(resp.FinishReason),
		"input_tokens":   resp.Usage.InputTokens,
		"output_tokens":  resp.Usage.OutputTokens,
	})
}

// ToolExecution implements agent.RunLogger. The full tool result remains in
// the message history; only the logged payload is truncated (spec §4.7).
func (l *Logger) ToolExecution(call core.ToolCall, result tool.Result, label string) {
	l.mu.Lock()
	l.toolCalls++
	l.mu.Unlock()

	content := result.Content
	if !result.Success {
		content = result.Error
	}
	truncatedContent, truncated := l.truncate(content)

	l.emit(EventToolExecution, map[string]any{
		"tool_name": call.Name,
		"tool_call_id": call.ID,
		"label":     label,
		"success":   result.Success,
		"content":   truncatedContent,
		"truncated": truncated,
	})
}

// Event implements agent.RunLogger: a free-form named event.
func (l *Logger) Event(name string, payload map[string]any) {
	merged := map[string]any{"name": name}
	for k, v := range payload {
		merged[k] = v
	}
	l.emit(EventCustom, merged)
}

var _ agent.RunLogger = (*Logger)(nil)

// Finish emits COMPLETION and writes the run summary (spec §6's
// <run_id>.summary.json).
func (l *Logger) Finish(reason string, success bool, finalContent string) {
	l.mu.Lock()
	steps, toolCalls, startedAt := l.steps, l.toolCalls, l.startedAt
	l.mu.Unlock()

	duration := time.Since(startedAt)
	l.emit(EventCompletion, map[string]any{"reason": reason, "success": success, "steps": steps})

	_ = l.sink.Summary(l.runID, map[string]any{
		"run_id":          l.runID,
		"reason":          reason,
		"success":         success,
		"steps":           steps,
		"tool_calls":      toolCalls,
		"duration_ms":     duration.Milliseconds(),
		"final_content":   finalContent,
	})
}
