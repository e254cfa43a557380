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
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/core"
	"github.com/agentcore/orchestrator/tool"
)

type capturingSink struct {
	events    []Event
	summaries []map[string]any
}

func (c *capturingSink) Write(e Event) error {
	c.events = append(c.events, e)
	return nil
}
func (c *capturingSink) Summary(runID string, summary map[string]any) error {
	c.summaries = append(c.summaries, summary)
	return nil
}
func (c *capturingSink) Close() error { return nil }

var _ Sink = (*capturingSink)(nil)

func TestLogger_IndexesAreMonotonic(t *testing.T) {
	sink := &capturingSink{}
	l := New(sink, "run-1")

	l.Start("hello")
	l.Step(1, 5, 100)
	l.Request([]core.Message{{Role: core.RoleUser, Content: "hi"}})
	l.Response(&core.LLMResponse{Content: "ok", FinishReason: core.FinishStop})
	l.Finish("completed", true, "ok")

	require.Len(t, sink.events, 5)
	for i, e := range sink.events {
		assert.Equal(t, i, e.Index)
		assert.Equal(t, "run-1", e.RunID)
	}
	assert.Equal(t, EventRunStart, sink.events[0].Type)
	assert.Equal(t, EventCompletion, sink.events[4].Type)
}

func TestLogger_ToolExecution_TruncatesLargePayloadOnly(t *testing.T) {
	sink := &capturingSink{}
	l := New(sink, "run-1")
	l.maxPayloadChars = 10

	longContent := strings.Repeat("x", 100)
	l.ToolExecution(core.ToolCall{ID: "c1", Name: "search"}, tool.Result{Success: true, Content: longContent}, "search")

	require.Len(t, sink.events, 1)
	payload := sink.events[0].Payload
	assert.Equal(t, true, payload["truncated"])
	assert.Len(t, payload["content"], 10)
}

func TestLogger_ToolExecution_ShortPayloadNotTruncated(t *testing.T) {
	sink := &capturingSink{}
	l := New(sink, "run-1")

	l.ToolExecution(core.ToolCall{ID: "c1", Name: "search"}, tool.Result{Success: false, Error: "boom"}, "search")

	payload := sink.events[0].Payload
	assert.Equal(t, false, payload["truncated"])
	assert.Equal(t, "boom", payload["content"])
	assert.Equal(t, false, payload["success"])
}

func TestLogger_Finish_WritesSummary(t *testing.T) {
	sink := &capturingSink{}
	l := New(sink, "run-1")
	l.Start("hi")
	l.Step(1, 5, 10)
	l.Finish("completed", true, "done")

	require.Len(t, sink.summaries, 1)
	assert.Equal(t, "run-1", sink.summaries[0]["run_id"])
	assert.Equal(t, 1, sink.summaries[0]["steps"])
}

func TestFileSink_WritesJSONLAndSummary(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	l := New(sink, "run-xyz")
	l.Start("hello")
	l.Finish("completed", true, "done")
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(filepath.Join(dir, "run-xyz.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, EventRunStart, first.Type)

	summaryData, err := os.ReadFile(filepath.Join(dir, "run-xyz.summary.json"))
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal(summaryData, &summary))
	assert.Equal(t, "run-xyz", summary["run_id"])
}

func TestNoopSink_NeverErrors(t *testing.T) {
	var s NoopSink
	assert.NoError(t, s.Write(Event{}))
	assert.NoError(t, s.Summary("r", nil))
	assert.NoError(t, s.Close())
}

func TestMetrics_RecordsToolCallsAndForwards(t *testing.T) {
	reg := prometheus.NewRegistry()
	inner := &capturingSink{}
	m := NewMetrics(reg, "test", inner)

	require.NoError(t, m.Write(Event{Type: EventRunStart}))
	require.NoError(t, m.Write(Event{Type: EventToolExecution, Payload: map[string]any{"tool_name": "search", "success": true}}))
	require.NoError(t, m.Write(Event{Type: EventToolExecution, Payload: map[string]any{"tool_name": "search", "success": false}}))

	assert.Len(t, inner.events, 3)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
