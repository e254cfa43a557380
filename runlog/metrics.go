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

import "github.com/prometheus/client_golang/prometheus"

// Metrics is a Sink that records run activity as Prometheus series instead
// of (or alongside) persisting events. It wraps another Sink so a caller can
// observe metrics and still keep a durable log, e.g. NewMetrics(..., fileSink).
type Metrics struct {
	next Sink

	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	stepsTotal    *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	toolErrors    *prometheus.CounterVec
	responseTokens *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	runnerType map[string]string
}

// NewMetrics registers a fresh set of collectors on reg and returns a Sink
// that records them. next receives every call unmodified; pass NoopSink{}
// to use Metrics standalone.
func NewMetrics(reg prometheus.Registerer, namespace string, next Sink) *Metrics {
	if next == nil {
		next = NoopSink{}
	}
	m := &Metrics{
		next:       next,
		runnerType: make(map[string]string),
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "runs", Name: "started_total",
			Help: "Total number of agent/team runs started.",
		}, []string{}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "runs", Name: "completed_total",
			Help: "Total number of runs completed, labeled by success.",
		}, []string{"success", "reason"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "runs", Name: "steps_total",
			Help: "Total number of step-loop iterations across all runs.",
		}, []string{}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tools", Name: "calls_total",
			Help: "Total number of tool invocations, labeled by tool name.",
		}, []string{"tool_name", "success"}),
		toolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tools", Name: "errors_total",
			Help: "Total number of failed tool invocations, labeled by tool name.",
		}, []string{"tool_name"}),
		responseTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "tokens_total",
			Help: "Total LLM tokens consumed, labeled by direction.",
		}, []string{"direction"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "runs", Name: "duration_seconds",
			Help:    "Run duration in seconds from RUN_START to COMPLETION.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"success"}),
	}

	reg.MustRegister(
		m.runsStarted, m.runsCompleted, m.stepsTotal,
		m.toolCalls, m.toolErrors, m.responseTokens, m.runDuration,
	)
	return m
}

func (m *Metrics) Write(e Event) error {
	switch e.Type {
	case EventRunStart:
		m.runsStarted.WithLabelValues().Inc()
	case EventStep:
		m.stepsTotal.WithLabelValues().Inc()
	case EventResponse:
		if v, ok := e.Payload["input_tokens"].(int); ok {
			m.responseTokens.WithLabelValues("input").Add(float64(v))
		}
		if v, ok := e.Payload["output_tokens"].(int); ok {
			m.responseTokens.WithLabelValues("output").Add(float64(v))
		}
	case EventToolExecution:
		name, _ := e.Payload["tool_name"].(string)
		success, _ := e.Payload["success"].(bool)
		m.toolCalls.WithLabelValues(name, boolLabel(success)).Inc()
		if !success {
			m.toolErrors.WithLabelValues(name).Inc()
		}
	case EventCompletion:
		success, _ := e.Payload["success"].(bool)
		reason, _ := e.Payload["reason"].(string)
		m.runsCompleted.WithLabelValues(boolLabel(success), reason).Inc()
	}
	return m.next.Write(e)
}

func (m *Metrics) Summary(runID string, summary map[string]any) error {
	if success, ok := summary["success"].(bool); ok {
		if ms, ok := summary["duration_ms"].(int64); ok {
			m.runDuration.WithLabelValues(boolLabel(success)).Observe(float64(ms) / 1000.0)
		}
	}
	return m.next.Summary(runID, summary)
}

func (m *Metrics) Close() error { return m.next.Close() }

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var _ Sink = (*Metrics)(nil)
