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

// Package runlog implements agent.RunLogger: a stream of structured events
// per run, fanned out to pluggable sinks (spec §4.7).
package runlog

import "time"

// EventType enumerates the structured event stream spec §4.7 requires.
type EventType string

const (
	EventRunStart      EventType = "RUN_START"
	EventStep          EventType = "STEP"
	EventRequest       EventType = "REQUEST"
	EventResponse      EventType = "RESPONSE"
	EventToolExecution EventType = "TOOL_EXECUTION"
	EventCompletion    EventType = "COMPLETION"
	EventCustom        EventType = "EVENT"
)

// Event is one entry in a run's log: a monotonically increasing index
// within its run, a timestamp, and a JSON-serializable payload.
type Event struct {
	RunID     string         `json:"run_id"`
	Index     int            `json:"index"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}
