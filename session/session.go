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

// Package session persists Agent and Team runs and renders them back into
// conversation turns for future calls.
package session

import (
	"time"

	"github.com/google/uuid"
)

// RunnerType distinguishes a single-agent run from the two Team run shapes.
type RunnerType string

const (
	RunnerAgent       RunnerType = "agent"
	RunnerTeamLeader  RunnerType = "team_leader"
	RunnerTeamMember  RunnerType = "member"
)

// RunRecord is one completed (or cancelled) run within a session. For Team
// sessions, a leader run has ParentRunID == "" and each delegated member run
// carries ParentRunID == the leader's RunID (spec §4.5).
type RunRecord struct {
	RunID        string     `json:"run_id"`
	ParentRunID  string     `json:"parent_run_id,omitempty"`
	RunnerType   RunnerType `json:"runner_type"`
	MemberID     string     `json:"member_id,omitempty"`
	UserMessage  string     `json:"user_message"`
	Response     string     `json:"response"`
	Success      bool       `json:"success"`
	Reason       string     `json:"reason"`
	Steps        int        `json:"steps"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NewRunID generates a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// AgentSession is the ordered history of one session_id's runs. The same
// shape backs both single-agent stores (every RunRecord has RunnerAgent) and
// team stores (interleaved RunnerTeamLeader/RunnerTeamMember RunRecords) —
// FileManager and EtcdManager pick which by their leaderOnly flag rather
// than by type.
type AgentSession struct {
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id,omitempty"`
	Runs      []*RunRecord `json:"runs"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (s *AgentSession) touch(now time.Time) { s.UpdatedAt = now }

// leaderRuns filters runs down to team_leader RunRecords, used by the
// leaderOnly history rendering variant (spec §4.6) so member chatter doesn't
// pollute the leader's own conversation context.
func leaderRuns(runs []*RunRecord) []*RunRecord {
	var out []*RunRecord
	for _, r := range runs {
		if r.RunnerType == RunnerTeamLeader {
			out = append(out, r)
		}
	}
	return out
}
