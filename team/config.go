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

// Package team implements hierarchical agent composition: a leader Agent
// that delegates subtasks to a fixed roster of member Agents, plus a
// dependency-DAG executor for running a task graph across that roster.
package team

// MemberConfig describes one team member (spec §4.5's TeamMemberConfig).
type MemberConfig struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Role         string   `json:"role" yaml:"role"`
	Instructions string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Tools        []string `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// Config is a TeamConfig: name, description, member roster, an optional
// leader-only instruction block, and the single-member-vs-broadcast
// delegation mode switch.
type Config struct {
	Name               string         `json:"name" yaml:"name"`
	Description        string         `json:"description,omitempty" yaml:"description,omitempty"`
	Members            []MemberConfig `json:"members" yaml:"members"`
	LeaderInstructions string         `json:"leader_instructions,omitempty" yaml:"leader_instructions,omitempty"`
	DelegateToAll      bool           `json:"delegate_to_all" yaml:"delegate_to_all"`
}

// memberByID returns the member with the given id, if any.
func (c Config) memberByID(id string) (MemberConfig, bool) {
	for _, m := range c.Members {
		if m.ID == id {
			return m, true
		}
	}
	return MemberConfig{}, false
}

// memberIDs returns the ordered list of member ids, used as the delegation
// tool's enum and for deterministic broadcast ordering.
func (c Config) memberIDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ID
	}
	return ids
}
