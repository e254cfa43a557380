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

package session

import "context"

// AddRunInput is what a caller supplies to append one RunRecord; RunID and
// CreatedAt are filled in by the Manager.
type AddRunInput struct {
	SessionID   string
	UserID      string
	ParentRunID string
	RunnerType  RunnerType
	MemberID    string
	UserMessage string
	Response    string
	Success     bool
	Reason      string
	Steps       int
}

// Manager is the UnifiedSessionManager facade (spec §4.6): an async,
// identical-across-backends API over pluggable storage. Every mutating
// method is serialized per manager by the implementation's own mutex; every
// method that reads returns a value safe to use without further locking by
// the caller (a defensive copy of the underlying record slice).
type Manager interface {
	// AddRun appends a RunRecord to the named session, creating the session
	// if it doesn't exist, and returns the new record's RunID.
	AddRun(ctx context.Context, in AddRunInput) (string, error)

	// GetSession returns a snapshot of the session, or ok=false if it has
	// never been created.
	GetSession(ctx context.Context, sessionID string) (runs []*RunRecord, ok bool, err error)

	// GetHistoryMessages renders the last numRuns runs as alternating
	// user/assistant core.Message-shaped pairs (spec §4.6). leaderOnly is
	// ignored by the agent-session backends and honored by team ones.
	GetHistoryMessages(ctx context.Context, sessionID string, numRuns int, maxResponseChars int, smartCompress bool) ([]HistoryTurn, error)

	// GetHistoryContext renders the same information as an XML-tagged text
	// block suitable for injection into a system prompt.
	GetHistoryContext(ctx context.Context, sessionID string, numRuns int, maxChars int, truncateResponse bool) (string, error)

	// TrimSessionRuns retains only the last maxRuns records for sessionID.
	TrimSessionRuns(ctx context.Context, sessionID string, maxRuns int) error

	// DeleteSession removes a session entirely.
	DeleteSession(ctx context.Context, sessionID string) error

	// CleanupOldSessions deletes sessions whose UpdatedAt is older than
	// maxAgeDays and returns how many were removed.
	CleanupOldSessions(ctx context.Context, maxAgeDays int) (int, error)
}

// HistoryTurn is one rendered user/assistant pair from GetHistoryMessages.
type HistoryTurn struct {
	UserMessage string
	Response    string
}
