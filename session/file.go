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

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// sessionFile is the on-disk shape of one file-backed store: a single JSON
// map of session_id → AgentSession (spec §6's agent_sessions.json /
// team_sessions.json layout).
type sessionFile struct {
	Sessions map[string]*AgentSession `json:"sessions"`
}

// FileManager is a Manager backed by a single JSON file, rewritten in full
// via atomic temp-file+rename on every mutation (spec §4.6/§6). Reads and
// writes are serialized by mu; this also protects the in-memory cache from
// concurrent map access.
type FileManager struct {
	path       string
	leaderOnly bool

	mu    sync.Mutex
	cache *sessionFile
}

// NewFileManager constructs a FileManager persisting to path, loading any
// existing state immediately. leaderOnly marks a TeamSession store so its
// GetHistoryMessages/GetHistoryContext default to leader-run filtering.
func NewFileManager(path string, leaderOnly bool) (*FileManager, error) {
	m := &FileManager{path: path, leaderOnly: leaderOnly}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *FileManager) load() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		m.cache = &sessionFile{Sessions: map[string]*AgentSession{}}
		return nil
	}
	if err != nil {
		return fmt.Errorf("session: read %s: %w", m.path, err)
	}
	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("session: decode %s: %w", m.path, err)
	}
	if sf.Sessions == nil {
		sf.Sessions = map[string]*AgentSession{}
	}
	m.cache = &sf
	return nil
}

// persist must be called with mu held. It writes to a temp file in the same
// directory, then renames over the destination so readers never observe a
// torn write (spec §5: "atomic file replace prevents torn writes").
func (m *FileManager) persist() error {
	data, err := json.MarshalIndent(m.cache, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", m.path, err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("session: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("session: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("session: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("session: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("session: rename temp file: %w", err)
	}
	return nil
}

func (m *FileManager) AddRun(ctx context.Context, in AddRunInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	sess, ok := m.cache.Sessions[in.SessionID]
	if !ok {
		sess = &AgentSession{SessionID: in.SessionID, UserID: in.UserID, CreatedAt: now}
		m.cache.Sessions[in.SessionID] = sess
	}

	record := &RunRecord{
		RunID:       NewRunID(),
		ParentRunID: in.ParentRunID,
		RunnerType:  in.RunnerType,
		MemberID:    in.MemberID,
		UserMessage: in.UserMessage,
		Response:    in.Response,
		Success:     in.Success,
		Reason:      in.Reason,
		Steps:       in.Steps,
		CreatedAt:   now,
	}
	sess.Runs = append(sess.Runs, record)
	sess.touch(now)

	if err := m.persist(); err != nil {
		return "", err
	}
	return record.RunID, nil
}

func (m *FileManager) GetSession(ctx context.Context, sessionID string) ([]*RunRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.cache.Sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	return append([]*RunRecord(nil), sess.Runs...), true, nil
}

func (m *FileManager) GetHistoryMessages(ctx context.Context, sessionID string, numRuns int, maxResponseChars int, smartCompress bool) ([]HistoryTurn, error) {
	runs, ok, err := m.GetSession(ctx, sessionID)
	if err != nil || !ok {
		return nil, err
	}
	return renderTurns(runs, numRuns, maxResponseChars, smartCompress, m.leaderOnly), nil
}

func (m *FileManager) GetHistoryContext(ctx context.Context, sessionID string, numRuns int, maxChars int, truncateResponse bool) (string, error) {
	turns, err := m.GetHistoryMessages(ctx, sessionID, numRuns, maxChars, false)
	if err != nil {
		return "", err
	}
	tag := "conversation_history"
	if m.leaderOnly {
		tag = "team_history"
	}
	return renderHistoryContext(tag, turns, maxChars, truncateResponse), nil
}

func (m *FileManager) TrimSessionRuns(ctx context.Context, sessionID string, maxRuns int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.cache.Sessions[sessionID]
	if !ok || maxRuns <= 0 || len(sess.Runs) <= maxRuns {
		return nil
	}
	sess.Runs = sess.Runs[len(sess.Runs)-maxRuns:]
	sess.touch(time.Now())
	return m.persist()
}

func (m *FileManager) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cache.Sessions[sessionID]; !ok {
		return nil
	}
	delete(m.cache.Sessions, sessionID)
	return m.persist()
}

func (m *FileManager) CleanupOldSessions(ctx context.Context, maxAgeDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	removed := 0
	for id, sess := range m.cache.Sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(m.cache.Sessions, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := m.persist(); err != nil {
		return 0, err
	}
	return removed, nil
}

var _ Manager = (*FileManager)(nil)
