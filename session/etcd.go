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
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdManager is a Manager backed by an etcd key-value store: one key per
// session holding the whole session's JSON-encoded runs, under keyPrefix.
// This is a storage-only role (see DESIGN.md's Open Question decision) —
// etcd here is never used for leader election or distributed coordination.
type EtcdManager struct {
	client     *clientv3.Client
	keyPrefix  string
	leaderOnly bool
	mu         sync.Mutex
}

// NewEtcdManager wraps an already-connected etcd client.
func NewEtcdManager(client *clientv3.Client, keyPrefix string, leaderOnly bool) (*EtcdManager, error) {
	if client == nil {
		return nil, fmt.Errorf("session: etcd client is required")
	}
	if keyPrefix == "" {
		keyPrefix = "/orchestrator/sessions/"
	}
	return &EtcdManager{client: client, keyPrefix: keyPrefix, leaderOnly: leaderOnly}, nil
}

func (m *EtcdManager) key(sessionID string) string { return m.keyPrefix + sessionID }

func (m *EtcdManager) read(ctx context.Context, sessionID string) (*AgentSession, bool, error) {
	resp, err := m.client.Get(ctx, m.key(sessionID))
	if err != nil {
		return nil, false, fmt.Errorf("session: etcd get: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	var sess AgentSession
	if err := json.Unmarshal(resp.Kvs[0].Value, &sess); err != nil {
		return nil, false, fmt.Errorf("session: decode etcd value: %w", err)
	}
	return &sess, true, nil
}

func (m *EtcdManager) write(ctx context.Context, sess *AgentSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode etcd value: %w", err)
	}
	if _, err := m.client.Put(ctx, m.key(sess.SessionID), string(data)); err != nil {
		return fmt.Errorf("session: etcd put: %w", err)
	}
	return nil
}

func (m *EtcdManager) AddRun(ctx context.Context, in AddRunInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	sess, ok, err := m.read(ctx, in.SessionID)
	if err != nil {
		return "", err
	}
	if !ok {
		sess = &AgentSession{SessionID: in.SessionID, UserID: in.UserID, CreatedAt: now}
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

	if err := m.write(ctx, sess); err != nil {
		return "", err
	}
	return record.RunID, nil
}

func (m *EtcdManager) GetSession(ctx context.Context, sessionID string) ([]*RunRecord, bool, error) {
	sess, ok, err := m.read(ctx, sessionID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return sess.Runs, true, nil
}

func (m *EtcdManager) GetHistoryMessages(ctx context.Context, sessionID string, numRuns int, maxResponseChars int, smartCompress bool) ([]HistoryTurn, error) {
	runs, ok, err := m.GetSession(ctx, sessionID)
	if err != nil || !ok {
		return nil, err
	}
	return renderTurns(runs, numRuns, maxResponseChars, smartCompress, m.leaderOnly), nil
}

func (m *EtcdManager) GetHistoryContext(ctx context.Context, sessionID string, numRuns int, maxChars int, truncateResponse bool) (string, error) {
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

func (m *EtcdManager) TrimSessionRuns(ctx context.Context, sessionID string, maxRuns int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok, err := m.read(ctx, sessionID)
	if err != nil || !ok || maxRuns <= 0 || len(sess.Runs) <= maxRuns {
		return err
	}
	sess.Runs = sess.Runs[len(sess.Runs)-maxRuns:]
	sess.touch(time.Now())
	return m.write(ctx, sess)
}

func (m *EtcdManager) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.client.Delete(ctx, m.key(sessionID)); err != nil {
		return fmt.Errorf("session: etcd delete: %w", err)
	}
	return nil
}

func (m *EtcdManager) CleanupOldSessions(ctx context.Context, maxAgeDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	resp, err := m.client.Get(ctx, m.keyPrefix, clientv3.WithPrefix())
	if err != nil {
		return 0, fmt.Errorf("session: etcd prefix scan: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	removed := 0
	for _, kv := range resp.Kvs {
		var sess AgentSession
		if err := json.Unmarshal(kv.Value, &sess); err != nil {
			continue
		}
		if sess.UpdatedAt.Before(cutoff) {
			if _, err := m.client.Delete(ctx, string(kv.Key)); err != nil {
				return removed, fmt.Errorf("session: etcd cleanup delete: %w", err)
			}
			removed++
		}
	}
	return removed, nil
}

var _ Manager = (*EtcdManager)(nil)
