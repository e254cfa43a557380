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
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	// Database drivers: blank-imported so database/sql can locate them by
	// name. Only the driver matching Dialect is ever actually dialed.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const createSessionsTableSQL = `
CREATE TABLE IF NOT EXISTS orchestrator_sessions (
    session_id VARCHAR(255) PRIMARY KEY,
    user_id VARCHAR(255),
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const createRunsTableSQLSQLite = `
CREATE TABLE IF NOT EXISTS orchestrator_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id VARCHAR(255) NOT NULL,
    run_id VARCHAR(255) NOT NULL,
    parent_run_id VARCHAR(255),
    runner_type VARCHAR(50) NOT NULL,
    member_id VARCHAR(255),
    record_json TEXT NOT NULL,
    sequence_num INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (session_id) REFERENCES orchestrator_sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_orchestrator_runs_session ON orchestrator_runs(session_id, sequence_num);
`

const createRunsTableSQLPostgres = `
CREATE TABLE IF NOT EXISTS orchestrator_runs (
    id SERIAL PRIMARY KEY,
    session_id VARCHAR(255) NOT NULL,
    run_id VARCHAR(255) NOT NULL,
    parent_run_id VARCHAR(255),
    runner_type VARCHAR(50) NOT NULL,
    member_id VARCHAR(255),
    record_json TEXT NOT NULL,
    sequence_num BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (session_id) REFERENCES orchestrator_sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_orchestrator_runs_session ON orchestrator_runs(session_id, sequence_num);
`

const createRunsTableSQLMySQL = `
CREATE TABLE IF NOT EXISTS orchestrator_runs (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    session_id VARCHAR(255) NOT NULL,
    run_id VARCHAR(255) NOT NULL,
    parent_run_id VARCHAR(255),
    runner_type VARCHAR(50) NOT NULL,
    member_id VARCHAR(255),
    record_json TEXT NOT NULL,
    sequence_num BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (session_id) REFERENCES orchestrator_sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_orchestrator_runs_session ON orchestrator_runs(session_id, sequence_num);
`

// SQLManager is a Manager backed by database/sql, supporting sqlite,
// postgres and mysql via the dialect-specific schema variants (grounded on
// pkg/memory/session_service_sql.go).
type SQLManager struct {
	db         *sql.DB
	dialect    string
	leaderOnly bool
	mu         sync.Mutex
}

// NewSQLManager opens (or reuses) db under the given dialect ("sqlite",
// "postgres", "mysql") and ensures the schema exists.
func NewSQLManager(db *sql.DB, dialect string, leaderOnly bool) (*SQLManager, error) {
	if db == nil {
		return nil, fmt.Errorf("session: database connection is required")
	}
	switch dialect {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("session: unsupported dialect %q", dialect)
	}

	m := &SQLManager{db: db, dialect: dialect, leaderOnly: leaderOnly}
	if err := m.initSchema(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SQLManager) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := m.db.ExecContext(ctx, createSessionsTableSQL); err != nil {
		return fmt.Errorf("session: create sessions table: %w", err)
	}

	runsSQL := createRunsTableSQLSQLite
	switch m.dialect {
	case "postgres":
		runsSQL = createRunsTableSQLPostgres
	case "mysql":
		runsSQL = createRunsTableSQLMySQL
	}
	if _, err := m.db.ExecContext(ctx, runsSQL); err != nil {
		return fmt.Errorf("session: create runs table: %w", err)
	}
	return nil
}

func (m *SQLManager) AddRun(ctx context.Context, in AddRunInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if _, err := m.db.ExecContext(ctx,
		`INSERT INTO orchestrator_sessions (session_id, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET updated_at = excluded.updated_at`,
		in.SessionID, in.UserID, now, now,
	); err != nil {
		// sqlite/postgres support the upsert syntax above; fall back to a
		// plain update-then-insert for dialects that don't (mysql).
		if updErr := m.touchOrCreateSession(ctx, in.SessionID, in.UserID, now); updErr != nil {
			return "", fmt.Errorf("session: upsert session: %w", updErr)
		}
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
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("session: encode run record: %w", err)
	}

	seq, err := m.nextSequence(ctx, in.SessionID)
	if err != nil {
		return "", err
	}

	if _, err := m.db.ExecContext(ctx,
		`INSERT INTO orchestrator_runs (session_id, run_id, parent_run_id, runner_type, member_id, record_json, sequence_num, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.SessionID, record.RunID, record.ParentRunID, string(record.RunnerType), record.MemberID, string(recordJSON), seq, now,
	); err != nil {
		return "", fmt.Errorf("session: insert run: %w", err)
	}

	return record.RunID, nil
}

func (m *SQLManager) touchOrCreateSession(ctx context.Context, sessionID, userID string, now time.Time) error {
	res, err := m.db.ExecContext(ctx, `UPDATE orchestrator_sessions SET updated_at = ? WHERE session_id = ?`, now, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO orchestrator_sessions (session_id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		sessionID, userID, now, now,
	)
	return err
}

func (m *SQLManager) nextSequence(ctx context.Context, sessionID string) (int64, error) {
	var max sql.NullInt64
	if err := m.db.QueryRowContext(ctx, `SELECT MAX(sequence_num) FROM orchestrator_runs WHERE session_id = ?`, sessionID).Scan(&max); err != nil {
		return 0, fmt.Errorf("session: query max sequence: %w", err)
	}
	if !max.Valid {
		return 1, nil
	}
	return max.Int64 + 1, nil
}

func (m *SQLManager) GetSession(ctx context.Context, sessionID string) ([]*RunRecord, bool, error) {
	var exists bool
	if err := m.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orchestrator_sessions WHERE session_id = ?)`, sessionID).Scan(&exists); err != nil {
		return nil, false, fmt.Errorf("session: check session existence: %w", err)
	}
	if !exists {
		return nil, false, nil
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT record_json FROM orchestrator_runs WHERE session_id = ? ORDER BY sequence_num ASC`, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("session: query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, false, fmt.Errorf("session: scan run row: %w", err)
		}
		var rec RunRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, false, fmt.Errorf("session: decode run record: %w", err)
		}
		runs = append(runs, &rec)
	}
	return runs, true, rows.Err()
}

func (m *SQLManager) GetHistoryMessages(ctx context.Context, sessionID string, numRuns int, maxResponseChars int, smartCompress bool) ([]HistoryTurn, error) {
	runs, ok, err := m.GetSession(ctx, sessionID)
	if err != nil || !ok {
		return nil, err
	}
	return renderTurns(runs, numRuns, maxResponseChars, smartCompress, m.leaderOnly), nil
}

func (m *SQLManager) GetHistoryContext(ctx context.Context, sessionID string, numRuns int, maxChars int, truncateResponse bool) (string, error) {
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

func (m *SQLManager) TrimSessionRuns(ctx context.Context, sessionID string, maxRuns int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if maxRuns <= 0 {
		return nil
	}
	_, err := m.db.ExecContext(ctx,
		`DELETE FROM orchestrator_runs WHERE session_id = ? AND sequence_num NOT IN (
			SELECT sequence_num FROM (
				SELECT sequence_num FROM orchestrator_runs WHERE session_id = ?
				ORDER BY sequence_num DESC LIMIT ?
			) AS keep
		)`, sessionID, sessionID, maxRuns)
	if err != nil {
		return fmt.Errorf("session: trim runs: %w", err)
	}
	return nil
}

func (m *SQLManager) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.db.ExecContext(ctx, `DELETE FROM orchestrator_runs WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("session: delete runs: %w", err)
	}
	if _, err := m.db.ExecContext(ctx, `DELETE FROM orchestrator_sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("session: delete session: %w", err)
	}
	return nil
}

func (m *SQLManager) CleanupOldSessions(ctx context.Context, maxAgeDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	rows, err := m.db.QueryContext(ctx, `SELECT session_id FROM orchestrator_sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("session: query stale sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("session: scan stale session id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := m.db.ExecContext(ctx, `DELETE FROM orchestrator_runs WHERE session_id = ?`, id); err != nil {
			return 0, fmt.Errorf("session: cleanup runs for %s: %w", id, err)
		}
		if _, err := m.db.ExecContext(ctx, `DELETE FROM orchestrator_sessions WHERE session_id = ?`, id); err != nil {
			return 0, fmt.Errorf("session: cleanup session %s: %w", id, err)
		}
	}
	return len(ids), nil
}

var _ Manager = (*SQLManager)(nil)
