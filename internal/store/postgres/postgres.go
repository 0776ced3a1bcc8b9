// Package postgres implements the extension store against a Postgres
// database, for deployments that talk to the managed database directly
// instead of through its REST layer.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/andylee303/jupyterlab-edu-extension/internal/store"
)

// Store implements store.Store backed by Postgres.
type Store struct {
	db *sql.DB
}

// New opens a Postgres-backed store using the provided DSN.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS students (
	student_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_active_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	student_id TEXT NOT NULL REFERENCES students(student_id),
	notebook_name TEXT,
	started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	ended_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS execution_logs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	cell_id TEXT,
	cell_content TEXT,
	execution_count INTEGER,
	output TEXT,
	error_output TEXT,
	chatgpt_analysis TEXT,
	execution_time_ms BIGINT NOT NULL DEFAULT 0,
	executed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_execution_logs_session ON execution_logs(session_id, executed_at);

CREATE TABLE IF NOT EXISTS chat_logs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	role TEXT NOT NULL CHECK(role IN ('user','assistant')),
	content TEXT,
	context JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_chat_logs_session ON chat_logs(session_id, created_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertStudent creates the student row or refreshes its activity timestamp.
func (s *Store) UpsertStudent(ctx context.Context, studentID, name string) error {
	if studentID == "" {
		return errors.New("student id required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO students(student_id, name, last_active_at) VALUES($1, $2, NOW())
ON CONFLICT(student_id) DO UPDATE SET name = EXCLUDED.name, last_active_at = NOW()`,
		studentID, name)
	return err
}

// CreateSession inserts a new learning session and returns its id.
func (s *Store) CreateSession(ctx context.Context, studentID, notebookName string) (string, error) {
	if studentID == "" {
		return "", errors.New("student id required")
	}
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions(id, student_id, notebook_name) VALUES($1, $2, $3)`,
		id, studentID, notebookName)
	if err != nil {
		return "", err
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id required")
	}
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at = NOW() WHERE id = $1`, sessionID)
	return err
}

// LogExecution inserts one execution record, applying the ingestion caps.
func (s *Store) LogExecution(ctx context.Context, entry store.ExecutionLog) (string, error) {
	if entry.SessionID == "" {
		return "", errors.New("execution log requires session id")
	}
	entry = store.ClampExecution(entry)
	id := uuid.New().String()
	executed := entry.ExecutedAt
	if executed.IsZero() {
		executed = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO execution_logs(id, session_id, cell_id, cell_content, execution_count, output, error_output, chatgpt_analysis, execution_time_ms, executed_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, entry.SessionID, entry.CellID, entry.CellContent, entry.ExecutionCount,
		entry.Output, entry.ErrorOutput, entry.Analysis, entry.ExecutionTimeMS, executed)
	if err != nil {
		return "", err
	}
	return id, nil
}

// LogChat inserts one chat record, applying the ingestion caps.
func (s *Store) LogChat(ctx context.Context, entry store.ChatLog) (string, error) {
	if entry.SessionID == "" {
		return "", errors.New("chat log requires session id")
	}
	if entry.Role != "user" && entry.Role != "assistant" {
		return "", fmt.Errorf("invalid chat role %q", entry.Role)
	}
	entry = store.ClampChat(entry)
	id := uuid.New().String()
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var contextJSON any
	if len(entry.Context) > 0 {
		contextJSON = string(entry.Context)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO chat_logs(id, session_id, role, content, context, created_at)
VALUES($1, $2, $3, $4, $5, $6)`,
		id, entry.SessionID, entry.Role, entry.Content, contextJSON, created)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ExecutionLogs returns the session's executions in chronological order.
func (s *Store) ExecutionLogs(ctx context.Context, sessionID string, limit int) ([]store.ExecutionLog, error) {
	if sessionID == "" {
		return nil, errors.New("session id required")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, cell_id, cell_content, execution_count, output, error_output, chatgpt_analysis, execution_time_ms, executed_at
FROM execution_logs
WHERE session_id = $1
ORDER BY executed_at ASC
LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []store.ExecutionLog
	for rows.Next() {
		var e store.ExecutionLog
		var cellID, cellContent, output, errorOutput, analysis sql.NullString
		var execCount sql.NullInt64
		if err := rows.Scan(&e.ID, &e.SessionID, &cellID, &cellContent, &execCount,
			&output, &errorOutput, &analysis, &e.ExecutionTimeMS, &e.ExecutedAt); err != nil {
			return nil, err
		}
		e.CellID = cellID.String
		e.CellContent = cellContent.String
		e.ExecutionCount = int(execCount.Int64)
		e.Output = output.String
		e.ErrorOutput = errorOutput.String
		e.Analysis = analysis.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ChatLogs returns the session's chat records in chronological order.
func (s *Store) ChatLogs(ctx context.Context, sessionID string, limit int) ([]store.ChatLog, error) {
	if sessionID == "" {
		return nil, errors.New("session id required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, role, content, context, created_at
FROM chat_logs
WHERE session_id = $1
ORDER BY created_at ASC
LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []store.ChatLog
	for rows.Next() {
		var e store.ChatLog
		var content, contextJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Role, &content, &contextJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Content = content.String
		if contextJSON.Valid && contextJSON.String != "" {
			e.Context = []byte(contextJSON.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
