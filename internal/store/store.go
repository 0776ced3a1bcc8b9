// Package store defines the external persistence collaborator: student
// sessions, execution logs, and chat logs.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Ingestion caps on long-text fields, in characters, to bound storage growth.
const (
	MaxOutputChars = 10000
	MaxErrorChars  = 5000
	MaxChatChars   = 20000
)

// SessionRow is a persisted learning session.
type SessionRow struct {
	ID           string     `json:"id"`
	StudentID    string     `json:"student_id"`
	NotebookName string     `json:"notebook_name"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// ExecutionLog is one recorded cell execution.
type ExecutionLog struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	CellID          string    `json:"cell_id"`
	CellContent     string    `json:"cell_content"`
	ExecutionCount  int       `json:"execution_count"`
	Output          string    `json:"output"`
	ErrorOutput     string    `json:"error_output"`
	Analysis        string    `json:"chatgpt_analysis"`
	ExecutionTimeMS int64     `json:"execution_time_ms"`
	ExecutedAt      time.Time `json:"executed_at"`
}

// ChatLog is one side of a recorded assistant exchange.
type ChatLog struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Context   json.RawMessage `json:"context,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store defines persistence behaviour for the external collaborator. Every
// implementation applies the ingestion caps before writing.
type Store interface {
	UpsertStudent(ctx context.Context, studentID, name string) error
	CreateSession(ctx context.Context, studentID, notebookName string) (string, error)
	EndSession(ctx context.Context, sessionID string) error
	LogExecution(ctx context.Context, entry ExecutionLog) (string, error)
	LogChat(ctx context.Context, entry ChatLog) (string, error)
	ExecutionLogs(ctx context.Context, sessionID string, limit int) ([]ExecutionLog, error)
	ChatLogs(ctx context.Context, sessionID string, limit int) ([]ChatLog, error)
	Close() error
}

// Clip truncates s to at most n characters (runes, so multibyte student
// output is not split mid-character).
func Clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// ClampExecution applies the ingestion caps to one execution log entry.
func ClampExecution(entry ExecutionLog) ExecutionLog {
	entry.Output = Clip(entry.Output, MaxOutputChars)
	entry.ErrorOutput = Clip(entry.ErrorOutput, MaxErrorChars)
	return entry
}

// ClampChat applies the ingestion caps to one chat log entry.
func ClampChat(entry ChatLog) ChatLog {
	entry.Content = Clip(entry.Content, MaxChatChars)
	return entry
}
