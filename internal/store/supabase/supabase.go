// Package supabase implements the extension store over Supabase's PostgREST
// interface, using the service role key so backend writes bypass row-level
// security.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andylee303/jupyterlab-edu-extension/internal/store"
)

// HTTPClient abstracts the Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Store implements store.Store against the PostgREST endpoint of a Supabase
// project.
type Store struct {
	baseURL    *url.URL
	serviceKey string
	httpClient HTTPClient
}

// New constructs a Store for the given project URL and service role key.
func New(projectURL, serviceKey string, httpClient HTTPClient) (*Store, error) {
	if strings.TrimSpace(projectURL) == "" {
		return nil, fmt.Errorf("supabase: project url required")
	}
	if strings.TrimSpace(serviceKey) == "" {
		return nil, fmt.Errorf("supabase: service role key required")
	}
	parsed, err := url.Parse(strings.TrimSuffix(projectURL, "/") + "/rest/v1/")
	if err != nil {
		return nil, fmt.Errorf("supabase: invalid project url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Store{baseURL: parsed, serviceKey: serviceKey, httpClient: httpClient}, nil
}

// Close is a no-op; the store holds no persistent connection.
func (s *Store) Close() error { return nil }

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (s *Store) do(ctx context.Context, method, table string, query url.Values, payload any, prefer string, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	endpoint := *s.baseURL.JoinPath(table)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		var errPayload errorResponse
		if err := json.Unmarshal(data, &errPayload); err == nil && strings.TrimSpace(errPayload.Message) != "" {
			return fmt.Errorf("supabase: %s (code=%s)", errPayload.Message, errPayload.Code)
		}
		return fmt.Errorf("supabase: status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// insertReturning inserts rows and decodes the representation PostgREST
// echoes back, so callers get the generated id.
func (s *Store) insertReturning(ctx context.Context, table string, payload any) (string, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, http.MethodPost, table, nil, payload, "return=representation", &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("supabase: insert into %s returned no rows", table)
	}
	return rows[0].ID, nil
}

func eq(column, value string) url.Values {
	q := url.Values{}
	q.Set(column, "eq."+value)
	return q
}

// UpsertStudent creates the student row or refreshes its activity timestamp.
func (s *Store) UpsertStudent(ctx context.Context, studentID, name string) error {
	if studentID == "" {
		return fmt.Errorf("supabase: student id required")
	}
	q := url.Values{}
	q.Set("on_conflict", "student_id")
	return s.do(ctx, http.MethodPost, "students", q, map[string]any{
		"student_id":     studentID,
		"name":           name,
		"last_active_at": time.Now().UTC().Format(time.RFC3339),
	}, "resolution=merge-duplicates", nil)
}

// CreateSession inserts a new learning session and returns the id Supabase
// assigned to it.
func (s *Store) CreateSession(ctx context.Context, studentID, notebookName string) (string, error) {
	if studentID == "" {
		return "", fmt.Errorf("supabase: student id required")
	}
	return s.insertReturning(ctx, "sessions", map[string]any{
		"student_id":    studentID,
		"notebook_name": notebookName,
	})
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("supabase: session id required")
	}
	return s.do(ctx, http.MethodPatch, "sessions", eq("id", sessionID), map[string]any{
		"ended_at": time.Now().UTC().Format(time.RFC3339),
	}, "", nil)
}

// LogExecution inserts one execution record, applying the ingestion caps.
func (s *Store) LogExecution(ctx context.Context, entry store.ExecutionLog) (string, error) {
	if entry.SessionID == "" {
		return "", fmt.Errorf("supabase: execution log requires session id")
	}
	entry = store.ClampExecution(entry)
	row := map[string]any{
		"session_id":        entry.SessionID,
		"cell_id":           entry.CellID,
		"cell_content":      entry.CellContent,
		"execution_count":   entry.ExecutionCount,
		"output":            entry.Output,
		"execution_time_ms": entry.ExecutionTimeMS,
	}
	if entry.ErrorOutput != "" {
		row["error_output"] = entry.ErrorOutput
	}
	if entry.Analysis != "" {
		row["chatgpt_analysis"] = entry.Analysis
	}
	return s.insertReturning(ctx, "execution_logs", row)
}

// LogChat inserts one chat record, applying the ingestion caps.
func (s *Store) LogChat(ctx context.Context, entry store.ChatLog) (string, error) {
	if entry.SessionID == "" {
		return "", fmt.Errorf("supabase: chat log requires session id")
	}
	if entry.Role != "user" && entry.Role != "assistant" {
		return "", fmt.Errorf("supabase: invalid chat role %q", entry.Role)
	}
	entry = store.ClampChat(entry)
	row := map[string]any{
		"session_id": entry.SessionID,
		"role":       entry.Role,
		"content":    entry.Content,
	}
	if len(entry.Context) > 0 {
		row["context"] = json.RawMessage(entry.Context)
	}
	return s.insertReturning(ctx, "chat_logs", row)
}

// ExecutionLogs returns the session's executions in chronological order.
func (s *Store) ExecutionLogs(ctx context.Context, sessionID string, limit int) ([]store.ExecutionLog, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("supabase: session id required")
	}
	if limit <= 0 {
		limit = 100
	}
	q := eq("session_id", sessionID)
	q.Set("select", "*")
	q.Set("order", "executed_at.asc")
	q.Set("limit", strconv.Itoa(limit))

	var entries []store.ExecutionLog
	if err := s.do(ctx, http.MethodGet, "execution_logs", q, nil, "", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ChatLogs returns the session's chat records in chronological order.
func (s *Store) ChatLogs(ctx context.Context, sessionID string, limit int) ([]store.ChatLog, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("supabase: session id required")
	}
	if limit <= 0 {
		limit = 50
	}
	q := eq("session_id", sessionID)
	q.Set("select", "*")
	q.Set("order", "created_at.asc")
	q.Set("limit", strconv.Itoa(limit))

	var entries []store.ChatLog
	if err := s.do(ctx, http.MethodGet, "chat_logs", q, nil, "", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
