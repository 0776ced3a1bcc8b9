package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/andylee303/jupyterlab-edu-extension/internal/store"
	"github.com/andylee303/jupyterlab-edu-extension/internal/testutil"
)

func TestCreateSessionReturnsGeneratedID(t *testing.T) {
	var gotAuth, gotAPIKey, gotPrefer string
	var gotBody map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("apikey")
		gotPrefer = r.Header.Get("Prefer")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"sess-123"}]`))
	})
	srv := testutil.NewIPv4Server(t, mux)
	defer srv.Close()

	s, err := New(srv.URL, "service-key", srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id, err := s.CreateSession(context.Background(), "s001", "week1.ipynb")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id != "sess-123" {
		t.Errorf("id = %q, want sess-123", id)
	}
	if gotAuth != "Bearer service-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAPIKey != "service-key" {
		t.Errorf("apikey = %q", gotAPIKey)
	}
	if gotPrefer != "return=representation" {
		t.Errorf("Prefer = %q", gotPrefer)
	}
	if gotBody["student_id"] != "s001" || gotBody["notebook_name"] != "week1.ipynb" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestUpsertStudentUsesMergeDuplicates(t *testing.T) {
	var gotQuery, gotPrefer string

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/students", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("on_conflict")
		gotPrefer = r.Header.Get("Prefer")
		w.WriteHeader(http.StatusCreated)
	})
	srv := testutil.NewIPv4Server(t, mux)
	defer srv.Close()

	s, err := New(srv.URL, "key", srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.UpsertStudent(context.Background(), "s001", "小明"); err != nil {
		t.Fatalf("UpsertStudent: %v", err)
	}
	if gotQuery != "student_id" {
		t.Errorf("on_conflict = %q", gotQuery)
	}
	if gotPrefer != "resolution=merge-duplicates" {
		t.Errorf("Prefer = %q", gotPrefer)
	}
}

func TestEndSessionPatchesByID(t *testing.T) {
	var gotMethod, gotFilter string

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotFilter = r.URL.Query().Get("id")
		w.WriteHeader(http.StatusNoContent)
	})
	srv := testutil.NewIPv4Server(t, mux)
	defer srv.Close()

	s, err := New(srv.URL, "key", srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.EndSession(context.Background(), "sess-123"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %q, want PATCH", gotMethod)
	}
	if gotFilter != "eq.sess-123" {
		t.Errorf("id filter = %q", gotFilter)
	}
}

func TestLogExecutionClampsLongOutput(t *testing.T) {
	var gotBody map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/execution_logs", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"exec-1"}]`))
	})
	srv := testutil.NewIPv4Server(t, mux)
	defer srv.Close()

	s, err := New(srv.URL, "key", srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id, err := s.LogExecution(context.Background(), store.ExecutionLog{
		SessionID: "sess-1",
		CellID:    "cell-1",
		Output:    strings.Repeat("x", store.MaxOutputChars+500),
	})
	if err != nil {
		t.Fatalf("LogExecution: %v", err)
	}
	if id != "exec-1" {
		t.Errorf("id = %q", id)
	}
	output, _ := gotBody["output"].(string)
	if len(output) != store.MaxOutputChars {
		t.Errorf("output length = %d, want %d", len(output), store.MaxOutputChars)
	}
}

func TestLogChatRejectsInvalidRole(t *testing.T) {
	s, err := New("http://127.0.0.1:1", "key", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.LogChat(context.Background(), store.ChatLog{SessionID: "s", Role: "system", Content: "x"}); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestExecutionLogsOrderedQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/execution_logs", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("session_id") != "eq.sess-1" {
			t.Errorf("session_id = %q", q.Get("session_id"))
		}
		if q.Get("order") != "executed_at.asc" {
			t.Errorf("order = %q", q.Get("order"))
		}
		if q.Get("limit") != "25" {
			t.Errorf("limit = %q", q.Get("limit"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"e1","session_id":"sess-1","cell_content":"print(1)"},{"id":"e2","session_id":"sess-1","error_output":"NameError: name 'x' is not defined"}]`))
	})
	srv := testutil.NewIPv4Server(t, mux)
	defer srv.Close()

	s, err := New(srv.URL, "key", srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logs, err := s.ExecutionLogs(context.Background(), "sess-1", 25)
	if err != nil {
		t.Fatalf("ExecutionLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("len = %d, want 2", len(logs))
	}
	if logs[0].CellContent != "print(1)" {
		t.Errorf("first cell content = %q", logs[0].CellContent)
	}
	if !strings.Contains(logs[1].ErrorOutput, "NameError") {
		t.Errorf("second error output = %q", logs[1].ErrorOutput)
	}
}

func TestErrorPayloadSurfaced(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/chat_logs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"JWT expired","code":"PGRST301"}`))
	})
	srv := testutil.NewIPv4Server(t, mux)
	defer srv.Close()

	s, err := New(srv.URL, "key", srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = s.LogChat(context.Background(), store.ChatLog{SessionID: "s", Role: "user", Content: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "JWT expired") {
		t.Errorf("error = %v, want PostgREST message surfaced", err)
	}
}
