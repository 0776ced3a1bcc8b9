package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type loginRequest struct {
	StudentID    string `json:"student_id"`
	Name         string `json:"name"`
	NotebookName string `json:"notebook_name"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "無效的請求格式")
		return
	}
	studentID := strings.TrimSpace(req.StudentID)
	name := strings.TrimSpace(req.Name)
	notebookName := strings.TrimSpace(req.NotebookName)

	if studentID == "" || name == "" {
		s.respondError(w, http.StatusBadRequest, "學號和姓名為必填欄位")
		return
	}

	mode := "local"
	var sessionID string

	if backing := s.stores.Current(); backing != nil {
		mode = "cloud"
		if err := backing.UpsertStudent(r.Context(), studentID, name); err != nil {
			s.logf("login: student upsert failed for %s: %v", studentID, err)
		}
		externalID, err := backing.CreateSession(r.Context(), studentID, notebookName)
		if err != nil {
			s.logf("login: external session creation failed for %s: %v", studentID, err)
		} else {
			sessionID = externalID
		}
	}

	if sessionID != "" {
		s.sessions.Put(sessionID, studentID, name, notebookName)
	} else {
		// Local fallback id when the store is unconfigured or unreachable.
		if mode == "cloud" {
			sessionID = fmt.Sprintf("session-%s-%d", studentID, time.Now().UnixNano())
			s.sessions.Put(sessionID, studentID, name, notebookName)
		} else {
			sess := s.sessions.Create(studentID, name, notebookName)
			sessionID = sess.Token
		}
	}

	s.logf("login student=%s mode=%s", studentID, mode)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sessionID,
		"message":    "登入成功",
		"mode":       mode,
	})
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.SessionID != "" {
		s.sessions.Remove(req.SessionID)
		if s.recorder != nil && s.stores.Configured() {
			s.recorder.EndSession(req.SessionID)
		}
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "已登出",
	})
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sess, ok := s.sessions.Get(sessionID); sessionID != "" && ok {
		s.respondJSON(w, http.StatusOK, map[string]any{
			"logged_in":  true,
			"student_id": sess.StudentID,
			"name":       sess.Name,
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"logged_in": false})
}
