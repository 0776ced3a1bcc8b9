package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andylee303/jupyterlab-edu-extension/internal/assistant"
	"github.com/andylee303/jupyterlab-edu-extension/internal/store"
)

type analyzeRequest struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Context string `json:"context"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "無效的請求格式")
		return
	}

	relay, ok := s.currentRelay()
	if !ok {
		s.respondError(w, http.StatusServiceUnavailable, "OpenAI API 未配置")
		return
	}

	reqStart := time.Now()
	var analysis string
	if req.Error != "" {
		analysis = relay.AnalyzeError(r.Context(), req.Code, req.Error, true)
	} else {
		analysis = relay.AnalyzeCode(r.Context(), req.Code, req.Context, false)
	}
	s.logf("analyze total_ms=%d error_path=%t", time.Since(reqStart).Milliseconds(), req.Error != "")

	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"analysis": analysis,
	})
}

type chatRequest struct {
	SessionID       string          `json:"session_id"`
	Message         string          `json:"message"`
	NotebookContext json.RawMessage `json:"notebook_context"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "無效的請求格式")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.respondError(w, http.StatusBadRequest, "訊息不可為空")
		return
	}

	relay, ok := s.currentRelay()
	if !ok {
		s.respondError(w, http.StatusServiceUnavailable, "OpenAI API 未配置")
		return
	}

	reqStart := time.Now()
	response := relay.Chat(r.Context(), message, assistant.ParseNotebookContext(req.NotebookContext))
	s.logf("chat total_ms=%d", time.Since(reqStart).Milliseconds())

	// The guard already verified the session; use its token rather than
	// whatever the body claims.
	sess, _ := sessionFromContext(r.Context())
	s.recordChat(sess.Token, message, response, req.NotebookContext)

	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"response": response,
	})
}

// recordChat queues the user question and assistant answer as two rows.
func (s *Server) recordChat(sessionID, message, response string, nbctx json.RawMessage) {
	if s.recorder == nil || !s.stores.Configured() || sessionID == "" {
		return
	}
	s.recorder.LogChat(store.ChatLog{SessionID: sessionID, Role: "user", Content: message, Context: nbctx})
	s.recorder.LogChat(store.ChatLog{SessionID: sessionID, Role: "assistant", Content: response})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "無效的請求格式")
		return
	}

	// Auth is checked here, not in middleware, so every rejection happens
	// before the response commits to the SSE content type.
	if _, ok := s.sessions.Get(req.SessionID); req.SessionID == "" || !ok {
		s.respondJSON(w, http.StatusUnauthorized, map[string]any{
			"success":    false,
			"error":      "請先登入",
			"error_code": "NOT_LOGGED_IN",
		})
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.respondError(w, http.StatusBadRequest, "訊息不可為空")
		return
	}

	relay, ok := s.currentRelay()
	if !ok {
		s.respondError(w, http.StatusServiceUnavailable, "OpenAI API 未配置")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, _ := w.(http.Flusher)

	reqStart := time.Now()
	var full strings.Builder
	writeFailed := false
	ch := relay.ChatStream(r.Context(), message, assistant.ParseNotebookContext(req.NotebookContext))

	for chunk := range ch {
		full.WriteString(chunk)
		frame, err := json.Marshal(map[string]string{"chunk": chunk})
		if err != nil {
			continue
		}
		if _, err := io.WriteString(w, "data: "+string(frame)+"\n\n"); err != nil {
			writeFailed = true
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	// A failed transport write means the client is gone even if the request
	// context has not reported cancellation yet.
	aborted := writeFailed || r.Context().Err() != nil
	if !aborted {
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
		if flusher != nil {
			flusher.Flush()
		}
	}

	// The transcript is persisted whether the stream completed or the client
	// walked away mid-answer; partial answers still matter for analytics.
	s.recordChat(req.SessionID, message, full.String(), req.NotebookContext)
	s.logf("chat.stream total_ms=%d chars=%d aborted=%t", time.Since(reqStart).Milliseconds(), full.Len(), aborted)
}
