package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/andylee303/jupyterlab-edu-extension/internal/store"
)

type trackExecutionRequest struct {
	CellID          string `json:"cell_id"`
	CellContent     string `json:"cell_content"`
	ExecutionCount  int    `json:"execution_count"`
	Output          string `json:"output"`
	ErrorOutput     string `json:"error_output"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

func (s *Server) handleTrackExecution(w http.ResponseWriter, r *http.Request) {
	var req trackExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "無效的請求格式")
		return
	}

	var analysis string
	if req.ErrorOutput != "" {
		if relay, ok := s.currentRelay(); ok {
			analysis = relay.AnalyzeError(r.Context(), req.CellContent, req.ErrorOutput, true)
		}
	}

	sess, _ := sessionFromContext(r.Context())
	if s.recorder != nil && s.stores.Configured() && sess.Token != "" {
		s.recorder.LogExecution(store.ExecutionLog{
			SessionID:       sess.Token,
			CellID:          req.CellID,
			CellContent:     req.CellContent,
			ExecutionCount:  req.ExecutionCount,
			Output:          req.Output,
			ErrorOutput:     req.ErrorOutput,
			Analysis:        analysis,
			ExecutionTimeMS: req.ExecutionTimeMS,
		})
	}

	resp := map[string]any{"success": true}
	if analysis != "" {
		resp["chatgpt_analysis"] = analysis
	} else {
		resp["chatgpt_analysis"] = nil
	}
	s.respondJSON(w, http.StatusOK, resp)
}
