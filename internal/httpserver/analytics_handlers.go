package httpserver

import (
	"net/http"

	"github.com/andylee303/jupyterlab-edu-extension/internal/analytics"
)

func (s *Server) handleAnalyticsReport(w http.ResponseWriter, r *http.Request) {
	if !s.stores.Configured() || s.analytics == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"report":  analytics.EmptyReport(),
			"mode":    "local",
		})
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.respondError(w, http.StatusBadRequest, "session_id 為必填參數")
		return
	}

	report := s.analytics.GenerateReport(r.Context(), sessionID)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"report":  report,
	})
}
