package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/andylee303/jupyterlab-edu-extension/internal/bootstrap"
)

type configSaveRequest struct {
	OpenAIAPIKey           string `json:"openai_api_key"`
	OpenAIModel            string `json:"openai_model"`
	SupabaseURL            string `json:"supabase_url"`
	SupabaseAnonKey        string `json:"supabase_anon_key"`
	SupabaseServiceRoleKey string `json:"supabase_service_role_key"`
}

func (s *Server) handleConfigSave(w http.ResponseWriter, r *http.Request) {
	if s.config == nil {
		s.respondError(w, http.StatusServiceUnavailable, "配置儲存未啟用")
		return
	}

	var req configSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "無效的請求格式")
		return
	}
	if strings.TrimSpace(req.OpenAIAPIKey) == "" {
		s.respondError(w, http.StatusBadRequest, "OpenAI API Key 為必填")
		return
	}

	path, err := s.config.SaveCredentials(bootstrap.Credentials{
		OpenAIAPIKey:           strings.TrimSpace(req.OpenAIAPIKey),
		OpenAIModel:            strings.TrimSpace(req.OpenAIModel),
		SupabaseURL:            strings.TrimSpace(req.SupabaseURL),
		SupabaseAnonKey:        strings.TrimSpace(req.SupabaseAnonKey),
		SupabaseServiceRoleKey: strings.TrimSpace(req.SupabaseServiceRoleKey),
	})
	if err != nil {
		s.logf("config save failed: %v", err)
		s.respondError(w, http.StatusInternalServerError, "儲存設定失敗")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "設定已儲存",
		"env_path": path,
	})
}
