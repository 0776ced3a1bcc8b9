// Package httpserver exposes the extension's REST and SSE endpoints to the
// JupyterLab frontend.
package httpserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/andylee303/jupyterlab-edu-extension/internal/analytics"
	"github.com/andylee303/jupyterlab-edu-extension/internal/assistant"
	"github.com/andylee303/jupyterlab-edu-extension/internal/bootstrap"
	"github.com/andylee303/jupyterlab-edu-extension/internal/session"
	"github.com/andylee303/jupyterlab-edu-extension/internal/store"
	"github.com/andylee303/jupyterlab-edu-extension/internal/store/async"
	"github.com/andylee303/jupyterlab-edu-extension/internal/version"
)

// ConfigSink receives settings saved from the in-app configuration screen and
// applies them to the running process.
type ConfigSink interface {
	SaveCredentials(creds bootstrap.Credentials) (string, error)
}

// Server exposes REST endpoints for the edu extension.
type Server struct {
	sessions  *session.Store
	stores    *store.Manager
	recorder  *async.Recorder
	analytics *analytics.Service
	config    ConfigSink
	logger    *log.Logger

	// The relay is swapped when credentials are saved at runtime.
	relayMu          sync.RWMutex
	relay            *assistant.Relay
	openaiConfigured bool
}

// Options wires a Server.
type Options struct {
	Sessions         *session.Store
	Relay            *assistant.Relay
	OpenAIConfigured bool
	Stores           *store.Manager
	Recorder         *async.Recorder
	Analytics        *analytics.Service
	Config           ConfigSink
	Logger           *log.Logger
}

// New creates a Server. Sessions and Stores are required; a nil Relay is
// treated as provider-unconfigured.
func New(opts Options) (*Server, error) {
	if opts.Sessions == nil {
		return nil, errors.New("httpserver: session store required")
	}
	if opts.Stores == nil {
		return nil, errors.New("httpserver: store manager required")
	}
	return &Server{
		sessions:         opts.Sessions,
		relay:            opts.Relay,
		openaiConfigured: opts.OpenAIConfigured && opts.Relay != nil,
		stores:           opts.Stores,
		recorder:         opts.Recorder,
		analytics:        opts.Analytics,
		config:           opts.Config,
		logger:           opts.Logger,
	}, nil
}

// SetRelay swaps the chat relay at runtime, after a config save.
func (s *Server) SetRelay(relay *assistant.Relay, configured bool) {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()
	s.relay = relay
	s.openaiConfigured = configured && relay != nil
}

func (s *Server) currentRelay() (*assistant.Relay, bool) {
	s.relayMu.RLock()
	defer s.relayMu.RUnlock()
	return s.relay, s.openaiConfigured
}

// Routes builds the router with every endpoint mounted under /edu/api.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/edu/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/auth/check", s.handleAuthCheck)

		r.Group(func(r chi.Router) {
			r.Use(s.requireLogin)
			r.Post("/tracking/execution", s.handleTrackExecution)
			r.Post("/chatgpt/analyze", s.handleAnalyze)
			r.Post("/chatgpt/chat", s.handleChat)
			r.Get("/analytics/report", s.handleAnalyticsReport)
		})

		// The stream endpoint checks the session itself so nothing is written
		// before the SSE headers commit.
		r.Post("/chatgpt/stream", s.handleChatStream)

		r.Post("/config/save", s.handleConfigSave)
	})

	return r
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]any{"success": false, "error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, openaiOK := s.currentRelay()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"version":             version.Info(),
		"supabase_configured": s.stores.Configured(),
		"openai_configured":   openaiOK,
	})
}

func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
