// Package extension wires the edu extension server for embedding in a
// notebook host process or the standalone daemon.
package extension

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andylee303/jupyterlab-edu-extension/internal/adapter"
	"github.com/andylee303/jupyterlab-edu-extension/internal/adapter/loopback"
	adapteropenai "github.com/andylee303/jupyterlab-edu-extension/internal/adapter/openai"
	"github.com/andylee303/jupyterlab-edu-extension/internal/analytics"
	"github.com/andylee303/jupyterlab-edu-extension/internal/assistant"
	"github.com/andylee303/jupyterlab-edu-extension/internal/bootstrap"
	"github.com/andylee303/jupyterlab-edu-extension/internal/cache"
	"github.com/andylee303/jupyterlab-edu-extension/internal/config"
	"github.com/andylee303/jupyterlab-edu-extension/internal/httpserver"
	"github.com/andylee303/jupyterlab-edu-extension/internal/session"
	"github.com/andylee303/jupyterlab-edu-extension/internal/store"
	"github.com/andylee303/jupyterlab-edu-extension/internal/store/async"
	"github.com/andylee303/jupyterlab-edu-extension/internal/store/postgres"
	"github.com/andylee303/jupyterlab-edu-extension/internal/store/sqlite"
	"github.com/andylee303/jupyterlab-edu-extension/internal/store/supabase"
)

// Options configures the embedded extension.
type Options struct {
	// Root is the directory holding config/; used when saving credentials.
	Root   string
	Config config.ServerConfig
	Logger *log.Logger
}

// Extension is the fully wired server: sessions, caches, relay, stores,
// recorder, analytics, and the HTTP surface.
type Extension struct {
	root       string
	logger     *log.Logger
	sessions   *session.Store
	errorCache *cache.Cache
	codeCache  *cache.Cache
	stores     *store.Manager
	recorder   *async.Recorder
	server     *httpserver.Server
	handler    http.Handler

	mu  sync.Mutex
	cfg config.ServerConfig
}

// New builds the extension from the given configuration.
func New(opts Options) (*Extension, error) {
	cfg := opts.Config
	logger := opts.Logger

	sessions := session.NewStore()

	errorCacheSize := cfg.ErrorCacheSize
	if errorCacheSize <= 0 {
		errorCacheSize = 200
	}
	codeCacheSize := cfg.CodeCacheSize
	if codeCacheSize <= 0 {
		codeCacheSize = 100
	}
	errorCache, err := cache.New(errorCacheSize)
	if err != nil {
		return nil, fmt.Errorf("extension: error cache: %w", err)
	}
	codeCache, err := cache.New(codeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("extension: code cache: %w", err)
	}

	manager := store.NewManager(buildStore, logger)
	if err := manager.Apply(storeSettings(cfg)); err != nil {
		// Degrade to no persistence rather than refusing to start; the
		// extension is useful without a store.
		if logger != nil {
			logger.Printf("extension: store unavailable, continuing without persistence: %v", err)
		}
	}

	recorder := async.NewRecorder(manager.Current, async.Config{Logger: logger})

	ext := &Extension{
		root:       opts.Root,
		logger:     logger,
		sessions:   sessions,
		errorCache: errorCache,
		codeCache:  codeCache,
		stores:     manager,
		recorder:   recorder,
		cfg:        cfg,
	}

	relay, configured, err := ext.buildRelay(cfg)
	if err != nil {
		return nil, err
	}

	srv, err := httpserver.New(httpserver.Options{
		Sessions:         sessions,
		Relay:            relay,
		OpenAIConfigured: configured,
		Stores:           manager,
		Recorder:         recorder,
		Analytics:        analytics.NewService(manager, logger),
		Config:           ext,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	ext.server = srv
	ext.handler = srv.Routes()
	return ext, nil
}

// Handler returns the HTTP surface; the host mounts it under its own base URL.
func (e *Extension) Handler() http.Handler {
	return e.handler
}

// SaveCredentials persists settings from the configuration screen and applies
// them to the running process: relay swap plus store reconnection.
func (e *Extension) SaveCredentials(creds bootstrap.Credentials) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	path, err := bootstrap.SaveCredentials(e.root, e.cfg.Environment, creds)
	if err != nil {
		return "", err
	}

	cfg, err := config.Load(e.root)
	if err != nil {
		return "", fmt.Errorf("extension: reload config: %w", err)
	}
	e.cfg = cfg

	relay, configured, err := e.buildRelay(cfg)
	if err != nil {
		return "", err
	}
	e.server.SetRelay(relay, configured)

	if err := e.stores.Apply(storeSettings(cfg)); err != nil {
		if e.logger != nil {
			e.logger.Printf("extension: store reconfiguration failed: %v", err)
		}
	}
	return path, nil
}

// buildRelay constructs the chat relay for the current provider settings,
// reusing the process-wide caches so saved analyses survive reconfiguration.
func (e *Extension) buildRelay(cfg config.ServerConfig) (*assistant.Relay, bool, error) {
	var chatAdapter adapter.ChatAdapter
	switch {
	case cfg.OpenAIAdapter == "loopback":
		// Explicit opt-in offline mode: deterministic echo completions,
		// no credentials required.
		chatAdapter = loopback.New()
	case cfg.OpenAIConfigured():
		oa, err := adapteropenai.New(adapteropenai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			Organization:   cfg.OpenAIOrg,
			RequestTimeout: cfg.RequestTimeout,
		})
		if err != nil {
			return nil, false, fmt.Errorf("extension: openai adapter: %w", err)
		}
		chatAdapter = oa
	default:
		// Without credentials the relay is never reached; a nil relay keeps
		// the 503 path honest.
		return nil, false, nil
	}

	prompts := assistant.DefaultPrompts()
	if strings.TrimSpace(cfg.PromptsFile) != "" {
		loaded, err := assistant.LoadPrompts(cfg.PromptsFile)
		if err != nil {
			if e.logger != nil {
				e.logger.Printf("extension: prompts file %s: %v; using defaults", cfg.PromptsFile, err)
			}
		} else {
			prompts = loaded
		}
	}

	relay, err := assistant.New(assistant.Config{
		Adapter:    chatAdapter,
		Model:      cfg.OpenAIModel,
		Prompts:    prompts,
		ErrorCache: e.errorCache,
		CodeCache:  e.codeCache,
		Logger:     e.logger,
	})
	if err != nil {
		return nil, false, err
	}
	return relay, true, nil
}

// Close drains the background recorder and releases the store.
func (e *Extension) Close() error {
	e.recorder.Close()
	return e.stores.Close()
}

func storeSettings(cfg config.ServerConfig) store.Settings {
	return store.Settings{
		Driver:      cfg.StoreDriver,
		SupabaseURL: cfg.SupabaseURL,
		SupabaseKey: cfg.SupabaseServiceRoleKey,
		DSN:         cfg.StoreDSN,
		Path:        cfg.StorePath,
	}
}

func buildStore(settings store.Settings) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(settings.Driver)) {
	case "supabase":
		return supabase.New(settings.SupabaseURL, settings.SupabaseKey, &http.Client{Timeout: 10 * time.Second})
	case "postgres":
		return postgres.New(settings.DSN)
	case "sqlite":
		return sqlite.New(settings.Path)
	default:
		return nil, fmt.Errorf("extension: unsupported store driver %q", settings.Driver)
	}
}
