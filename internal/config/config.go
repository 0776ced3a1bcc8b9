// Package config loads server settings from INI files with environment
// variable overrides. config/setting.ini selects the active environment and
// provides defaults; config/<env>/eduserver.ini refines them; EDU_* variables
// win over both.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/eduserver.ini"

	// DefaultModel is used when no openai_model is configured.
	DefaultModel = "gpt-5-mini"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// ServerConfig describes runtime options for the extension server.
type ServerConfig struct {
	Environment string
	ListenAddr  string

	// OpenAI relay
	OpenAIAdapter  string // openai | loopback
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIOrg      string
	OpenAIModel    string
	RequestTimeout time.Duration

	// External store
	StoreDriver            string // supabase | postgres | sqlite | none
	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string
	StoreDSN               string
	StorePath              string

	// Caches
	ErrorCacheSize int
	CodeCacheSize  int

	// Prompts
	PromptsFile string

	// Logging
	LogFile  string
	LogLevel string
}

// OpenAIConfigured reports whether the relay can reach a provider.
func (c ServerConfig) OpenAIConfigured() bool {
	return strings.TrimSpace(c.OpenAIAPIKey) != ""
}

// Load reads the current environment and the matching server config file
// under root.
func Load(root string) (ServerConfig, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return ServerConfig{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return ServerConfig{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := ServerConfig{
		Environment:            s.Environment,
		ListenAddr:             firstNonEmpty(os.Getenv("EDU_LISTEN_ADDR"), merged["listen_addr"], "127.0.0.1:8866"),
		OpenAIAdapter:          strings.ToLower(firstNonEmpty(os.Getenv("EDU_OPENAI_ADAPTER"), merged["openai_adapter"], "openai")),
		OpenAIAPIKey:           firstNonEmpty(os.Getenv("EDU_OPENAI_API_KEY"), os.Getenv("OPENAI_API_KEY"), merged["openai_api_key"]),
		OpenAIBaseURL:          firstNonEmpty(os.Getenv("EDU_OPENAI_BASE_URL"), merged["openai_base_url"]),
		OpenAIOrg:              firstNonEmpty(os.Getenv("EDU_OPENAI_ORG"), merged["openai_org"]),
		OpenAIModel:            firstNonEmpty(os.Getenv("EDU_OPENAI_MODEL"), merged["openai_model"], DefaultModel),
		StoreDriver:            strings.ToLower(firstNonEmpty(os.Getenv("EDU_STORE_DRIVER"), merged["store_driver"], "supabase")),
		SupabaseURL:            firstNonEmpty(os.Getenv("EDU_SUPABASE_URL"), os.Getenv("SUPABASE_URL"), merged["supabase_url"]),
		SupabaseAnonKey:        firstNonEmpty(os.Getenv("EDU_SUPABASE_ANON_KEY"), merged["supabase_anon_key"]),
		SupabaseServiceRoleKey: firstNonEmpty(os.Getenv("EDU_SUPABASE_SERVICE_ROLE_KEY"), os.Getenv("SUPABASE_SERVICE_ROLE_KEY"), merged["supabase_service_role_key"]),
		StoreDSN:               firstNonEmpty(os.Getenv("EDU_STORE_DSN"), merged["store_dsn"]),
		StorePath:              firstNonEmpty(os.Getenv("EDU_STORE_PATH"), merged["store_path"]),
		ErrorCacheSize:         parseOptionalInt(firstNonEmpty(os.Getenv("EDU_ERROR_CACHE_SIZE"), merged["error_cache_size"]), 200),
		CodeCacheSize:          parseOptionalInt(firstNonEmpty(os.Getenv("EDU_CODE_CACHE_SIZE"), merged["code_cache_size"]), 100),
		PromptsFile:            firstNonEmpty(os.Getenv("EDU_PROMPTS_FILE"), merged["prompts_file"]),
		LogFile:                firstNonEmpty(os.Getenv("EDU_LOG_FILE"), merged["log_file"]),
		LogLevel:               firstNonEmpty(os.Getenv("EDU_LOG_LEVEL"), merged["log_level"], "info"),
	}

	cfg.RequestTimeout = 60 * time.Second
	if v := firstNonEmpty(os.Getenv("EDU_REQUEST_TIMEOUT"), merged["request_timeout"]); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return ServerConfig{}, fmt.Errorf("config: invalid request_timeout %q: %w", v, err)
		}
		cfg.RequestTimeout = dur
	}

	switch cfg.StoreDriver {
	case "supabase", "postgres", "sqlite", "none":
	default:
		return ServerConfig{}, fmt.Errorf("config: unknown store_driver %q", cfg.StoreDriver)
	}

	switch cfg.OpenAIAdapter {
	case "openai", "loopback":
	default:
		return ServerConfig{}, fmt.Errorf("config: unknown openai_adapter %q", cfg.OpenAIAdapter)
	}

	return cfg, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
