package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaultsWithoutFiles(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != "dev" {
		t.Errorf("environment = %q", cfg.Environment)
	}
	if cfg.OpenAIModel != DefaultModel {
		t.Errorf("model = %q", cfg.OpenAIModel)
	}
	if cfg.ErrorCacheSize != 200 || cfg.CodeCacheSize != 100 {
		t.Errorf("cache sizes = %d/%d", cfg.ErrorCacheSize, cfg.CodeCacheSize)
	}
	if cfg.RequestTimeout != 60*time.Second {
		t.Errorf("request timeout = %v", cfg.RequestTimeout)
	}
	if cfg.OpenAIAdapter != "openai" {
		t.Errorf("adapter = %q, want the real provider by default", cfg.OpenAIAdapter)
	}
	if cfg.OpenAIConfigured() && os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("EDU_OPENAI_API_KEY") == "" {
		t.Error("OpenAIConfigured = true without a key")
	}
}

func TestLoadEnvironmentFileOverridesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config/setting.ini"), "environment = prod\nopenai_model = gpt-4o\n")
	writeFile(t, filepath.Join(root, "config/prod/eduserver.ini"),
		"openai_api_key = sk-prod\nstore_driver = sqlite\nstore_path = /tmp/edu.db\nerror_cache_size = 50\n")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != "prod" {
		t.Errorf("environment = %q", cfg.Environment)
	}
	if cfg.OpenAIAPIKey != "sk-prod" {
		t.Errorf("api key = %q", cfg.OpenAIAPIKey)
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Errorf("model = %q (setting.ini default should apply)", cfg.OpenAIModel)
	}
	if cfg.StoreDriver != "sqlite" || cfg.StorePath != "/tmp/edu.db" {
		t.Errorf("store = %q %q", cfg.StoreDriver, cfg.StorePath)
	}
	if cfg.ErrorCacheSize != 50 {
		t.Errorf("error cache size = %d", cfg.ErrorCacheSize)
	}
	if !cfg.OpenAIConfigured() {
		t.Error("OpenAIConfigured = false with a key set")
	}
}

func TestLoadEnvVariableWins(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config/setting.ini"), "openai_model = gpt-4o\n")
	t.Setenv("EDU_OPENAI_MODEL", "gpt-5-mini")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAIModel != "gpt-5-mini" {
		t.Errorf("model = %q, want env override", cfg.OpenAIModel)
	}
}

func TestLoadRejectsUnknownStoreDriver(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config/setting.ini"), "store_driver = mongodb\n")

	if _, err := Load(root); err == nil {
		t.Fatal("expected error for unknown store_driver")
	}
}

func TestLoadLoopbackAdapter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config/setting.ini"), "openai_adapter = Loopback\n")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAIAdapter != "loopback" {
		t.Errorf("adapter = %q", cfg.OpenAIAdapter)
	}
}

func TestLoadRejectsUnknownAdapter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config/setting.ini"), "openai_adapter = anthropic\n")

	if _, err := Load(root); err == nil {
		t.Fatal("expected error for unknown openai_adapter")
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config/setting.ini"), "request_timeout = soon\n")

	if _, err := Load(root); err == nil {
		t.Fatal("expected error for invalid request_timeout")
	}
}
