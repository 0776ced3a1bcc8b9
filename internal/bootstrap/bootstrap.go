// Package bootstrap scaffolds and updates the server's configuration files.
package bootstrap

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InitOptions configures the bootstrap process for generating config files.
type InitOptions struct {
	Root        string
	Environment string
	ListenAddr  string
	Force       bool
}

// Init scaffolds configuration files for the extension server.
func Init(opts InitOptions) error {
	applyDefaults(&opts)
	if err := ensureDir(filepath.Join(opts.Root, "config", opts.Environment)); err != nil {
		return err
	}

	settingPath := filepath.Join(opts.Root, "config", "setting.ini")
	if err := writeFile(settingPath, settingTemplate(opts), opts.Force); err != nil {
		return err
	}

	serverPath := filepath.Join(opts.Root, "config", opts.Environment, "eduserver.ini")
	if err := writeFile(serverPath, serverTemplate(opts), opts.Force); err != nil {
		return err
	}

	return nil
}

func applyDefaults(opts *InitOptions) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "dev"
	}
	if strings.TrimSpace(opts.ListenAddr) == "" {
		opts.ListenAddr = "127.0.0.1:8866"
	}
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func writeFile(path, contents string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

func settingTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# JupyterLab edu extension server settings
environment=%s
`, opts.Environment)
}

func serverTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# Environment specific overrides for %s
listen_addr=%s
log_level=info
# Dash '-' disables file output.
log_file=logs/eduserverd.log
openai_model=gpt-5-mini
store_driver=supabase
`, opts.Environment, opts.ListenAddr)
}

// Credentials are the settings the in-app configuration screen can persist.
type Credentials struct {
	OpenAIAPIKey           string
	OpenAIModel            string
	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string
}

// SaveCredentials merges the given credentials into the environment's config
// file, preserving unrelated keys, and returns the path written. The file and
// its directory are created when missing.
func SaveCredentials(root, environment string, creds Credentials) (string, error) {
	if strings.TrimSpace(creds.OpenAIAPIKey) == "" {
		return "", errors.New("bootstrap: openai api key is required")
	}
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	if strings.TrimSpace(environment) == "" {
		environment = "dev"
	}

	path := filepath.Join(root, "config", environment, "eduserver.ini")
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return "", err
	}

	keys, values, err := readExisting(path)
	if err != nil {
		return "", err
	}

	set := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		if _, ok := values[key]; !ok {
			keys = append(keys, key)
		}
		values[key] = value
	}
	set("openai_api_key", creds.OpenAIAPIKey)
	set("openai_model", creds.OpenAIModel)
	set("supabase_url", creds.SupabaseURL)
	set("supabase_anon_key", creds.SupabaseAnonKey)
	set("supabase_service_role_key", creds.SupabaseServiceRoleKey)

	var b strings.Builder
	b.WriteString("# JupyterLab edu extension configuration\n")
	b.WriteString("# Updated by the in-app configuration screen.\n\n")
	for _, key := range keys {
		fmt.Fprintf(&b, "%s=%s\n", key, values[key])
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// readExisting parses the config file into insertion-ordered key/value pairs.
// Comment lines are dropped; rewriting regenerates the header.
func readExisting(path string) ([]string, map[string]string, error) {
	values := make(map[string]string)
	var keys []string

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return keys, values, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		if key == "" {
			continue
		}
		if _, ok := values[key]; !ok {
			keys = append(keys, key)
		}
		values[key] = strings.TrimSpace(parts[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}
