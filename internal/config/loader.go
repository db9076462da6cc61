package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.docforge/config.json
// Project: .docforge/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".docforge", "config.json")
	projectPath := filepath.Join(".docforge", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base
// config. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for key, b := range loaded.Backends {
		base.Backends[key] = b
	}
	mergeRun(&base.Run, loaded.Run)
	mergeRetry(&base.Retry, loaded.Retry)

	if loaded.CatalogPath != "" {
		base.CatalogPath = loaded.CatalogPath
	}
	if loaded.HistoryPath != "" {
		base.HistoryPath = loaded.HistoryPath
	}
	if loaded.ListenAddr != "" {
		base.ListenAddr = loaded.ListenAddr
	}

	return nil
}

// mergeRun overlays set fields only, so a project file can adjust one
// setting without restating the rest.
func mergeRun(base *RunConfig, loaded RunConfig) {
	if loaded.Backend != "" {
		base.Backend = loaded.Backend
	}
	if loaded.ConcurrencyLimit > 0 {
		base.ConcurrencyLimit = loaded.ConcurrencyLimit
	}
	if loaded.MaxSummaryChars > 0 {
		base.MaxSummaryChars = loaded.MaxSummaryChars
	}
	if loaded.MaxOutputChars > 0 {
		base.MaxOutputChars = loaded.MaxOutputChars
	}
	if loaded.BackgroundSnippets > 0 {
		base.BackgroundSnippets = loaded.BackgroundSnippets
	}
	if loaded.TimeoutSeconds > 0 {
		base.TimeoutSeconds = loaded.TimeoutSeconds
	}
}

func mergeRetry(base *RetryConfig, loaded RetryConfig) {
	if loaded.MaxAttempts > 0 {
		base.MaxAttempts = loaded.MaxAttempts
	}
	if loaded.InitialIntervalSeconds > 0 {
		base.InitialIntervalSeconds = loaded.InitialIntervalSeconds
	}
	if loaded.MaxIntervalSeconds > 0 {
		base.MaxIntervalSeconds = loaded.MaxIntervalSeconds
	}
}
