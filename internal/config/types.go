package config

// BackendConfig defines one generation backend. Backends are separate from
// the run settings -- several runs can share one backend definition.
type BackendConfig struct {
	Type      string `json:"type"`                  // Backend type matching backend.Config.Type: "gemini", "claude"
	Model     string `json:"model,omitempty"`       // Model override (e.g., "gemini-2.5-flash")
	APIKeyEnv string `json:"api_key_env,omitempty"` // Environment variable holding the API key
	WorkDir   string `json:"work_dir,omitempty"`    // Working directory for CLI backends
}

// RetryConfig bounds the retry behavior on transient backend failures.
type RetryConfig struct {
	MaxAttempts            int `json:"max_attempts,omitempty"`
	InitialIntervalSeconds int `json:"initial_interval_seconds,omitempty"`
	MaxIntervalSeconds     int `json:"max_interval_seconds,omitempty"`
}

// RunConfig holds per-run execution settings.
type RunConfig struct {
	Backend            string `json:"backend"`                       // Key into Backends map
	ConcurrencyLimit   int    `json:"concurrency_limit,omitempty"`   // Max concurrent generations within a batch
	MaxSummaryChars    int    `json:"max_summary_chars,omitempty"`   // Per-dependency context budget
	MaxOutputChars     int    `json:"max_output_chars,omitempty"`    // Requested output size per artifact
	BackgroundSnippets int    `json:"background_snippets,omitempty"` // Background snippets fetched per run
	TimeoutSeconds     int    `json:"timeout_seconds,omitempty"`     // Overall run deadline; 0 disables
}

// Config is the top-level configuration.
type Config struct {
	Backends    map[string]BackendConfig `json:"backends"`
	Run         RunConfig                `json:"run"`
	Retry       RetryConfig              `json:"retry"`
	CatalogPath string                   `json:"catalog_path,omitempty"` // YAML artifact catalog; empty uses the built-in catalog
	HistoryPath string                   `json:"history_path,omitempty"` // SQLite run history database
	ListenAddr  string                   `json:"listen_addr,omitempty"`  // WebSocket progress endpoint; empty disables
}
