package config

// DefaultConfig returns the default configuration with built-in backends
// and run settings.
func DefaultConfig() *Config {
	return &Config{
		Backends: map[string]BackendConfig{
			"gemini": {
				Type:      "gemini",
				Model:     "gemini-2.5-flash",
				APIKeyEnv: "GEMINI_API_KEY",
			},
			"claude": {
				Type: "claude",
			},
		},
		Run: RunConfig{
			Backend:            "gemini",
			ConcurrencyLimit:   4,
			MaxSummaryChars:    4000,
			MaxOutputChars:     20000,
			BackgroundSnippets: 3,
		},
		Retry: RetryConfig{
			MaxAttempts:            3,
			InitialIntervalSeconds: 2,
			MaxIntervalSeconds:     30,
		},
	}
}
