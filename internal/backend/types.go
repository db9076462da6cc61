package backend

import "time"

// Request is one generation call to a text backend.
type Request struct {
	Prompt         string
	System         string // optional system instruction
	MaxOutputChars int    // soft bound on response size; 0 means backend default
}

// Response is the backend's answer to a Request.
type Response struct {
	Content  string
	Model    string
	Attempts int           // attempts consumed, filled in by the retry wrapper
	Elapsed  time.Duration // wall time of the successful attempt
}

// Config selects and parameterizes a backend implementation.
type Config struct {
	Type    string // "gemini" or "claude"
	Model   string
	APIKey  string // API-backed adapters; usually sourced from the environment
	WorkDir string // CLI-backed adapters
}
