// Package backend adapts external text-generation services behind one
// interface and wraps them with a narrow retry policy: bounded attempts
// with exponential backoff on rate-limit and overload, immediate failure
// on everything else.
package backend

import (
	"context"
	"fmt"
)

// Backend is one text-generation service.
type Backend interface {
	// Generate produces text for the request. Errors are classified into
	// the taxonomy in errors.go.
	Generate(ctx context.Context, req Request) (Response, error)

	// Close releases any resources held by the adapter.
	Close() error

	// Name identifies the adapter, for logging and circuit breaking.
	Name() string
}

// New creates a backend from configuration. The factory switches on
// cfg.Type; adding an adapter means adding a case here.
func New(ctx context.Context, cfg Config, pm *ProcessManager) (Backend, error) {
	switch cfg.Type {
	case "gemini":
		return NewGemini(ctx, cfg)
	case "claude":
		return NewClaudeCLI(cfg, pm)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
