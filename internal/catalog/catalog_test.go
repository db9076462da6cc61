package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docforge/internal/graph"
)

type nopHandler struct{}

func (nopHandler) Produce(ctx context.Context, in Inputs) (Draft, error) {
	return Draft{Content: "ok"}, nil
}

func TestRegisterAndResolve(t *testing.T) {
	c := New()
	if err := c.Register("A", nil, nopHandler{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	h, err := c.Resolve("A")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if h == nil {
		t.Fatal("Resolve returned nil handler")
	}
}

func TestResolveUnregistered(t *testing.T) {
	c := New()

	_, err := c.Resolve("Nope")
	if !errors.Is(err, ErrNoHandler) {
		t.Fatalf("Resolve error = %v, want ErrNoHandler", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	c := New()
	c.Register("A", nil, nopHandler{})

	if err := c.Register("A", nil, nopHandler{}); err == nil {
		t.Fatal("duplicate Register succeeded, want error")
	}
}

func TestRegisterNilHandler(t *testing.T) {
	c := New()
	if err := c.Register("A", nil, nil); err == nil {
		t.Fatal("Register with nil handler succeeded, want error")
	}
}

func TestGraphFromCatalog(t *testing.T) {
	c := New()
	c.Register("A", nil, nopHandler{})
	c.Register("B", []graph.ArtifactType{"A"}, nopHandler{})

	g, err := c.Graph()
	if err != nil {
		t.Fatalf("Graph() error: %v", err)
	}
	if deps := g.Dependencies("B"); len(deps) != 1 || deps[0] != "A" {
		t.Errorf("Dependencies(B) = %v, want [A]", deps)
	}
}

func TestGraphDetectsCycle(t *testing.T) {
	c := New()
	c.Register("A", []graph.ArtifactType{"B"}, nopHandler{})
	c.Register("B", []graph.ArtifactType{"A"}, nopHandler{})

	_, err := c.Graph()
	var cfgErr *graph.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Graph() error = %v, want *graph.ConfigurationError", err)
	}
}

func TestDefaultSpecBuilds(t *testing.T) {
	c, err := Build(DefaultSpec(), stubBackend{}, 0)
	if err != nil {
		t.Fatalf("Build(DefaultSpec()) error: %v", err)
	}

	g, err := c.Graph()
	if err != nil {
		t.Fatalf("Graph() error: %v", err)
	}
	if _, err := g.GenerationOrder(c.Types()); err != nil {
		t.Fatalf("GenerationOrder over default catalog failed: %v", err)
	}
}

func TestLoadSpec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `artifacts:
  - type: "Statement of Work"
    prompt: "Write the SOW."
  - type: "Cost Estimate"
    depends_on: ["Statement of Work"]
    prompt: "Write the cost estimate."
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	spec, err := LoadSpec(path)
	if err != nil {
		t.Fatalf("LoadSpec() error: %v", err)
	}
	if len(spec.Artifacts) != 2 {
		t.Fatalf("loaded %d artifacts, want 2", len(spec.Artifacts))
	}
	if spec.Artifacts[1].DependsOn[0] != "Statement of Work" {
		t.Errorf("depends_on = %v", spec.Artifacts[1].DependsOn)
	}
}

func TestLoadSpecRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{name: "empty artifact list", content: "artifacts: []\n"},
		{name: "missing type", content: "artifacts:\n  - prompt: p\n"},
		{name: "missing prompt", content: "artifacts:\n  - type: A\n"},
		{name: "not yaml", content: "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "bad.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadSpec(path); err == nil {
				t.Fatal("LoadSpec() succeeded, want error")
			}
		})
	}
}

func TestLoadSpecMissingFile(t *testing.T) {
	if _, err := LoadSpec(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadSpec() on missing file succeeded, want error")
	}
}
