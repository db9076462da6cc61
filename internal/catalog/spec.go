package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"docforge/internal/backend"
	"docforge/internal/graph"
)

// ArtifactSpec describes one document type in a catalog file.
type ArtifactSpec struct {
	Type      string   `yaml:"type"`
	DependsOn []string `yaml:"depends_on,omitempty"`
	Prompt    string   `yaml:"prompt"`
	System    string   `yaml:"system,omitempty"`
}

// Spec is the on-disk catalog format.
type Spec struct {
	Artifacts []ArtifactSpec `yaml:"artifacts"`
}

// LoadSpec reads a catalog spec from a YAML file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog spec %s: %w", path, err)
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing catalog spec %s: %w", path, err)
	}
	if len(spec.Artifacts) == 0 {
		return nil, fmt.Errorf("catalog spec %s defines no artifacts", path)
	}
	for i, a := range spec.Artifacts {
		if a.Type == "" {
			return nil, fmt.Errorf("catalog spec %s: artifact %d has no type", path, i)
		}
		if a.Prompt == "" {
			return nil, fmt.Errorf("catalog spec %s: artifact %q has no prompt", path, a.Type)
		}
	}
	return &spec, nil
}

// DefaultSpec returns the built-in acquisition document catalog used when
// no catalog file is configured.
func DefaultSpec() *Spec {
	return &Spec{Artifacts: []ArtifactSpec{
		{
			Type:   "Statement of Work",
			Prompt: "Write a statement of work describing scope, tasks, deliverables, and the period of performance.",
		},
		{
			Type:   "Market Research Report",
			Prompt: "Write a market research report covering available vendors, commercial alternatives, and pricing observations.",
		},
		{
			Type:      "Cost Estimate",
			DependsOn: []string{"Statement of Work", "Market Research Report"},
			Prompt:    "Write an independent cost estimate consistent with the scope and the observed market pricing.",
		},
		{
			Type:      "Evaluation Factors",
			DependsOn: []string{"Statement of Work"},
			Prompt:    "Write the evaluation factors for award, with relative importance, aligned to the scope of work.",
		},
		{
			Type:      "Acquisition Plan",
			DependsOn: []string{"Statement of Work", "Market Research Report", "Cost Estimate"},
			Prompt:    "Write an acquisition plan summarizing strategy, milestones, and risk, consistent with the upstream documents.",
		},
	}}
}

// Build registers every artifact in the spec with a PromptHandler bound to
// the given backend and returns the populated catalog.
func Build(spec *Spec, b backend.Backend, maxOutputChars int) (*Catalog, error) {
	c := New()
	for _, a := range spec.Artifacts {
		deps := make([]graph.ArtifactType, len(a.DependsOn))
		for i, d := range a.DependsOn {
			deps[i] = graph.ArtifactType(d)
		}

		h := NewPromptHandler(graph.ArtifactType(a.Type), a.Prompt, b)
		h.System = a.System
		h.MaxOutputChars = maxOutputChars

		if err := c.Register(graph.ArtifactType(a.Type), deps, h); err != nil {
			return nil, err
		}
	}

	// Surface a corrupt edge list now, not at run time.
	if _, err := c.Graph(); err != nil {
		return nil, err
	}
	return c, nil
}
