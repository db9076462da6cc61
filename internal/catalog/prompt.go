package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"docforge/internal/backend"
	"docforge/internal/graph"
	"docforge/internal/pool"
)

// referencesHeading marks the trailing citation section handlers ask the
// model to emit. Everything after it is parsed into references and kept
// out of the document body.
const referencesHeading = "References:"

// PromptHandler is the generic Handler: it assembles a sectioned prompt
// from the inputs and sends it through a Backend. Specialized per-type
// handlers can replace it for documents with richer structure.
type PromptHandler struct {
	Type           graph.ArtifactType
	Template       string // instructions specific to this document type
	System         string // optional system instruction
	Backend        backend.Backend
	MaxOutputChars int
}

// NewPromptHandler creates a PromptHandler for one artifact type.
func NewPromptHandler(t graph.ArtifactType, template string, b backend.Backend) *PromptHandler {
	return &PromptHandler{Type: t, Template: template, Backend: b}
}

// Produce builds the prompt, calls the backend, and splits the response
// into document content and extracted references.
func (h *PromptHandler) Produce(ctx context.Context, in Inputs) (Draft, error) {
	resp, err := h.Backend.Generate(ctx, backend.Request{
		Prompt:         h.buildPrompt(in),
		System:         h.System,
		MaxOutputChars: h.MaxOutputChars,
	})
	if err != nil {
		return Draft{}, fmt.Errorf("generating %q: %w", h.Type, err)
	}

	content, refs := splitReferences(resp.Content)
	return Draft{
		Content:    content,
		References: refs,
		Backend:    h.Backend.Name(),
		Attempts:   resp.Attempts,
	}, nil
}

// buildPrompt assembles the generation prompt: type instructions, run
// assumptions, per-artifact inputs, finished dependency content, and
// background snippets, each in its own labelled section.
func (h *PromptHandler) buildPrompt(in Inputs) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Produce the document %q.\n\n", h.Type)
	b.WriteString(strings.TrimSpace(h.Template))
	b.WriteString("\n")

	if in.Assumptions != "" {
		b.WriteString("\n## Assumptions\n")
		b.WriteString(strings.TrimSpace(in.Assumptions))
		b.WriteString("\n")
	}

	if len(in.Extra) > 0 {
		b.WriteString("\n## Provided inputs\n")
		for _, k := range sortedKeys(in.Extra) {
			fmt.Fprintf(&b, "- %s: %s\n", k, in.Extra[k])
		}
	}

	if len(in.Dependencies) > 0 {
		b.WriteString("\n## Completed upstream documents\n")
		for _, t := range sortedTypes(in.Dependencies) {
			fmt.Fprintf(&b, "\n### %s\n%s\n", t, in.Dependencies[t])
		}
	}

	if len(in.Background) > 0 {
		b.WriteString("\n## Background material\n")
		for _, sn := range in.Background {
			fmt.Fprintf(&b, "\n[%s]\n%s\n", sn.Title, sn.Text)
		}
	}

	b.WriteString("\nEnd the document with a \"" + referencesHeading + "\" section listing sources as \"- title — source\" lines.\n")
	return b.String()
}

// splitReferences separates the document body from the trailing reference
// section. A missing section just yields no references.
func splitReferences(text string) (string, []pool.Reference) {
	idx := strings.LastIndex(text, referencesHeading)
	if idx < 0 {
		return strings.TrimSpace(text), nil
	}

	body := strings.TrimSpace(text[:idx])
	var refs []pool.Reference
	for _, line := range strings.Split(text[idx+len(referencesHeading):], "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line == "" {
			continue
		}
		ref := pool.Reference{Title: line}
		if title, source, found := strings.Cut(line, " — "); found {
			ref.Title = strings.TrimSpace(title)
			ref.Source = strings.TrimSpace(source)
		}
		refs = append(refs, ref)
	}
	return body, refs
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedTypes(m map[graph.ArtifactType]string) []graph.ArtifactType {
	keys := make([]string, 0, len(m))
	for t := range m {
		keys = append(keys, string(t))
	}
	sort.Strings(keys)

	out := make([]graph.ArtifactType, len(keys))
	for i, k := range keys {
		out[i] = graph.ArtifactType(k)
	}
	return out
}
