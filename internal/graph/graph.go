// Package graph holds the static dependency graph over artifact types and
// computes the batched generation order for a run.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// ArtifactType names a kind of document the engine can produce.
// Types are opaque identifiers defined by the catalog.
type ArtifactType string

// Batch is a set of artifact types with no dependency among them.
// Every member of a batch may be generated concurrently.
type Batch []ArtifactType

// ConfigurationError indicates an unsatisfiable dependency graph (a cycle).
// It is detected at construction/validation time, before any generation
// starts, and is never retried.
type ConfigurationError struct {
	Remaining []ArtifactType // types that could not be scheduled
}

func (e *ConfigurationError) Error() string {
	names := make([]string, len(e.Remaining))
	for i, t := range e.Remaining {
		names[i] = string(t)
	}
	sort.Strings(names)
	return fmt.Sprintf("dependency cycle among artifact types: %s", strings.Join(names, ", "))
}

// Graph is a static mapping from artifact type to its direct prerequisites.
type Graph struct {
	mu    sync.RWMutex
	deps  map[ArtifactType][]ArtifactType
	order []ArtifactType // insertion order, kept for deterministic batching
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		deps: make(map[ArtifactType][]ArtifactType),
	}
}

// Add registers an artifact type and its direct prerequisites.
// Returns an error if the type was already added.
func (g *Graph) Add(t ArtifactType, dependsOn ...ArtifactType) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.deps[t]; exists {
		return fmt.Errorf("artifact type %q already registered", t)
	}

	g.deps[t] = append([]ArtifactType(nil), dependsOn...)
	g.order = append(g.order, t)
	return nil
}

// Contains reports whether the type is registered.
func (g *Graph) Contains(t ArtifactType) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.deps[t]
	return ok
}

// Dependencies returns the direct prerequisites of t (a copy).
func (g *Graph) Dependencies(t ArtifactType) []ArtifactType {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]ArtifactType(nil), g.deps[t]...)
}

// Types returns all registered types in insertion order.
func (g *Graph) Types() []ArtifactType {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]ArtifactType(nil), g.order...)
}

// Validate checks that every prerequisite is registered and that the graph
// is acyclic. A cycle returns a *ConfigurationError; the catalog feeding
// the graph is corrupt and generation must not start.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for t, deps := range g.deps {
		for _, dep := range deps {
			if _, exists := g.deps[dep]; !exists {
				return fmt.Errorf("artifact type %q depends on unregistered type %q", t, dep)
			}
		}
	}

	var edges []toposort.Edge
	for t, deps := range g.deps {
		if len(deps) == 0 {
			edges = append(edges, toposort.Edge{nil, t})
			continue
		}
		for _, dep := range deps {
			// Edge (dep, t): dep must be generated before t.
			edges = append(edges, toposort.Edge{dep, t})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return &ConfigurationError{Remaining: g.cycleParticipants()}
	}

	seen := make(map[ArtifactType]bool)
	for _, v := range sorted {
		if v != nil {
			seen[v.(ArtifactType)] = true
		}
	}
	if len(seen) != len(g.deps) {
		missing := []ArtifactType{}
		for t := range g.deps {
			if !seen[t] {
				missing = append(missing, t)
			}
		}
		return &ConfigurationError{Remaining: missing}
	}

	return nil
}

// cycleParticipants peels zero-in-degree nodes until only cycle members
// remain. Caller must hold at least a read lock.
func (g *Graph) cycleParticipants() []ArtifactType {
	remaining := make(map[ArtifactType][]ArtifactType, len(g.deps))
	for t, deps := range g.deps {
		remaining[t] = append([]ArtifactType(nil), deps...)
	}

	for {
		var free []ArtifactType
		for t, deps := range remaining {
			unresolved := 0
			for _, dep := range deps {
				if _, held := remaining[dep]; held {
					unresolved++
				}
			}
			if unresolved == 0 {
				free = append(free, t)
			}
		}
		if len(free) == 0 {
			break
		}
		for _, t := range free {
			delete(remaining, t)
		}
	}

	out := make([]ArtifactType, 0, len(remaining))
	for t := range remaining {
		out = append(out, t)
	}
	return out
}

// GenerationOrder computes the batched generation order for the requested
// types. Only dependencies that are themselves requested constrain the
// order; prerequisites outside the requested set are assumed to be supplied
// externally. Batches are Kahn waves: every member of batch i has all of
// its requested dependencies in batches < i. Within a batch, the requested
// input order is preserved so tests stay deterministic.
func (g *Graph) GenerationOrder(requested []ArtifactType) ([]Batch, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// Dedupe while preserving order.
	wanted := make(map[ArtifactType]bool, len(requested))
	ordered := make([]ArtifactType, 0, len(requested))
	for _, t := range requested {
		if _, exists := g.deps[t]; !exists {
			return nil, fmt.Errorf("unknown artifact type %q", t)
		}
		if !wanted[t] {
			wanted[t] = true
			ordered = append(ordered, t)
		}
	}

	// Unscheduled dependency counts over the induced subgraph.
	pending := make(map[ArtifactType]int, len(ordered))
	for _, t := range ordered {
		n := 0
		for _, dep := range g.deps[t] {
			if wanted[dep] {
				n++
			}
		}
		pending[t] = n
	}

	scheduled := make(map[ArtifactType]bool, len(ordered))
	var batches []Batch

	for len(scheduled) < len(ordered) {
		var wave Batch
		for _, t := range ordered {
			if !scheduled[t] && pending[t] == 0 {
				wave = append(wave, t)
			}
		}

		if len(wave) == 0 {
			// No progress possible: the remaining types form a cycle.
			remaining := []ArtifactType{}
			for _, t := range ordered {
				if !scheduled[t] {
					remaining = append(remaining, t)
				}
			}
			return nil, &ConfigurationError{Remaining: remaining}
		}

		for _, t := range wave {
			scheduled[t] = true
		}
		for _, t := range ordered {
			if scheduled[t] {
				continue
			}
			for _, dep := range g.deps[t] {
				if wanted[dep] && scheduled[dep] && inBatch(wave, dep) {
					pending[t]--
				}
			}
		}

		batches = append(batches, wave)
	}

	return batches, nil
}

func inBatch(b Batch, t ArtifactType) bool {
	for _, m := range b {
		if m == t {
			return true
		}
	}
	return false
}
