// Package catalog maps artifact types to generation handlers and carries
// the authoritative dependency edge list between document types.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"docforge/internal/graph"
	"docforge/internal/pool"
	"docforge/internal/retrieval"
)

// ErrNoHandler is returned when no handler is registered for a requested
// artifact type. Callers must treat this as an explicit failure rather
// than silently degrading to some default generation.
var ErrNoHandler = errors.New("no handler registered for artifact type")

// Inputs is everything a handler may draw on for one artifact.
type Inputs struct {
	Assumptions  string                          // caller-supplied free text for the whole run
	Extra        map[string]string               // caller-supplied fields for this artifact
	Dependencies map[graph.ArtifactType]string   // finished upstream content, already bounded
	Background   []retrieval.Snippet             // ranked background context
}

// Draft is a handler's finished output for one artifact, plus metadata
// about the backend call that produced it.
type Draft struct {
	Content    string
	References []pool.Reference
	Backend    string // adapter that produced the content
	Attempts   int    // backend attempts consumed
}

// Handler turns Inputs into a Draft for one artifact type. Any
// implementation exposing this single operation is acceptable, whether a
// specialized per-type generator or a generic prompt-driven one.
type Handler interface {
	Produce(ctx context.Context, in Inputs) (Draft, error)
}

// Catalog is a typed registry of artifact types, their dependency edges,
// and their handlers.
type Catalog struct {
	mu       sync.RWMutex
	order    []graph.ArtifactType
	deps     map[graph.ArtifactType][]graph.ArtifactType
	handlers map[graph.ArtifactType]Handler
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		deps:     make(map[graph.ArtifactType][]graph.ArtifactType),
		handlers: make(map[graph.ArtifactType]Handler),
	}
}

// Register adds an artifact type with its prerequisites and handler.
// Returns an error on duplicate registration.
func (c *Catalog) Register(t graph.ArtifactType, dependsOn []graph.ArtifactType, h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler for artifact type %q", t)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.deps[t]; exists {
		return fmt.Errorf("artifact type %q already registered", t)
	}
	c.deps[t] = append([]graph.ArtifactType(nil), dependsOn...)
	c.handlers[t] = h
	c.order = append(c.order, t)
	return nil
}

// Resolve returns the handler for t, or ErrNoHandler.
func (c *Catalog) Resolve(t graph.ArtifactType) (Handler, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.handlers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, t)
	}
	return h, nil
}

// Types returns all registered types in registration order.
func (c *Catalog) Types() []graph.ArtifactType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]graph.ArtifactType(nil), c.order...)
}

// Graph builds and validates the dependency graph over the registered
// types. A cycle in the edge list surfaces here as a
// *graph.ConfigurationError, before any generation starts.
func (c *Catalog) Graph() (*graph.Graph, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	g := graph.New()
	for _, t := range c.order {
		if err := g.Add(t, c.deps[t]...); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
