// Package pool is the per-run store of generated artifact content. It
// supplies trimmed dependency context to later batches and records which
// artifacts consumed which dependency content.
package pool

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"docforge/internal/graph"
)

// summaryCacheSize bounds the memoized summary cache. Summaries are cheap
// to recompute, so a small cache is enough.
const summaryCacheSize = 128

// Reference is a citation record extracted from a backend response.
type Reference struct {
	Title  string
	Source string
}

// Result is the immutable outcome of one artifact's generation.
type Result struct {
	Type       graph.ArtifactType
	Content    string
	References []Reference
	Backend    string        // which backend produced it
	Attempts   int           // backend attempts consumed
	Elapsed    time.Duration // wall time of the generation call
}

// CrossReference records that From pulled To's content as dependency
// context during its generation.
type CrossReference struct {
	From graph.ArtifactType
	To   graph.ArtifactType
}

type summaryKey struct {
	t        graph.ArtifactType
	maxChars int
}

// Pool holds one run's generated content. Entries are write-once and
// append-only; the pool is discarded when the run ends.
//
// A single coarse mutex is enough: writes happen only after an artifact's
// own generation finishes, and reads only ever target keys from earlier,
// already-barriered batches.
type Pool struct {
	mu        sync.Mutex
	entries   map[graph.ArtifactType]*Result
	lookups   []CrossReference
	seen      map[CrossReference]bool
	summaries *lru.Cache[summaryKey, string]
}

// New creates an empty Pool.
func New() *Pool {
	cache, _ := lru.New[summaryKey, string](summaryCacheSize)
	return &Pool{
		entries:   make(map[graph.ArtifactType]*Result),
		seen:      make(map[CrossReference]bool),
		summaries: cache,
	}
}

// Add stores one artifact's result. Artifacts are write-once: a second Add
// for the same type in the same run is a programming error and fails loudly.
func (p *Pool) Add(t graph.ArtifactType, result *Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[t]; exists {
		return fmt.Errorf("content for artifact type %q already written this run", t)
	}
	p.entries[t] = result
	return nil
}

// Get returns the stored result for t, if present.
func (p *Pool) Get(t graph.ArtifactType) (*Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.entries[t]
	return r, ok
}

// Len returns the number of stored entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Related returns dependency content for the given artifact, bounded to
// maxChars per dependency. Content longer than the bound is replaced by a
// truncated summary. Dependencies not yet present are omitted, never an
// error: correct batch ordering makes absence mean "supplied externally".
// Every lookup is recorded so CrossReferences stays accurate even when the
// caller ends up not using a piece of content in its final prompt.
func (p *Pool) Related(t graph.ArtifactType, deps []graph.ArtifactType, maxChars int) map[graph.ArtifactType]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[graph.ArtifactType]string, len(deps))
	for _, dep := range deps {
		entry, ok := p.entries[dep]
		if !ok {
			continue
		}

		ref := CrossReference{From: t, To: dep}
		if !p.seen[ref] {
			p.seen[ref] = true
			p.lookups = append(p.lookups, ref)
		}

		if maxChars <= 0 || len(entry.Content) <= maxChars {
			out[dep] = entry.Content
			continue
		}
		out[dep] = p.summarize(dep, entry.Content, maxChars)
	}
	return out
}

// CrossReferences returns the recorded (from, to) consumption pairs in
// first-lookup order.
func (p *Pool) CrossReferences() []CrossReference {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CrossReference(nil), p.lookups...)
}

// Types returns the artifact types with stored content.
func (p *Pool) Types() []graph.ArtifactType {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]graph.ArtifactType, 0, len(p.entries))
	for t := range p.entries {
		out = append(out, t)
	}
	return out
}

// summarize derives a bounded summary of content. Caller holds p.mu.
// Entries are immutable, so memoizing by (type, bound) is safe.
func (p *Pool) summarize(t graph.ArtifactType, content string, maxChars int) string {
	key := summaryKey{t: t, maxChars: maxChars}
	if s, ok := p.summaries.Get(key); ok {
		return s
	}

	s := Truncate(content, maxChars)
	p.summaries.Add(key, s)
	return s
}

// Truncate shortens text to at most maxChars runes, preferring to cut at a
// word boundary and marking the cut with an ellipsis.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}

	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	const marker = " …"
	markerLen := len([]rune(marker))
	if maxChars <= markerLen {
		return string(runes[:maxChars])
	}
	cut := maxChars - markerLen

	head := string(runes[:cut])
	if idx := strings.LastIndexAny(head, " \t\n"); idx > cut/2 {
		head = head[:idx]
	}
	return strings.TrimRight(head, " \t\n") + marker
}
