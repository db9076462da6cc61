// Package coordinator drives a generation run: it resolves the batch plan,
// fans out each batch's generation calls concurrently, propagates finished
// content to dependent artifacts through the content pool, and emits
// progress events. A batch boundary is a synchronization barrier, so every
// dependent artifact sees fully finished upstream content.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docforge/internal/catalog"
	"docforge/internal/events"
	"docforge/internal/graph"
	"docforge/internal/pool"
	"docforge/internal/retrieval"
)

// ErrCancelled marks a run cut short by cancellation or the run deadline.
// The partial result accompanying it is still valid.
var ErrCancelled = errors.New("run cancelled")

// Generation progress is reported inside a sub-range of overall run
// progress, leaving room for the surrounding service's own stages.
const (
	progressFloor = 5
	progressCeil  = 95
)

// Run stages reported on progress events.
const (
	StagePlanning   = "planning"
	StageGenerating = "generating"
	StageFinalizing = "finalizing"
)

// Config bounds a run's execution.
type Config struct {
	ConcurrencyLimit   int           // max concurrent generations within a batch (default 4)
	MaxSummaryChars    int           // per-dependency context budget (default 4000)
	BackgroundSnippets int           // background snippets fetched per run (default 3)
	RunTimeout         time.Duration // overall run deadline; 0 disables
}

func (c Config) withDefaults() Config {
	if c.ConcurrencyLimit <= 0 {
		c.ConcurrencyLimit = 4
	}
	if c.MaxSummaryChars <= 0 {
		c.MaxSummaryChars = 4000
	}
	if c.BackgroundSnippets <= 0 {
		c.BackgroundSnippets = 3
	}
	return c
}

// Coordinator executes generation runs. It holds no per-run state: each
// Run call builds its own pool and bookkeeping, so concurrent runs never
// share anything.
type Coordinator struct {
	graph     *graph.Graph
	catalog   *catalog.Catalog
	retriever retrieval.Provider // optional
	bus       *events.Bus        // optional
	cfg       Config
}

// New creates a Coordinator. The retriever and bus may be nil.
func New(g *graph.Graph, c *catalog.Catalog, retriever retrieval.Provider, bus *events.Bus, cfg Config) *Coordinator {
	return &Coordinator{
		graph:     g,
		catalog:   c,
		retriever: retriever,
		bus:       bus,
		cfg:       cfg.withDefaults(),
	}
}

// runState is the mutable bookkeeping for one run. All mutation happens
// under mu; progress events are published under the same lock so completion
// counts on the bus are non-decreasing.
type runState struct {
	mu       sync.Mutex
	id       string
	total    int
	pool     *pool.Pool
	outcomes map[graph.ArtifactType]*Outcome
	bus      *events.Bus
}

// Run executes one generation run and returns its terminal result. The
// result is non-nil whenever the run got past planning, even on failure or
// cancellation: completed artifacts are returned, never discarded.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if len(req.Types) == 0 {
		return nil, fmt.Errorf("no artifact types requested")
	}
	if c.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RunTimeout)
		defer cancel()
	}

	// Fail fast on unresolvable handlers and a corrupt graph, before any
	// backend call is issued.
	handlers := make(map[graph.ArtifactType]catalog.Handler, len(req.Types))
	for _, t := range req.Types {
		h, err := c.catalog.Resolve(t)
		if err != nil {
			return nil, err
		}
		handlers[t] = h
	}
	plan, err := c.graph.GenerationOrder(req.Types)
	if err != nil {
		return nil, err
	}

	requested := make(map[graph.ArtifactType]bool, len(req.Types))
	total := 0
	for _, b := range plan {
		for _, t := range b {
			requested[t] = true
			total++
		}
	}

	rs := &runState{
		id:       uuid.NewString(),
		total:    total,
		pool:     pool.New(),
		outcomes: make(map[graph.ArtifactType]*Outcome, total),
		bus:      c.bus,
	}

	rs.publish(events.TopicRun, events.RunStartedEvent{
		ID:         rs.id,
		Requested:  flatten(plan),
		BatchCount: len(plan),
		Timestamp:  time.Now(),
	})
	rs.mu.Lock()
	rs.progress(StagePlanning, "")
	rs.mu.Unlock()

	background := c.fetchBackground(ctx, req)

	cancelled := false
	for i, batch := range plan {
		if ctx.Err() != nil {
			cancelled = true
			c.skipRemaining(rs, plan[i:], SkipReasonRunCancelled)
			break
		}
		c.runBatch(ctx, rs, req, handlers, requested, background, i, batch)
	}
	if !cancelled && ctx.Err() != nil {
		cancelled = true
	}

	return c.finalize(rs, start, cancelled)
}

// runBatch fans out one batch's members and waits for all of them: the
// barrier that lets the next batch read this batch's content safely.
func (c *Coordinator) runBatch(ctx context.Context, rs *runState, req Request, handlers map[graph.ArtifactType]catalog.Handler, requested map[graph.ArtifactType]bool, background []retrieval.Snippet, batchIndex int, batch graph.Batch) {
	runnable := make([]graph.ArtifactType, 0, len(batch))
	for _, t := range batch {
		if reason, blocked := c.blockedByUpstream(rs, t, requested); blocked {
			rs.recordSkip(t, reason)
			continue
		}
		runnable = append(runnable, t)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.ConcurrencyLimit)

	for _, t := range runnable {
		t := t
		g.Go(func() error {
			c.generateArtifact(gctx, rs, req, handlers[t], requested, background, batchIndex, t)
			return nil // failures live in rs, not in the group error
		})
	}
	g.Wait()
}

// blockedByUpstream reports whether t must be skipped because a requested
// dependency did not succeed. Skips propagate batch by batch, so checking
// direct dependencies is enough.
func (c *Coordinator) blockedByUpstream(rs *runState, t graph.ArtifactType, requested map[graph.ArtifactType]bool) (string, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for _, dep := range c.graph.Dependencies(t) {
		if !requested[dep] {
			continue
		}
		out, ok := rs.outcomes[dep]
		if !ok {
			continue
		}
		switch out.Status {
		case ArtifactFailed:
			return SkipReasonDependencyFailed, true
		case ArtifactSkipped:
			if out.SkipReason == SkipReasonRunCancelled {
				return SkipReasonRunCancelled, true
			}
			return SkipReasonDependencyFailed, true
		}
	}
	return "", false
}

// generateArtifact runs one artifact's generation and records the outcome.
func (c *Coordinator) generateArtifact(ctx context.Context, rs *runState, req Request, h catalog.Handler, requested map[graph.ArtifactType]bool, background []retrieval.Snippet, batchIndex int, t graph.ArtifactType) {
	if err := ctx.Err(); err != nil {
		rs.recordSkip(t, SkipReasonRunCancelled)
		return
	}

	rs.publish(events.TopicArtifact, events.ArtifactStartedEvent{
		Run:       rs.id,
		Type:      t,
		Batch:     batchIndex,
		Timestamp: time.Now(),
	})

	// Only dependencies inside the requested set come from the pool;
	// anything else was supplied externally by the caller.
	deps := make([]graph.ArtifactType, 0)
	for _, dep := range c.graph.Dependencies(t) {
		if requested[dep] {
			deps = append(deps, dep)
		}
	}
	depContent := rs.pool.Related(t, deps, c.cfg.MaxSummaryChars)

	start := time.Now()
	draft, err := h.Produce(ctx, catalog.Inputs{
		Assumptions:  req.Assumptions,
		Extra:        req.Inputs[t],
		Dependencies: depContent,
		Background:   background,
	})
	if err != nil {
		if ctx.Err() != nil {
			rs.recordSkip(t, SkipReasonRunCancelled)
			return
		}
		rs.recordFailure(t, err)
		return
	}

	result := &pool.Result{
		Type:       t,
		Content:    draft.Content,
		References: draft.References,
		Backend:    draft.Backend,
		Attempts:   draft.Attempts,
		Elapsed:    time.Since(start),
	}
	if err := rs.pool.Add(t, result); err != nil {
		// Write-once violation: a scheduling bug, not a generation failure.
		rs.recordFailure(t, err)
		return
	}
	rs.recordSuccess(t, result)
}

// fetchBackground pulls the run's background snippets. Retrieval failures
// degrade the run, they do not abort it.
func (c *Coordinator) fetchBackground(ctx context.Context, req Request) []retrieval.Snippet {
	if c.retriever == nil {
		return nil
	}
	query := req.Background
	if query == "" {
		query = req.Assumptions
	}
	if query == "" {
		return nil
	}

	snippets, err := c.retriever.Retrieve(ctx, query, c.cfg.BackgroundSnippets)
	if err != nil {
		log.Printf("WARNING: background retrieval failed: %v", err)
		return nil
	}
	return snippets
}

// skipRemaining marks every not-yet-terminal member of the remaining
// batches as skipped.
func (c *Coordinator) skipRemaining(rs *runState, remaining []graph.Batch, reason string) {
	for _, batch := range remaining {
		for _, t := range batch {
			rs.mu.Lock()
			_, done := rs.outcomes[t]
			rs.mu.Unlock()
			if !done {
				rs.recordSkip(t, reason)
			}
		}
	}
}

// finalize computes the terminal result and emits the closing events.
func (c *Coordinator) finalize(rs *runState, start time.Time, cancelled bool) (*Result, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	res := &Result{
		RunID:           rs.id,
		Outcomes:        rs.outcomes,
		CrossReferences: rs.pool.CrossReferences(),
		Elapsed:         time.Since(start),
	}
	for t, out := range rs.outcomes {
		switch out.Status {
		case ArtifactFailed:
			res.Failed = append(res.Failed, t)
		case ArtifactSkipped:
			res.Skipped = append(res.Skipped, t)
		}
	}

	res.Status = StatusCompleted
	if len(res.Failed) > 0 || len(res.Skipped) > 0 || cancelled {
		res.Status = StatusFailed
	}

	rs.progress(StageFinalizing, "")
	rs.publish(events.TopicRun, events.RunFinishedEvent{
		ID:        rs.id,
		Status:    res.Status.String(),
		Failed:    append([]graph.ArtifactType(nil), res.Failed...),
		Elapsed:   res.Elapsed,
		Timestamp: time.Now(),
	})

	if cancelled {
		return res, fmt.Errorf("%w: %d of %d artifacts finished", ErrCancelled, len(rs.outcomes)-len(res.Skipped), rs.total)
	}
	return res, nil
}

// --- runState bookkeeping -------------------------------------------------

func (rs *runState) recordSuccess(t graph.ArtifactType, result *pool.Result) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.outcomes[t] = &Outcome{Type: t, Status: ArtifactSucceeded, Result: result}
	rs.publish(events.TopicArtifact, events.ArtifactCompletedEvent{
		Run:       rs.id,
		Type:      t,
		Attempts:  result.Attempts,
		Elapsed:   result.Elapsed,
		Timestamp: time.Now(),
	})
	rs.progress(StageGenerating, t)
}

func (rs *runState) recordFailure(t graph.ArtifactType, err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.outcomes[t] = &Outcome{Type: t, Status: ArtifactFailed, Err: err}
	rs.publish(events.TopicArtifact, events.ArtifactFailedEvent{
		Run:       rs.id,
		Type:      t,
		Err:       err,
		Timestamp: time.Now(),
	})
	rs.progress(StageGenerating, t)
}

func (rs *runState) recordSkip(t graph.ArtifactType, reason string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.outcomes[t] = &Outcome{Type: t, Status: ArtifactSkipped, SkipReason: reason}
	rs.publish(events.TopicArtifact, events.ArtifactSkippedEvent{
		Run:       rs.id,
		Type:      t,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	rs.progress(StageGenerating, t)
}

// progress publishes a progress event. Caller holds rs.mu.
func (rs *runState) progress(stage string, current graph.ArtifactType) {
	completed := len(rs.outcomes)
	percent := progressFloor
	if rs.total > 0 {
		percent = progressFloor + (progressCeil-progressFloor)*completed/rs.total
	}
	rs.publish(events.TopicRun, events.RunProgressEvent{
		ID:        rs.id,
		Stage:     stage,
		Completed: completed,
		Total:     rs.total,
		Percent:   percent,
		Current:   current,
		Timestamp: time.Now(),
	})
}

// publish forwards to the bus; the bus never blocks, so publishing under
// rs.mu is safe and keeps event ordering consistent with the bookkeeping.
func (rs *runState) publish(topic string, ev events.Event) {
	if rs.bus != nil {
		rs.bus.Publish(topic, ev)
	}
}

func flatten(plan []graph.Batch) []graph.ArtifactType {
	var out []graph.ArtifactType
	for _, b := range plan {
		out = append(out, b...)
	}
	return out
}
