package events

import (
	"time"

	"docforge/internal/graph"
)

// Event is the base interface for all progress events.
type Event interface {
	EventType() string
	RunID() string
}

// Topic constants.
const (
	TopicRun      = "run"
	TopicArtifact = "artifact"
)

// Event type constants.
const (
	EventTypeRunStarted        = "run.started"
	EventTypeRunProgress       = "run.progress"
	EventTypeRunFinished       = "run.finished"
	EventTypeArtifactStarted   = "artifact.started"
	EventTypeArtifactCompleted = "artifact.completed"
	EventTypeArtifactFailed    = "artifact.failed"
	EventTypeArtifactSkipped   = "artifact.skipped"
)

// RunStartedEvent is published when the batch plan is resolved and
// generation begins.
type RunStartedEvent struct {
	ID         string
	Requested  []graph.ArtifactType
	BatchCount int
	Timestamp  time.Time
}

func (e RunStartedEvent) EventType() string { return EventTypeRunStarted }
func (e RunStartedEvent) RunID() string     { return e.ID }

// RunProgressEvent carries the run's completion counters. Within one run,
// events are published with non-decreasing Completed counts.
type RunProgressEvent struct {
	ID        string
	Stage     string // "planning", "generating", "finalizing"
	Completed int    // artifacts in a terminal state
	Total     int    // requested artifact count
	Percent   int    // completion scaled into the run's progress sub-range
	Current   graph.ArtifactType
	Timestamp time.Time
}

func (e RunProgressEvent) EventType() string { return EventTypeRunProgress }
func (e RunProgressEvent) RunID() string     { return e.ID }

// RunFinishedEvent is published once the run reaches a terminal state.
type RunFinishedEvent struct {
	ID        string
	Status    string // "completed" or "failed"
	Failed    []graph.ArtifactType
	Elapsed   time.Duration
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) RunID() string     { return e.ID }

// ArtifactStartedEvent is published when an artifact's generation is issued.
type ArtifactStartedEvent struct {
	Run       string
	Type      graph.ArtifactType
	Batch     int // zero-based batch index
	Timestamp time.Time
}

func (e ArtifactStartedEvent) EventType() string { return EventTypeArtifactStarted }
func (e ArtifactStartedEvent) RunID() string     { return e.Run }

// ArtifactCompletedEvent is published when an artifact's generation
// finishes successfully.
type ArtifactCompletedEvent struct {
	Run       string
	Type      graph.ArtifactType
	Attempts  int
	Elapsed   time.Duration
	Timestamp time.Time
}

func (e ArtifactCompletedEvent) EventType() string { return EventTypeArtifactCompleted }
func (e ArtifactCompletedEvent) RunID() string     { return e.Run }

// ArtifactFailedEvent is published when an artifact's generation fails
// terminally (retries exhausted or a fatal backend error).
type ArtifactFailedEvent struct {
	Run       string
	Type      graph.ArtifactType
	Err       error
	Timestamp time.Time
}

func (e ArtifactFailedEvent) EventType() string { return EventTypeArtifactFailed }
func (e ArtifactFailedEvent) RunID() string     { return e.Run }

// ArtifactSkippedEvent is published when an artifact is never attempted
// because an upstream dependency failed or the run was cancelled.
type ArtifactSkippedEvent struct {
	Run       string
	Type      graph.ArtifactType
	Reason    string
	Timestamp time.Time
}

func (e ArtifactSkippedEvent) EventType() string { return EventTypeArtifactSkipped }
func (e ArtifactSkippedEvent) RunID() string     { return e.Run }
