package coordinator

import (
	"time"

	"docforge/internal/graph"
	"docforge/internal/pool"
)

// Status is a run's lifecycle state.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ArtifactStatus is one artifact's terminal state within a run.
type ArtifactStatus int

const (
	ArtifactSucceeded ArtifactStatus = iota
	ArtifactFailed
	ArtifactSkipped
)

func (s ArtifactStatus) String() string {
	switch s {
	case ArtifactSucceeded:
		return "succeeded"
	case ArtifactFailed:
		return "failed"
	case ArtifactSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Skip reasons surfaced on skipped artifacts.
const (
	SkipReasonDependencyFailed = "skipped_due_to_dependency_failure"
	SkipReasonRunCancelled     = "skipped_due_to_run_cancellation"
)

// Request describes one generation run.
type Request struct {
	Types       []graph.ArtifactType                     // artifact types to produce
	Assumptions string                                   // caller-supplied free text
	Inputs      map[graph.ArtifactType]map[string]string // optional per-artifact inputs
	Background  string                                   // optional retrieval query; Assumptions used when empty
}

// Outcome is the terminal record for one requested artifact.
type Outcome struct {
	Type       graph.ArtifactType
	Status     ArtifactStatus
	Result     *pool.Result // set when Status == ArtifactSucceeded
	Err        error        // set when Status == ArtifactFailed
	SkipReason string       // set when Status == ArtifactSkipped
}

// Result is the final structure handed to the caller when a run reaches a
// terminal state. Every requested type appears exactly once in Outcomes.
type Result struct {
	RunID           string
	Status          Status
	Outcomes        map[graph.ArtifactType]*Outcome
	CrossReferences []pool.CrossReference
	Failed          []graph.ArtifactType
	Skipped         []graph.ArtifactType
	Elapsed         time.Duration
}
