package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"docforge/internal/coordinator"
	"docforge/internal/graph"
	"docforge/internal/pool"

	"github.com/google/uuid"
)

// testStore creates an in-memory store for testing and registers cleanup.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func sampleRun() (coordinator.Request, *coordinator.Result) {
	req := coordinator.Request{
		Types:       []graph.ArtifactType{"Statement of Work", "Cost Estimate"},
		Assumptions: "Small fixed-price award.",
	}
	res := &coordinator.Result{
		RunID:  uuid.NewString(),
		Status: coordinator.StatusFailed,
		Outcomes: map[graph.ArtifactType]*coordinator.Outcome{
			"Statement of Work": {
				Type:   "Statement of Work",
				Status: coordinator.ArtifactSucceeded,
				Result: &pool.Result{
					Type:     "Statement of Work",
					Content:  "# Statement of Work\n...",
					Backend:  "gemini",
					Attempts: 2,
					Elapsed:  1500 * time.Millisecond,
				},
			},
			"Cost Estimate": {
				Type:   "Cost Estimate",
				Status: coordinator.ArtifactFailed,
				Err:    errors.New("generation failed after 3 attempts"),
			},
		},
		CrossReferences: []pool.CrossReference{
			{From: "Cost Estimate", To: "Statement of Work"},
		},
		Failed:  []graph.ArtifactType{"Cost Estimate"},
		Elapsed: 4 * time.Second,
	}
	return req, res
}

func TestSaveAndGetRun(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	req, res := sampleRun()
	if err := store.SaveRun(ctx, req, res); err != nil {
		t.Fatalf("SaveRun() error: %v", err)
	}

	detail, err := store.GetRun(ctx, res.RunID)
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}

	if detail.ID != res.RunID {
		t.Errorf("ID = %q, want %q", detail.ID, res.RunID)
	}
	if detail.Status != "failed" {
		t.Errorf("Status = %q, want failed", detail.Status)
	}
	if len(detail.Requested) != 2 || detail.Requested[0] != "Statement of Work" {
		t.Errorf("Requested = %v", detail.Requested)
	}
	if detail.Assumptions != req.Assumptions {
		t.Errorf("Assumptions = %q", detail.Assumptions)
	}
	if detail.Elapsed != 4*time.Second {
		t.Errorf("Elapsed = %v, want 4s", detail.Elapsed)
	}

	if len(detail.Artifacts) != 2 {
		t.Fatalf("got %d artifacts, want 2", len(detail.Artifacts))
	}
	byType := make(map[graph.ArtifactType]ArtifactRecord)
	for _, a := range detail.Artifacts {
		byType[a.Type] = a
	}

	sow := byType["Statement of Work"]
	if sow.Status != "succeeded" || sow.Backend != "gemini" || sow.Attempts != 2 {
		t.Errorf("SOW record = %+v", sow)
	}
	if sow.Content == "" {
		t.Error("SOW content not stored")
	}
	if sow.Elapsed != 1500*time.Millisecond {
		t.Errorf("SOW elapsed = %v", sow.Elapsed)
	}

	ce := byType["Cost Estimate"]
	if ce.Status != "failed" || ce.Error == "" {
		t.Errorf("cost estimate record = %+v", ce)
	}

	if len(detail.CrossReferences) != 1 {
		t.Fatalf("got %d cross references, want 1", len(detail.CrossReferences))
	}
	ref := detail.CrossReferences[0]
	if ref.From != "Cost Estimate" || ref.To != "Statement of Work" {
		t.Errorf("cross reference = %+v", ref)
	}
}

func TestSaveRunIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	req, res := sampleRun()
	if err := store.SaveRun(ctx, req, res); err != nil {
		t.Fatalf("first SaveRun() error: %v", err)
	}
	res.Status = coordinator.StatusCompleted
	if err := store.SaveRun(ctx, req, res); err != nil {
		t.Fatalf("second SaveRun() error: %v", err)
	}

	detail, err := store.GetRun(ctx, res.RunID)
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if detail.Status != "completed" {
		t.Errorf("Status = %q, want completed after re-save", detail.Status)
	}
	if len(detail.Artifacts) != 2 {
		t.Errorf("got %d artifacts after re-save, want 2", len(detail.Artifacts))
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := testStore(t)

	if _, err := store.GetRun(context.Background(), "no-such-run"); err == nil {
		t.Fatal("GetRun() succeeded for missing run, want error")
	}
}

func TestListRuns(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		req, res := sampleRun()
		ids = append(ids, res.RunID)
		if err := store.SaveRun(ctx, req, res); err != nil {
			t.Fatalf("SaveRun() error: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() error: %v", err)
	}
	if len(runs) < 3 {
		t.Fatalf("got %d runs, want at least 3", len(runs))
	}
	seen := make(map[string]bool)
	for _, r := range runs {
		seen[r.ID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("run %s missing from listing", id)
		}
	}

	limited, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns(limit) error: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d runs with limit 2", len(limited))
	}
}
