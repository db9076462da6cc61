package graph

import (
	"errors"
	"strings"
	"testing"
)

// TestValidate exercises graph validation with various structures.
func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		setup       func() *Graph
		wantErr     bool
		errContains string
		wantConfig  bool
	}{
		{
			name: "valid linear chain",
			setup: func() *Graph {
				g := New()
				g.Add("A")
				g.Add("B", "A")
				g.Add("C", "B")
				return g
			},
		},
		{
			name: "valid diamond",
			setup: func() *Graph {
				g := New()
				g.Add("A")
				g.Add("B", "A")
				g.Add("C", "A")
				g.Add("D", "B", "C")
				return g
			},
		},
		{
			name: "single type no deps",
			setup: func() *Graph {
				g := New()
				g.Add("A")
				return g
			},
		},
		{
			name: "unregistered dependency",
			setup: func() *Graph {
				g := New()
				g.Add("A", "Missing")
				return g
			},
			wantErr:     true,
			errContains: "unregistered",
		},
		{
			name: "direct cycle",
			setup: func() *Graph {
				g := New()
				g.Add("A", "B")
				g.Add("B", "A")
				return g
			},
			wantErr:    true,
			wantConfig: true,
		},
		{
			name: "transitive cycle",
			setup: func() *Graph {
				g := New()
				g.Add("A", "C")
				g.Add("B", "A")
				g.Add("C", "B")
				return g
			},
			wantErr:    true,
			wantConfig: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.setup().Validate()

			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Validate() error %q does not contain %q", err, tt.errContains)
			}
			if tt.wantConfig {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Errorf("Validate() error %T is not *ConfigurationError", err)
				} else if len(cfgErr.Remaining) == 0 {
					t.Error("ConfigurationError.Remaining is empty")
				}
			}
		})
	}
}

func TestAddDuplicate(t *testing.T) {
	g := New()
	if err := g.Add("A"); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	if err := g.Add("A"); err == nil {
		t.Fatal("second Add of same type succeeded, want error")
	}
}

func TestDependenciesReturnsCopy(t *testing.T) {
	g := New()
	g.Add("A")
	g.Add("B", "A")

	deps := g.Dependencies("B")
	deps[0] = "mutated"

	if got := g.Dependencies("B"); got[0] != "A" {
		t.Errorf("Dependencies returned shared slice; got %v", got)
	}
}

// TestGenerationOrder verifies batch membership and ordering invariants.
func TestGenerationOrder(t *testing.T) {
	// A <- B, A <- C, B+C <- D, standalone E.
	build := func() *Graph {
		g := New()
		g.Add("A")
		g.Add("B", "A")
		g.Add("C", "A")
		g.Add("D", "B", "C")
		g.Add("E")
		return g
	}

	tests := []struct {
		name      string
		requested []ArtifactType
		want      []Batch
	}{
		{
			name:      "full diamond",
			requested: []ArtifactType{"A", "B", "C", "D"},
			want:      []Batch{{"A"}, {"B", "C"}, {"D"}},
		},
		{
			name:      "fan out",
			requested: []ArtifactType{"A", "B", "C"},
			want:      []Batch{{"A"}, {"B", "C"}},
		},
		{
			name:      "independent types share one batch",
			requested: []ArtifactType{"A", "E"},
			want:      []Batch{{"A", "E"}},
		},
		{
			name:      "dependency outside requested set is not awaited",
			requested: []ArtifactType{"B", "C"},
			want:      []Batch{{"B", "C"}},
		},
		{
			name:      "duplicates collapse",
			requested: []ArtifactType{"A", "A", "B"},
			want:      []Batch{{"A"}, {"B"}},
		},
		{
			name:      "input order preserved within batch",
			requested: []ArtifactType{"C", "B", "A"},
			want:      []Batch{{"A"}, {"C", "B"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := build().GenerationOrder(tt.requested)
			if err != nil {
				t.Fatalf("GenerationOrder() error: %v", err)
			}
			assertBatchesEqual(t, got, tt.want)
		})
	}
}

func TestGenerationOrderEveryTypeExactlyOnce(t *testing.T) {
	g := New()
	g.Add("A")
	g.Add("B", "A")
	g.Add("C", "A")
	g.Add("D", "B")
	g.Add("E", "C", "D")

	requested := []ArtifactType{"A", "B", "C", "D", "E"}
	batches, err := g.GenerationOrder(requested)
	if err != nil {
		t.Fatalf("GenerationOrder() error: %v", err)
	}

	seen := map[ArtifactType]int{}
	batchIndex := map[ArtifactType]int{}
	for i, b := range batches {
		for _, m := range b {
			seen[m]++
			batchIndex[m] = i
		}
	}
	for _, want := range requested {
		if seen[want] != 1 {
			t.Errorf("type %q appears %d times, want exactly 1", want, seen[want])
		}
	}

	// Every edge (a -> b) with both requested must place b strictly earlier.
	for _, a := range requested {
		for _, b := range g.Dependencies(a) {
			if _, ok := batchIndex[b]; !ok {
				continue
			}
			if batchIndex[b] >= batchIndex[a] {
				t.Errorf("dependency %q (batch %d) not before %q (batch %d)", b, batchIndex[b], a, batchIndex[a])
			}
		}
	}
}

func TestGenerationOrderIdempotent(t *testing.T) {
	g := New()
	g.Add("A")
	g.Add("B", "A")
	g.Add("C", "A")

	first, err := g.GenerationOrder([]ArtifactType{"A", "B", "C"})
	if err != nil {
		t.Fatalf("first GenerationOrder() error: %v", err)
	}
	second, err := g.GenerationOrder([]ArtifactType{"A", "B", "C"})
	if err != nil {
		t.Fatalf("second GenerationOrder() error: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("batch counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		members := map[ArtifactType]bool{}
		for _, m := range first[i] {
			members[m] = true
		}
		for _, m := range second[i] {
			if !members[m] {
				t.Errorf("batch %d membership differs: %v vs %v", i, first[i], second[i])
			}
		}
	}
}

func TestGenerationOrderCycle(t *testing.T) {
	g := New()
	g.Add("A", "B")
	g.Add("B", "A")

	_, err := g.GenerationOrder([]ArtifactType{"A", "B"})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("GenerationOrder() error %v, want *ConfigurationError", err)
	}
	if len(cfgErr.Remaining) != 2 {
		t.Errorf("Remaining = %v, want both cycle members", cfgErr.Remaining)
	}
}

func TestGenerationOrderUnknownType(t *testing.T) {
	g := New()
	g.Add("A")

	_, err := g.GenerationOrder([]ArtifactType{"A", "Nope"})
	if err == nil {
		t.Fatal("GenerationOrder() with unknown type succeeded, want error")
	}
	if !strings.Contains(err.Error(), "unknown artifact type") {
		t.Errorf("error %q does not mention unknown artifact type", err)
	}
}

func assertBatchesEqual(t *testing.T, got, want []Batch) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("batch count = %d, want %d (got %v)", len(got), len(want), got)
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("batch %d = %v, want %v", i, got[i], want[i])
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("batch %d = %v, want %v", i, got[i], want[i])
				break
			}
		}
	}
}
