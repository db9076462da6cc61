package retrieval

import (
	"context"
	"testing"
)

func TestStaticRanksByOverlap(t *testing.T) {
	p := NewStatic(
		Snippet{Title: "Pricing", Text: "historical cost data and labor rates"},
		Snippet{Title: "Schedule", Text: "milestone dates and delivery windows"},
		Snippet{Title: "Cost methodology", Text: "cost estimate methodology and cost models"},
	)

	got, err := p.Retrieve(context.Background(), "cost estimate models", 2)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("Retrieve() returned no snippets")
	}
	if got[0].Title != "Cost methodology" {
		t.Errorf("top snippet = %q, want %q", got[0].Title, "Cost methodology")
	}
	if len(got) > 2 {
		t.Errorf("Retrieve() returned %d snippets, want <= 2", len(got))
	}
}

func TestStaticEmptyQuery(t *testing.T) {
	p := NewStatic(Snippet{Title: "A", Text: "anything"})

	got, err := p.Retrieve(context.Background(), "", 5)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Retrieve() = %v, want empty for empty query", got)
	}
}

func TestStaticCancelledContext(t *testing.T) {
	p := NewStatic(Snippet{Title: "A", Text: "anything"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Retrieve(ctx, "anything", 5); err == nil {
		t.Fatal("Retrieve() succeeded with cancelled context")
	}
}
