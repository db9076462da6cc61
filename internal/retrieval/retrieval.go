// Package retrieval supplies ranked background text snippets for a
// free-text query. The coordinator treats it as an opaque text source;
// richer retrieval systems plug in behind the Provider interface.
package retrieval

import (
	"context"
	"sort"
	"strings"
)

// Snippet is one ranked piece of background text.
type Snippet struct {
	Title string
	Text  string
	Score float64
}

// Provider returns background snippets relevant to a query.
type Provider interface {
	Retrieve(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// Static is an in-memory Provider over a fixed snippet set, ranked by
// naive term overlap. Good enough for seeded corpora and tests.
type Static struct {
	snippets []Snippet
}

// NewStatic creates a Static provider over the given snippets.
func NewStatic(snippets ...Snippet) *Static {
	return &Static{snippets: append([]Snippet(nil), snippets...)}
}

// Retrieve ranks the corpus against query and returns up to limit snippets
// with a positive score.
func (s *Static) Retrieve(ctx context.Context, query string, limit int) ([]Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	scored := make([]Snippet, 0, len(s.snippets))
	for _, sn := range s.snippets {
		score := overlap(terms, tokenize(sn.Title+" "+sn.Text))
		if score > 0 {
			sn.Score = score
			scored = append(scored, sn)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func tokenize(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if len(w) > 2 {
			out[w] = true
		}
	}
	return out
}

func overlap(query, doc map[string]bool) float64 {
	hits := 0
	for w := range query {
		if doc[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
