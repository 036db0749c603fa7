// Package ranker defines the capability every system under test
// provides: turn a query into a ranked list of scored documents.
package ranker

import (
	"context"
	"fmt"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/qrels"
	"github.com/ricesearch/rice-eval/internal/run"
)

// Hit is one retrieved document.
type Hit struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Ranker retrieves documents for a query. Implementations need not
// return hits in order; scores decide the ranking.
type Ranker interface {
	Rank(ctx context.Context, q qrels.Query) ([]Hit, error)
}

// Func adapts a function to the Ranker interface.
type Func func(ctx context.Context, q qrels.Query) ([]Hit, error)

// Rank calls f.
func (f Func) Rank(ctx context.Context, q qrels.Query) ([]Hit, error) {
	return f(ctx, q)
}

// Static serves a precomputed run.
type Static struct {
	run *run.Run
}

// NewStatic creates a ranker that replays r.
func NewStatic(r *run.Run) *Static {
	return &Static{run: r}
}

// Rank returns the run's entries for the query, best first.
func (s *Static) Rank(ctx context.Context, q qrels.Query) ([]Hit, error) {
	entries := s.run.Ranked(q.ID)
	hits := make([]Hit, len(entries))
	for i, e := range entries {
		hits[i] = Hit{DocID: e.DocID, Score: e.Score}
	}
	return hits, nil
}

// BuildRun calls r for every query and collects a ranked run tagged tag,
// keeping at most depth hits per query (0 keeps all).
func BuildRun(ctx context.Context, r Ranker, tag string, queries []qrels.Query, depth int) (*run.Run, error) {
	out := run.New(tag)
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.CodeTimeout, "ranking cancelled", err)
		}

		hits, err := r.Rank(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("ranking query %s: %w", q.ID, err)
		}
		for _, h := range hits {
			out.Add(q.ID, h.DocID, h.Score)
		}
	}

	out.Rank()
	out.Truncate(depth)
	return out, nil
}
