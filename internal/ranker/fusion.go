package ranker

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/qrels"
	"github.com/ricesearch/rice-eval/internal/run"
)

const (
	// DefaultK is the RRF smoothing constant.
	// Higher values reduce the impact of rank position differences.
	DefaultK = 60
)

// FusionConfig configures Reciprocal Rank Fusion.
type FusionConfig struct {
	// K is the smoothing constant (default: 60).
	K int

	// Weights holds one weight per fused ranker. Empty means equal weights.
	Weights []float64
}

// Fusion combines several rankers with weighted reciprocal rank fusion.
//
// Formula: score(d) = sum_i weight_i / (k + rank_i(d))
type Fusion struct {
	rankers []Ranker
	cfg     FusionConfig
}

// NewFusion creates a fusion ranker over rankers.
func NewFusion(cfg FusionConfig, rankers ...Ranker) (*Fusion, error) {
	if len(rankers) == 0 {
		return nil, errors.ValidationError("fusion requires at least one ranker")
	}
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if len(cfg.Weights) == 0 {
		cfg.Weights = make([]float64, len(rankers))
		for i := range cfg.Weights {
			cfg.Weights[i] = 1.0 / float64(len(rankers))
		}
	}
	if len(cfg.Weights) != len(rankers) {
		return nil, errors.ValidationError("fusion needs one weight per ranker")
	}
	for _, w := range cfg.Weights {
		if w < 0 {
			return nil, errors.ValidationError("fusion weights must not be negative")
		}
	}

	return &Fusion{rankers: rankers, cfg: cfg}, nil
}

// Rank queries every inner ranker concurrently and fuses their rankings.
func (f *Fusion) Rank(ctx context.Context, q qrels.Query) ([]Hit, error) {
	lists := make([][]Hit, len(f.rankers))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range f.rankers {
		g.Go(func() error {
			hits, err := r.Rank(gctx, q)
			if err != nil {
				return err
			}
			lists[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Fuse(lists, f.cfg), nil
}

// Fuse combines ranked lists with weighted RRF. Each list is ranked by
// score first, so callers may pass hits in any order. The result is
// sorted by fused score, ties by doc id.
func Fuse(lists [][]Hit, cfg FusionConfig) []Hit {
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}

	scores := make(map[string]float64)
	for i, hits := range lists {
		weight := 1.0 / float64(len(lists))
		if i < len(cfg.Weights) {
			weight = cfg.Weights[i]
		}

		entries := make([]run.Entry, len(hits))
		for j, h := range hits {
			entries[j] = run.Entry{DocID: h.DocID, Score: h.Score}
		}
		for _, e := range run.SortEntries(entries) {
			scores[e.DocID] += weight / float64(cfg.K+e.Rank)
		}
	}

	fused := make([]Hit, 0, len(scores))
	for id, s := range scores {
		fused = append(fused, Hit{DocID: id, Score: s})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].DocID < fused[j].DocID
	})

	return fused
}
