package evaluation

import (
	"context"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/qrels"
	"github.com/ricesearch/rice-eval/internal/run"
)

// Options configures the engine.
type Options struct {
	// Threshold is the minimum grade that counts as relevant for specs
	// without their own threshold.
	Threshold int
	Missing   MissingPolicy
}

// Engine evaluates runs against qrels for a fixed list of metric specs.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	specs []Spec
	opts  Options
	log   *logger.Logger
}

// NewEngine creates an engine. Unknown metric names fail with UNKNOWN_METRIC.
func NewEngine(specs []Spec, opts Options, log *logger.Logger) (*Engine, error) {
	if len(specs) == 0 {
		return nil, errors.ValidationError("at least one metric is required")
	}
	for _, s := range specs {
		switch s.Name {
		case MetricRR, MetricNDCG, MetricAP, MetricPrecision, MetricRecall:
		default:
			return nil, errors.UnknownMetricError(s.Name)
		}
	}

	if opts.Threshold < 1 {
		opts.Threshold = 1
	}
	if opts.Missing == "" {
		opts.Missing = MissingZero
	}
	if log == nil {
		log = logger.Default()
	}

	return &Engine{
		specs: specs,
		opts:  opts,
		log:   log,
	}, nil
}

// MetricNames returns the canonical spec strings in order.
func (e *Engine) MetricNames() []string {
	names := make([]string, len(e.specs))
	for i, s := range e.specs {
		names[i] = s.String()
	}
	return names
}

// Evaluate scores every judged query of r and aggregates the means.
func (e *Engine) Evaluate(ctx context.Context, system string, r *run.Run, q *qrels.Qrels) (*SystemResult, error) {
	names := e.MetricNames()
	result := &SystemResult{
		System:   system,
		Metrics:  names,
		Means:    make(map[string]float64, len(names)),
		PerQuery: make(map[string]map[string]float64, len(names)),
	}
	for _, name := range names {
		result.PerQuery[name] = make(map[string]float64)
	}

	for _, qid := range q.QueryIDs() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.CodeTimeout, "evaluation cancelled", err)
		}

		if !r.Has(qid) && e.opts.Missing == MissingSkip {
			continue
		}

		ranked := r.Ranked(qid)
		grades := make([]int, len(ranked))
		for i, entry := range ranked {
			grades[i] = q.Grade(qid, entry.DocID)
		}

		data := make(map[int]queryData)
		for i, spec := range e.specs {
			threshold := e.threshold(spec)
			d, ok := data[threshold]
			if !ok {
				d = queryData{
					grades:      grades,
					ideal:       q.IdealGrades(qid, threshold),
					numRelevant: q.NumRelevant(qid, threshold),
				}
				data[threshold] = d
			}
			result.PerQuery[names[i]][qid] = spec.compute(d, threshold)
		}
		result.Queries = append(result.Queries, qid)
	}

	if len(result.Queries) > 0 {
		n := float64(len(result.Queries))
		for _, name := range names {
			var sum float64
			for _, qid := range result.Queries {
				sum += result.PerQuery[name][qid]
			}
			result.Means[name] = sum / n
		}
	} else {
		for _, name := range names {
			result.Means[name] = 0
		}
	}

	e.log.WithSystem(system).Debug("Evaluated run",
		"queries", len(result.Queries),
		"judged_queries", q.Len(),
		"run_queries", len(r.Entries),
	)

	return result, nil
}

func (e *Engine) threshold(s Spec) int {
	if s.Threshold > 0 {
		return s.Threshold
	}
	return e.opts.Threshold
}
