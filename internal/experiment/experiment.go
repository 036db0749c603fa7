// Package experiment runs systems against a shared set of judgments:
// produce (or load) each run, evaluate it, compare against a baseline
// and assemble a report.
package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/compare"
	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/qrels"
	"github.com/ricesearch/rice-eval/internal/ranker"
	"github.com/ricesearch/rice-eval/internal/report"
	"github.com/ricesearch/rice-eval/internal/run"
	"github.com/ricesearch/rice-eval/internal/runcache"
)

// System is one system under test. Exactly one of Run and Ranker is set:
// a precomputed Run is evaluated as is, a Ranker is queried (through the
// run cache) for every topic. Err marks a system whose input could not be
// loaded; it is reported as failed without being evaluated.
type System struct {
	Name   string
	Run    *run.Run
	Ranker ranker.Ranker
	Err    error
}

// Options configures a Runner.
type Options struct {
	Workers   int // systems evaluated concurrently
	Depth     int // hits kept per query from rankers
	CacheMode runcache.Mode
	Baseline  int
	Compare   compare.Options
	PerQuery  bool
}

// Runner executes experiments. It is safe for concurrent use.
type Runner struct {
	engine *evaluation.Engine
	cache  runcache.Cache
	bus    bus.Bus
	log    *logger.Logger
	opts   Options
}

// NewRunner creates a runner. cache may be nil when CacheMode is off and
// b may be nil to publish nothing.
func NewRunner(engine *evaluation.Engine, cache runcache.Cache, b bus.Bus, log *logger.Logger, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.CacheMode == "" {
		opts.CacheMode = runcache.ModeOff
	}
	if b == nil {
		b = bus.NopBus{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &Runner{
		engine: engine,
		cache:  cache,
		bus:    b,
		log:    log,
		opts:   opts,
	}
}

// Result is the outcome of one experiment.
type Result struct {
	ID          string                     `json:"id"`
	Systems     []*evaluation.SystemResult `json:"systems"` // aligned with the input; nil for failed systems
	Cached      []bool                     `json:"cached"`
	Comparisons []compare.Comparison       `json:"comparisons,omitempty"`
	Failures    []report.Failure           `json:"failures,omitempty"`
	Skipped     []report.Failure           `json:"skipped_comparisons,omitempty"` // evaluated, but not comparable with the baseline
	Report      *report.Report             `json:"report"`
}

// outcome is the private per-system slot a worker fills.
type outcome struct {
	result *evaluation.SystemResult
	cached bool
	err    error
}

// Run evaluates every system against q. topics supplies query text for
// rankers; when nil, the judged query ids are used with empty text.
//
// A system that fails is reported in Result.Failures and left out of
// comparisons; the others are still evaluated. Run returns an error only
// for invalid input, cancellation, or a comparison that cannot be made.
func (r *Runner) Run(ctx context.Context, systems []System, q *qrels.Qrels, topics []qrels.Query) (*Result, error) {
	if err := validateSystems(systems, r.opts.Baseline); err != nil {
		return nil, err
	}
	if topics == nil {
		topics = topicsFromQrels(q)
	}

	start := time.Now()
	id := uuid.NewString()
	log := r.log.With("experiment", id)
	log.Info("Starting experiment", "systems", len(systems), "queries", q.Len(), "metrics", r.engine.MetricNames())

	// Each worker writes only its own slot
	outcomes := make([]outcome, len(systems))
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, sys := range systems {
		g.Go(func() error {
			res, cached, err := r.evaluateSystem(ctx, sys, q, topics)
			outcomes[i] = outcome{result: res, cached: cached, err: err}
			r.publishSystem(ctx, id, sys.Name, outcomes[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeTimeout, "experiment cancelled", err)
	}

	result := &Result{
		ID:      id,
		Systems: make([]*evaluation.SystemResult, len(systems)),
		Cached:  make([]bool, len(systems)),
	}
	for i, o := range outcomes {
		if o.err != nil {
			log.WithError(o.err).Warn("System failed", "system", systems[i].Name)
			result.Failures = append(result.Failures, report.Failure{
				System: systems[i].Name,
				Error:  o.err.Error(),
			})
			continue
		}
		result.Systems[i] = o.result
		result.Cached[i] = o.cached
	}

	baselineName := systems[r.opts.Baseline].Name
	if result.Systems[r.opts.Baseline] == nil {
		log.Warn("Baseline failed, skipping comparisons", "baseline", baselineName)
	} else if len(systems) > 1 {
		comparable, skipped := alignWithBaseline(result.Systems, r.opts.Baseline)
		for _, s := range skipped {
			log.Warn("System not comparable with baseline", "system", s.System, "error", s.Error)
		}
		result.Skipped = skipped

		comparisons, err := compare.Compare(comparable, r.opts.Baseline, r.opts.Compare)
		if err != nil {
			return nil, err
		}
		result.Comparisons = comparisons
	}

	result.Report = report.Build(result.Systems, result.Comparisons, result.Failures, report.Options{
		Baseline:   baselineName,
		Test:       string(r.testName()),
		Correction: string(r.correctionName()),
		Alpha:      r.alpha(),
		PerQuery:   r.opts.PerQuery,
		Skipped:    result.Skipped,
	})

	elapsed := time.Since(start)
	r.publish(ctx, bus.TopicExperimentCompleted, id, bus.ExperimentPayload{
		Systems:    len(systems),
		Failed:     len(result.Failures),
		Comparison: len(result.Comparisons),
		DurationMs: elapsed.Milliseconds(),
		Baseline:   baselineName,
		Alpha:      r.alpha(),
	})
	log.Info("Experiment completed",
		"failed", len(result.Failures),
		"comparisons", len(result.Comparisons),
		"duration_ms", elapsed.Milliseconds(),
	)

	return result, nil
}

func (r *Runner) evaluateSystem(ctx context.Context, sys System, q *qrels.Qrels, topics []qrels.Query) (*evaluation.SystemResult, bool, error) {
	log := r.log.WithSystem(sys.Name)

	var (
		rn     *run.Run
		cached bool
		err    error
	)
	if sys.Err != nil {
		return nil, false, sys.Err
	}
	if sys.Run != nil {
		rn = sys.Run
	} else {
		rn, cached, err = runcache.GetOrCompute(ctx, r.cache, r.opts.CacheMode, sys.Name, func(ctx context.Context) (*run.Run, error) {
			log.Debug("Ranking topics", "queries", len(topics))
			return ranker.BuildRun(ctx, sys.Ranker, sys.Name, topics, r.opts.Depth)
		})
		if err != nil {
			return nil, false, err
		}
		// A stored run may have been ranked deeper than this experiment asks for
		rn = rn.Head(r.opts.Depth)
	}

	res, err := r.engine.Evaluate(ctx, sys.Name, rn, q)
	if err != nil {
		return nil, false, err
	}
	log.Debug("System evaluated", "cached", cached, "queries", len(res.Queries), "entries", rn.Len())
	return res, cached, nil
}

func (r *Runner) publishSystem(ctx context.Context, id, name string, o outcome) {
	if o.err != nil {
		r.publish(ctx, bus.TopicSystemFailed, id, bus.SystemPayload{
			System: name,
			Error:  o.err.Error(),
		})
		return
	}
	r.publish(ctx, bus.TopicSystemCompleted, id, bus.SystemPayload{
		System:  name,
		Cached:  o.cached,
		Queries: len(o.result.Queries),
		Means:   o.result.Means,
	})
}

// publish never fails the experiment; events are best-effort.
func (r *Runner) publish(ctx context.Context, topic, id string, payload any) {
	if err := r.bus.Publish(ctx, topic, bus.NewEvent(topic, "experiment", id, payload)); err != nil {
		r.log.Warn("Failed to publish event", "topic", topic, "experiment", id, "error", err)
	}
}

func (r *Runner) testName() compare.Test {
	if r.opts.Compare.Test == "" {
		return compare.TTest
	}
	return r.opts.Compare.Test
}

func (r *Runner) correctionName() compare.Correction {
	if r.opts.Compare.Correction == "" {
		return compare.CorrectionNone
	}
	return r.opts.Compare.Correction
}

func (r *Runner) alpha() float64 {
	if r.opts.Compare.Alpha <= 0 {
		return 0.05
	}
	return r.opts.Compare.Alpha
}

func validateSystems(systems []System, baseline int) error {
	if len(systems) == 0 {
		return errors.ValidationError("at least one system is required")
	}
	if baseline < 0 || baseline >= len(systems) {
		return errors.ValidationError(fmt.Sprintf("baseline index %d out of range for %d systems", baseline, len(systems)))
	}

	seen := make(map[string]bool, len(systems))
	for _, s := range systems {
		if s.Name == "" {
			return errors.ValidationError("system name is required")
		}
		if seen[s.Name] {
			return errors.ValidationError("duplicate system name: " + s.Name)
		}
		seen[s.Name] = true

		if s.Err == nil && (s.Run == nil) == (s.Ranker == nil) {
			return errors.ValidationError("system " + s.Name + " needs exactly one of a run or a ranker")
		}
	}
	return nil
}

// alignWithBaseline returns a copy of results with every system that
// cannot be paired with the baseline set to nil, plus why each was left out.
func alignWithBaseline(results []*evaluation.SystemResult, baseline int) ([]*evaluation.SystemResult, []report.Failure) {
	base := results[baseline]
	out := make([]*evaluation.SystemResult, len(results))
	var skipped []report.Failure
	for i, res := range results {
		if i == baseline || res == nil {
			out[i] = res
			continue
		}
		if err := compare.CheckAlignment(base, res); err != nil {
			skipped = append(skipped, report.Failure{System: res.System, Error: err.Error()})
			continue
		}
		out[i] = res
	}
	return out, skipped
}

func topicsFromQrels(q *qrels.Qrels) []qrels.Query {
	ids := q.QueryIDs()
	topics := make([]qrels.Query, len(ids))
	for i, id := range ids {
		topics[i] = qrels.Query{ID: id}
	}
	return topics
}
