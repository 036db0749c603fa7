package experiment

import (
	"github.com/ricesearch/rice-eval/internal/compare"
	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/runcache"
)

// Setup builds the metric engine and runner options described by the
// eval section and cache mode of the configuration.
func Setup(eval config.EvalConfig, cacheMode string, log *logger.Logger) (*evaluation.Engine, Options, error) {
	specs, err := evaluation.ParseSpecs(eval.Metrics)
	if err != nil {
		return nil, Options{}, err
	}
	missing, err := evaluation.ParseMissingPolicy(eval.MissingPolicy)
	if err != nil {
		return nil, Options{}, err
	}
	test, err := compare.ParseTest(eval.Test)
	if err != nil {
		return nil, Options{}, err
	}
	correction, err := compare.ParseCorrection(eval.Correction)
	if err != nil {
		return nil, Options{}, err
	}
	mode, err := runcache.ParseMode(cacheMode)
	if err != nil {
		return nil, Options{}, err
	}

	engine, err := evaluation.NewEngine(specs, evaluation.Options{
		Threshold: eval.RelevanceThreshold,
		Missing:   missing,
	}, log)
	if err != nil {
		return nil, Options{}, err
	}

	return engine, Options{
		Workers:   eval.Workers,
		Depth:     eval.Depth,
		CacheMode: mode,
		Baseline:  eval.Baseline,
		PerQuery:  eval.PerQuery,
		Compare: compare.Options{
			Test:         test,
			Correction:   correction,
			Alpha:        eval.Alpha,
			Permutations: eval.Permutations,
			Seed:         eval.Seed,
		},
	}, nil
}
