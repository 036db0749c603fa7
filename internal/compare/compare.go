package compare

import (
	"fmt"

	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Options configures Compare.
type Options struct {
	Test         Test
	Correction   Correction
	Alpha        float64 // significance level for Comparison.Significant
	Permutations int
	Seed         uint64
}

// Comparison is the outcome of testing one system against the baseline
// on one metric.
type Comparison struct {
	Baseline     string  `json:"baseline"`
	System       string  `json:"system"`
	Metric       string  `json:"metric"`
	Test         string  `json:"test"`
	Correction   string  `json:"correction"`
	BaselineMean float64 `json:"baseline_mean"`
	SystemMean   float64 `json:"system_mean"`
	PValue       float64 `json:"p_value"`
	Adjusted     float64 `json:"adjusted_p_value"`
	Significant  bool    `json:"significant"`
}

// Compare tests every non-nil system against results[baseline] for each
// of the baseline's metrics. Nil entries are systems that failed
// upstream and are skipped. Corrections are applied per metric over the
// family of comparisons against the baseline.
func Compare(results []*evaluation.SystemResult, baseline int, opts Options) ([]Comparison, error) {
	test, err := ParseTest(string(opts.Test))
	if err != nil {
		return nil, err
	}
	correction, err := ParseCorrection(string(opts.Correction))
	if err != nil {
		return nil, err
	}
	if opts.Alpha <= 0 {
		opts.Alpha = 0.05
	}
	if opts.Permutations < 1 {
		opts.Permutations = DefaultPermutations
	}

	if baseline < 0 || baseline >= len(results) {
		return nil, errors.ValidationError(fmt.Sprintf("baseline index %d out of range for %d systems", baseline, len(results)))
	}
	base := results[baseline]
	if base == nil {
		return nil, errors.ValidationError("baseline system has no result")
	}

	var comparisons []Comparison
	for _, metric := range base.Metrics {
		baseValues, ok := base.Values(metric, base.Queries)
		if !ok {
			return nil, errors.AlignmentError(base.System, base.System, "baseline has no values for "+metric)
		}

		var family []Comparison
		for i, other := range results {
			if i == baseline || other == nil {
				continue
			}

			values, err := aligned(base, other, metric)
			if err != nil {
				return nil, err
			}

			p, err := pvalue(test, baseValues, values, opts)
			if err != nil {
				return nil, err
			}

			family = append(family, Comparison{
				Baseline:     base.System,
				System:       other.System,
				Metric:       metric,
				Test:         string(test),
				Correction:   string(correction),
				BaselineMean: base.Mean(metric),
				SystemMean:   other.Mean(metric),
				PValue:       p,
			})
		}

		raw := make([]float64, len(family))
		for i, c := range family {
			raw[i] = c.PValue
		}
		adjusted, err := Adjust(raw, correction)
		if err != nil {
			return nil, err
		}
		for i := range family {
			family[i].Adjusted = adjusted[i]
			family[i].Significant = adjusted[i] < opts.Alpha
		}

		comparisons = append(comparisons, family...)
	}

	return comparisons, nil
}

// CheckAlignment reports whether other can be paired with base on every
// metric the baseline carries.
func CheckAlignment(base, other *evaluation.SystemResult) error {
	for _, metric := range base.Metrics {
		if _, err := aligned(base, other, metric); err != nil {
			return err
		}
	}
	return nil
}

// aligned returns other's values for metric in the baseline's query
// order, failing when the two systems were evaluated on different queries.
func aligned(base, other *evaluation.SystemResult, metric string) ([]float64, error) {
	if len(other.Queries) != len(base.Queries) {
		return nil, errors.AlignmentError(base.System, other.System,
			fmt.Sprintf("query sets differ: %d vs %d queries", len(base.Queries), len(other.Queries)))
	}

	values, ok := other.Values(metric, base.Queries)
	if !ok {
		return nil, errors.AlignmentError(base.System, other.System,
			fmt.Sprintf("%s has no %s value for some baseline queries", other.System, metric))
	}
	return values, nil
}
