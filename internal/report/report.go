// Package report assembles evaluation results into tables.
package report

import (
	"github.com/ricesearch/rice-eval/internal/compare"
	"github.com/ricesearch/rice-eval/internal/evaluation"
)

// Failure records a system that could not be evaluated.
type Failure struct {
	System string `json:"system"`
	Error  string `json:"error"`
}

// Cell is one system's value for one metric.
type Cell struct {
	Mean        float64  `json:"mean"`
	PValue      *float64 `json:"p_value,omitempty"`
	Adjusted    *float64 `json:"adjusted_p_value,omitempty"`
	Significant bool     `json:"significant,omitempty"`
}

// SystemRow is the summary line for one system.
type SystemRow struct {
	System   string          `json:"system"`
	Baseline bool            `json:"baseline,omitempty"`
	Queries  int             `json:"queries"`
	Cells    map[string]Cell `json:"metrics"`
}

// QueryRow holds one system's values for a single query.
type QueryRow struct {
	System string             `json:"system"`
	Query  string             `json:"query"`
	Values map[string]float64 `json:"values"`
}

// Options controls what Build includes.
type Options struct {
	Baseline   string
	Test       string
	Correction string
	Alpha      float64
	PerQuery   bool
	// Skipped lists systems that were evaluated but could not be
	// compared against the baseline.
	Skipped []Failure
}

// Report is the rendered-independent outcome of an experiment.
type Report struct {
	Metrics     []string             `json:"metrics"`
	Baseline    string               `json:"baseline,omitempty"`
	Test        string               `json:"test,omitempty"`
	Correction  string               `json:"correction,omitempty"`
	Alpha       float64              `json:"alpha,omitempty"`
	Systems     []SystemRow          `json:"systems"`
	Comparisons []compare.Comparison `json:"comparisons,omitempty"`
	PerQuery    []QueryRow           `json:"per_query,omitempty"`
	Failures    []Failure            `json:"failures,omitempty"`
	Skipped     []Failure            `json:"skipped_comparisons,omitempty"`
}

// Build assembles a report. Rows follow the order of results; nil
// results (failed systems) are left out of the table and should appear
// in failures. Metric columns follow the first result's metric order.
func Build(results []*evaluation.SystemResult, comparisons []compare.Comparison, failures []Failure, opts Options) *Report {
	rep := &Report{
		Baseline:    opts.Baseline,
		Test:        opts.Test,
		Correction:  opts.Correction,
		Alpha:       opts.Alpha,
		Comparisons: comparisons,
		Failures:    failures,
		Skipped:     opts.Skipped,
	}

	type key struct{ system, metric string }
	byKey := make(map[key]compare.Comparison, len(comparisons))
	for _, c := range comparisons {
		byKey[key{c.System, c.Metric}] = c
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		if rep.Metrics == nil {
			rep.Metrics = append([]string(nil), res.Metrics...)
		}

		row := SystemRow{
			System:   res.System,
			Baseline: res.System == opts.Baseline,
			Queries:  len(res.Queries),
			Cells:    make(map[string]Cell, len(res.Metrics)),
		}
		for _, metric := range res.Metrics {
			cell := Cell{Mean: res.Mean(metric)}
			if c, ok := byKey[key{res.System, metric}]; ok {
				p, adj := c.PValue, c.Adjusted
				cell.PValue = &p
				cell.Adjusted = &adj
				cell.Significant = c.Significant
			}
			row.Cells[metric] = cell
		}
		rep.Systems = append(rep.Systems, row)

		if opts.PerQuery {
			for _, qid := range res.Queries {
				values := make(map[string]float64, len(res.Metrics))
				for _, metric := range res.Metrics {
					values[metric] = res.PerQuery[metric][qid]
				}
				rep.PerQuery = append(rep.PerQuery, QueryRow{
					System: res.System,
					Query:  qid,
					Values: values,
				})
			}
		}
	}

	return rep
}

// HasComparisons reports whether any system was tested against the baseline.
func (r *Report) HasComparisons() bool {
	return len(r.Comparisons) > 0
}
