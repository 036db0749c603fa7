// Package evaluation computes ranking-quality metrics for runs against qrels.
package evaluation

import (
	"fmt"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// MissingPolicy decides how judged queries absent from a run are scored.
type MissingPolicy string

const (
	// MissingZero scores a query the system retrieved nothing for as 0.
	MissingZero MissingPolicy = "zero"
	// MissingSkip aggregates only over queries present in run and qrels.
	MissingSkip MissingPolicy = "skip"
)

// ParseMissingPolicy validates a policy name.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch p := MissingPolicy(s); p {
	case MissingZero, MissingSkip:
		return p, nil
	case "":
		return MissingZero, nil
	default:
		return "", errors.ValidationError(fmt.Sprintf("unknown missing policy: %s", s))
	}
}

// SystemResult holds one system's metric values.
type SystemResult struct {
	System   string                        `json:"system"`
	Metrics  []string                      `json:"metrics"` // canonical spec strings, in spec order
	Queries  []string                      `json:"queries"` // evaluated query ids, ascending
	Means    map[string]float64            `json:"means"`
	PerQuery map[string]map[string]float64 `json:"per_query"` // metric -> query id -> value
}

// Mean returns the aggregated value of a metric.
func (r *SystemResult) Mean(metric string) float64 {
	return r.Means[metric]
}

// Values returns a metric's per-query values in the order of queries.
// ok is false when any query was not evaluated for this system.
func (r *SystemResult) Values(metric string, queries []string) (values []float64, ok bool) {
	perQuery, found := r.PerQuery[metric]
	if !found {
		return nil, false
	}

	values = make([]float64, len(queries))
	for i, qid := range queries {
		v, found := perQuery[qid]
		if !found {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}
