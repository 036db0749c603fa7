package evaluation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Canonical metric names.
const (
	MetricRR        = "RR"
	MetricNDCG      = "nDCG"
	MetricAP        = "AP"
	MetricPrecision = "P"
	MetricRecall    = "R"
)

var aliases = map[string]string{
	"rr":         MetricRR,
	"mrr":        MetricRR,
	"recip_rank": MetricRR,
	"ndcg":       MetricNDCG,
	"ap":         MetricAP,
	"map":        MetricAP,
	"p":          MetricPrecision,
	"precision":  MetricPrecision,
	"r":          MetricRecall,
	"recall":     MetricRecall,
}

// Spec names a metric with its cutoff and relevance threshold.
// Cutoff 0 means the whole ranking; Threshold 0 means the engine default.
type Spec struct {
	Name      string
	Cutoff    int
	Threshold int
}

var specPattern = regexp.MustCompile(`^([A-Za-z_]+)(?:\(rel=(\d+)\))?(?:@(\d+))?$`)

// ParseSpec parses "Name[(rel=N)][@K]", e.g. "nDCG@10" or "RR(rel=2)@10".
func ParseSpec(s string) (Spec, error) {
	m := specPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Spec{}, errors.UnknownMetricError(s)
	}

	name, ok := aliases[strings.ToLower(m[1])]
	if !ok {
		return Spec{}, errors.UnknownMetricError(m[1])
	}

	spec := Spec{Name: name}
	if m[2] != "" {
		rel, err := strconv.Atoi(m[2])
		if err != nil || rel < 1 {
			return Spec{}, errors.ValidationError(fmt.Sprintf("invalid relevance threshold in %q", s))
		}
		spec.Threshold = rel
	}
	if m[3] != "" {
		k, err := strconv.Atoi(m[3])
		if err != nil || k < 1 {
			return Spec{}, errors.ValidationError(fmt.Sprintf("invalid cutoff in %q", s))
		}
		spec.Cutoff = k
	}

	return spec, nil
}

// ParseSpecs parses each string with ParseSpec.
func ParseSpecs(ss []string) ([]Spec, error) {
	specs := make([]Spec, 0, len(ss))
	for _, s := range ss {
		spec, err := ParseSpec(s)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// String returns the canonical form accepted by ParseSpec.
func (s Spec) String() string {
	var sb strings.Builder
	sb.WriteString(s.Name)
	if s.Threshold > 0 {
		fmt.Fprintf(&sb, "(rel=%d)", s.Threshold)
	}
	if s.Cutoff > 0 {
		fmt.Fprintf(&sb, "@%d", s.Cutoff)
	}
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler.
func (s Spec) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Spec) UnmarshalText(b []byte) error {
	spec, err := ParseSpec(string(b))
	if err != nil {
		return err
	}
	*s = spec
	return nil
}

// queryData is what a metric sees for one query.
type queryData struct {
	grades      []int // grade of each retrieved doc in rank order
	ideal       []int // judged grades reaching the threshold, highest first
	numRelevant int
}

func (s Spec) compute(d queryData, threshold int) float64 {
	switch s.Name {
	case MetricRR:
		return ReciprocalRank(d.grades, s.Cutoff, threshold)
	case MetricNDCG:
		return NDCG(d.grades, d.ideal, s.Cutoff, threshold)
	case MetricAP:
		return AveragePrecision(d.grades, s.Cutoff, threshold, d.numRelevant)
	case MetricPrecision:
		return Precision(d.grades, s.Cutoff, threshold)
	case MetricRecall:
		return Recall(d.grades, s.Cutoff, threshold, d.numRelevant)
	default:
		return 0
	}
}
