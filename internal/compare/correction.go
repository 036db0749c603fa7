package compare

import (
	"math"
	"sort"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Correction names a multiple-comparisons correction.
type Correction string

const (
	CorrectionNone       Correction = "none"
	CorrectionBonferroni Correction = "bonferroni"
	CorrectionHolm       Correction = "holm"
)

// ParseCorrection validates a correction name.
func ParseCorrection(s string) (Correction, error) {
	switch c := Correction(s); c {
	case CorrectionNone, CorrectionBonferroni, CorrectionHolm:
		return c, nil
	case "":
		return CorrectionNone, nil
	default:
		return "", errors.UnknownCorrectionError(s)
	}
}

// Adjust corrects a family of raw p-values. The result has the same order.
func Adjust(pvalues []float64, c Correction) ([]float64, error) {
	adjusted := make([]float64, len(pvalues))
	m := float64(len(pvalues))

	switch c {
	case CorrectionNone, "":
		copy(adjusted, pvalues)

	case CorrectionBonferroni:
		for i, p := range pvalues {
			adjusted[i] = math.Min(1, p*m)
		}

	case CorrectionHolm:
		order := make([]int, len(pvalues))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			return pvalues[order[i]] < pvalues[order[j]]
		})

		running := 0.0
		for rank, idx := range order {
			v := math.Min(1, (m-float64(rank))*pvalues[idx])
			running = math.Max(running, v)
			adjusted[idx] = running
		}

	default:
		return nil, errors.UnknownCorrectionError(string(c))
	}

	return adjusted, nil
}
