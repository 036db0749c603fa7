// Package compare runs paired significance tests between systems.
package compare

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Test names a paired two-sided significance test.
type Test string

const (
	TTest       Test = "ttest"
	Wilcoxon    Test = "wilcoxon"
	Permutation Test = "permutation"
)

// DefaultPermutations is the number of rounds for the permutation test.
const DefaultPermutations = 10000

// ParseTest validates a test name.
func ParseTest(s string) (Test, error) {
	switch t := Test(s); t {
	case TTest, Wilcoxon, Permutation:
		return t, nil
	case "":
		return TTest, nil
	default:
		return "", errors.ValidationError("unknown significance test: " + s)
	}
}

func differences(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, errors.New(errors.CodeAlignment, "paired samples differ in length")
	}
	d := make([]float64, len(a))
	for i := range a {
		d[i] = b[i] - a[i]
	}
	return d, nil
}

// PairedTTest returns the two-sided p-value of a paired Student t-test.
func PairedTTest(a, b []float64) (float64, error) {
	d, err := differences(a, b)
	if err != nil {
		return 0, err
	}
	if len(d) < 2 {
		return 1, nil
	}

	mean := stat.Mean(d, nil)
	sd := math.Sqrt(stat.Variance(d, nil))
	if sd == 0 {
		if mean == 0 {
			return 1, nil
		}
		return 0, nil
	}

	t := mean / (sd / math.Sqrt(float64(len(d))))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(len(d) - 1)}
	return math.Min(1, 2*dist.CDF(-math.Abs(t))), nil
}

// WilcoxonSignedRank returns the two-sided p-value of the Wilcoxon
// signed-rank test using the normal approximation with tie and
// continuity correction. Zero differences are dropped.
func WilcoxonSignedRank(a, b []float64) (float64, error) {
	d, err := differences(a, b)
	if err != nil {
		return 0, err
	}

	nonzero := d[:0]
	for _, v := range d {
		if v != 0 {
			nonzero = append(nonzero, v)
		}
	}
	n := len(nonzero)
	if n == 0 {
		return 1, nil
	}

	sort.Slice(nonzero, func(i, j int) bool {
		return math.Abs(nonzero[i]) < math.Abs(nonzero[j])
	})

	var wPlus, tieTerm float64
	for i := 0; i < n; {
		j := i
		for j < n && math.Abs(nonzero[j]) == math.Abs(nonzero[i]) {
			j++
		}
		// ranks i+1..j share their average
		rank := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			if nonzero[k] > 0 {
				wPlus += rank
			}
		}
		t := float64(j - i)
		tieTerm += t*t*t - t
		i = j
	}

	nf := float64(n)
	mean := nf * (nf + 1) / 4
	variance := nf*(nf+1)*(2*nf+1)/24 - tieTerm/48
	if variance <= 0 {
		return 1, nil
	}

	z := math.Max(0, math.Abs(wPlus-mean)-0.5) / math.Sqrt(variance)
	return math.Min(1, 2*distuv.UnitNormal.CDF(-z)), nil
}

// PermutationTest returns the two-sided p-value of a paired
// randomization test that flips the sign of each difference.
// The same seed always yields the same p-value.
func PermutationTest(a, b []float64, rounds int, seed uint64) (float64, error) {
	d, err := differences(a, b)
	if err != nil {
		return 0, err
	}
	if len(d) == 0 {
		return 1, nil
	}
	if rounds < 1 {
		rounds = DefaultPermutations
	}

	const eps = 1e-12
	observed := math.Abs(stat.Mean(d, nil))
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	extreme := 0
	for r := 0; r < rounds; r++ {
		var sum float64
		for _, v := range d {
			if rng.IntN(2) == 0 {
				sum += v
			} else {
				sum -= v
			}
		}
		if math.Abs(sum/float64(len(d))) >= observed-eps {
			extreme++
		}
	}

	return float64(extreme+1) / float64(rounds+1), nil
}

func pvalue(test Test, a, b []float64, opts Options) (float64, error) {
	switch test {
	case TTest:
		return PairedTTest(a, b)
	case Wilcoxon:
		return WilcoxonSignedRank(a, b)
	case Permutation:
		return PermutationTest(a, b, opts.Permutations, opts.Seed)
	default:
		return 0, errors.ValidationError("unknown significance test: " + string(test))
	}
}
