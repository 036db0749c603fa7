package evaluation

import (
	"math"
)

// depth returns how many ranks a metric with cutoff k inspects.
// k <= 0 means no cutoff.
func depth(n, k int) int {
	if k <= 0 || k > n {
		return n
	}
	return k
}

// ReciprocalRank returns 1/rank of the first relevant document within k.
func ReciprocalRank(grades []int, k, threshold int) float64 {
	for i := 0; i < depth(len(grades), k); i++ {
		if grades[i] >= threshold {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// NDCG calculates Normalized Discounted Cumulative Gain at k.
// ideal holds the query's judged grades that reach threshold, highest first.
func NDCG(grades, ideal []int, k, threshold int) float64 {
	idcg := dcg(ideal, depth(len(ideal), k), threshold)
	if idcg == 0 {
		return 0
	}
	return dcg(grades, depth(len(grades), k), threshold) / idcg
}

func dcg(grades []int, n, threshold int) float64 {
	var sum float64
	for i := 0; i < n; i++ {
		if grades[i] >= threshold {
			sum += float64(grades[i]) / math.Log2(float64(i+2))
		}
	}
	return sum
}

// AveragePrecision sums precision at each relevant rank within k and
// divides by the number of relevant judged documents.
func AveragePrecision(grades []int, k, threshold, numRelevant int) float64 {
	if numRelevant == 0 {
		return 0
	}

	relevant := 0
	sumPrecision := 0.0
	for i := 0; i < depth(len(grades), k); i++ {
		if grades[i] >= threshold {
			relevant++
			sumPrecision += float64(relevant) / float64(i+1)
		}
	}

	return sumPrecision / float64(numRelevant)
}

// Precision calculates precision at k. With a cutoff the denominator is
// k even when fewer documents were retrieved.
func Precision(grades []int, k, threshold int) float64 {
	denom := k
	if k <= 0 {
		denom = len(grades)
	}
	if denom == 0 {
		return 0
	}

	return float64(countRelevant(grades, depth(len(grades), k), threshold)) / float64(denom)
}

// Recall calculates recall at k.
func Recall(grades []int, k, threshold, numRelevant int) float64 {
	if numRelevant == 0 {
		return 0
	}
	return float64(countRelevant(grades, depth(len(grades), k), threshold)) / float64(numRelevant)
}

func countRelevant(grades []int, n, threshold int) int {
	relevant := 0
	for i := 0; i < n; i++ {
		if grades[i] >= threshold {
			relevant++
		}
	}
	return relevant
}
