// Package qrels holds queries and relevance judgments.
package qrels

import (
	"fmt"
	"sort"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Query is a query identifier plus its text.
type Query struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Judgment is a human-labeled relevance grade for a query-doc pair.
type Judgment struct {
	QueryID string `json:"query_id"`
	DocID   string `json:"doc_id"`
	Grade   int    `json:"grade"` // 0=not relevant, higher is more relevant
}

// DuplicatePolicy decides what happens when a (query, doc) pair is judged twice.
type DuplicatePolicy string

const (
	DuplicateFirst DuplicatePolicy = "first"
	DuplicateLast  DuplicatePolicy = "last"
	DuplicateError DuplicatePolicy = "error"
)

// ParseDuplicatePolicy validates a policy name.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(s); p {
	case DuplicateFirst, DuplicateLast, DuplicateError:
		return p, nil
	case "":
		return DuplicateLast, nil
	default:
		return "", errors.ValidationError(fmt.Sprintf("unknown duplicate policy: %s", s))
	}
}

// Qrels is an immutable set of judgments keyed by query then document.
type Qrels struct {
	grades map[string]map[string]int
}

// New builds Qrels from judgments, resolving duplicates with policy.
func New(judgments []Judgment, policy DuplicatePolicy) (*Qrels, error) {
	if policy == "" {
		policy = DuplicateLast
	}

	q := &Qrels{grades: make(map[string]map[string]int)}
	for _, j := range judgments {
		if j.QueryID == "" || j.DocID == "" {
			return nil, errors.ValidationError("judgment requires query and document ids")
		}
		if j.Grade < 0 {
			return nil, errors.ValidationError(fmt.Sprintf("negative grade %d for %s/%s", j.Grade, j.QueryID, j.DocID))
		}

		docs := q.grades[j.QueryID]
		if docs == nil {
			docs = make(map[string]int)
			q.grades[j.QueryID] = docs
		}

		if _, seen := docs[j.DocID]; seen {
			switch policy {
			case DuplicateFirst:
				continue
			case DuplicateError:
				return nil, errors.ValidationError(fmt.Sprintf("duplicate judgment for %s/%s", j.QueryID, j.DocID)).
					WithDetail("query_id", j.QueryID).
					WithDetail("doc_id", j.DocID)
			}
		}
		docs[j.DocID] = j.Grade
	}

	return q, nil
}

// Grade returns the grade of a document, 0 when unjudged.
func (q *Qrels) Grade(queryID, docID string) int {
	return q.grades[queryID][docID]
}

// Has reports whether the query has a judgment set, possibly all zeros.
func (q *Qrels) Has(queryID string) bool {
	_, ok := q.grades[queryID]
	return ok
}

// QueryIDs returns the judged query ids in ascending order.
func (q *Qrels) QueryIDs() []string {
	ids := make([]string, 0, len(q.grades))
	for id := range q.grades {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of judged queries.
func (q *Qrels) Len() int {
	return len(q.grades)
}

// NumRelevant counts the query's documents with grade >= threshold.
func (q *Qrels) NumRelevant(queryID string, threshold int) int {
	n := 0
	for _, g := range q.grades[queryID] {
		if g >= threshold {
			n++
		}
	}
	return n
}

// IdealGrades returns the query's grades that reach threshold, highest first.
func (q *Qrels) IdealGrades(queryID string, threshold int) []int {
	grades := make([]int, 0, len(q.grades[queryID]))
	for _, g := range q.grades[queryID] {
		if g >= threshold {
			grades = append(grades, g)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(grades)))
	return grades
}
