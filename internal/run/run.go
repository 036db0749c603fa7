// Package run holds ranked system output and its TREC run file codec.
package run

import (
	"math"
	"sort"
)

// Entry is one retrieved document for a query.
type Entry struct {
	QueryID string  `json:"query_id"`
	DocID   string  `json:"doc_id"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"` // 1-based, assigned by Rank
}

// Run is the ranked output of one system, grouped by query.
type Run struct {
	Tag     string             `json:"tag"`
	Entries map[string][]Entry `json:"entries"`
}

// New creates an empty run.
func New(tag string) *Run {
	return &Run{
		Tag:     tag,
		Entries: make(map[string][]Entry),
	}
}

// FromEntries groups entries by query and ranks them.
func FromEntries(tag string, entries []Entry) *Run {
	r := New(tag)
	for _, e := range entries {
		r.Add(e.QueryID, e.DocID, e.Score)
	}
	r.Rank()
	return r
}

// Add appends an unranked entry. Call Rank once all entries are in.
func (r *Run) Add(queryID, docID string, score float64) {
	r.Entries[queryID] = append(r.Entries[queryID], Entry{
		QueryID: queryID,
		DocID:   docID,
		Score:   score,
	})
}

// Rank orders every query's entries and assigns 1-based ranks.
func (r *Run) Rank() {
	for qid, entries := range r.Entries {
		r.Entries[qid] = SortEntries(entries)
	}
}

// SortEntries orders by score descending, then doc id ascending, drops
// repeated doc ids (keeping the best placed) and assigns ranks.
// NaN scores sort last.
func SortEntries(entries []Entry) []Entry {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)

	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sortScore(sorted[i].Score), sortScore(sorted[j].Score)
		if si != sj {
			return si > sj
		}
		return sorted[i].DocID < sorted[j].DocID
	})

	seen := make(map[string]struct{}, len(sorted))
	out := sorted[:0]
	for _, e := range sorted {
		if _, dup := seen[e.DocID]; dup {
			continue
		}
		seen[e.DocID] = struct{}{}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out
}

func sortScore(s float64) float64 {
	if math.IsNaN(s) {
		return math.Inf(-1)
	}
	return s
}

// Ranked returns the ranked entries for a query.
func (r *Run) Ranked(queryID string) []Entry {
	return r.Entries[queryID]
}

// Has reports whether the run retrieved anything for the query.
func (r *Run) Has(queryID string) bool {
	return len(r.Entries[queryID]) > 0
}

// QueryIDs returns the run's query ids in ascending order.
func (r *Run) QueryIDs() []string {
	ids := make([]string, 0, len(r.Entries))
	for id := range r.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the total number of entries.
func (r *Run) Len() int {
	n := 0
	for _, entries := range r.Entries {
		n += len(entries)
	}
	return n
}

// Head returns a run holding at most depth entries per query, leaving r
// untouched. A depth of 0 or less returns r itself.
func (r *Run) Head(depth int) *Run {
	if depth <= 0 {
		return r
	}
	out := &Run{Tag: r.Tag, Entries: make(map[string][]Entry, len(r.Entries))}
	for qid, entries := range r.Entries {
		if len(entries) > depth {
			entries = entries[:depth]
		}
		out.Entries[qid] = entries
	}
	return out
}

// Truncate keeps at most depth entries per query.
func (r *Run) Truncate(depth int) {
	if depth <= 0 {
		return
	}
	for qid, entries := range r.Entries {
		if len(entries) > depth {
			r.Entries[qid] = entries[:depth]
		}
	}
}
