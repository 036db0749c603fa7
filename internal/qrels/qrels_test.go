package qrels

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

func TestNew_DuplicatePolicy(t *testing.T) {
	judgments := []Judgment{
		{QueryID: "q1", DocID: "d1", Grade: 1},
		{QueryID: "q1", DocID: "d1", Grade: 3},
	}

	tests := []struct {
		policy  DuplicatePolicy
		want    int
		wantErr bool
	}{
		{DuplicateFirst, 1, false},
		{DuplicateLast, 3, false},
		{"", 3, false},
		{DuplicateError, 0, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			q, err := New(judgments, tt.policy)
			if tt.wantErr {
				if !errors.IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := q.Grade("q1", "d1"); got != tt.want {
				t.Errorf("Grade() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNew_RejectsNegativeGrade(t *testing.T) {
	_, err := New([]Judgment{{QueryID: "q1", DocID: "d1", Grade: -1}}, DuplicateLast)
	if !errors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestQrels_Accessors(t *testing.T) {
	q, err := New([]Judgment{
		{QueryID: "q2", DocID: "a", Grade: 0},
		{QueryID: "q1", DocID: "a", Grade: 2},
		{QueryID: "q1", DocID: "b", Grade: 1},
		{QueryID: "q1", DocID: "c", Grade: 3},
		{QueryID: "q1", DocID: "d", Grade: 0},
	}, DuplicateLast)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := q.QueryIDs(); !reflect.DeepEqual(got, []string{"q1", "q2"}) {
		t.Errorf("QueryIDs() = %v", got)
	}

	if !q.Has("q2") {
		t.Error("q2 has an all-zero judgment set and should still be present")
	}
	if q.Has("q3") {
		t.Error("q3 was never judged")
	}

	if got := q.Grade("q1", "unjudged"); got != 0 {
		t.Errorf("Grade(unjudged) = %d, want 0", got)
	}

	if got := q.NumRelevant("q1", 1); got != 3 {
		t.Errorf("NumRelevant(q1, 1) = %d, want 3", got)
	}
	if got := q.NumRelevant("q1", 2); got != 2 {
		t.Errorf("NumRelevant(q1, 2) = %d, want 2", got)
	}
	if got := q.NumRelevant("q2", 1); got != 0 {
		t.Errorf("NumRelevant(q2, 1) = %d, want 0", got)
	}

	if got := q.IdealGrades("q1", 1); !reflect.DeepEqual(got, []int{3, 2, 1}) {
		t.Errorf("IdealGrades(q1) = %v, want [3 2 1]", got)
	}
}

func TestParseDuplicatePolicy(t *testing.T) {
	if p, err := ParseDuplicatePolicy("first"); err != nil || p != DuplicateFirst {
		t.Errorf("ParseDuplicatePolicy(first) = %v, %v", p, err)
	}
	if _, err := ParseDuplicatePolicy("max"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestReadQrels(t *testing.T) {
	input := `q1 0 d1 1
q1 0 d2 0

q2 0 d9 2
`
	q, err := ReadQrels(strings.NewReader(input), "test.qrels", DuplicateLast)
	if err != nil {
		t.Fatalf("ReadQrels() error = %v", err)
	}

	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
	if q.Grade("q2", "d9") != 2 {
		t.Errorf("Grade(q2, d9) = %d, want 2", q.Grade("q2", "d9"))
	}
}

func TestReadQrels_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too few fields", "q1 0 d1\n"},
		{"too many fields", "q1 0 d1 1 extra\n"},
		{"non numeric grade", "q1 0 d1 high\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadQrels(strings.NewReader(tt.input), "bad.qrels", DuplicateLast)
			if !errors.IsFormat(err) {
				t.Fatalf("expected format error, got %v", err)
			}
		})
	}
}

func TestReadQrelsFile_Missing(t *testing.T) {
	_, err := ReadQrelsFile(filepath.Join(t.TempDir(), "absent.qrels"), DuplicateLast)
	if !errors.IsIO(err) {
		t.Fatalf("expected IO error, got %v", err)
	}
}

func TestReadTopics(t *testing.T) {
	input := "q1\tchemical reactions\nq2\tcancer treatment options\n"

	queries, err := ReadTopics(strings.NewReader(input), "topics.tsv")
	if err != nil {
		t.Fatalf("ReadTopics() error = %v", err)
	}

	want := []Query{
		{ID: "q1", Text: "chemical reactions"},
		{ID: "q2", Text: "cancer treatment options"},
	}
	if !reflect.DeepEqual(queries, want) {
		t.Errorf("ReadTopics() = %v, want %v", queries, want)
	}

	if _, err := ReadTopics(strings.NewReader("no tab here\n"), "topics.tsv"); !errors.IsFormat(err) {
		t.Errorf("expected format error, got %v", err)
	}
}
