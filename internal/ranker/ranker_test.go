package ranker

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ricesearch/rice-eval/internal/qrels"
	"github.com/ricesearch/rice-eval/internal/run"
)

func TestStatic_Rank(t *testing.T) {
	r := run.FromEntries("bm25", []run.Entry{
		{QueryID: "q1", DocID: "d2", Score: 0.5},
		{QueryID: "q1", DocID: "d1", Score: 0.9},
	})

	hits, err := NewStatic(r).Rank(context.Background(), qrels.Query{ID: "q1"})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(hits) != 2 || hits[0].DocID != "d1" || hits[1].DocID != "d2" {
		t.Errorf("hits = %+v, want d1 then d2", hits)
	}

	hits, err = NewStatic(r).Rank(context.Background(), qrels.Query{ID: "q9"})
	if err != nil || len(hits) != 0 {
		t.Errorf("unknown query: hits = %v, err = %v", hits, err)
	}
}

func TestBuildRun(t *testing.T) {
	calls := 0
	rk := Func(func(ctx context.Context, q qrels.Query) ([]Hit, error) {
		calls++
		return []Hit{
			{DocID: "c", Score: 1},
			{DocID: "a", Score: 3},
			{DocID: "b", Score: 2},
		}, nil
	})

	queries := []qrels.Query{{ID: "q1", Text: "one"}, {ID: "q2", Text: "two"}}
	r, err := BuildRun(context.Background(), rk, "toy", queries, 2)
	if err != nil {
		t.Fatalf("BuildRun() error = %v", err)
	}

	if calls != 2 {
		t.Errorf("ranker called %d times, want 2", calls)
	}
	if r.Tag != "toy" {
		t.Errorf("Tag = %s, want toy", r.Tag)
	}
	got := r.Ranked("q2")
	if len(got) != 2 || got[0].DocID != "a" || got[0].Rank != 1 || got[1].DocID != "b" {
		t.Errorf("q2 = %+v, want a, b", got)
	}
}

func TestBuildRun_RankerError(t *testing.T) {
	boom := errors.New("index offline")
	rk := Func(func(ctx context.Context, q qrels.Query) ([]Hit, error) {
		return nil, boom
	})

	_, err := BuildRun(context.Background(), rk, "toy", []qrels.Query{{ID: "q1"}}, 0)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
}

func TestFuse_EqualWeights(t *testing.T) {
	sparse := []Hit{
		{DocID: "doc1", Score: 10.0},
		{DocID: "doc2", Score: 8.0},
		{DocID: "doc3", Score: 6.0},
	}
	dense := []Hit{
		{DocID: "doc2", Score: 0.95},
		{DocID: "doc1", Score: 0.90},
		{DocID: "doc4", Score: 0.85},
	}

	results := Fuse([][]Hit{sparse, dense}, FusionConfig{K: 60, Weights: []float64{0.5, 0.5}})

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	// doc1: 0.5/61 + 0.5/62, doc2 the same; tie broken by doc id
	if results[0].DocID != "doc1" || results[1].DocID != "doc2" {
		t.Errorf("top two = %s, %s, want doc1, doc2", results[0].DocID, results[1].DocID)
	}

	want := 0.5/61 + 0.5/62
	if math.Abs(results[0].Score-want) > 1e-12 {
		t.Errorf("doc1 score = %v, want %v", results[0].Score, want)
	}

	// doc3 (sparse rank 3) and doc4 (dense rank 3) tie as well
	if results[2].DocID != "doc3" || results[3].DocID != "doc4" {
		t.Errorf("tail = %s, %s, want doc3, doc4", results[2].DocID, results[3].DocID)
	}
}

func TestFuse_Weighted(t *testing.T) {
	a := []Hit{{DocID: "x", Score: 1}, {DocID: "y", Score: 0}}
	b := []Hit{{DocID: "y", Score: 1}, {DocID: "x", Score: 0}}

	results := Fuse([][]Hit{a, b}, FusionConfig{Weights: []float64{0.9, 0.1}})
	if results[0].DocID != "x" {
		t.Errorf("expected the heavier list to win, got %s first", results[0].DocID)
	}
}

func TestFusion_Rank(t *testing.T) {
	first := NewStatic(run.FromEntries("a", []run.Entry{
		{QueryID: "q1", DocID: "d1", Score: 2},
		{QueryID: "q1", DocID: "d2", Score: 1},
	}))
	second := NewStatic(run.FromEntries("b", []run.Entry{
		{QueryID: "q1", DocID: "d3", Score: 2},
		{QueryID: "q1", DocID: "d1", Score: 1},
	}))

	f, err := NewFusion(FusionConfig{}, first, second)
	if err != nil {
		t.Fatalf("NewFusion() error = %v", err)
	}

	hits, err := f.Rank(context.Background(), qrels.Query{ID: "q1"})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(hits) != 3 || hits[0].DocID != "d1" {
		t.Errorf("hits = %+v, want d1 first", hits)
	}
}

func TestFusion_PropagatesErrors(t *testing.T) {
	boom := errors.New("remote ranker failed")
	failing := Func(func(ctx context.Context, q qrels.Query) ([]Hit, error) { return nil, boom })
	ok := Func(func(ctx context.Context, q qrels.Query) ([]Hit, error) { return []Hit{{DocID: "d"}}, nil })

	f, err := NewFusion(FusionConfig{}, ok, failing)
	if err != nil {
		t.Fatalf("NewFusion() error = %v", err)
	}
	if _, err := f.Rank(context.Background(), qrels.Query{ID: "q1"}); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestNewFusion_Validation(t *testing.T) {
	rk := NewStatic(run.New("a"))

	if _, err := NewFusion(FusionConfig{}); err == nil {
		t.Error("expected error with no rankers")
	}
	if _, err := NewFusion(FusionConfig{Weights: []float64{1}}, rk, rk); err == nil {
		t.Error("expected error for weight count mismatch")
	}
	if _, err := NewFusion(FusionConfig{Weights: []float64{-1}}, rk); err == nil {
		t.Error("expected error for negative weight")
	}
}
