package runcache

import (
	"context"
	goerrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/run"
)

func sampleRun(tag string) *run.Run {
	return run.FromEntries(tag, []run.Entry{
		{QueryID: "q1", DocID: "d1", Score: 3.5},
		{QueryID: "q1", DocID: "d2", Score: 1.25},
		{QueryID: "q2", DocID: "d9", Score: 0.5},
	})
}

func sameRun(t *testing.T, got, want *run.Run) {
	t.Helper()
	if got.Tag != want.Tag {
		t.Errorf("Tag = %s, want %s", got.Tag, want.Tag)
	}
	if got.Len() != want.Len() {
		t.Fatalf("Len() = %d, want %d", got.Len(), want.Len())
	}
	for _, qid := range want.QueryIDs() {
		g, w := got.Ranked(qid), want.Ranked(qid)
		if len(g) != len(w) {
			t.Fatalf("query %s: %d entries, want %d", qid, len(g), len(w))
		}
		for i := range w {
			if g[i] != w[i] {
				t.Errorf("query %s entry %d = %+v, want %+v", qid, i, g[i], w[i])
			}
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"off", ModeOff, false},
		{"reuse", ModeReuse, false},
		{"overwrite", ModeOverwrite, false},
		{"", ModeOff, false},
		{"sometimes", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestValidateTag(t *testing.T) {
	valid := []string{"bm25", "BM25.v2", "rrf_k-60", "0"}
	invalid := []string{"", "../etc", "a/b", "has space", ".hidden", "-flag"}

	for _, tag := range valid {
		if err := ValidateTag(tag); err != nil {
			t.Errorf("ValidateTag(%q) = %v, want nil", tag, err)
		}
	}
	for _, tag := range invalid {
		if err := ValidateTag(tag); !errors.IsValidation(err) {
			t.Errorf("ValidateTag(%q) = %v, want validation error", tag, err)
		}
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	if _, err := c.Load(ctx, "bm25"); !errors.IsNotFound(err) {
		t.Fatalf("Load() on empty cache error = %v, want not found", err)
	}

	r := sampleRun("bm25")
	if err := c.Save(ctx, r); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	exists, err := c.Exists(ctx, "bm25")
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v; want true", exists, err)
	}

	loaded, err := c.Load(ctx, "bm25")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	sameRun(t, loaded, r)
}

func TestFileCache_RoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := filepath.Join(t.TempDir(), "runs")
			c := NewFileCache(dir, compress)

			exists, err := c.Exists(ctx, "bm25")
			if err != nil || exists {
				t.Fatalf("Exists() before save = %v, %v; want false", exists, err)
			}

			r := sampleRun("bm25")
			if err := c.Save(ctx, r); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			if _, err := os.Stat(c.Path("bm25")); err != nil {
				t.Fatalf("run file missing: %v", err)
			}

			loaded, err := c.Load(ctx, "bm25")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			sameRun(t, loaded, r)

			if err := c.Delete(ctx, "bm25"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := c.Load(ctx, "bm25"); !errors.IsNotFound(err) {
				t.Errorf("Load() after delete error = %v, want not found", err)
			}
		})
	}
}

func TestFileCache_Path(t *testing.T) {
	if got := NewFileCache("/runs", false).Path("bm25"); got != filepath.Join("/runs", "bm25.res") {
		t.Errorf("Path() = %s", got)
	}
	if got := NewFileCache("/runs", true).Path("bm25"); got != filepath.Join("/runs", "bm25.res.gz") {
		t.Errorf("Path() = %s", got)
	}
}

func TestFileCache_RejectsUnsafeTag(t *testing.T) {
	c := NewFileCache(t.TempDir(), false)
	r := sampleRun("../escape")

	if err := c.Save(context.Background(), r); !errors.IsValidation(err) {
		t.Errorf("Save() error = %v, want validation error", err)
	}
}

func TestFileCache_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache(dir, false)

	if err := os.WriteFile(c.Path("broken"), []byte("q1 Q0 d1 one 1.0 broken\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Load(context.Background(), "broken"); !errors.IsFormat(err) {
		t.Errorf("Load() error = %v, want format error", err)
	}
}

func TestGetOrCompute(t *testing.T) {
	ctx := context.Background()

	calls := 0
	compute := func(ctx context.Context) (*run.Run, error) {
		calls++
		return sampleRun("ignored"), nil
	}

	t.Run("off never touches the cache", func(t *testing.T) {
		calls = 0
		c := NewMemoryCache()

		r, cached, err := GetOrCompute(ctx, c, ModeOff, "bm25", compute)
		if err != nil || cached || r == nil {
			t.Fatalf("GetOrCompute() = %v, %v, %v", r, cached, err)
		}
		if exists, _ := c.Exists(ctx, "bm25"); exists {
			t.Error("off mode should not persist")
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("reuse computes once", func(t *testing.T) {
		calls = 0
		c := NewFileCache(t.TempDir(), false)

		first, cached, err := GetOrCompute(ctx, c, ModeReuse, "bm25", compute)
		if err != nil || cached {
			t.Fatalf("first GetOrCompute() cached = %v, err = %v", cached, err)
		}
		if first.Tag != "bm25" {
			t.Errorf("Tag = %s, want bm25", first.Tag)
		}

		second, cached, err := GetOrCompute(ctx, c, ModeReuse, "bm25", compute)
		if err != nil || !cached {
			t.Fatalf("second GetOrCompute() cached = %v, err = %v", cached, err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
		sameRun(t, second, first)
	})

	t.Run("overwrite always computes", func(t *testing.T) {
		calls = 0
		c := NewMemoryCache()

		for i := 0; i < 2; i++ {
			_, cached, err := GetOrCompute(ctx, c, ModeOverwrite, "bm25", compute)
			if err != nil || cached {
				t.Fatalf("GetOrCompute() cached = %v, err = %v", cached, err)
			}
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("compute error is returned", func(t *testing.T) {
		boom := goerrors.New("ranker down")
		_, _, err := GetOrCompute(ctx, NewMemoryCache(), ModeReuse, "bm25", func(context.Context) (*run.Run, error) {
			return nil, boom
		})
		if !goerrors.Is(err, boom) {
			t.Errorf("error = %v, want %v", err, boom)
		}
	})

	t.Run("save failure is reported", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "blocker")
		if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}

		_, _, err := GetOrCompute(ctx, NewFileCache(filepath.Join(blocker, "runs"), false), ModeOverwrite, "bm25", compute)
		if !errors.IsIO(err) {
			t.Errorf("error = %v, want io error", err)
		}
	})
}

func TestNew(t *testing.T) {
	dir := t.TempDir()

	c, err := New(config.CacheConfig{Type: "file", Dir: dir, Compress: true})
	if err != nil {
		t.Fatalf("New(file) error = %v", err)
	}
	fc, ok := c.(*FileCache)
	if !ok {
		t.Fatalf("New(file) = %T, want *FileCache", c)
	}
	if fc.Path("x") != filepath.Join(dir, "x.res.gz") {
		t.Errorf("Path() = %s", fc.Path("x"))
	}

	if c, err := New(config.CacheConfig{Type: "memory"}); err != nil {
		t.Errorf("New(memory) error = %v", err)
	} else if _, ok := c.(*MemoryCache); !ok {
		t.Errorf("New(memory) = %T", c)
	}

	if _, err := New(config.CacheConfig{Type: "s3"}); !errors.IsValidation(err) {
		t.Errorf("New(s3) error = %v, want validation error", err)
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	if err := c.Save(ctx, sampleRun("bm25")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := c.Delete(ctx, "bm25"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if exists, _ := c.Exists(ctx, "bm25"); exists {
		t.Error("run still stored after Delete()")
	}
	if err := c.Delete(ctx, "absent"); err != nil {
		t.Errorf("Delete(absent) error = %v, want nil", err)
	}
}
