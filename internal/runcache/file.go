package runcache

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/run"
)

// FileCache stores runs as TREC run files in a directory.
type FileCache struct {
	basePath string
	compress bool
	mu       sync.RWMutex
}

// NewFileCache creates a file cache rooted at basePath. With compress
// set, runs are written as "<tag>.res.gz".
func NewFileCache(basePath string, compress bool) *FileCache {
	return &FileCache{
		basePath: basePath,
		compress: compress,
	}
}

// Path returns the file a run with tag is stored in.
func (f *FileCache) Path(tag string) string {
	name := tag + ".res"
	if f.compress {
		name += ".gz"
	}
	return filepath.Join(f.basePath, name)
}

func (f *FileCache) Load(ctx context.Context, tag string) (*run.Run, error) {
	if err := ValidateTag(tag); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	r, err := run.ReadFile(f.Path(tag))
	if err != nil {
		return nil, err
	}
	r.Tag = tag
	return r, nil
}

func (f *FileCache) Save(ctx context.Context, r *run.Run) error {
	if err := ValidateTag(r.Tag); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return run.WriteFile(f.Path(r.Tag), r)
}

func (f *FileCache) Exists(ctx context.Context, tag string) (bool, error) {
	if err := ValidateTag(tag); err != nil {
		return false, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	_, err := os.Stat(f.Path(tag))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.IOError("checking run file", err)
}

// Delete removes a stored run. Missing runs are not an error.
func (f *FileCache) Delete(ctx context.Context, tag string) error {
	if err := ValidateTag(tag); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.Path(tag)); err != nil && !os.IsNotExist(err) {
		return errors.IOError("deleting run file", err)
	}
	return nil
}

func (f *FileCache) Close() error {
	return nil
}
