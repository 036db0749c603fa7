// Package runcache persists system runs so they are not recomputed.
package runcache

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/run"
)

// Cache is the interface for run persistence, keyed by run tag.
type Cache interface {
	// Load loads a run by tag. Missing runs fail with NOT_FOUND.
	Load(ctx context.Context, tag string) (*run.Run, error)

	// Save stores a run under its tag, replacing any previous one.
	Save(ctx context.Context, r *run.Run) error

	// Exists checks if a run is stored.
	Exists(ctx context.Context, tag string) (bool, error)

	// Delete removes a stored run. Missing runs are not an error.
	Delete(ctx context.Context, tag string) error

	// Close releases backend resources.
	Close() error
}

// Mode controls how GetOrCompute uses the cache.
type Mode string

const (
	// ModeOff always computes and never persists.
	ModeOff Mode = "off"
	// ModeReuse loads a stored run when present, else computes and stores it.
	ModeReuse Mode = "reuse"
	// ModeOverwrite always computes and replaces the stored run.
	ModeOverwrite Mode = "overwrite"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOff, ModeReuse, ModeOverwrite:
		return m, nil
	case "":
		return ModeOff, nil
	default:
		return "", errors.ValidationError(fmt.Sprintf("unknown cache mode: %s", s))
	}
}

var tagPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateTag checks that a tag is usable as a file name and run tag.
func ValidateTag(tag string) error {
	if !tagPattern.MatchString(tag) {
		return errors.ValidationError(fmt.Sprintf("invalid run tag %q: use letters, digits, '.', '_' or '-'", tag))
	}
	return nil
}

// GetOrCompute returns the run for tag, from the cache or from compute
// depending on mode. cached reports whether the run came from the cache.
func GetOrCompute(ctx context.Context, c Cache, mode Mode, tag string, compute func(ctx context.Context) (*run.Run, error)) (r *run.Run, cached bool, err error) {
	if c == nil || mode == ModeOff || mode == "" {
		r, err = compute(ctx)
		return r, false, err
	}

	if err := ValidateTag(tag); err != nil {
		return nil, false, err
	}

	if mode == ModeReuse {
		exists, err := c.Exists(ctx, tag)
		if err != nil {
			return nil, false, err
		}
		if exists {
			r, err := c.Load(ctx, tag)
			if err != nil {
				return nil, false, err
			}
			return r, true, nil
		}
	}

	r, err = compute(ctx)
	if err != nil {
		return nil, false, err
	}
	r.Tag = tag

	if err := c.Save(ctx, r); err != nil {
		return nil, false, err
	}
	return r, false, nil
}

// MemoryCache stores runs in memory (for testing and the HTTP server).
type MemoryCache struct {
	runs map[string]*run.Run
	mu   sync.RWMutex
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		runs: make(map[string]*run.Run),
	}
}

func (m *MemoryCache) Load(ctx context.Context, tag string) (*run.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[tag]
	if !ok {
		return nil, errors.NotFoundError("run " + tag)
	}
	return r, nil
}

func (m *MemoryCache) Save(ctx context.Context, r *run.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[r.Tag] = r
	return nil
}

func (m *MemoryCache) Exists(ctx context.Context, tag string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.runs[tag]
	return ok, nil
}

func (m *MemoryCache) Delete(ctx context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.runs, tag)
	return nil
}

func (m *MemoryCache) Close() error {
	return nil
}
