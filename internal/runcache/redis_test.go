package runcache

import (
	"context"
	"testing"
	"time"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache("invalid://url", 0)
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestNewRedisCache_ConnectionFailure(t *testing.T) {
	// Try to connect to non-existent Redis
	_, err := NewRedisCache("redis://localhost:9999", 0)
	if err == nil {
		t.Fatal("expected error for connection failure")
	}
}

func TestRedisCache_SaveAndLoad(t *testing.T) {
	// Skip if Redis not available
	c, err := NewRedisCache("redis://localhost:6379/15", time.Minute)
	if err != nil {
		t.Skip("Redis not available:", err)
	}
	defer c.Close()

	ctx := context.Background()
	defer c.Delete(ctx, "test_run")

	r := sampleRun("test_run")
	if err := c.Save(ctx, r); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	exists, err := c.Exists(ctx, "test_run")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v; want true", exists, err)
	}

	loaded, err := c.Load(ctx, "test_run")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	sameRun(t, loaded, r)
}

func TestRedisCache_LoadMissing(t *testing.T) {
	c, err := NewRedisCache("redis://localhost:6379/15", 0)
	if err != nil {
		t.Skip("Redis not available:", err)
	}
	defer c.Close()

	if _, err := c.Load(context.Background(), "no_such_run"); !errors.IsNotFound(err) {
		t.Errorf("Load() error = %v, want not found", err)
	}
}
