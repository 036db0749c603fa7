package runcache

import (
	"fmt"
	"strings"
	"time"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// New creates a Cache based on the configuration.
func New(cfg config.CacheConfig) (Cache, error) {
	switch strings.ToLower(cfg.Type) {
	case "file", "":
		return NewFileCache(cfg.Dir, cfg.Compress), nil

	case "redis":
		return NewRedisCache(cfg.RedisURL, time.Duration(cfg.TTL)*time.Second)

	case "memory":
		return NewMemoryCache(), nil

	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown cache type: %s", cfg.Type))
	}
}
