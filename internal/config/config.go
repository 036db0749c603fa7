// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"RICE_EVAL_HOST" yaml:"host"`
	Port int    `envconfig:"RICE_EVAL_PORT" yaml:"port"`

	// Evaluation configuration
	Eval EvalConfig `yaml:"eval"`

	// Run cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`
}

// EvalConfig holds metric engine and comparator settings.
type EvalConfig struct {
	Metrics            []string `envconfig:"RICE_EVAL_METRICS" yaml:"metrics"`
	RelevanceThreshold int      `envconfig:"RICE_EVAL_RELEVANCE_THRESHOLD" yaml:"relevance_threshold"`
	DuplicatePolicy    string   `envconfig:"RICE_EVAL_DUPLICATE_POLICY" yaml:"duplicate_policy"`
	MissingPolicy      string   `envconfig:"RICE_EVAL_MISSING_POLICY" yaml:"missing_policy"`
	Baseline           int      `envconfig:"RICE_EVAL_BASELINE" yaml:"baseline"`
	Test               string   `envconfig:"RICE_EVAL_TEST" yaml:"test"`
	Correction         string   `envconfig:"RICE_EVAL_CORRECTION" yaml:"correction"`
	Alpha              float64  `envconfig:"RICE_EVAL_ALPHA" yaml:"alpha"`
	Permutations       int      `envconfig:"RICE_EVAL_PERMUTATIONS" yaml:"permutations"`
	Seed               uint64   `envconfig:"RICE_EVAL_SEED" yaml:"seed"`
	PerQuery           bool     `envconfig:"RICE_EVAL_PER_QUERY" yaml:"per_query"`
	Workers            int      `envconfig:"RICE_EVAL_WORKERS" yaml:"workers"`
	Depth              int      `envconfig:"RICE_EVAL_DEPTH" yaml:"depth"` // ranker results kept per query
}

// CacheConfig holds run cache settings.
type CacheConfig struct {
	Mode     string `envconfig:"RICE_EVAL_CACHE_MODE" yaml:"mode"`
	Type     string `envconfig:"RICE_EVAL_CACHE_TYPE" yaml:"type"`
	Dir      string `envconfig:"RICE_EVAL_CACHE_DIR" yaml:"dir"`
	Compress bool   `envconfig:"RICE_EVAL_CACHE_COMPRESS" yaml:"compress"`
	RedisURL string `envconfig:"RICE_EVAL_REDIS_URL" yaml:"redis_url"`
	TTL      int    `envconfig:"RICE_EVAL_CACHE_TTL" yaml:"ttl"` // seconds, 0 = no expiry
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"RICE_EVAL_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"RICE_EVAL_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"RICE_EVAL_KAFKA_GROUP" yaml:"kafka_group"`
	Journal      string `envconfig:"RICE_EVAL_BUS_JOURNAL" yaml:"journal"` // JSONL event log path, empty = off
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"RICE_EVAL_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RICE_EVAL_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit int `envconfig:"RICE_EVAL_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// Default returns a configuration populated with defaults.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8090

	cfg.Eval = EvalConfig{
		Metrics:            []string{"nDCG@10", "RR@10", "AP"},
		RelevanceThreshold: 1,
		DuplicatePolicy:    "last",
		MissingPolicy:      "zero",
		Baseline:           0,
		Test:               "ttest",
		Correction:         "none",
		Alpha:              0.05,
		Permutations:       10000,
		Seed:               42,
		Workers:            4,
		Depth:              1000,
	}

	cfg.Cache = CacheConfig{
		Mode:     "off",
		Type:     "file",
		Dir:      "./runs",
		RedisURL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// Eval validation
	if len(c.Eval.Metrics) == 0 {
		errs = append(errs, "at least one metric is required")
	}

	if c.Eval.RelevanceThreshold < 1 {
		errs = append(errs, "relevance_threshold must be at least 1")
	}

	validDuplicate := map[string]bool{"first": true, "last": true, "error": true}
	if !validDuplicate[c.Eval.DuplicatePolicy] {
		errs = append(errs, fmt.Sprintf("invalid duplicate policy: %s (must be first, last, or error)", c.Eval.DuplicatePolicy))
	}

	validMissing := map[string]bool{"zero": true, "skip": true}
	if !validMissing[c.Eval.MissingPolicy] {
		errs = append(errs, fmt.Sprintf("invalid missing policy: %s (must be zero or skip)", c.Eval.MissingPolicy))
	}

	if c.Eval.Baseline < 0 {
		errs = append(errs, "baseline must not be negative")
	}

	validTests := map[string]bool{"ttest": true, "wilcoxon": true, "permutation": true}
	if !validTests[c.Eval.Test] {
		errs = append(errs, fmt.Sprintf("invalid test: %s (must be ttest, wilcoxon, or permutation)", c.Eval.Test))
	}

	if c.Eval.Alpha <= 0 || c.Eval.Alpha >= 1 {
		errs = append(errs, "alpha must be between 0 and 1")
	}

	if c.Eval.Permutations < 1 {
		errs = append(errs, "permutations must be positive")
	}

	if c.Eval.Workers < 1 {
		errs = append(errs, "workers must be positive")
	}

	if c.Eval.Depth < 1 {
		errs = append(errs, "depth must be positive")
	}

	// Cache validation
	validModes := map[string]bool{"off": true, "reuse": true, "overwrite": true}
	if !validModes[c.Cache.Mode] {
		errs = append(errs, fmt.Sprintf("invalid cache mode: %s (must be off, reuse, or overwrite)", c.Cache.Mode))
	}

	validCacheTypes := map[string]bool{"file": true, "redis": true, "memory": true}
	if !validCacheTypes[c.Cache.Type] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be file, redis, or memory)", c.Cache.Type))
	}

	if c.Cache.Type == "file" && c.Cache.Mode != "off" && c.Cache.Dir == "" {
		errs = append(errs, "cache dir is required for file cache")
	}

	if c.Cache.TTL < 0 {
		errs = append(errs, "cache ttl must not be negative")
	}

	// Bus validation
	validBusTypes := map[string]bool{"none": true, "memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be none, memory, or kafka)", c.Bus.Type))
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Security.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
