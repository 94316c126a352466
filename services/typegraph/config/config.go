// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads typegraph service configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file, TYPEGRAPH_*
// environment variables. The result is validated before it is returned.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/typegraph/pkg/logging"
	"github.com/AleutianAI/typegraph/services/typegraph/cache"
	"github.com/AleutianAI/typegraph/services/typegraph/facts"
	"github.com/AleutianAI/typegraph/services/typegraph/index"
	"github.com/AleutianAI/typegraph/services/typegraph/storage/badger"
	"github.com/AleutianAI/typegraph/services/typegraph/telemetry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
		return semver.IsValid("v" + fl.Field().String())
	})
	return v
}

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Storage   StorageConfig    `yaml:"storage"`
	Cache     CacheConfig      `yaml:"cache"`
	Index     IndexConfig      `yaml:"index"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Watch     WatchConfig      `yaml:"watch"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr" validate:"required"`

	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`

	// RateLimit is the sustained request rate per second. Zero disables
	// rate limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`

	// RateBurst is the token bucket size.
	RateBurst int `yaml:"rate_burst" validate:"gte=0"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"gt=0"`
}

// StorageConfig configures the snapshot store.
type StorageConfig struct {
	// Path is the badger directory. Required unless InMemory.
	Path       string        `yaml:"path" validate:"required_unless=InMemory true"`
	InMemory   bool          `yaml:"in_memory"`
	SyncWrites bool          `yaml:"sync_writes"`
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

// CacheConfig configures the built-index cache.
type CacheConfig struct {
	MaxEntries    int           `yaml:"max_entries" validate:"gte=1"`
	MaxAge        time.Duration `yaml:"max_age" validate:"gte=0"`
	ErrorCacheTTL time.Duration `yaml:"error_cache_ttl" validate:"gte=0"`
}

// IndexConfig configures index builds.
type IndexConfig struct {
	MaxNodes       int  `yaml:"max_nodes" validate:"gte=1"`
	MergeAuxiliary bool `yaml:"merge_auxiliary"`

	// WarmOnBuild materializes every bulk query right after a build.
	WarmOnBuild bool `yaml:"warm_on_build"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON   bool   `yaml:"json"`
	LogDir string `yaml:"log_dir"`
}

// WatchConfig configures fact-file watching for the serve command.
type WatchConfig struct {
	// File is a fact file imported at startup and re-imported on change.
	// Empty disables watching.
	File string `yaml:"file"`

	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8090",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			RateLimit:    50,
			RateBurst:    100,
			MaxBodyBytes: 64 << 20,
		},
		Storage: StorageConfig{
			Path:       defaultStoragePath(),
			SyncWrites: true,
			GCInterval: 5 * time.Minute,
		},
		Cache: CacheConfig{
			MaxEntries:    16,
			ErrorCacheTTL: 5 * time.Second,
		},
		Index: IndexConfig{
			MaxNodes: 2_000_000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: telemetry.DefaultConfig(),
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
	}
}

func defaultStoragePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".typegraph", "snapshots")
	}
	return filepath.Join(".typegraph", "snapshots")
}

// Load builds a Config from defaults, the optional YAML file at path, and
// the environment.
//
// An empty path or a missing file is not an error. Unknown YAML keys are.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// envVar binds one TYPEGRAPH_* variable to a setter.
type envVar struct {
	name string
	set  func(cfg *Config, v string) error
}

var envVars = []envVar{
	{"TYPEGRAPH_ADDR", func(c *Config, v string) error { c.Server.Addr = v; return nil }},
	{"TYPEGRAPH_RATE_LIMIT", func(c *Config, v string) error { return parseFloat(v, &c.Server.RateLimit) }},
	{"TYPEGRAPH_RATE_BURST", func(c *Config, v string) error { return parseInt(v, &c.Server.RateBurst) }},
	{"TYPEGRAPH_STORAGE_PATH", func(c *Config, v string) error { c.Storage.Path = v; return nil }},
	{"TYPEGRAPH_IN_MEMORY", func(c *Config, v string) error { return parseBool(v, &c.Storage.InMemory) }},
	{"TYPEGRAPH_CACHE_MAX_ENTRIES", func(c *Config, v string) error { return parseInt(v, &c.Cache.MaxEntries) }},
	{"TYPEGRAPH_MAX_NODES", func(c *Config, v string) error { return parseInt(v, &c.Index.MaxNodes) }},
	{"TYPEGRAPH_MERGE_AUXILIARY", func(c *Config, v string) error { return parseBool(v, &c.Index.MergeAuxiliary) }},
	{"TYPEGRAPH_LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
	{"TYPEGRAPH_LOG_JSON", func(c *Config, v string) error { return parseBool(v, &c.Logging.JSON) }},
	{"TYPEGRAPH_LOG_DIR", func(c *Config, v string) error { c.Logging.LogDir = v; return nil }},
	{"TYPEGRAPH_WATCH_FILE", func(c *Config, v string) error { c.Watch.File = v; return nil }},
}

func loadEnv(cfg *Config) error {
	for _, ev := range envVars {
		v, ok := os.LookupEnv(ev.name)
		if !ok || v == "" {
			continue
		}
		if err := ev.set(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", ev.name, err)
		}
	}
	return nil
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseFloat(v string, dst *float64) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func parseBool(v string, dst *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Watch.File != "" {
		if _, err := facts.FormatFromPath(c.Watch.File); err != nil {
			return fmt.Errorf("%w: watch.file: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// LoggerConfig returns the logging.Config for the process logger.
func (c Config) LoggerConfig() logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.LogDir,
		Service: c.Telemetry.ServiceName,
		JSON:    c.Logging.JSON,
	}
}

// StoreConfig returns the badger configuration for the snapshot store.
func (c Config) StoreConfig(logger *slog.Logger) badger.Config {
	if c.Storage.InMemory {
		cfg := badger.InMemoryConfig()
		cfg.Logger = logger
		return cfg
	}
	cfg := badger.DefaultConfig()
	cfg.Path = c.Storage.Path
	cfg.SyncWrites = c.Storage.SyncWrites
	cfg.GCInterval = c.Storage.GCInterval
	cfg.Logger = logger
	return cfg
}

// CacheOptions returns the index cache options.
func (c Config) CacheOptions() []cache.Option {
	return []cache.Option{
		cache.WithMaxEntries(c.Cache.MaxEntries),
		cache.WithMaxAge(c.Cache.MaxAge),
		cache.WithErrorCacheTTL(c.Cache.ErrorCacheTTL),
	}
}

// BuildOptions returns the index build options.
func (c Config) BuildOptions(logger *slog.Logger) []index.BuildOption {
	return []index.BuildOption{
		index.WithLogger(logger),
		index.WithMaxNodes(c.Index.MaxNodes),
		index.WithMergeAuxiliary(c.Index.MergeAuxiliary),
	}
}
