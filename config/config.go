// Package config loads subdoc configuration from YAML and builds the engine
// and store it describes.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/agentflare-ai/subdoc"
	"github.com/agentflare-ai/subdoc/store/badgerstore"
	"github.com/agentflare-ai/subdoc/store/memstore"
	"github.com/agentflare-ai/subdoc/store/sqlitestore"
)

// Config is the top-level configuration.
type Config struct {
	Engine        EngineConfig `yaml:"engine"`
	Store         StoreConfig  `yaml:"store"`
	MutationSeqno bool         `yaml:"mutation_seqno"`
	LogLevel      string       `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// EngineConfig configures the batch engine.
type EngineConfig struct {
	MaxPaths      int    `yaml:"max_paths" validate:"gte=1,lte=1024"`
	CounterPolicy string `yaml:"counter_policy" validate:"omitempty,oneof=mkdir_p always"`
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Backend    string `yaml:"backend" validate:"required,oneof=memory badger sqlite"`
	Path       string `yaml:"path" validate:"required_unless=Backend memory"`
	SyncWrites bool   `yaml:"sync_writes"`
	Shards     int    `yaml:"shards" validate:"gte=0"`
}

var validate = validator.New()

// Default returns an in-memory configuration with engine defaults.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			MaxPaths:      subdoc.DefaultMaxPaths,
			CounterPolicy: subdoc.CounterCreateWithMkdirP.String(),
		},
		Store:    StoreConfig{Backend: "memory"},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path on top of Default and validates it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// EngineOptions converts the engine section to subdoc.Options.
func (c Config) EngineOptions() (subdoc.Options, error) {
	policy, err := subdoc.ParseCounterPolicy(c.Engine.CounterPolicy)
	if err != nil {
		return subdoc.Options{}, err
	}
	return subdoc.Options{MaxPaths: c.Engine.MaxPaths, CounterPolicy: policy}, nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Store is a subdoc.Store that also supports unconditional writes, deletes
// and closing. Every backend in this module implements it.
type Store interface {
	subdoc.Store
	Set(ctx context.Context, key string, doc []byte) (uint64, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// OpenStore opens the backend selected by the store section.
func (c Config) OpenStore(logger *slog.Logger) (Store, error) {
	switch c.Store.Backend {
	case "memory":
		return memstore.New(c.Store.Shards), nil
	case "badger":
		bc := badgerstore.DefaultConfig(c.Store.Path)
		bc.SyncWrites = c.Store.SyncWrites
		bc.Logger = logger
		st, err := badgerstore.Open(bc)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite":
		st, err := sqlitestore.Open(c.Store.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", c.Store.Backend)
}
