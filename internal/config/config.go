// Package config loads the choreo host configuration.
//
// Precedence, lowest first: Default, the YAML file, CHOREO_* environment
// variables. The result is validated against the embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config is the host configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" json:"store"`
	Executor ExecutorConfig `yaml:"executor" json:"executor"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// StoreConfig selects the durable store.
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver" env:"CHOREO_STORE_DRIVER"` // sqlite | bolt | memory
	Path   string `yaml:"path" json:"path" env:"CHOREO_STORE_PATH"`
}

// ExecutorConfig selects the background executor.
type ExecutorConfig struct {
	Kind    string `yaml:"kind" json:"kind" env:"CHOREO_EXECUTOR"` // go | pool | serial | inline
	Workers int    `yaml:"workers" json:"workers" env:"CHOREO_WORKERS"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level" json:"level" env:"CHOREO_LOG_LEVEL"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Store:    StoreConfig{Driver: "sqlite", Path: "./choreo.db"},
		Executor: ExecutorConfig{Kind: "pool", Workers: 8},
		Log:      LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// Validate checks cfg against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}

	if c.Store.Driver != "memory" && c.Store.Path == "" {
		return fmt.Errorf("invalid config: store.path is required for driver %q", c.Store.Driver)
	}
	return nil
}

// SlogLevel returns the configured level. Validate guarantees it parses.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
