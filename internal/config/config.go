// Package config loads the project configuration file, .cxref.yaml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jward/cxref/internal/frontend"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = ".cxref.yaml"

// Config is the contents of a configuration file. Zero values are filled
// from Default by Load.
type Config struct {
	// DB is the SQLite database path.
	DB string `yaml:"db"`
	// Languages restricts directory indexing to these languages.
	Languages []string `yaml:"languages"`
	// Parallel builds independent units concurrently.
	Parallel *bool `yaml:"parallel"`
	// Workers bounds parallel builds; 0 means one per CPU.
	Workers int `yaml:"workers"`
	// IndirectMarker is the front end's marker policy.
	IndirectMarker string `yaml:"indirect_marker"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Exclude holds gitignore-style patterns skipped by directory indexing.
	Exclude []string `yaml:"exclude"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	parallel := true
	return &Config{
		DB:             ".cxref/index.db",
		Languages:      append([]string(nil), frontend.Languages...),
		Parallel:       &parallel,
		IndirectMarker: string(frontend.MarkAddressTaken),
		LogLevel:       "info",
	}
}

// Load reads the configuration at path. A missing file yields Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration document, fills defaults and validates
// it. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.fill(Default())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) fill(d *Config) {
	if c.DB == "" {
		c.DB = d.DB
	}
	if len(c.Languages) == 0 {
		c.Languages = d.Languages
	}
	if c.Parallel == nil {
		c.Parallel = d.Parallel
	}
	if c.IndirectMarker == "" {
		c.IndirectMarker = d.IndirectMarker
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate rejects unknown languages, marker policies and log levels, and
// negative worker counts.
func (c *Config) Validate() error {
	for _, l := range c.Languages {
		if !frontend.IsLanguage(l) {
			return fmt.Errorf("unknown language %q (supported: %s)", l, strings.Join(frontend.Languages, ", "))
		}
	}
	if _, err := frontend.ParseMarkerPolicy(c.IndirectMarker); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// IsParallel reports the effective parallel setting.
func (c *Config) IsParallel() bool {
	return c.Parallel == nil || *c.Parallel
}

// MarkerPolicy returns the validated marker policy.
func (c *Config) MarkerPolicy() frontend.MarkerPolicy {
	return frontend.MarkerPolicy(c.IndirectMarker)
}

// ParseLevel maps a log level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
