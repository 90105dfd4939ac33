// Package config loads and validates inquest engine configuration.
// Configuration lives in a single YAML file; every field has a working
// default so a missing file yields a usable engine pointed at a local
// Strategos instance.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all inquest configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Strategos worker service
	Strategos StrategosConfig `yaml:"strategos"`

	// Pipeline phase settings
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Filesystem layout
	Paths PathsConfig `yaml:"paths"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StrategosConfig configures the worker gateway.
type StrategosConfig struct {
	BaseURL      string `yaml:"base_url"`
	PollInterval string `yaml:"poll_interval"` // status poll cadence, default 5s
	PollTimeout  string `yaml:"poll_timeout"`  // per status call, default 30s
	SpawnRetries int    `yaml:"spawn_retries"` // default 3
	RetryBase    string `yaml:"retry_base"`    // backoff base, default 3s
}

// PipelineConfig configures phase timeouts and fan-out bounds.
type PipelineConfig struct {
	PlanningTimeout       string `yaml:"planning_timeout"`       // default 45m
	ClassificationTimeout string `yaml:"classification_timeout"` // default 30m
	LevelTimeout          string `yaml:"level_timeout"`          // default 15m
	SynthesisTimeout      string `yaml:"synthesis_timeout"`      // default 45m
	MaxConcurrentPathways int    `yaml:"max_concurrent_pathways"` // default 5
	BatchDelay            string `yaml:"batch_delay"`             // default 2s
}

// PathsConfig configures where projects and pathway definitions live.
type PathsConfig struct {
	DataDir     string `yaml:"data_dir"`     // default ~/.inquest
	ProjectsDir string `yaml:"projects_dir"` // default <data_dir>/projects
	PathwaysDir string `yaml:"pathways_dir"` // default <data_dir>/pathways
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories,omitempty"`
	JSONFormat bool            `yaml:"json_format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".inquest")
	return &Config{
		Name:    "inquest",
		Version: "0.3.0",
		Strategos: StrategosConfig{
			BaseURL:      "http://localhost:8420",
			PollInterval: "5s",
			PollTimeout:  "30s",
			SpawnRetries: 3,
			RetryBase:    "3s",
		},
		Pipeline: PipelineConfig{
			PlanningTimeout:       "45m",
			ClassificationTimeout: "30m",
			LevelTimeout:          "15m",
			SynthesisTimeout:      "45m",
			MaxConcurrentPathways: 5,
			BatchDelay:            "2s",
		},
		Paths: PathsConfig{
			DataDir:     dataDir,
			ProjectsDir: filepath.Join(dataDir, "projects"),
			PathwaysDir: filepath.Join(dataDir, "pathways"),
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads configuration from path, filling any unset field from the
// defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	fillDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks durations and bounds.
func (c *Config) Validate() error {
	for name, val := range map[string]string{
		"strategos.poll_interval":         c.Strategos.PollInterval,
		"strategos.poll_timeout":          c.Strategos.PollTimeout,
		"strategos.retry_base":            c.Strategos.RetryBase,
		"pipeline.planning_timeout":       c.Pipeline.PlanningTimeout,
		"pipeline.classification_timeout": c.Pipeline.ClassificationTimeout,
		"pipeline.level_timeout":          c.Pipeline.LevelTimeout,
		"pipeline.synthesis_timeout":      c.Pipeline.SynthesisTimeout,
		"pipeline.batch_delay":            c.Pipeline.BatchDelay,
	} {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", name, val)
		}
	}
	if c.Pipeline.MaxConcurrentPathways < 1 {
		return fmt.Errorf("pipeline.max_concurrent_pathways must be >= 1, got %d", c.Pipeline.MaxConcurrentPathways)
	}
	if c.Strategos.SpawnRetries < 0 {
		return fmt.Errorf("strategos.spawn_retries must be >= 0, got %d", c.Strategos.SpawnRetries)
	}
	return nil
}

// Duration parses a duration field that Validate has already checked,
// falling back to def on a parse error.
func Duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// fillDefaults backfills zero-valued fields after a partial YAML load.
func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.Strategos.BaseURL == "" {
		cfg.Strategos.BaseURL = def.Strategos.BaseURL
	}
	if cfg.Strategos.PollInterval == "" {
		cfg.Strategos.PollInterval = def.Strategos.PollInterval
	}
	if cfg.Strategos.PollTimeout == "" {
		cfg.Strategos.PollTimeout = def.Strategos.PollTimeout
	}
	if cfg.Strategos.RetryBase == "" {
		cfg.Strategos.RetryBase = def.Strategos.RetryBase
	}
	if cfg.Strategos.SpawnRetries == 0 {
		cfg.Strategos.SpawnRetries = def.Strategos.SpawnRetries
	}
	if cfg.Pipeline.PlanningTimeout == "" {
		cfg.Pipeline.PlanningTimeout = def.Pipeline.PlanningTimeout
	}
	if cfg.Pipeline.ClassificationTimeout == "" {
		cfg.Pipeline.ClassificationTimeout = def.Pipeline.ClassificationTimeout
	}
	if cfg.Pipeline.LevelTimeout == "" {
		cfg.Pipeline.LevelTimeout = def.Pipeline.LevelTimeout
	}
	if cfg.Pipeline.SynthesisTimeout == "" {
		cfg.Pipeline.SynthesisTimeout = def.Pipeline.SynthesisTimeout
	}
	if cfg.Pipeline.MaxConcurrentPathways == 0 {
		cfg.Pipeline.MaxConcurrentPathways = def.Pipeline.MaxConcurrentPathways
	}
	if cfg.Pipeline.BatchDelay == "" {
		cfg.Pipeline.BatchDelay = def.Pipeline.BatchDelay
	}
	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = def.Paths.DataDir
	}
	if cfg.Paths.ProjectsDir == "" {
		cfg.Paths.ProjectsDir = filepath.Join(cfg.Paths.DataDir, "projects")
	}
	if cfg.Paths.PathwaysDir == "" {
		cfg.Paths.PathwaysDir = filepath.Join(cfg.Paths.DataDir, "pathways")
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}

// applyEnvOverrides lets deployment environments redirect the worker
// service without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INQUEST_STRATEGOS_URL"); v != "" {
		cfg.Strategos.BaseURL = v
	}
	if v := os.Getenv("INQUEST_DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
		cfg.Paths.ProjectsDir = filepath.Join(v, "projects")
		cfg.Paths.PathwaysDir = filepath.Join(v, "pathways")
	}
}
