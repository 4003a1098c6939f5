// Package config holds the explicit configuration of an mdpredict run.
//
// A Config is built once by the CLI and passed down to every component; no
// package keeps mutable global settings. Values come from three layers, each
// overriding the previous one:
//
//  1. DefaultConfig()
//  2. a YAML file (LoadConfig)
//  3. MDPREDICT_* environment variables (LoadFromEnvOrFile)
//
// Example Usage:
//
//	cfg, err := config.LoadFromEnvOrFile("mdpredict.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
// Environment Variables:
//   - MDPREDICT_ENGINE_BACKEND="process" or "memory"
//   - MDPREDICT_ENGINE_EXACT_BINARY, MDPREDICT_ENGINE_CORE_BINARY, MDPREDICT_ENGINE_SUMMARY_BINARY
//   - MDPREDICT_ENGINE_CORE_EPSILON=0.05, MDPREDICT_ENGINE_CORE_DELTA=0.2
//   - MDPREDICT_ENGINE_SCRATCH_DIR
//   - MDPREDICT_SEED_BASE=4177
//   - MDPREDICT_EDGE_FRACTION=0.1
//   - MDPREDICT_OUTPUT_ROOT="output"
//   - MDPREDICT_LEDGER_IN_MEMORY=false
//   - MDPREDICT_LOG_LEVEL="info", MDPREDICT_LOG_FORMAT="console", MDPREDICT_LOG_FILE
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Engine backends.
const (
	BackendProcess = "process"
	BackendMemory  = "memory"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete run configuration.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// EngineConfig selects and locates the counting engine.
type EngineConfig struct {
	// Backend is "process" (external binaries) or "memory" (in-process fake).
	Backend       string `yaml:"backend"`
	ExactBinary   string `yaml:"exact_binary"`
	CoreBinary    string `yaml:"core_binary"`
	SummaryBinary string `yaml:"summary_binary"`
	// CoreEpsilon and CoreDelta are passed verbatim to the core binary.
	CoreEpsilon float64 `yaml:"core_epsilon"`
	CoreDelta   float64 `yaml:"core_delta"`
	ScratchDir  string  `yaml:"scratch_dir"`
}

// ExperimentConfig holds the constants every experiment shares.
type ExperimentConfig struct {
	// SeedBase is the seed of trial 0; trial r uses SeedBase + r.
	SeedBase int64 `yaml:"seed_base"`
	// EdgeFraction is the fraction of the edge count used both as the n̄
	// pair cutoff and as the base memory budget.
	EdgeFraction float64 `yaml:"edge_fraction"`
}

// OutputConfig controls where artifacts go.
type OutputConfig struct {
	Root string `yaml:"root"`
	// LedgerInMemory keeps the trial ledger out of the filesystem. Resuming
	// an interrupted run then relies on artifact skipping alone.
	LedgerInMemory bool `yaml:"ledger_in_memory"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, adds a rotating JSON log file.
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	Compress    bool   `yaml:"compress"`
	ServiceName string `yaml:"service_name"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Backend:     BackendProcess,
			CoreEpsilon: 0.05,
			CoreDelta:   0.2,
		},
		Experiment: ExperimentConfig{
			SeedBase:     4177,
			EdgeFraction: 0.1,
		},
		Output: OutputConfig{
			Root: "output",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      FormatConsole,
			MaxSizeMB:   100,
			MaxBackups:  3,
			MaxAgeDays:  28,
			ServiceName: "mdpredict",
		},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig, so keys missing from
// the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnvOrFile loads the file (or defaults when path is empty or the
// file does not exist) and then applies environment overrides. A file that
// exists but does not parse is an error.
func LoadFromEnvOrFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadConfig(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFromEnv returns defaults with environment overrides applied.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	c.Engine.Backend = getEnv("MDPREDICT_ENGINE_BACKEND", c.Engine.Backend)
	c.Engine.ExactBinary = getEnv("MDPREDICT_ENGINE_EXACT_BINARY", c.Engine.ExactBinary)
	c.Engine.CoreBinary = getEnv("MDPREDICT_ENGINE_CORE_BINARY", c.Engine.CoreBinary)
	c.Engine.SummaryBinary = getEnv("MDPREDICT_ENGINE_SUMMARY_BINARY", c.Engine.SummaryBinary)
	c.Engine.CoreEpsilon = getEnvFloat("MDPREDICT_ENGINE_CORE_EPSILON", c.Engine.CoreEpsilon)
	c.Engine.CoreDelta = getEnvFloat("MDPREDICT_ENGINE_CORE_DELTA", c.Engine.CoreDelta)
	c.Engine.ScratchDir = getEnv("MDPREDICT_ENGINE_SCRATCH_DIR", c.Engine.ScratchDir)

	c.Experiment.SeedBase = int64(getEnvInt("MDPREDICT_SEED_BASE", int(c.Experiment.SeedBase)))
	c.Experiment.EdgeFraction = getEnvFloat("MDPREDICT_EDGE_FRACTION", c.Experiment.EdgeFraction)

	c.Output.Root = getEnv("MDPREDICT_OUTPUT_ROOT", c.Output.Root)
	c.Output.LedgerInMemory = getEnvBool("MDPREDICT_LEDGER_IN_MEMORY", c.Output.LedgerInMemory)

	c.Logging.Level = getEnv("MDPREDICT_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("MDPREDICT_LOG_FORMAT", c.Logging.Format)
	c.Logging.File = getEnv("MDPREDICT_LOG_FILE", c.Logging.File)
}

// Validate checks the configuration for errors.
//
// Returns nil if configuration is valid, or an error wrapping
// ErrInvalidConfig describing the first problem found.
func (c *Config) Validate() error {
	switch c.Engine.Backend {
	case BackendMemory:
	case BackendProcess:
		if c.Engine.ExactBinary == "" || c.Engine.CoreBinary == "" {
			return fmt.Errorf("%w: process backend needs exact_binary and core_binary", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown engine backend %q", ErrInvalidConfig, c.Engine.Backend)
	}

	if c.Experiment.EdgeFraction <= 0 || c.Experiment.EdgeFraction > 1 {
		return fmt.Errorf("%w: edge_fraction must be in (0, 1], got %v", ErrInvalidConfig, c.Experiment.EdgeFraction)
	}
	if c.Output.Root == "" {
		return fmt.Errorf("%w: output root is empty", ErrInvalidConfig)
	}
	if c.Logging.Format != FormatConsole && c.Logging.Format != FormatJSON {
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// String returns a one-line representation suitable for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Backend: %s, SeedBase: %d, EdgeFraction: %g, Output: %s, LedgerInMemory: %v, Log: %s/%s}",
		c.Engine.Backend, c.Experiment.SeedBase, c.Experiment.EdgeFraction,
		c.Output.Root, c.Output.LedgerInMemory, c.Logging.Level, c.Logging.Format,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultVal
}
