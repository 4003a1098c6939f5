package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, BackendProcess, cfg.Engine.Backend)
	assert.Equal(t, 0.05, cfg.Engine.CoreEpsilon)
	assert.Equal(t, 0.2, cfg.Engine.CoreDelta)
	assert.Equal(t, int64(4177), cfg.Experiment.SeedBase)
	assert.Equal(t, 0.1, cfg.Experiment.EdgeFraction)
	assert.Equal(t, "output", cfg.Output.Root)
	assert.Equal(t, FormatConsole, cfg.Logging.Format)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mdpredict.yaml")
	yamlDoc := `
engine:
  backend: memory
experiment:
  seed_base: 10
output:
  root: /tmp/runs
logging:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Engine.Backend)
	assert.Equal(t, int64(10), cfg.Experiment.SeedBase)
	assert.Equal(t, "/tmp/runs", cfg.Output.Root)
	assert.Equal(t, FormatJSON, cfg.Logging.Format)

	t.Run("unset_keys_keep_defaults", func(t *testing.T) {
		assert.Equal(t, 0.1, cfg.Experiment.EdgeFraction)
		assert.Equal(t, 0.2, cfg.Engine.CoreDelta)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("malformed_yaml", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("engine: [unclosed"), 0644))
		_, err := LoadConfig(bad)
		assert.Error(t, err)

		_, err = LoadFromEnvOrFile(bad)
		assert.Error(t, err)
	})
}

func TestLoadFromEnvOrFile(t *testing.T) {
	t.Run("missing_file_uses_defaults", func(t *testing.T) {
		cfg, err := LoadFromEnvOrFile(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("env_overrides_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mdpredict.yaml")
		require.NoError(t, os.WriteFile(path, []byte("experiment:\n  seed_base: 10\n"), 0644))

		t.Setenv("MDPREDICT_SEED_BASE", "99")
		t.Setenv("MDPREDICT_ENGINE_BACKEND", "memory")
		t.Setenv("MDPREDICT_LEDGER_IN_MEMORY", "yes")
		t.Setenv("MDPREDICT_EDGE_FRACTION", "0.25")

		cfg, err := LoadFromEnvOrFile(path)
		require.NoError(t, err)
		assert.Equal(t, int64(99), cfg.Experiment.SeedBase)
		assert.Equal(t, BackendMemory, cfg.Engine.Backend)
		assert.True(t, cfg.Output.LedgerInMemory)
		assert.Equal(t, 0.25, cfg.Experiment.EdgeFraction)
	})

	t.Run("unparseable_env_keeps_value", func(t *testing.T) {
		t.Setenv("MDPREDICT_SEED_BASE", "not-a-number")
		t.Setenv("MDPREDICT_LEDGER_IN_MEMORY", "maybe")
		cfg := LoadFromEnv()
		assert.Equal(t, int64(4177), cfg.Experiment.SeedBase)
		assert.False(t, cfg.Output.LedgerInMemory)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"memory_backend", func(c *Config) { c.Engine.Backend = BackendMemory }, true},
		{"process_with_binaries", func(c *Config) {
			c.Engine.ExactBinary = "/bin/exact"
			c.Engine.CoreBinary = "/bin/core"
		}, true},
		{"process_without_binaries", func(c *Config) {}, false},
		{"unknown_backend", func(c *Config) { c.Engine.Backend = "gpu" }, false},
		{"zero_fraction", func(c *Config) {
			c.Engine.Backend = BackendMemory
			c.Experiment.EdgeFraction = 0
		}, false},
		{"empty_output_root", func(c *Config) {
			c.Engine.Backend = BackendMemory
			c.Output.Root = ""
		}, false},
		{"unknown_log_format", func(c *Config) {
			c.Engine.Backend = BackendMemory
			c.Logging.Format = "xml"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestString(t *testing.T) {
	s := DefaultConfig().String()
	assert.True(t, strings.HasPrefix(s, "Config{"))
	assert.Contains(t, s, "SeedBase: 4177")
	assert.Contains(t, s, "Backend: process")
}
