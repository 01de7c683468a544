package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/voicing"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "gpu", cfg.Search.Backend)
	assert.Equal(t, voicing.MusicalDims, cfg.Embeddings.Dimensions)
	assert.InDelta(t, 1.0, cfg.Search.SemanticWeight+cfg.Search.LexicalWeight, 1e-9)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
search:
  backend: ann
  workers: 8
embeddings:
  provider: remote
  endpoint: http://localhost:9700
  dimensions: 78
cache:
  path: /var/lib/chordex/cache.bin
  watch: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ann", cfg.Search.Backend)
	assert.Equal(t, 8, cfg.Search.Workers)
	assert.Equal(t, "remote", cfg.Embeddings.Provider)
	assert.Equal(t, voicing.CompactDims, cfg.Embeddings.Dimensions)
	assert.Equal(t, "/var/lib/chordex/cache.bin", cfg.Cache.Path)
	assert.True(t, cfg.Cache.Watch)

	// Untouched sections keep their defaults.
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.True(t, cfg.Keyword.Enabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  backend: cpu\n"), 0o644))

	t.Setenv(EnvBackend, "gpu-lite")
	t.Setenv(EnvDimensions, "78")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpu-lite", cfg.Search.Backend)
	assert.Equal(t, 78, cfg.Embeddings.Dimensions)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: [not: a: mapping"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeConfigInvalid))
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Search.Backend = "fpga" }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "oracle" }},
		{"remote without endpoint", func(c *Config) { c.Embeddings.Provider = "remote" }},
		{"remote without endpoint, mixed case", func(c *Config) { c.Embeddings.Provider = "Remote" }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
		{"weights not summing", func(c *Config) { c.Search.SemanticWeight = 0.9 }},
		{"negative workers", func(c *Config) { c.Search.Workers = -1 }},
		{"zero max results", func(c *Config) { c.Search.MaxResults = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, cherr.HasCode(err, cherr.ErrCodeConfigInvalid))
		})
	}
}

func TestLoad_InvalidEnvNumbersIgnored(t *testing.T) {
	t.Setenv(EnvWorkers, "many")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.Search.Workers)
}
