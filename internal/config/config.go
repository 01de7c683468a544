// Package config loads the chordex configuration: YAML file first, then
// environment overrides, then validation. Zero values everywhere mean
// "use the default", so a missing file is a fully working setup.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/voicing"
)

// Env override variables. Highest priority, applied after the file.
const (
	EnvBackend        = "CHORDEX_BACKEND"
	EnvWorkers        = "CHORDEX_WORKERS"
	EnvDimensions     = "CHORDEX_DIMENSIONS"
	EnvProvider       = "CHORDEX_EMBED_PROVIDER"
	EnvEndpoint       = "CHORDEX_EMBED_ENDPOINT"
	EnvCachePath      = "CHORDEX_CACHE_PATH"
	EnvLogLevel       = "CHORDEX_LOG_LEVEL"
	EnvSemanticWeight = "CHORDEX_SEMANTIC_WEIGHT"
	EnvLexicalWeight  = "CHORDEX_LEXICAL_WEIGHT"
)

// Config is the complete chordex configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Cache      CacheConfig      `yaml:"cache"`
	Keyword    KeywordConfig    `yaml:"keyword"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SearchConfig selects and tunes the search backend.
type SearchConfig struct {
	// Backend is one of cpu, gpu, gpu-lite, ann.
	Backend string `yaml:"backend"`

	// Workers bounds the parallel scan fan-out. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// SemanticWeight and LexicalWeight drive RRF fusion and must sum
	// to 1.0.
	SemanticWeight float64 `yaml:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight"`

	// RRFConstant is the fusion smoothing parameter.
	RRFConstant int `yaml:"rrf_constant"`

	// MaxResults caps the per-query result count.
	MaxResults int `yaml:"max_results"`

	// SymbolicBlockSize is the reserved symbolic tag block width.
	SymbolicBlockSize int `yaml:"symbolic_block_size"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static" (deterministic, offline) or "remote" (HTTP).
	Provider string `yaml:"provider"`

	// Model names the remote model.
	Model string `yaml:"model"`

	// Dimensions is the embedding width. The production musical-feature
	// space is 384; compact deployments use 78.
	Dimensions int `yaml:"dimensions"`

	// Endpoint is the remote embedding server base URL.
	Endpoint string `yaml:"endpoint"`

	// BatchSize bounds per-request batch width.
	BatchSize int `yaml:"batch_size"`

	// CacheSize is the embedding LRU capacity. Zero disables caching.
	CacheSize int `yaml:"cache_size"`
}

// CacheConfig configures the binary voicing cache.
type CacheConfig struct {
	// Path is the cache file location.
	Path string `yaml:"path"`

	// SourcePath is the upstream voicing document file to watch.
	SourcePath string `yaml:"source_path"`

	// Watch enables the staleness watcher over SourcePath.
	Watch bool `yaml:"watch"`
}

// KeywordConfig configures the lexical index.
type KeywordConfig struct {
	// Enabled switches lexical retrieval on.
	Enabled bool `yaml:"enabled"`

	// Path is the on-disk index location. Empty means in-memory.
	Path string `yaml:"path"`
}

// LoggingConfig mirrors the logging setup knobs.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	FilePath  string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Version: 1,
		Search: SearchConfig{
			Backend:           "gpu",
			SemanticWeight:    0.7,
			LexicalWeight:     0.3,
			RRFConstant:       60,
			MaxResults:        50,
			SymbolicBlockSize: 64,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Dimensions: voicing.MusicalDims,
			BatchSize:  32,
			CacheSize:  4096,
		},
		Cache: CacheConfig{
			Path: "chordex-cache.bin",
		},
		Keyword: KeywordConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// Load reads the YAML file at path (missing file means pure defaults),
// applies environment overrides, and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return Config{}, cherr.New(cherr.ErrCodeConfigNotFound, "cannot read config file", err).
				WithDetail("path", path)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, cherr.New(cherr.ErrCodeConfigInvalid, "malformed config file", err).
					WithDetail("path", path)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvBackend); v != "" {
		cfg.Search.Backend = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.Workers = n
		}
	}
	if v := os.Getenv(EnvDimensions); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv(EnvProvider); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Embeddings.Endpoint = v
	}
	if v := os.Getenv(EnvCachePath); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvSemanticWeight); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.SemanticWeight = f
		}
	}
	if v := os.Getenv(EnvLexicalWeight); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.LexicalWeight = f
		}
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Search.Backend {
	case "cpu", "gpu", "gpu-lite", "ann":
	default:
		return cherr.New(cherr.ErrCodeConfigInvalid, "unknown search backend", nil).
			WithDetail("backend", c.Search.Backend)
	}

	provider := strings.ToLower(c.Embeddings.Provider)
	switch provider {
	case "static", "remote":
	default:
		return cherr.New(cherr.ErrCodeConfigInvalid, "unknown embedding provider", nil).
			WithDetail("provider", c.Embeddings.Provider)
	}
	if provider == "remote" && c.Embeddings.Endpoint == "" {
		return cherr.New(cherr.ErrCodeConfigInvalid, "remote embedding provider requires an endpoint", nil)
	}

	if c.Embeddings.Dimensions <= 0 {
		return cherr.New(cherr.ErrCodeConfigInvalid, "embedding dimensions must be positive", nil).
			WithDetail("dimensions", strconv.Itoa(c.Embeddings.Dimensions))
	}

	sum := c.Search.SemanticWeight + c.Search.LexicalWeight
	if sum < 0.999 || sum > 1.001 {
		return cherr.New(cherr.ErrCodeConfigInvalid, "fusion weights must sum to 1.0", nil).
			WithDetail("sum", strconv.FormatFloat(sum, 'f', 3, 64))
	}

	if c.Search.Workers < 0 {
		return cherr.New(cherr.ErrCodeConfigInvalid, "workers cannot be negative", nil)
	}
	if c.Search.MaxResults <= 0 {
		return cherr.New(cherr.ErrCodeConfigInvalid, "max_results must be positive", nil)
	}
	return nil
}
