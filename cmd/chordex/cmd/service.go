package cmd

import (
	"context"
	"strings"

	"github.com/chordex/chordex/internal/cache"
	"github.com/chordex/chordex/internal/config"
	"github.com/chordex/chordex/internal/embed"
	"github.com/chordex/chordex/internal/keyword"
	"github.com/chordex/chordex/internal/search"
	"github.com/chordex/chordex/internal/strategy"
)

// buildEmbedder constructs the configured embedding provider, wrapped in
// an LRU cache when one is configured.
func buildEmbedder(ctx context.Context, cfg config.Config) (embed.Embedder, error) {
	var inner embed.Embedder
	switch strings.ToLower(cfg.Embeddings.Provider) {
	case "remote":
		remote, err := embed.NewRemoteEmbedder(ctx, embed.RemoteConfig{
			Endpoint:   cfg.Embeddings.Endpoint,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		inner = remote
	default:
		inner = embed.NewStaticEmbedder(cfg.Embeddings.Dimensions)
	}

	if cfg.Embeddings.CacheSize > 0 {
		return embed.NewCachedEmbedder(inner, cfg.Embeddings.CacheSize), nil
	}
	return inner, nil
}

// buildService loads the voicing cache and assembles an initialized
// search service from the configuration. The caller owns the returned
// service and must Close it.
func buildService(ctx context.Context, cfg config.Config) (*search.Service, error) {
	docs, err := cache.Load(ctx, cfg.Cache.Path)
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	strat, err := strategy.New(cfg.Search.Backend, nil, strategy.Config{
		Workers:           cfg.Search.Workers,
		SymbolicBlockSize: cfg.Search.SymbolicBlockSize,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	var kw *keyword.Index
	if cfg.Keyword.Enabled {
		kw, err = keyword.New(cfg.Keyword.Path)
		if err != nil {
			_ = strat.Close()
			_ = embedder.Close()
			return nil, err
		}
	}

	svc, err := search.NewService(search.Options{
		Embedder: embedder,
		Strategy: strat,
		Keyword:  kw,
		FusionWeights: search.Weights{
			Semantic: cfg.Search.SemanticWeight,
			Lexical:  cfg.Search.LexicalWeight,
		},
	})
	if err != nil {
		if kw != nil {
			_ = kw.Close()
		}
		_ = strat.Close()
		_ = embedder.Close()
		return nil, err
	}

	if err := svc.Initialize(ctx, docs); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

// clampLimit bounds a per-query result count to the configured maximum.
func clampLimit(limit int, cfg config.Config) int {
	if limit <= 0 || limit > cfg.Search.MaxResults {
		return cfg.Search.MaxResults
	}
	return limit
}
