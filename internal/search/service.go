package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chordex/chordex/internal/embed"
	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/keyword"
	"github.com/chordex/chordex/internal/metrics"
	"github.com/chordex/chordex/internal/strategy"
	"github.com/chordex/chordex/internal/symbolic"
	"github.com/chordex/chordex/internal/voicing"
)

// Options wires the service dependencies.
type Options struct {
	// Embedder turns query text and documents into vectors. Required for
	// text queries; vector-only deployments may leave it nil.
	Embedder embed.Embedder

	// Strategy is the search backend. Required.
	Strategy strategy.Strategy

	// Keyword enables lexical retrieval and fused hybrid text search.
	// Optional.
	Keyword *keyword.Index

	// Parser extracts symbolic tag bits from query text. Nil gets a
	// parser over the default tag vocabulary.
	Parser *symbolic.Parser

	// EmbedWorkers bounds the concurrent embedding fan-out during
	// Initialize. Zero means 4.
	EmbedWorkers int

	// FusionWeights configures hybrid text search. Zero value means
	// DefaultWeights.
	FusionWeights Weights

	// Metrics receives instrumentation. Optional.
	Metrics *metrics.Metrics
}

const defaultEmbedWorkers = 4

// Service is the top-level search API over a voicing document set.
type Service struct {
	mu          sync.RWMutex
	initialized bool
	closed      bool

	embedder embed.Embedder
	strategy strategy.Strategy
	keyword  *keyword.Index
	parser   *symbolic.Parser
	metrics  *metrics.Metrics

	embedWorkers int
	weights      Weights

	docs map[string]*voicing.Document
}

// NewService validates the wiring and returns an uninitialized service.
func NewService(opts Options) (*Service, error) {
	if opts.Strategy == nil {
		return nil, cherr.New(cherr.ErrCodeConfigInvalid, "search service requires a strategy", nil)
	}
	parser := opts.Parser
	if parser == nil {
		parser = symbolic.NewParser(symbolic.DefaultRegistry())
	}
	workers := opts.EmbedWorkers
	if workers <= 0 {
		workers = defaultEmbedWorkers
	}
	weights := opts.FusionWeights
	if weights == (Weights{}) {
		weights = DefaultWeights
	}

	return &Service{
		embedder:     opts.Embedder,
		strategy:     opts.Strategy,
		keyword:      opts.Keyword,
		parser:       parser,
		metrics:      opts.Metrics,
		embedWorkers: workers,
		weights:      weights,
	}, nil
}

// Initialize loads the document set: fills in missing text embeddings
// with a bounded concurrent fan-out, initializes the strategy and the
// keyword index, and only then flips the initialized gate. Repeated
// calls are no-ops.
func (s *Service) Initialize(ctx context.Context, docs []voicing.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cherr.New(cherr.ErrCodeAlreadyClosed, "search service is closed", nil)
	}
	if s.initialized {
		slog.Debug("service_already_initialized")
		return nil
	}

	start := time.Now()

	if err := s.fillTextVectors(ctx, docs); err != nil {
		return err
	}

	embeddings := make([]voicing.Embedding, len(docs))
	for i := range docs {
		embeddings[i] = docs[i].Project()
	}
	if err := s.strategy.Initialize(ctx, embeddings); err != nil {
		return err
	}

	if s.keyword != nil {
		if err := s.keyword.Add(ctx, docs); err != nil {
			return err
		}
	}

	s.docs = make(map[string]*voicing.Document, len(docs))
	for i := range docs {
		s.docs[docs[i].ID] = &docs[i]
	}

	s.initialized = true
	s.metrics.ObserveInitialize(len(docs), time.Since(start))
	slog.Info("service_initialized",
		slog.Int("documents", len(docs)),
		slog.String("backend", s.strategy.Stats().Backend),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// fillTextVectors embeds documents that lack a text vector, in batches
// fanned out across embedWorkers. Cancellation is observed between
// batches through the errgroup context.
func (s *Service) fillTextVectors(ctx context.Context, docs []voicing.Document) error {
	if s.embedder == nil {
		return nil
	}

	var pending []int
	for i := range docs {
		if len(docs[i].TextVector) == 0 && embedText(&docs[i]) != "" {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	// All or nothing: a partial text matrix would be unusable for
	// ranking, so skip embedding entirely when some documents already
	// carry vectors.
	if len(pending) != len(docs) {
		slog.Warn("mixed_text_vector_coverage_skipping_embedding",
			slog.Int("missing", len(pending)),
			slog.Int("total", len(docs)))
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.embedWorkers)

	for batchStart := 0; batchStart < len(pending); batchStart += embed.DefaultBatchSize {
		batch := pending[batchStart:min(batchStart+embed.DefaultBatchSize, len(pending))]
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			texts := make([]string, len(batch))
			for i, idx := range batch {
				texts[i] = embedText(&docs[idx])
			}
			vectors, err := s.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return cherr.Wrap(cherr.ErrCodeEmbeddingFailed, err)
			}
			for i, idx := range batch {
				docs[idx].TextVector = vectors[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// guard returns the not-initialized or closed error for query paths.
func (s *Service) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return cherr.New(cherr.ErrCodeAlreadyClosed, "search service is closed", nil)
	}
	if !s.initialized {
		return cherr.NotInitialized("search service")
	}
	return nil
}

func (s *Service) embedQuery(ctx context.Context, text string) ([]float64, error) {
	if s.embedder == nil {
		return nil, cherr.New(cherr.ErrCodeConfigInvalid, "text queries require an embedder", nil)
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, cherr.Wrap(cherr.ErrCodeEmbeddingFailed, err)
	}
	return vec, nil
}

// resolve maps strategy hits back to their documents. Hits without a
// document are dropped; that would mean the strategy and the service
// disagree on the corpus.
func (s *Service) resolve(hits []strategy.Result) []Result {
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		doc, ok := s.docs[hit.ID]
		if !ok {
			slog.Warn("search_hit_without_document", slog.String("id", hit.ID))
			continue
		}
		results = append(results, Result{Document: doc, Score: hit.Score})
	}
	return results
}

// Search embeds the query text and ranks semantically.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	start := time.Now()

	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		s.metrics.ObserveSearch("search", time.Since(start), err)
		return nil, err
	}
	hits, err := s.strategy.Search(ctx, vec, limit)
	s.metrics.ObserveSearch("search", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return s.resolve(hits), nil
}

// SearchByVector ranks against a caller-provided vector.
func (s *Service) SearchByVector(ctx context.Context, vector []float64, limit int) ([]Result, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	start := time.Now()

	hits, err := s.strategy.Search(ctx, vector, limit)
	s.metrics.ObserveSearch("search_by_vector", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return s.resolve(hits), nil
}

// FindSimilar ranks against the stored vector for id, excluding id.
func (s *Service) FindSimilar(ctx context.Context, id string, limit int) ([]Result, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	start := time.Now()

	hits, err := s.strategy.FindSimilar(ctx, id, limit)
	s.metrics.ObserveSearch("find_similar", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return s.resolve(hits), nil
}

// HybridSearch embeds the query, applies filters, and boosts symbolic
// tag bits. When the filters carry no explicit bits, they are parsed
// from the query text.
func (s *Service) HybridSearch(ctx context.Context, query string, filters *voicing.SearchFilters, limit int) ([]Result, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	start := time.Now()

	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		s.metrics.ObserveSearch("hybrid_search", time.Since(start), err)
		return nil, err
	}

	if filters == nil {
		filters = &voicing.SearchFilters{}
	}
	if len(filters.SymbolicBits) == 0 {
		if bits := s.parser.Parse(query); len(bits) > 0 {
			withBits := *filters
			withBits.SymbolicBits = bits
			filters = &withBits
		}
	}

	hits, err := s.strategy.HybridSearch(ctx, vec, filters, limit)
	s.metrics.ObserveSearch("hybrid_search", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return s.resolve(hits), nil
}

// HybridVectorSearch is HybridSearch for callers that already hold a
// query vector; no symbolic parsing happens here.
func (s *Service) HybridVectorSearch(ctx context.Context, vector []float64, filters *voicing.SearchFilters, limit int) ([]Result, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	start := time.Now()

	hits, err := s.strategy.HybridSearch(ctx, vector, filters, limit)
	s.metrics.ObserveSearch("hybrid_search", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return s.resolve(hits), nil
}

// HybridTextSearch fuses semantic and lexical retrieval with RRF. It
// requires the keyword index; without one it degrades to plain Search.
func (s *Service) HybridTextSearch(ctx context.Context, query string, limit int) ([]Result, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if s.keyword == nil {
		return s.Search(ctx, query, limit)
	}
	start := time.Now()

	// Both lists are oversampled so fusion has real overlap to work with.
	fetch := limit * 2
	if fetch < 10 {
		fetch = 10
	}

	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		s.metrics.ObserveSearch("hybrid_text_search", time.Since(start), err)
		return nil, err
	}
	sem, err := s.strategy.Search(ctx, vec, fetch)
	if err != nil {
		s.metrics.ObserveSearch("hybrid_text_search", time.Since(start), err)
		return nil, err
	}
	lex, err := s.keyword.Search(ctx, query, fetch)
	if err != nil {
		s.metrics.ObserveSearch("hybrid_text_search", time.Since(start), err)
		return nil, err
	}

	fused := fuseRRF(DefaultRRFConstant, s.weights, sem, lex)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	results := make([]Result, 0, len(fused))
	for _, h := range fused {
		if doc, ok := s.docs[h.id]; ok {
			results = append(results, Result{Document: doc, Score: h.score})
		}
	}
	s.metrics.ObserveSearch("hybrid_text_search", time.Since(start), nil)
	return results, nil
}

// Document returns the indexed document for id.
func (s *Service) Document(id string) (*voicing.Document, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	doc, ok := s.docs[id]
	if !ok {
		return nil, cherr.VoicingNotFound(id)
	}
	return doc, nil
}

// Initialized reports whether the service has committed a document set.
func (s *Service) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Stats aggregates backend and service state.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Documents: len(s.docs),
		Strategy:  s.strategy.Stats(),
	}
	if s.embedder != nil {
		st.Embedder = s.embedder.ModelName()
	}
	if s.keyword != nil {
		if n, err := s.keyword.Count(); err == nil {
			st.KeywordDocs = n
		}
	}
	return st
}

// Close releases the strategy, keyword index, and embedder. Idempotent;
// the first error wins but every component gets its Close call.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.initialized = false

	var firstErr error
	if err := s.strategy.Close(); err != nil {
		firstErr = err
	}
	if s.keyword != nil {
		if err := s.keyword.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.embedder != nil {
		if err := s.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.docs = nil
	return firstErr
}
