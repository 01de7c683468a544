package strategy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/hnsw"

	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/filter"
	"github.com/chordex/chordex/internal/voicing"
)

// ANN hyperparameters. M and EfSearch follow the coder/hnsw
// recommendations; oversampling covers the gap between approximate graph
// recall and the exact ordering produced by re-scoring.
const (
	annDefaultM        = 16
	annDefaultEfSearch = 20
	annOversample      = 4
	annMinCandidates   = 32
)

// ANNConfig extends Config with HNSW graph parameters.
type ANNConfig struct {
	Config

	// M is the maximum neighbor count per graph node. Zero means the
	// library recommendation.
	M int

	// EfSearch is the search beam width. Zero means the library default.
	EfSearch int
}

// ANN is the approximate backend: an HNSW graph over the primary matrix
// answers plain searches sublinearly, with exact float64 re-scoring of
// the oversampled candidates so reported scores match the exact
// backends. Filtered and text-space searches fall back to the exact
// scan, since the graph cannot pre-filter candidates.
type ANN struct {
	mu          sync.RWMutex
	initialized bool
	closed      bool
	corpus      *corpus
	graph       *hnsw.Graph[int]

	workers   int
	evaluator *filter.Evaluator
	blockSize int
	m         int
	efSearch  int

	stats statsTracker
}

var _ Strategy = (*ANN)(nil)

// NewANN creates an ANN strategy.
func NewANN(cfg ANNConfig) *ANN {
	m := cfg.M
	if m <= 0 {
		m = annDefaultM
	}
	ef := cfg.EfSearch
	if ef <= 0 {
		ef = annDefaultEfSearch
	}
	return &ANN{
		workers:   cfg.Workers,
		evaluator: cfg.evaluator(),
		blockSize: cfg.symbolicBlockSize(),
		m:         m,
		efSearch:  ef,
	}
}

// Initialize builds the corpus and the HNSW graph over the primary
// vectors. Repeated calls are no-ops.
func (s *ANN) Initialize(ctx context.Context, voicings []voicing.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cherr.New(cherr.ErrCodeAlreadyClosed, "ann strategy is closed", nil)
	}
	if s.initialized {
		slog.Debug("strategy_already_initialized", slog.String("backend", "ann"))
		return nil
	}

	c, err := newCorpus(voicings, s.blockSize)
	if err != nil {
		return err
	}

	graph := hnsw.NewGraph[int]()
	graph.Distance = hnsw.CosineDistance
	graph.M = s.m
	graph.EfSearch = s.efSearch

	for row := 0; row < c.size(); row++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		graph.Add(hnsw.MakeNode(row, toFloat32(c.primary.row(row))))
	}

	s.corpus = c
	s.graph = graph
	s.initialized = true
	slog.Info("strategy_initialized",
		slog.String("backend", "ann"),
		slog.Int("voicings", c.size()),
		slog.Int("dims", c.primary.dims),
		slog.Int("m", s.m),
		slog.Int("ef_search", s.efSearch))
	return nil
}

func (s *ANN) snapshot() (*corpus, *hnsw.Graph[int], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, cherr.New(cherr.ErrCodeAlreadyClosed, "ann strategy is closed", nil)
	}
	if !s.initialized {
		return nil, nil, cherr.NotInitialized("ann strategy")
	}
	return s.corpus, s.graph, nil
}

// candidateRows runs the graph search and returns oversampled candidate
// row indices.
func candidateRows(graph *hnsw.Graph[int], query []float64, limit int) []int {
	k := limit * annOversample
	if k < annMinCandidates {
		k = annMinCandidates
	}
	nodes := graph.Search(toFloat32(query), k)
	rows := make([]int, 0, len(nodes))
	for _, node := range nodes {
		rows = append(rows, node.Key)
	}
	return rows
}

// Search answers from the graph when the query lives in the primary
// space; text-space queries fall back to the exact scan.
func (s *ANN) Search(ctx context.Context, query []float64, limit int) ([]Result, error) {
	c, graph, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	defer s.observe(time.Now())

	space, err := c.rankSpace(len(query))
	if err != nil {
		return nil, err
	}
	if limit <= 0 || c.size() == 0 {
		return []Result{}, nil
	}

	// The graph only covers the primary space.
	if c.text.rows > 0 && space.dims == c.text.dims {
		scores, err := parallelScores(ctx, space, query, nil, s.workers)
		if err != nil {
			return nil, err
		}
		return c.rankResults(nil, scores, limit, -1), nil
	}

	rows := candidateRows(graph, query, limit)
	scores, err := serialScores(ctx, space, query, rows)
	if err != nil {
		return nil, err
	}
	return c.rankResults(rows, scores, limit, -1), nil
}

// FindSimilar answers from the graph using the stored primary vector.
func (s *ANN) FindSimilar(ctx context.Context, id string, limit int) ([]Result, error) {
	c, graph, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	row, ok := c.index[id]
	if !ok {
		return nil, cherr.VoicingNotFound(id)
	}
	defer s.observe(time.Now())

	if limit <= 0 {
		return []Result{}, nil
	}

	query := c.primary.row(row)
	// One extra candidate slot since the voicing itself always comes back.
	rows := candidateRows(graph, query, limit+1)
	scores, err := serialScores(ctx, c.primary, query, rows)
	if err != nil {
		return nil, err
	}
	return c.rankResults(rows, scores, limit, row), nil
}

// HybridSearch uses the exact filtered scan: filter predicates cannot be
// pushed into the graph traversal, and a post-filtered approximate result
// set could silently starve below limit.
func (s *ANN) HybridSearch(ctx context.Context, query []float64, filters *voicing.SearchFilters, limit int) ([]Result, error) {
	c, _, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	defer s.observe(time.Now())

	space, err := c.rankSpace(len(query))
	if err != nil {
		return nil, err
	}
	if limit <= 0 || c.size() == 0 {
		return []Result{}, nil
	}

	rows := c.filterRows(s.evaluator, filters)
	if len(rows) == 0 {
		return []Result{}, nil
	}

	scores, err := parallelScores(ctx, space, query, rows, s.workers)
	if err != nil {
		return nil, err
	}

	if filters != nil && len(filters.SymbolicBits) > 0 {
		for i, row := range rows {
			scores[i] = c.boostScore(scores[i], row, filters.SymbolicBits)
		}
	}
	return c.rankResults(rows, scores, limit, -1), nil
}

func (s *ANN) observe(start time.Time) {
	s.stats.record(time.Since(start))
}

// Stats reports backend telemetry.
func (s *ANN) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Backend: "ann"}
	if s.corpus != nil {
		st.Count = s.corpus.size()
		st.Dimensions = s.corpus.primary.dims
		st.MemoryBytes = s.corpus.memoryBytes()
	}
	st.TotalSearches, st.AvgLatency = s.stats.snapshot()
	return st
}

// Available always holds.
func (s *ANN) Available() bool { return true }

// Initialized reports whether a corpus has been committed.
func (s *ANN) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Close releases the corpus and graph. Idempotent.
func (s *ANN) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.initialized = false
	s.corpus = nil
	s.graph = nil
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
