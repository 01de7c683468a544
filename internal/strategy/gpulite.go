package strategy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/filter"
	"github.com/chordex/chordex/internal/voicing"
)

// Lite is the exploratory reduced backend kept for A/B latency
// comparisons: identical semantics to CPU, but a single-goroutine scan
// and no device involvement. Useful as a baseline when profiling the
// parallel and device paths, and on small corpora where fan-out overhead
// dominates.
type Lite struct {
	mu          sync.RWMutex
	initialized bool
	closed      bool
	corpus      *corpus

	evaluator *filter.Evaluator
	blockSize int

	stats statsTracker
}

var _ Strategy = (*Lite)(nil)

// NewLite creates a Lite strategy. Config.Workers is ignored.
func NewLite(cfg Config) *Lite {
	return &Lite{
		evaluator: cfg.evaluator(),
		blockSize: cfg.symbolicBlockSize(),
	}
}

// Initialize builds the corpus. Repeated calls are no-ops.
func (s *Lite) Initialize(ctx context.Context, voicings []voicing.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cherr.New(cherr.ErrCodeAlreadyClosed, "lite strategy is closed", nil)
	}
	if s.initialized {
		slog.Debug("strategy_already_initialized", slog.String("backend", "gpu-lite"))
		return nil
	}

	c, err := newCorpus(voicings, s.blockSize)
	if err != nil {
		return err
	}
	s.corpus = c
	s.initialized = true
	slog.Info("strategy_initialized",
		slog.String("backend", "gpu-lite"),
		slog.Int("voicings", c.size()),
		slog.Int("dims", c.primary.dims))
	return nil
}

func (s *Lite) snapshot() (*corpus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cherr.New(cherr.ErrCodeAlreadyClosed, "lite strategy is closed", nil)
	}
	if !s.initialized {
		return nil, cherr.NotInitialized("lite strategy")
	}
	return s.corpus, nil
}

// Search ranks the whole corpus against query with a serial scan.
func (s *Lite) Search(ctx context.Context, query []float64, limit int) ([]Result, error) {
	c, err := s.snapshot()
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

	scores, err := serialScores(ctx, space, query, nil)
	if err != nil {
		return nil, err
	}
	return c.rankResults(nil, scores, limit, -1), nil
}

// FindSimilar ranks against the stored vector for id, excluding id itself.
func (s *Lite) FindSimilar(ctx context.Context, id string, limit int) ([]Result, error) {
	c, err := s.snapshot()
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

	space := c.primary
	if c.text.rows > 0 {
		space = c.text
	}

	scores, err := serialScores(ctx, space, space.row(row), nil)
	if err != nil {
		return nil, err
	}
	return c.rankResults(nil, scores, limit, row), nil
}

// HybridSearch filters, scores serially, and applies symbolic boosting.
func (s *Lite) HybridSearch(ctx context.Context, query []float64, filters *voicing.SearchFilters, limit int) ([]Result, error) {
	c, err := s.snapshot()
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

	scores, err := serialScores(ctx, space, query, rows)
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

func (s *Lite) observe(start time.Time) {
	s.stats.record(time.Since(start))
}

// Stats reports backend telemetry.
func (s *Lite) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Backend: "gpu-lite"}
	if s.corpus != nil {
		st.Count = s.corpus.size()
		st.Dimensions = s.corpus.primary.dims
		st.MemoryBytes = s.corpus.memoryBytes()
	}
	st.TotalSearches, st.AvgLatency = s.stats.snapshot()
	return st
}

// Available always holds.
func (s *Lite) Available() bool { return true }

// Initialized reports whether a corpus has been committed.
func (s *Lite) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Close releases the corpus. Idempotent.
func (s *Lite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.initialized = false
	s.corpus = nil
	return nil
}
