package strategy

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/filter"
	"github.com/chordex/chordex/internal/voicing"
)

func defaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// CPU is the exact brute-force backend: every search scores the full
// candidate set with a chunked parallel scan. It is the correctness
// reference for the other backends.
type CPU struct {
	mu          sync.RWMutex
	initialized bool
	closed      bool
	corpus      *corpus

	workers   int
	evaluator *filter.Evaluator
	blockSize int

	stats statsTracker
}

var _ Strategy = (*CPU)(nil)

// NewCPU creates a CPU strategy.
func NewCPU(cfg Config) *CPU {
	return &CPU{
		workers:   cfg.Workers,
		evaluator: cfg.evaluator(),
		blockSize: cfg.symbolicBlockSize(),
	}
}

// Initialize builds the corpus. A repeated call is a no-op: the first
// corpus stays live and the new voicing set is ignored.
func (s *CPU) Initialize(ctx context.Context, voicings []voicing.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cherr.New(cherr.ErrCodeAlreadyClosed, "cpu strategy is closed", nil)
	}
	if s.initialized {
		slog.Debug("strategy_already_initialized", slog.String("backend", "cpu"))
		return nil
	}

	c, err := newCorpus(voicings, s.blockSize)
	if err != nil {
		return err
	}

	s.corpus = c
	s.initialized = true
	slog.Info("strategy_initialized",
		slog.String("backend", "cpu"),
		slog.Int("voicings", c.size()),
		slog.Int("dims", c.primary.dims),
		slog.Int("workers", s.effectiveWorkers()))
	return nil
}

func (s *CPU) effectiveWorkers() int {
	if s.workers > 0 {
		return s.workers
	}
	return defaultWorkers()
}

// snapshot returns the live corpus or a not-initialized error.
func (s *CPU) snapshot() (*corpus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cherr.New(cherr.ErrCodeAlreadyClosed, "cpu strategy is closed", nil)
	}
	if !s.initialized {
		return nil, cherr.NotInitialized("cpu strategy")
	}
	return s.corpus, nil
}

// Search ranks the whole corpus against query.
func (s *CPU) Search(ctx context.Context, query []float64, limit int) ([]Result, error) {
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

	scores, err := parallelScores(ctx, space, query, nil, s.workers)
	if err != nil {
		return nil, err
	}
	return c.rankResults(nil, scores, limit, -1), nil
}

// FindSimilar ranks against the stored vector for id, excluding id itself.
func (s *CPU) FindSimilar(ctx context.Context, id string, limit int) ([]Result, error) {
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

	// Rank in the same space the stored vectors live in: text when
	// available, primary otherwise.
	space := c.primary
	if c.text.rows > 0 {
		space = c.text
	}

	scores, err := parallelScores(ctx, space, space.row(row), nil, s.workers)
	if err != nil {
		return nil, err
	}
	return c.rankResults(nil, scores, limit, row), nil
}

// HybridSearch filters candidates first, then scores the survivors and
// applies symbolic boosting for the requested tag bits.
func (s *CPU) HybridSearch(ctx context.Context, query []float64, filters *voicing.SearchFilters, limit int) ([]Result, error) {
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

func (s *CPU) observe(start time.Time) {
	s.stats.record(time.Since(start))
}

// Stats reports backend telemetry.
func (s *CPU) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Backend: "cpu"}
	if s.corpus != nil {
		st.Count = s.corpus.size()
		st.Dimensions = s.corpus.primary.dims
		st.MemoryBytes = s.corpus.memoryBytes()
	}
	st.TotalSearches, st.AvgLatency = s.stats.snapshot()
	return st
}

// Available always holds for the CPU backend.
func (s *CPU) Available() bool { return true }

// Initialized reports whether a corpus has been committed.
func (s *CPU) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Close releases the corpus. Idempotent.
func (s *CPU) Close() error {
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
