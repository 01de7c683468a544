// Package strategy implements the search backends for voicing similarity:
// a CPU-parallel exact scan, a GPU-accelerated scan with transparent CPU
// fallback, a simplified exploratory GPU variant, and an approximate
// HNSW-backed backend. All backends share one contract and one corpus
// representation; they differ only in how candidates are scored.
package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/chordex/chordex/internal/filter"
	"github.com/chordex/chordex/internal/symbolic"
	"github.com/chordex/chordex/internal/voicing"
)

// Result is a single ranked hit.
type Result struct {
	// ID is the voicing identifier.
	ID string

	// Score is the cosine similarity, possibly symbolically boosted and
	// capped at 1.0 during hybrid search.
	Score float64
}

// Stats is the observational state of a strategy. It never affects search
// correctness.
type Stats struct {
	// Backend names the implementation ("cpu", "gpu", "gpu-lite", "ann").
	Backend string

	// Count is the number of indexed voicings.
	Count int

	// Dimensions is the corpus dimensionality (0 before initialization).
	Dimensions int

	// MemoryBytes estimates host corpus footprint: count x dims x 8.
	MemoryBytes int64

	// DeviceResident reports whether the corpus matrix lives in device
	// memory (GPU backend with a successful upload).
	DeviceResident bool

	// TotalSearches is the number of search calls served.
	TotalSearches int64

	// AvgLatency is the running mean search latency.
	AvgLatency time.Duration

	// Fallbacks counts GPU calls degraded to the CPU path.
	Fallbacks int64
}

// Strategy is the polymorphic search backend contract.
type Strategy interface {
	// Initialize loads the corpus into backend storage. Guarded for
	// idempotency: a second call is a no-op even with a different voicing
	// set, and the first call's corpus remains searchable.
	Initialize(ctx context.Context, voicings []voicing.Embedding) error

	// Search ranks every stored voicing by cosine similarity to query and
	// returns the top limit hits in non-increasing score order.
	Search(ctx context.Context, query []float64, limit int) ([]Result, error)

	// FindSimilar ranks against the stored vector for id, excluding id
	// itself from the results.
	FindSimilar(ctx context.Context, id string, limit int) ([]Result, error)

	// HybridSearch restricts candidates with the filter predicate before
	// scoring and applies symbolic-bit boosting from filters.
	HybridSearch(ctx context.Context, query []float64, filters *voicing.SearchFilters, limit int) ([]Result, error)

	// Stats returns observational backend state.
	Stats() Stats

	// Available reports whether the backend can serve searches at all.
	Available() bool

	// Initialized reports whether Initialize has committed a corpus.
	Initialized() bool

	// Close releases backend resources. Idempotent.
	Close() error
}

// Config carries the knobs shared by all strategies.
type Config struct {
	// Workers bounds the parallel scan fan-out. Zero means GOMAXPROCS.
	Workers int

	// Evaluator applies hybrid-search filters. Nil gets a default
	// evaluator with the heuristic playability analyzer.
	Evaluator *filter.Evaluator

	// SymbolicBlockSize is the number of trailing embedding dimensions
	// reserved for symbolic tag bits. Zero means symbolic.DefaultBlockSize;
	// negative disables boosting.
	SymbolicBlockSize int
}

func (c Config) evaluator() *filter.Evaluator {
	if c.Evaluator != nil {
		return c.Evaluator
	}
	return filter.NewEvaluator(filter.HeuristicAnalyzer{})
}

func (c Config) symbolicBlockSize() int {
	if c.SymbolicBlockSize == 0 {
		return symbolic.DefaultBlockSize
	}
	if c.SymbolicBlockSize < 0 {
		return 0
	}
	return c.SymbolicBlockSize
}

// statsTracker accumulates search telemetry.
type statsTracker struct {
	mu         sync.Mutex
	total      int64
	cumLatency time.Duration
}

func (t *statsTracker) record(d time.Duration) {
	t.mu.Lock()
	t.total++
	t.cumLatency += d
	t.mu.Unlock()
}

func (t *statsTracker) snapshot() (total int64, avg time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total == 0 {
		return 0, 0
	}
	return t.total, t.cumLatency / time.Duration(t.total)
}
