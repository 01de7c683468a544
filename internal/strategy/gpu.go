package strategy

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/filter"
	"github.com/chordex/chordex/internal/gpu"
	"github.com/chordex/chordex/internal/voicing"
)

// GPU is the accelerator-backed backend. Initialize uploads the corpus
// matrix to kernel memory once; each search afterwards allocates only the
// query and output buffers. Any kernel failure degrades that single call
// to the CPU scan path with a warning, so results are always served.
type GPU struct {
	mu          sync.RWMutex
	initialized bool
	closed      bool
	corpus      *corpus

	kernel     gpu.Kernel
	ownsKernel bool
	primaryBuf gpu.Buffer
	textBuf    gpu.Buffer

	workers   int
	evaluator *filter.Evaluator
	blockSize int

	stats     statsTracker
	fallbacks atomic.Int64
}

var _ Strategy = (*GPU)(nil)

// NewGPU creates a GPU strategy over the given kernel. A nil kernel means
// the best available kernel is opened during Initialize and owned (and
// closed) by the strategy; an injected kernel stays the caller's to close.
func NewGPU(kernel gpu.Kernel, cfg Config) *GPU {
	return &GPU{
		kernel:    kernel,
		workers:   cfg.Workers,
		evaluator: cfg.evaluator(),
		blockSize: cfg.symbolicBlockSize(),
	}
}

// Initialize builds the corpus and uploads it to kernel memory. Upload
// failure is not fatal: the strategy stays usable on the host path and
// every search falls back. Repeated calls are no-ops.
func (s *GPU) Initialize(ctx context.Context, voicings []voicing.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cherr.New(cherr.ErrCodeAlreadyClosed, "gpu strategy is closed", nil)
	}
	if s.initialized {
		slog.Debug("strategy_already_initialized", slog.String("backend", "gpu"))
		return nil
	}

	c, err := newCorpus(voicings, s.blockSize)
	if err != nil {
		return err
	}

	if s.kernel == nil {
		s.kernel = gpu.Open()
		s.ownsKernel = true
	}

	if c.size() > 0 {
		s.primaryBuf = s.upload(c.primary, "primary")
		if c.text.rows > 0 {
			s.textBuf = s.upload(c.text, "text")
		}
	}

	s.corpus = c
	s.initialized = true
	slog.Info("strategy_initialized",
		slog.String("backend", "gpu"),
		slog.String("kernel", s.kernel.Name()),
		slog.Bool("device_resident", s.primaryBuf != nil),
		slog.Int("voicings", c.size()),
		slog.Int("dims", c.primary.dims))
	return nil
}

func (s *GPU) upload(space vectorSpace, name string) gpu.Buffer {
	buf, err := s.kernel.Upload(space.matrix, space.rows, space.dims)
	if err != nil {
		slog.Warn("device_upload_failed_host_path_active",
			slog.String("matrix", name),
			slog.String("kernel", s.kernel.Name()),
			slog.String("error", err.Error()))
		return nil
	}
	return buf
}

func (s *GPU) snapshot() (*corpus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, cherr.New(cherr.ErrCodeAlreadyClosed, "gpu strategy is closed", nil)
	}
	if !s.initialized {
		return nil, cherr.NotInitialized("gpu strategy")
	}
	return s.corpus, nil
}

// bufferFor pairs a rank space with its device buffer.
func (s *GPU) bufferFor(c *corpus, space vectorSpace) gpu.Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c.text.rows > 0 && space.dims == c.text.dims {
		return s.textBuf
	}
	return s.primaryBuf
}

// scoreRows scores rows against query, preferring the device path and
// degrading this one call to the host scan on any kernel error.
func (s *GPU) scoreRows(ctx context.Context, c *corpus, space vectorSpace, query []float64, rows []int) ([]float64, error) {
	if buf := s.bufferFor(c, space); buf != nil {
		scores, err := deviceScores(buf, space, query, rows)
		if err == nil {
			return scores, nil
		}
		s.fallbacks.Add(1)
		slog.Warn("kernel_call_failed_falling_back_to_cpu",
			slog.String("error", err.Error()))
	}
	return parallelScores(ctx, space, query, rows, s.workers)
}

// deviceScores runs one batched dot-product call and converts the raw
// dots to cosine scores with the precomputed norms.
func deviceScores(buf gpu.Buffer, space vectorSpace, query []float64, rows []int) ([]float64, error) {
	var indices []int32
	total := space.rows
	if rows != nil {
		total = len(rows)
		indices = make([]int32, total)
		for i, row := range rows {
			indices[i] = int32(row)
		}
	}

	out := make([]float64, total)
	if err := buf.BatchDot(query, indices, out); err != nil {
		return nil, err
	}

	queryNorm := l2Norm(query)
	for i := range out {
		row := i
		if rows != nil {
			row = rows[i]
		}
		out[i] = cosineFromDot(out[i], queryNorm, space.norms[row])
	}
	return out, nil
}

// Search ranks the whole corpus against query.
func (s *GPU) Search(ctx context.Context, query []float64, limit int) ([]Result, error) {
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

	scores, err := s.scoreRows(ctx, c, space, query, nil)
	if err != nil {
		return nil, err
	}
	return c.rankResults(nil, scores, limit, -1), nil
}

// FindSimilar ranks against the stored vector for id, excluding id itself.
func (s *GPU) FindSimilar(ctx context.Context, id string, limit int) ([]Result, error) {
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

	scores, err := s.scoreRows(ctx, c, space, space.row(row), nil)
	if err != nil {
		return nil, err
	}
	return c.rankResults(nil, scores, limit, row), nil
}

// HybridSearch filters candidates on the host, scores the survivors with
// an index-restricted kernel call, and applies symbolic boosting.
func (s *GPU) HybridSearch(ctx context.Context, query []float64, filters *voicing.SearchFilters, limit int) ([]Result, error) {
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

	scores, err := s.scoreRows(ctx, c, space, query, rows)
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

func (s *GPU) observe(start time.Time) {
	s.stats.record(time.Since(start))
}

// Stats reports backend telemetry, including fallback counts.
func (s *GPU) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Backend:        "gpu",
		DeviceResident: s.primaryBuf != nil,
		Fallbacks:      s.fallbacks.Load(),
	}
	if s.corpus != nil {
		st.Count = s.corpus.size()
		st.Dimensions = s.corpus.primary.dims
		st.MemoryBytes = s.corpus.memoryBytes()
	}
	st.TotalSearches, st.AvgLatency = s.stats.snapshot()
	return st
}

// Available always holds: the kernel layer guarantees a host fallback, so
// a machine without an accelerator still serves every search.
func (s *GPU) Available() bool { return true }

// Initialized reports whether a corpus has been committed.
func (s *GPU) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Close frees device buffers and, when the strategy opened the kernel
// itself, closes it. In-flight searches observe freed buffers as kernel
// errors and finish on the host path. Idempotent.
func (s *GPU) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.initialized = false

	if s.primaryBuf != nil {
		if err := s.primaryBuf.Free(); err != nil {
			slog.Warn("device_buffer_free_failed", slog.String("error", err.Error()))
		}
		s.primaryBuf = nil
	}
	if s.textBuf != nil {
		if err := s.textBuf.Free(); err != nil {
			slog.Warn("device_buffer_free_failed", slog.String("error", err.Error()))
		}
		s.textBuf = nil
	}
	if s.ownsKernel && s.kernel != nil {
		if err := s.kernel.Close(); err != nil {
			return err
		}
	}
	s.corpus = nil
	return nil
}
