package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/voicing"
)

func emb(id string, vec []float64) voicing.Embedding {
	return voicing.Embedding{ID: id, Vector: vec}
}

// abcCorpus is the canonical ranking fixture: query [1,0] must rank the
// axis-aligned vector first and the near-aligned one second.
func abcCorpus() []voicing.Embedding {
	return []voicing.Embedding{
		emb("A", []float64{1, 0}),
		emb("B", []float64{0, 1}),
		emb("C", []float64{0.9, 0.1}),
	}
}

func initCPU(t *testing.T, voicings []voicing.Embedding, cfg Config) *CPU {
	t.Helper()
	s := NewCPU(cfg)
	require.NoError(t, s.Initialize(context.Background(), voicings))
	return s
}

func TestCPU_SearchRanksByCosine(t *testing.T) {
	s := initCPU(t, abcCorpus(), Config{})
	defer s.Close()

	results, err := s.Search(context.Background(), []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "A", results[0].ID)
	assert.Equal(t, "C", results[1].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, 0.9)
}

func TestCPU_SearchLimitClamps(t *testing.T) {
	s := initCPU(t, abcCorpus(), Config{})
	defer s.Close()

	results, err := s.Search(context.Background(), []float64{1, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = s.Search(context.Background(), []float64{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCPU_SearchBeforeInitialize(t *testing.T) {
	s := NewCPU(Config{})

	_, err := s.Search(context.Background(), []float64{1, 0}, 5)
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeNotInitialized))
	assert.False(t, s.Initialized())
}

func TestCPU_InitializeIdempotent(t *testing.T) {
	s := initCPU(t, abcCorpus(), Config{})
	defer s.Close()

	// A second call with a different voicing set must not replace the
	// committed corpus.
	require.NoError(t, s.Initialize(context.Background(), []voicing.Embedding{
		emb("X", []float64{1, 1}),
	}))

	assert.Equal(t, 3, s.Stats().Count)
	results, err := s.Search(context.Background(), []float64{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NotEqual(t, "X", r.ID)
	}
}

func TestCPU_DimensionMismatchIsHardError(t *testing.T) {
	s := initCPU(t, abcCorpus(), Config{})
	defer s.Close()

	_, err := s.Search(context.Background(), []float64{1, 0, 0}, 5)
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeDimensionMismatch))

	_, err = s.HybridSearch(context.Background(), []float64{1}, nil, 5)
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeDimensionMismatch))
}

func TestCPU_InitializeRejectsMixedDimensions(t *testing.T) {
	s := NewCPU(Config{})
	err := s.Initialize(context.Background(), []voicing.Embedding{
		emb("A", []float64{1, 0}),
		emb("B", []float64{1, 0, 0}),
	})
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeDimensionMismatch))
	assert.False(t, s.Initialized())
}

func TestCPU_InitializeRejectsDuplicateIDs(t *testing.T) {
	s := NewCPU(Config{})
	err := s.Initialize(context.Background(), []voicing.Embedding{
		emb("A", []float64{1, 0}),
		emb("A", []float64{0, 1}),
	})
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeInvalidInput))
}

func TestCPU_InitializeEmptyCorpus(t *testing.T) {
	s := NewCPU(Config{})
	require.NoError(t, s.Initialize(context.Background(), nil))
	assert.True(t, s.Initialized())
	assert.Zero(t, s.Stats().Count)
}

func TestCPU_FindSimilarExcludesSelf(t *testing.T) {
	s := initCPU(t, abcCorpus(), Config{})
	defer s.Close()

	results, err := s.FindSimilar(context.Background(), "A", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "C", results[0].ID)
	assert.Equal(t, "B", results[1].ID)
	for _, r := range results {
		assert.NotEqual(t, "A", r.ID)
	}
}

func TestCPU_FindSimilarUnknownID(t *testing.T) {
	s := initCPU(t, abcCorpus(), Config{})
	defer s.Close()

	_, err := s.FindSimilar(context.Background(), "nope", 5)
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeVoicingNotFound))
}

func TestCPU_HybridSearchFiltersBeforeRanking(t *testing.T) {
	low := emb("low", []float64{1, 0})
	low.MinFret = 1
	high := emb("high", []float64{0.9, 0.1})
	high.MinFret = 5

	s := initCPU(t, []voicing.Embedding{low, high}, Config{})
	defer s.Close()

	minFret := 3
	results, err := s.HybridSearch(context.Background(), []float64{1, 0},
		&voicing.SearchFilters{MinFret: &minFret}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "high", results[0].ID)
}

func TestCPU_HybridSearchNoMatches(t *testing.T) {
	s := initCPU(t, abcCorpus(), Config{})
	defer s.Close()

	minFret := 99
	results, err := s.HybridSearch(context.Background(), []float64{1, 0},
		&voicing.SearchFilters{MinFret: &minFret}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCPU_HybridSearchEmptyFiltersMatchesSearch(t *testing.T) {
	s := initCPU(t, abcCorpus(), Config{})
	defer s.Close()

	plain, err := s.Search(context.Background(), []float64{1, 0}, 10)
	require.NoError(t, err)
	hybrid, err := s.HybridSearch(context.Background(), []float64{1, 0},
		&voicing.SearchFilters{}, 10)
	require.NoError(t, err)

	assert.Equal(t, plain, hybrid)
}

// symbolicCorpus uses 8-dim vectors with a 4-dim symbolic block.
// "tagged" carries tag bit 1 (component at offset 4+1), "plain" does not.
func symbolicCorpus() []voicing.Embedding {
	return []voicing.Embedding{
		emb("plain", []float64{0.7, 0.3, 0, 0, 0, 0, 0, 0}),
		emb("tagged", []float64{0.7, 0.3, 0, 0, 0, 1, 0, 0}),
	}
}

func TestCPU_SymbolicBoostScalesMatchedCandidates(t *testing.T) {
	s := initCPU(t, symbolicCorpus(), Config{SymbolicBlockSize: 4})
	defer s.Close()

	query := []float64{1, 0, 0, 0, 0, 0, 0, 0}

	base, err := s.HybridSearch(context.Background(), query, &voicing.SearchFilters{}, 10)
	require.NoError(t, err)
	boosted, err := s.HybridSearch(context.Background(), query,
		&voicing.SearchFilters{SymbolicBits: []int{1}}, 10)
	require.NoError(t, err)

	baseScores := map[string]float64{}
	for _, r := range base {
		baseScores[r.ID] = r.Score
	}
	boostedScores := map[string]float64{}
	for _, r := range boosted {
		boostedScores[r.ID] = r.Score
	}

	assert.InDelta(t, baseScores["plain"], boostedScores["plain"], 1e-9)
	assert.InDelta(t, baseScores["tagged"]*1.2, boostedScores["tagged"], 1e-9)
}

func TestCPU_SymbolicBoostCapsAtOne(t *testing.T) {
	s := initCPU(t, symbolicCorpus(), Config{SymbolicBlockSize: 4})
	defer s.Close()

	// Query identical to the tagged vector: base cosine is already 1.0.
	query := []float64{0.7, 0.3, 0, 0, 0, 1, 0, 0}
	results, err := s.HybridSearch(context.Background(), query,
		&voicing.SearchFilters{SymbolicBits: []int{1}}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tagged", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestCPU_UnmatchedSymbolicBitIsNoOp(t *testing.T) {
	s := initCPU(t, symbolicCorpus(), Config{SymbolicBlockSize: 4})
	defer s.Close()

	query := []float64{1, 0, 0, 0, 0, 0, 0, 0}
	base, err := s.HybridSearch(context.Background(), query, &voicing.SearchFilters{}, 10)
	require.NoError(t, err)
	boosted, err := s.HybridSearch(context.Background(), query,
		&voicing.SearchFilters{SymbolicBits: []int{2}}, 10)
	require.NoError(t, err)

	assert.Equal(t, base, boosted)
}

func TestCPU_TextVectorPreferredForRanking(t *testing.T) {
	a := emb("A", []float64{1, 0, 0, 0})
	a.TextVector = []float64{0, 1, 0}
	b := emb("B", []float64{0, 1, 0, 0})
	b.TextVector = []float64{1, 0, 0}

	s := initCPU(t, []voicing.Embedding{a, b}, Config{})
	defer s.Close()

	// 3-dim query ranks in the text space: B wins despite A's primary
	// vector aligning with nothing here.
	results, err := s.Search(context.Background(), []float64{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "B", results[0].ID)

	// 4-dim query still ranks in the primary space.
	results, err = s.Search(context.Background(), []float64{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].ID)
}

func TestCPU_PartialTextVectorsDisableTextSpace(t *testing.T) {
	a := emb("A", []float64{1, 0, 0, 0})
	a.TextVector = []float64{0, 1, 0}
	b := emb("B", []float64{0, 1, 0, 0})

	s := initCPU(t, []voicing.Embedding{a, b}, Config{})
	defer s.Close()

	_, err := s.Search(context.Background(), []float64{1, 0, 0}, 1)
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeDimensionMismatch))
}

func TestCPU_CanceledContext(t *testing.T) {
	s := initCPU(t, abcCorpus(), Config{})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Search(ctx, []float64{1, 0}, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCPU_CloseGuardsFurtherUse(t *testing.T) {
	s := initCPU(t, abcCorpus(), Config{})

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Search(context.Background(), []float64{1, 0}, 5)
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeAlreadyClosed))

	err = s.Initialize(context.Background(), abcCorpus())
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeAlreadyClosed))
}

func TestCPU_StatsTracksSearches(t *testing.T) {
	s := initCPU(t, abcCorpus(), Config{Workers: 2})
	defer s.Close()

	st := s.Stats()
	assert.Equal(t, "cpu", st.Backend)
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, 2, st.Dimensions)
	assert.Equal(t, int64(3*2*8), st.MemoryBytes)
	assert.Zero(t, st.TotalSearches)

	_, err := s.Search(context.Background(), []float64{1, 0}, 2)
	require.NoError(t, err)
	_, err = s.FindSimilar(context.Background(), "A", 2)
	require.NoError(t, err)

	st = s.Stats()
	assert.Equal(t, int64(2), st.TotalSearches)
	assert.True(t, s.Available())
}

func TestCPU_TieBreaksOnID(t *testing.T) {
	s := initCPU(t, []voicing.Embedding{
		emb("z", []float64{1, 0}),
		emb("a", []float64{1, 0}),
		emb("m", []float64{1, 0}),
	}, Config{})
	defer s.Close()

	results, err := s.Search(context.Background(), []float64{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "m", results[1].ID)
	assert.Equal(t, "z", results[2].ID)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float64{1, 0}, []float64{-1, 0}), 1e-6)

	// Symmetric in its arguments.
	a, b := []float64{0.3, -1.2, 4.4}, []float64{2.5, 0.1, -0.7}
	assert.Equal(t, Cosine(a, b), Cosine(b, a))

	// Zero vectors score zero instead of dividing by zero.
	assert.Zero(t, Cosine([]float64{0, 0}, []float64{0, 0}))
	assert.Zero(t, Cosine([]float64{0, 0}, []float64{1, 1}))
}

func TestLite_MatchesCPUOrdering(t *testing.T) {
	cpu := initCPU(t, abcCorpus(), Config{})
	defer cpu.Close()

	lite := NewLite(Config{})
	require.NoError(t, lite.Initialize(context.Background(), abcCorpus()))
	defer lite.Close()

	want, err := cpu.Search(context.Background(), []float64{0.5, 0.5}, 3)
	require.NoError(t, err)
	got, err := lite.Search(context.Background(), []float64{0.5, 0.5}, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Equal(t, "gpu-lite", lite.Stats().Backend)
}

func TestLite_HybridAndFindSimilar(t *testing.T) {
	lite := NewLite(Config{})
	require.NoError(t, lite.Initialize(context.Background(), abcCorpus()))
	defer lite.Close()

	results, err := lite.FindSimilar(context.Background(), "A", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "C", results[0].ID)

	results, err = lite.HybridSearch(context.Background(), []float64{1, 0}, nil, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].ID)
}

func TestFactory(t *testing.T) {
	for _, backend := range []string{BackendCPU, BackendGPU, BackendLite, BackendANN} {
		s, err := New(backend, nil, Config{})
		require.NoError(t, err, backend)
		assert.Equal(t, backend, s.Stats().Backend)
	}

	s, err := New("", nil, Config{})
	require.NoError(t, err)
	assert.Equal(t, BackendCPU, s.Stats().Backend)

	_, err = New("quantum", nil, Config{})
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeConfigInvalid))
}
