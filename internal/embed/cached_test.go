package embed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts inner calls.
type countingEmbedder struct {
	*StaticEmbedder
	mu    sync.Mutex
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	c.mu.Lock()
	c.calls += len(texts)
	c.mu.Unlock()
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_HitsSkipInner(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(384)}
	cached := NewCachedEmbedder(inner, 10)
	defer cached.Close()

	ctx := context.Background()
	first, err := cached.Embed(ctx, "Cmaj7 voicing")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "Cmaj7 voicing")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedder_BatchMixedHits(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(384)}
	cached := NewCachedEmbedder(inner, 10)
	defer cached.Close()

	ctx := context.Background()
	_, err := cached.Embed(ctx, "Dm7")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(ctx, []string{"Cmaj7", "Dm7", "G7"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// Dm7 was cached; only Cmaj7 and G7 hit the inner embedder.
	assert.Equal(t, 3, inner.calls) // 1 single + 2 uncached batch entries

	expected, err := NewStaticEmbedder(384).Embed(ctx, "Dm7")
	require.NoError(t, err)
	assert.Equal(t, expected, vecs[1])
}

func TestCachedEmbedder_EmptyBatch(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(384), 10)
	defer cached.Close()

	vecs, err := cached.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := NewStaticEmbedder(78)
	cached := NewCachedEmbedder(inner, 0) // zero size falls back to default

	assert.Equal(t, 78, cached.Dimensions())
	assert.Equal(t, inner.ModelName(), cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
}
