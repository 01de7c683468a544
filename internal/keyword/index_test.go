package keyword

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/voicing"
)

func doc(id, name, description string, tags ...string) voicing.Document {
	return voicing.Document{
		Embedding: voicing.Embedding{
			ID:           id,
			ChordName:    name,
			SemanticTags: tags,
			Description:  description,
		},
	}
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := New("")
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })

	require.NoError(t, ix.Add(context.Background(), []voicing.Document{
		doc("cmaj7", "Cmaj7", "open position major seventh", "jazzy", "warm"),
		doc("e5", "E5", "power chord for rock rhythm", "rock"),
		doc("dm7b5", "Dm7b5", "half diminished shell voicing", "jazzy", "dark"),
	}))
	return ix
}

func TestSearch_MatchesChordName(t *testing.T) {
	ix := newTestIndex(t)

	hits, err := ix.Search(context.Background(), "Cmaj7", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "cmaj7", hits[0].ID)
}

func TestSearch_MatchesDescriptionAndTags(t *testing.T) {
	ix := newTestIndex(t)

	hits, err := ix.Search(context.Background(), "power chord", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "e5", hits[0].ID)

	hits, err = ix.Search(context.Background(), "jazzy", 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	assert.ElementsMatch(t, []string{"cmaj7", "dm7b5"}, ids)
}

func TestSearch_EmptyQueryAndLimit(t *testing.T) {
	ix := newTestIndex(t)

	hits, err := ix.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = ix.Search(context.Background(), "jazzy", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_LimitCaps(t *testing.T) {
	ix := newTestIndex(t)

	hits, err := ix.Search(context.Background(), "jazzy", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestAdd_ReplacesByID(t *testing.T) {
	ix := newTestIndex(t)

	require.NoError(t, ix.Add(context.Background(), []voicing.Document{
		doc("cmaj7", "Cmaj7", "reworked description", "bright"),
	}))

	count, err := ix.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	hits, err := ix.Search(context.Background(), "bright", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "cmaj7", hits[0].ID)
}

func TestIndex_CloseGuards(t *testing.T) {
	ix := newTestIndex(t)

	require.NoError(t, ix.Close())
	require.NoError(t, ix.Close())

	_, err := ix.Search(context.Background(), "jazzy", 10)
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeAlreadyClosed))

	err = ix.Add(context.Background(), []voicing.Document{doc("x", "X", "")})
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeAlreadyClosed))
}

func TestIndex_OnDiskRoundTrip(t *testing.T) {
	path := t.TempDir() + "/keyword.bleve"

	ix, err := New(path)
	require.NoError(t, err)
	require.NoError(t, ix.Add(context.Background(), []voicing.Document{
		doc("cmaj7", "Cmaj7", "open major seventh"),
	}))
	require.NoError(t, ix.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
