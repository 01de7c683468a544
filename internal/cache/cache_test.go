package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/voicing"
)

func sampleDocs() []voicing.Document {
	full := voicing.Document{
		Embedding: voicing.Embedding{
			ID:             "cmaj7-open-1",
			Vector:         []float64{0.1, -0.2, 0.3, 1.5},
			TextVector:     []float64{0.9, 0.8},
			ChordName:      "Cmaj7",
			DifficultyTier: "beginner",
			Position:       "open",
			MinFret:        0,
			MaxFret:        3,
			FingerCount:    3,
			HandStretch:    3,
			RequiresBarre:  false,
			StackingType:   "tertian",
			RootPitchClass: 0,
			BassPitchClass: 4,
			Inversion:      1,
			Consonance:     0.92,
			Brightness:     0.55,
			IsRootless:     false,
			IsGuideTone:    true,
			IsDropVoicing:  false,
			UsesOpenString: true,
			CAGEDShape:     "C",
			SetClassID:     "4-20",
			SemanticTags:   []string{"warm", "jazzy"},
			PossibleKeys:   []string{"C", "Am"},
			OmittedTones:   []string{"5"},
			DoubledTones:   []string{"root"},
			AlternateNames: []string{"CM7"},
			Description:    "Open major seventh",
		},
		YAML:      "name: Cmaj7\nfrets: [x, 3, 2, 0, 0, 0]\n",
		MIDINotes: []int{48, 52, 55, 59},
	}

	// Sparse document: optional fields absent, no text vector.
	sparse := voicing.Document{
		Embedding: voicing.Embedding{
			ID:     "e5-power",
			Vector: []float64{1, 0, 0, 0},
		},
	}

	return []voicing.Document{full, sparse}
}

func TestCodec_RoundTrip(t *testing.T) {
	docs := sampleDocs()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, docs))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, docs, decoded)
}

func TestCodec_EmptyDocumentSet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, nil))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestCodec_EmptySlicesDecodeAsNil(t *testing.T) {
	doc := voicing.Document{
		Embedding: voicing.Embedding{
			ID:           "empty-tags",
			Vector:       []float64{1, 0},
			SemanticTags: []string{},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []voicing.Document{doc}))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, decoded, 1)

	// Zero-length slices are count-prefixed as 0 on the wire, so they
	// come back nil rather than empty.
	assert.Nil(t, decoded[0].SemanticTags)
	assert.Equal(t, doc.Vector, decoded[0].Vector)
}

func TestDecode_RejectsBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("BOGUS-FILE-CONTENT")))
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeCacheCorrupt))
}

func TestDecode_VersionMismatchIsHardError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleDocs()))

	// Patch the version field in place.
	raw := buf.Bytes()
	binary.LittleEndian.PutUint32(raw[4:8], FormatVersion+1)

	_, err := Decode(bytes.NewReader(raw))
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeCacheVersion))
}

func TestDecode_TruncatedFileFails(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleDocs()))
	raw := buf.Bytes()

	for _, cut := range []int{len(raw) / 2, len(raw) - 1, 13} {
		_, err := Decode(bytes.NewReader(raw[:cut]))
		require.Error(t, err, "cut at %d", cut)
		assert.True(t, cherr.HasCode(err, cherr.ErrCodeCacheCorrupt))
	}
}

func TestDecode_TrailingBytesFail(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleDocs()))
	buf.WriteByte(0xFF)

	_, err := Decode(&buf)
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeCacheCorrupt))
}

func TestDecode_ImplausibleCountFails(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(magic[:])
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], FormatVersion)
	buf.Write(b[:])
	binary.LittleEndian.PutUint32(b[:], ^uint32(0))
	buf.Write(b[:])

	_, err := Decode(&buf)
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeCacheCorrupt))
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicings.bin")
	docs := sampleDocs()

	require.NoError(t, Save(context.Background(), path, docs))

	loaded, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, docs, loaded)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp-")
	}
}

func TestSave_OverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicings.bin")

	require.NoError(t, Save(context.Background(), path, sampleDocs()))
	require.NoError(t, Save(context.Background(), path, sampleDocs()[:1]))

	loaded, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.bin")

	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeCacheNotFound))
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicings.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a cache"), 0o644))

	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeCacheCorrupt))
}

func TestWatcher_FlagsStaleOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	notified := make(chan string, 1)
	w, err := WatchSource(path, func(p string) { notified <- p })
	require.NoError(t, err)
	defer w.Close()

	assert.False(t, w.Stale())

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	select {
	case <-notified:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not observe the write")
	}
	assert.True(t, w.Stale())

	w.Reset()
	assert.False(t, w.Stale())
}

func TestWatcher_MissingSource(t *testing.T) {
	_, err := WatchSource(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
	assert.True(t, cherr.HasCode(err, cherr.ErrCodeCacheNotFound))
}
