package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the CLI with the given args and returns captured stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// writeTestFixtures lays out a config file, a voicing document file, and
// a cache path under a temp dir. Vectors are 4-dimensional so query
// embeddings produced by the static provider fit the indexed space.
func writeTestFixtures(t *testing.T) (configFile, docsFile, cacheFile string) {
	t.Helper()
	dir := t.TempDir()

	cacheFile = filepath.Join(dir, "cache.bin")
	configFile = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
search:
  backend: cpu
embeddings:
  dimensions: 4
cache:
  path: `+cacheFile+`
`), 0o644))

	docsFile = filepath.Join(dir, "voicings.yaml")
	require.NoError(t, os.WriteFile(docsFile, []byte(`
voicings:
  - id: cmaj7-open
    chord_name: Cmaj7
    vector: [1, 0, 0, 0]
    text_vector: [1, 0, 0, 0]
    difficulty: beginner
    min_fret: 0
    max_fret: 3
    tags: [open, jazzy]
    description: Open position Cmaj7 with ringing strings
  - id: dm7-barre
    chord_name: Dm7
    vector: [0.9, 0.1, 0, 0]
    text_vector: [0.9, 0.1, 0, 0]
    difficulty: intermediate
    min_fret: 5
    max_fret: 8
    requires_barre: true
    tags: [barre]
    description: Barre Dm7 at the fifth fret
  - id: e5-power
    chord_name: E5
    vector: [0, 1, 0, 0]
    text_vector: [0, 1, 0, 0]
    difficulty: beginner
    min_fret: 7
    max_fret: 9
    tags: [power]
    description: Movable power chord
`), 0o644))

	return configFile, docsFile, cacheFile
}

func TestRoot_ShowsHelpWithoutArgs(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	require.Contains(t, out, "Usage:")
	require.Contains(t, out, "chordex")
}

func TestRoot_UnknownCommand(t *testing.T) {
	_, err := execute(t, "transcribe")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "chordex")
}

func TestVersionCommand_Short(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	require.NotEmpty(t, out)
	require.NotContains(t, out, "commit")
}
