// Package voicing defines the data model for chord voicing search:
// the indexed embedding record, the richer upstream document, and the
// filter specification evaluated during hybrid search.
package voicing

// Canonical embedding dimensionalities.
const (
	// MusicalDims is the production musical-feature embedding dimension.
	MusicalDims = 384

	// CompactDims is the alternate compact-feature dimension used by
	// deployments that index hand-crafted features only.
	CompactDims = 78
)

// Embedding is the per-voicing record consumed by search backends.
// All fields are read-only after construction; strategies copy the vector
// into their own storage during Initialize and never mutate the record.
type Embedding struct {
	// ID is the stable, content-derived unique key for the voicing.
	ID string

	// Vector is the fixed-length musical-feature embedding. Its length is
	// fixed for the lifetime of a strategy once Initialize has run.
	Vector []float64

	// TextVector is an optional semantic text embedding, preferred for
	// ranking when present. Vector remains the fallback for filtering and
	// legacy ranking.
	TextVector []float64

	// Basic metadata.
	ChordName      string
	DifficultyTier string
	Position       string
	MinFret        int
	MaxFret        int
	FingerCount    int

	// Biomechanical metadata.
	HandStretch   int // fret span covered by the fretting hand
	RequiresBarre bool

	// Harmonic and structural classifiers.
	StackingType   string
	RootPitchClass int
	BassPitchClass int
	Inversion      int
	Consonance     float64 // 0.0-1.0
	Brightness     float64 // 0.0-1.0
	IsRootless     bool
	IsGuideTone    bool
	IsDropVoicing  bool
	UsesOpenString bool
	CAGEDShape     string
	SetClassID     string

	// Free-form tag sets.
	SemanticTags   []string
	PossibleKeys   []string
	OmittedTones   []string
	DoubledTones   []string
	AlternateNames []string

	// Description is the searchable textual description.
	Description string
}

// IsSlashChord reports whether the voicing sounds a bass note other than
// the root (bass pitch class differs from root pitch class).
func (e *Embedding) IsSlashChord() bool {
	return e.BassPitchClass != e.RootPitchClass
}

// Document is the upstream representation produced by the indexer.
// It is a superset of Embedding: full text blobs and raw MIDI notes are
// carried for reconstruction but never consulted by search backends.
type Document struct {
	Embedding

	// YAML is the full voicing definition blob as produced upstream.
	YAML string

	// MIDINotes are the raw sounded notes, low to high.
	MIDINotes []int
}

// Project returns the search-backend view of the document.
// The projection shares the vector slices; backends copy what they keep.
func (d *Document) Project() Embedding {
	return d.Embedding
}

// EstimateBytes returns the approximate in-memory footprint of n vectors of
// the given dimensionality (8 bytes per float64 component).
func EstimateBytes(n, dims int) int64 {
	return int64(n) * int64(dims) * 8
}
