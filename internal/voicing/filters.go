package voicing

// SearchFilters is the sparse filter specification for hybrid search.
// Every field is optional; a nil pointer or nil slice means "no constraint".
// All set fields are AND-ed together by the filter evaluator.
//
// This is the canonical superset of the filter surface: several narrower
// variants existed historically and every field from any of them is kept.
type SearchFilters struct {
	// Basic filters.
	Difficulty *string // exact, case-insensitive
	Position   *string // exact, case-insensitive
	MinFret    *int    // inclusive lower bound on the voicing's lowest fret
	MaxFret    *int    // inclusive upper bound on the voicing's highest fret

	// Biomechanical filters. MaxStretch uses the precomputed hand-stretch
	// scalar (fast path); MinComfort and RequireErgonomic trigger the full
	// playability analyzer (slow path).
	HandSize         *string
	MaxStretch       *int
	MinComfort       *float64
	RequireErgonomic *bool

	// Musical filters.
	UsesOpenStrings *bool
	Rootless        *bool
	GuideTone       *bool
	DropVoicing     *bool
	SlashChord      *bool
	RequiresBarre   *bool
	CAGEDShape      *string // exact, case-insensitive
	StackingType    *string // exact, case-insensitive
	RootPitchClass  *int
	Inversion       *int
	MinConsonance   *float64
	MaxConsonance   *float64
	MinBrightness   *float64
	MaxBrightness   *float64

	// Structured filters.
	ChordNameContains *string // substring, case-insensitive
	SetClassID        *string // exact
	FingerCount       *int

	// Metadata filters.
	DescriptionContains *string  // substring, case-insensitive
	DoubledTone         *string  // membership in DoubledTones
	AlternateName       *string  // case-insensitive match against any alternate name
	PossibleKey         *string  // membership in PossibleKeys
	SemanticTags        []string // every listed tag must be present
	OmittedTones        []string // every listed tone must be present

	// SymbolicBits boosts scores of candidates whose embedding has the
	// given symbolic bits set. Boosting only, never a hard filter.
	SymbolicBits []int
}

// Empty reports whether no hard filter field is set. SymbolicBits do not
// count: they adjust scores without restricting the candidate set.
func (f *SearchFilters) Empty() bool {
	if f == nil {
		return true
	}
	return f.Difficulty == nil && f.Position == nil && f.MinFret == nil && f.MaxFret == nil &&
		f.HandSize == nil && f.MaxStretch == nil && f.MinComfort == nil && f.RequireErgonomic == nil &&
		f.UsesOpenStrings == nil && f.Rootless == nil && f.GuideTone == nil && f.DropVoicing == nil &&
		f.SlashChord == nil && f.RequiresBarre == nil && f.CAGEDShape == nil && f.StackingType == nil &&
		f.RootPitchClass == nil && f.Inversion == nil && f.MinConsonance == nil && f.MaxConsonance == nil &&
		f.MinBrightness == nil && f.MaxBrightness == nil &&
		f.ChordNameContains == nil && f.SetClassID == nil && f.FingerCount == nil &&
		f.DescriptionContains == nil && f.DoubledTone == nil && f.AlternateName == nil &&
		f.PossibleKey == nil && len(f.SemanticTags) == 0 && len(f.OmittedTones) == 0
}

// NeedsPlayabilityAnalysis reports whether the slow biomechanical path is
// required. The fast path covers MaxStretch via the precomputed scalar.
func (f *SearchFilters) NeedsPlayabilityAnalysis() bool {
	if f == nil {
		return false
	}
	return f.MinComfort != nil || f.RequireErgonomic != nil
}
