// Package filter evaluates search filters against voicing candidates.
// The predicate is pure: every set filter field is an independent AND-ed
// constraint, and absence of a field means no constraint.
package filter

import (
	"strings"

	"github.com/chordex/chordex/internal/voicing"
)

// Evaluator applies SearchFilters to candidates. The playability analyzer
// is optional and only consulted on the slow biomechanical path.
type Evaluator struct {
	analyzer PlayabilityAnalyzer
}

// NewEvaluator creates an evaluator. analyzer may be nil, in which case
// comfort and ergonomic constraints reject all candidates (no analysis
// available means the constraint cannot be proven).
func NewEvaluator(analyzer PlayabilityAnalyzer) *Evaluator {
	return &Evaluator{analyzer: analyzer}
}

// Matches reports whether the candidate satisfies every set filter field.
// Cheap field checks run first; the heavyweight playability analysis runs
// only when comfort or ergonomic constraints are requested, and only for
// candidates that survived everything else.
func (ev *Evaluator) Matches(e *voicing.Embedding, f *voicing.SearchFilters) bool {
	if f == nil {
		return true
	}

	if !matchesBasic(e, f) || !matchesMusical(e, f) || !matchesStructured(e, f) || !matchesMetadata(e, f) {
		return false
	}

	// Fast biomechanical path: precomputed hand-stretch scalar.
	if f.MaxStretch != nil && e.HandStretch > *f.MaxStretch {
		return false
	}
	if f.HandSize != nil && e.HandStretch > stretchAllowance(*f.HandSize) {
		return false
	}

	// Slow biomechanical path, last.
	if f.NeedsPlayabilityAnalysis() {
		return ev.matchesPlayability(e, f)
	}

	return true
}

func matchesBasic(e *voicing.Embedding, f *voicing.SearchFilters) bool {
	if f.Difficulty != nil && !strings.EqualFold(e.DifficultyTier, *f.Difficulty) {
		return false
	}
	if f.Position != nil && !strings.EqualFold(e.Position, *f.Position) {
		return false
	}
	if f.MinFret != nil && e.MinFret < *f.MinFret {
		return false
	}
	if f.MaxFret != nil && e.MaxFret > *f.MaxFret {
		return false
	}
	return true
}

func matchesMusical(e *voicing.Embedding, f *voicing.SearchFilters) bool {
	if f.UsesOpenStrings != nil && e.UsesOpenString != *f.UsesOpenStrings {
		return false
	}
	if f.Rootless != nil && e.IsRootless != *f.Rootless {
		return false
	}
	if f.GuideTone != nil && e.IsGuideTone != *f.GuideTone {
		return false
	}
	if f.DropVoicing != nil && e.IsDropVoicing != *f.DropVoicing {
		return false
	}
	if f.SlashChord != nil && e.IsSlashChord() != *f.SlashChord {
		return false
	}
	if f.RequiresBarre != nil && e.RequiresBarre != *f.RequiresBarre {
		return false
	}
	if f.CAGEDShape != nil && !strings.EqualFold(e.CAGEDShape, *f.CAGEDShape) {
		return false
	}
	if f.StackingType != nil && !strings.EqualFold(e.StackingType, *f.StackingType) {
		return false
	}
	if f.RootPitchClass != nil && e.RootPitchClass != *f.RootPitchClass {
		return false
	}
	if f.Inversion != nil && e.Inversion != *f.Inversion {
		return false
	}
	if f.MinConsonance != nil && e.Consonance < *f.MinConsonance {
		return false
	}
	if f.MaxConsonance != nil && e.Consonance > *f.MaxConsonance {
		return false
	}
	if f.MinBrightness != nil && e.Brightness < *f.MinBrightness {
		return false
	}
	if f.MaxBrightness != nil && e.Brightness > *f.MaxBrightness {
		return false
	}
	return true
}

func matchesStructured(e *voicing.Embedding, f *voicing.SearchFilters) bool {
	if f.ChordNameContains != nil &&
		!strings.Contains(strings.ToLower(e.ChordName), strings.ToLower(*f.ChordNameContains)) {
		return false
	}
	// Set-class IDs are canonical tokens, so exact match (see DESIGN.md).
	if f.SetClassID != nil && e.SetClassID != *f.SetClassID {
		return false
	}
	if f.FingerCount != nil && e.FingerCount != *f.FingerCount {
		return false
	}
	return true
}

func matchesMetadata(e *voicing.Embedding, f *voicing.SearchFilters) bool {
	if f.DescriptionContains != nil &&
		!strings.Contains(strings.ToLower(e.Description), strings.ToLower(*f.DescriptionContains)) {
		return false
	}
	if f.DoubledTone != nil && !containsFold(e.DoubledTones, *f.DoubledTone) {
		return false
	}
	if f.AlternateName != nil && !containsFold(e.AlternateNames, *f.AlternateName) {
		return false
	}
	if f.PossibleKey != nil && !containsFold(e.PossibleKeys, *f.PossibleKey) {
		return false
	}
	// Tag sets: every requested entry must be present.
	for _, tag := range f.SemanticTags {
		if !containsFold(e.SemanticTags, tag) {
			return false
		}
	}
	for _, tone := range f.OmittedTones {
		if !containsFold(e.OmittedTones, tone) {
			return false
		}
	}
	return true
}

// containsFold reports case-insensitive membership.
func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}
