package filter

import (
	"log/slog"

	"github.com/chordex/chordex/internal/voicing"
)

// Playability is the result of the heavyweight biomechanical analysis.
type Playability struct {
	// Comfort is the overall playability score, 0.0 (unplayable) to 1.0.
	Comfort float64

	// Ergonomic reports whether the fingering avoids known strain patterns.
	Ergonomic bool
}

// PlayabilityAnalyzer runs the full biomechanical analysis for a voicing.
// Implementations are expected to be expensive; the evaluator only calls
// them when comfort or ergonomic constraints are explicitly requested.
type PlayabilityAnalyzer interface {
	Analyze(e *voicing.Embedding) (Playability, error)
}

// Hand-size stretch allowances in frets. The fast path compares these
// against the precomputed hand-stretch scalar instead of re-running the
// full analysis.
const (
	smallHandStretch  = 3
	mediumHandStretch = 4
	largeHandStretch  = 5
)

// stretchAllowance maps a hand-size label to the maximum comfortable fret
// span. Unknown labels get the medium allowance.
func stretchAllowance(handSize string) int {
	switch handSize {
	case "small", "Small", "SMALL":
		return smallHandStretch
	case "large", "Large", "LARGE":
		return largeHandStretch
	default:
		return mediumHandStretch
	}
}

// matchesPlayability runs the slow-path analysis and applies comfort and
// ergonomic constraints. Analyzer failures exclude the candidate: an
// unprovable constraint is treated as unmet.
func (ev *Evaluator) matchesPlayability(e *voicing.Embedding, f *voicing.SearchFilters) bool {
	if ev.analyzer == nil {
		return false
	}

	p, err := ev.analyzer.Analyze(e)
	if err != nil {
		slog.Debug("playability_analysis_failed",
			slog.String("voicing", e.ID),
			slog.String("error", err.Error()))
		return false
	}

	if f.MinComfort != nil && p.Comfort < *f.MinComfort {
		return false
	}
	if f.RequireErgonomic != nil && *f.RequireErgonomic && !p.Ergonomic {
		return false
	}
	return true
}

// HeuristicAnalyzer is the default PlayabilityAnalyzer: a deterministic
// model over the precomputed metadata. It stands in for the full inverse
// kinematics analysis, which is produced upstream.
type HeuristicAnalyzer struct{}

// Verify interface implementation at compile time.
var _ PlayabilityAnalyzer = (*HeuristicAnalyzer)(nil)

// Analyze scores comfort from stretch, barre, and finger count.
func (HeuristicAnalyzer) Analyze(e *voicing.Embedding) (Playability, error) {
	comfort := 1.0

	// Each fret of stretch beyond two costs a quarter of the budget.
	if e.HandStretch > 2 {
		comfort -= 0.25 * float64(e.HandStretch-2)
	}
	if e.RequiresBarre {
		comfort -= 0.2
	}
	if e.FingerCount > 3 {
		comfort -= 0.1 * float64(e.FingerCount-3)
	}
	if comfort < 0 {
		comfort = 0
	}

	return Playability{
		Comfort:   comfort,
		Ergonomic: e.HandStretch <= mediumHandStretch && comfort >= 0.5,
	}, nil
}
