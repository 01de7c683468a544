// Package search is the service facade: it owns the embedder, the search
// strategy, and the keyword index, and maps strategy hits back to full
// voicing documents.
package search

import (
	"strings"

	"github.com/chordex/chordex/internal/strategy"
	"github.com/chordex/chordex/internal/voicing"
)

// Result is a ranked voicing with its full document.
type Result struct {
	Document *voicing.Document
	Score    float64
}

// Stats aggregates service and backend state.
type Stats struct {
	Documents   int
	KeywordDocs int
	Strategy    strategy.Stats
	Embedder    string
}

// embedText composes the text that stands in for a voicing when a
// semantic embedding has to be generated: name, tags, then prose.
func embedText(d *voicing.Document) string {
	parts := make([]string, 0, 4)
	if d.ChordName != "" {
		parts = append(parts, d.ChordName)
	}
	if len(d.AlternateNames) > 0 {
		parts = append(parts, strings.Join(d.AlternateNames, " "))
	}
	if len(d.SemanticTags) > 0 {
		parts = append(parts, strings.Join(d.SemanticTags, " "))
	}
	if d.Description != "" {
		parts = append(parts, d.Description)
	}
	return strings.Join(parts, ". ")
}
