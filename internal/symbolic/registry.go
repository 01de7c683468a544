// Package symbolic maps free-text query terms to symbolic tag-bit indices.
// Symbolic tags are named boolean traits encoded at fixed bit positions
// within a reserved block of the voicing embedding; matches boost ranking
// scores during hybrid search but never act as hard filters.
package symbolic

import (
	"strings"
)

// DefaultBlockSize is the number of embedding dimensions reserved for
// symbolic tag bits at the tail of the musical-feature vector.
const DefaultBlockSize = 64

// Registry maps tag tokens and phrases to bit indices. It is constructed
// explicitly and passed to the parser and strategies; there is no global
// registry.
type Registry struct {
	tokens  map[string]int // single token -> bit index
	phrases map[string]int // normalized multi-word phrase -> bit index
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tokens:  make(map[string]int),
		phrases: make(map[string]int),
	}
}

// Register maps a tag name to a bit index. Multi-word names are matched as
// phrases (both space- and hyphen-separated forms); single words as tokens.
func (r *Registry) Register(name string, bit int) {
	normalized := normalizeTag(name)
	if normalized == "" || bit < 0 {
		return
	}
	if strings.Contains(normalized, " ") {
		r.phrases[normalized] = bit
		return
	}
	r.tokens[normalized] = bit
}

// TokenBit returns the bit index for a single token.
func (r *Registry) TokenBit(token string) (int, bool) {
	bit, ok := r.tokens[normalizeTag(token)]
	return bit, ok
}

// Phrases returns the normalized phrase table, longest phrases first so
// the scanner prefers the most specific match.
func (r *Registry) Phrases() map[string]int {
	return r.phrases
}

// Len returns the number of registered tags.
func (r *Registry) Len() int {
	return len(r.tokens) + len(r.phrases)
}

// normalizeTag lowercases and collapses hyphen/underscore separators to
// single spaces so "beginner-friendly" and "beginner friendly" coincide.
func normalizeTag(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

// DefaultRegistry returns the registry for the production symbolic block
// layout: the stable trait vocabulary produced by the upstream indexer.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for bit, name := range defaultTags {
		r.Register(name, bit)
	}
	return r
}

// defaultTags is the production trait vocabulary, ordered by bit index.
var defaultTags = []string{
	"beginner-friendly",
	"jazzy",
	"bluesy",
	"folk",
	"rock",
	"funk",
	"bossa",
	"warm",
	"bright",
	"dark",
	"open",
	"compact",
	"barre",
	"rootless",
	"shell",
	"drop-two",
	"drop-three",
	"spread",
	"cluster",
	"quartal",
	"quintal",
	"tertian",
	"slash",
	"power-chord",
	"guide-tone",
	"upper-structure",
	"altered",
	"suspended",
	"diminished",
	"augmented",
	"lush",
	"sparse",
}
