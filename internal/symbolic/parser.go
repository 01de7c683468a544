package symbolic

import (
	"sort"
	"strings"
	"unicode"
)

// Parser extracts symbolic tag-bit indices from free-text queries.
type Parser struct {
	registry *Registry

	// phraseList caches registry phrases sorted longest-first so greedy
	// scanning prefers "drop two voicing" over "drop two".
	phraseList []phraseEntry
}

type phraseEntry struct {
	text string
	bit  int
}

// NewParser creates a parser over the given registry.
func NewParser(registry *Registry) *Parser {
	p := &Parser{registry: registry}
	for text, bit := range registry.Phrases() {
		p.phraseList = append(p.phraseList, phraseEntry{text: text, bit: bit})
	}
	sort.Slice(p.phraseList, func(i, j int) bool {
		if len(p.phraseList[i].text) != len(p.phraseList[j].text) {
			return len(p.phraseList[i].text) > len(p.phraseList[j].text)
		}
		return p.phraseList[i].text < p.phraseList[j].text
	})
	return p
}

// Parse maps a free-text query to the de-duplicated set of symbolic bit
// indices it mentions. Empty or whitespace-only input yields an empty set.
// Matching is two-phase: known multi-word phrases first (exact and
// hyphen/space-normalized), then individual tokens.
func (p *Parser) Parse(query string) []int {
	normalized := normalizeTag(query)
	if normalized == "" {
		return []int{}
	}

	seen := make(map[int]bool)
	var bits []int
	add := func(bit int) {
		if !seen[bit] {
			seen[bit] = true
			bits = append(bits, bit)
		}
	}

	// Phase 1: phrase scan over the normalized query.
	for _, ph := range p.phraseList {
		if containsPhrase(normalized, ph.text) {
			add(ph.bit)
		}
	}

	// Phase 2: token matching.
	for _, token := range splitTokens(normalized) {
		if bit, ok := p.registry.TokenBit(token); ok {
			add(bit)
		}
	}

	if bits == nil {
		return []int{}
	}
	sort.Ints(bits)
	return bits
}

// containsPhrase reports whether phrase occurs in text on word boundaries.
func containsPhrase(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || text[start-1] == ' '
		afterOK := end == len(text) || text[end] == ' '
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

// splitTokens splits on whitespace and punctuation.
func splitTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
