package search

import (
	"sort"

	"github.com/chordex/chordex/internal/keyword"
	"github.com/chordex/chordex/internal/strategy"
)

// DefaultRRFConstant is the reciprocal-rank-fusion smoothing parameter.
// k=60 is the empirically standard value.
const DefaultRRFConstant = 60

// Weights splits the fused score between the semantic and lexical lists.
type Weights struct {
	Semantic float64
	Lexical  float64
}

// DefaultWeights favors semantic ranking with a lexical assist.
var DefaultWeights = Weights{Semantic: 0.7, Lexical: 0.3}

// fusedHit is one document after rank fusion.
type fusedHit struct {
	id       string
	score    float64
	semRank  int // 1-indexed, 0 when absent
	lexRank  int
	semScore float64
	lexScore float64
	both     bool
}

// fuseRRF merges the two ranked lists: score(d) = Σ weight_i / (k + rank_i),
// with documents missing from a list contributing at rank max(len)+1.
// Output is sorted by fused score, ties preferring documents present in
// both lists, then higher lexical score, then ID. Scores are normalized
// so the top hit is 1.0.
func fuseRRF(k int, weights Weights, sem []strategy.Result, lex []keyword.Hit) []fusedHit {
	if len(sem) == 0 && len(lex) == 0 {
		return []fusedHit{}
	}
	if k <= 0 {
		k = DefaultRRFConstant
	}

	hits := make(map[string]*fusedHit, len(sem)+len(lex))
	get := func(id string) *fusedHit {
		if h, ok := hits[id]; ok {
			return h
		}
		h := &fusedHit{id: id}
		hits[id] = h
		return h
	}

	for rank, r := range sem {
		h := get(r.ID)
		h.semRank = rank + 1
		h.semScore = r.Score
		h.score += weights.Semantic / float64(k+rank+1)
	}
	for rank, r := range lex {
		h := get(r.ID)
		h.lexRank = rank + 1
		h.lexScore = r.Score
		h.score += weights.Lexical / float64(k+rank+1)
		h.both = h.semRank > 0
	}

	missing := max(len(sem), len(lex)) + 1
	for _, h := range hits {
		if h.semRank == 0 {
			h.score += weights.Semantic / float64(k+missing)
		}
		if h.lexRank == 0 {
			h.score += weights.Lexical / float64(k+missing)
		}
	}

	out := make([]fusedHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].both != out[j].both {
			return out[i].both
		}
		if out[i].lexScore != out[j].lexScore {
			return out[i].lexScore > out[j].lexScore
		}
		return out[i].id < out[j].id
	})

	if top := out[0].score; top > 0 {
		for i := range out {
			out[i].score /= top
		}
	}
	return out
}
