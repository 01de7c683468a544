package strategy

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/filter"
	"github.com/chordex/chordex/internal/voicing"
)

// scanChunkSize is the number of rows each scan task scores before the
// next context check.
const scanChunkSize = 512

// vectorSpace is one contiguous row-major matrix with precomputed row norms.
type vectorSpace struct {
	matrix []float64
	norms  []float64
	dims   int
	rows   int
}

func (s vectorSpace) row(i int) []float64 {
	return s.matrix[i*s.dims : (i+1)*s.dims]
}

// corpus is the host-side backing store shared by all strategies: the
// primary musical-feature matrix, an optional text-embedding matrix, and
// the metadata records used by the filter predicate.
type corpus struct {
	ids     []string
	index   map[string]int
	records []voicing.Embedding

	primary vectorSpace
	text    vectorSpace // rows == 0 when absent

	// symbolicOffset is the start of the symbolic tag block within a
	// primary row, or -1 when the embedding carries no symbolic block.
	symbolicOffset int
}

// newCorpus copies the voicing vectors into contiguous storage and
// precomputes row norms. Every vector must share one dimensionality and
// every ID must be unique; violations are hard errors, never silently
// repaired.
func newCorpus(voicings []voicing.Embedding, symbolicBlock int) (*corpus, error) {
	c := &corpus{
		index:          make(map[string]int, len(voicings)),
		symbolicOffset: -1,
	}
	if len(voicings) == 0 {
		return c, nil
	}

	dims := len(voicings[0].Vector)
	if dims == 0 {
		return nil, cherr.New(cherr.ErrCodeInvalidInput, "voicing has an empty feature vector", nil).
			WithDetail("id", voicings[0].ID)
	}

	c.ids = make([]string, len(voicings))
	c.records = make([]voicing.Embedding, len(voicings))
	c.primary = vectorSpace{
		matrix: make([]float64, len(voicings)*dims),
		norms:  make([]float64, len(voicings)),
		dims:   dims,
		rows:   len(voicings),
	}

	textDims := len(voicings[0].TextVector)
	haveText := textDims > 0

	for i := range voicings {
		v := &voicings[i]
		if len(v.Vector) != dims {
			return nil, cherr.DimensionMismatch(dims, len(v.Vector)).WithDetail("id", v.ID)
		}
		if _, dup := c.index[v.ID]; dup {
			return nil, cherr.New(cherr.ErrCodeInvalidInput, "duplicate voicing id in corpus", nil).
				WithDetail("id", v.ID)
		}
		c.ids[i] = v.ID
		c.index[v.ID] = i
		c.records[i] = *v

		copy(c.primary.row(i), v.Vector)
		c.primary.norms[i] = l2Norm(v.Vector)

		if haveText && len(v.TextVector) != textDims {
			haveText = false
		}
	}

	// The text matrix exists only when every record carries a consistent
	// text embedding; a partial set would rank incomparable scores.
	if haveText {
		c.text = vectorSpace{
			matrix: make([]float64, len(voicings)*textDims),
			norms:  make([]float64, len(voicings)),
			dims:   textDims,
			rows:   len(voicings),
		}
		for i := range voicings {
			copy(c.text.row(i), voicings[i].TextVector)
			c.text.norms[i] = l2Norm(voicings[i].TextVector)
		}
	} else if textDims > 0 {
		slog.Debug("text_matrix_skipped",
			slog.String("reason", "inconsistent text vector coverage"))
	}

	if symbolicBlock > 0 && dims > symbolicBlock {
		c.symbolicOffset = dims - symbolicBlock
	}

	return c, nil
}

func (c *corpus) size() int { return len(c.ids) }

func (c *corpus) memoryBytes() int64 {
	total := voicing.EstimateBytes(c.primary.rows, c.primary.dims)
	total += voicing.EstimateBytes(c.text.rows, c.text.dims)
	return total
}

// rankSpace selects the matrix a query ranks against by dimensionality.
// The text space is preferred when the query fits it; otherwise the
// primary space must fit exactly. A query fitting neither is a hard
// dimension-mismatch error, never a truncation.
func (c *corpus) rankSpace(queryDims int) (vectorSpace, error) {
	if c.text.rows > 0 && queryDims == c.text.dims {
		return c.text, nil
	}
	if queryDims == c.primary.dims {
		return c.primary, nil
	}
	return vectorSpace{}, cherr.DimensionMismatch(c.primary.dims, queryDims)
}

// symbolicSet reports whether the given tag bit is set (component above
// the activation threshold) in the primary vector for row.
func (c *corpus) symbolicSet(row, bit int) bool {
	if c.symbolicOffset < 0 || bit < 0 {
		return false
	}
	pos := c.symbolicOffset + bit
	if pos >= c.primary.dims {
		return false
	}
	return c.primary.matrix[row*c.primary.dims+pos] > symbolicActivation
}

// symbolicActivation is the threshold above which a symbolic component
// counts as a set bit.
const symbolicActivation = 0.5

// symbolicBoostFactor is the multiplicative score boost per matched bit.
const symbolicBoostFactor = 1.2

// boostScore applies the symbolic boost for every requested bit set on
// row, capping the result at 1.0 so boosted scores stay comparable with
// plain cosine scores.
func (c *corpus) boostScore(score float64, row int, bits []int) float64 {
	if len(bits) == 0 || c.symbolicOffset < 0 {
		return score
	}
	for _, bit := range bits {
		if c.symbolicSet(row, bit) {
			score *= symbolicBoostFactor
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// filterRows returns the indices of records matching the filter predicate,
// in row order. A nil or empty filter selects every row.
func (c *corpus) filterRows(ev *filter.Evaluator, filters *voicing.SearchFilters) []int {
	rows := make([]int, 0, len(c.records))
	for i := range c.records {
		if ev.Matches(&c.records[i], filters) {
			rows = append(rows, i)
		}
	}
	return rows
}

// parallelScores computes cosine scores for the given rows against query,
// fanning chunks out across workers. The rows slice may be nil to score
// the whole space. Scores are positionally parallel to rows (or to the
// space when rows is nil). Cancellation is observed between chunks.
func parallelScores(ctx context.Context, space vectorSpace, query []float64, rows []int, workers int) ([]float64, error) {
	total := space.rows
	if rows != nil {
		total = len(rows)
	}
	scores := make([]float64, total)
	if total == 0 {
		return scores, nil
	}

	queryNorm := l2Norm(query)

	g, gctx := errgroup.WithContext(ctx)
	if workers <= 0 {
		workers = defaultWorkers()
	}
	g.SetLimit(workers)

	for start := 0; start < total; start += scanChunkSize {
		start := start
		end := min(start+scanChunkSize, total)
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			for i := start; i < end; i++ {
				row := i
				if rows != nil {
					row = rows[i]
				}
				dot := dotProduct(query, space.row(row))
				scores[i] = cosineFromDot(dot, queryNorm, space.norms[row])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// serialScores is the single-goroutine equivalent of parallelScores.
func serialScores(ctx context.Context, space vectorSpace, query []float64, rows []int) ([]float64, error) {
	total := space.rows
	if rows != nil {
		total = len(rows)
	}
	scores := make([]float64, total)
	queryNorm := l2Norm(query)

	for i := 0; i < total; i++ {
		if i%scanChunkSize == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		row := i
		if rows != nil {
			row = rows[i]
		}
		dot := dotProduct(query, space.row(row))
		scores[i] = cosineFromDot(dot, queryNorm, space.norms[row])
	}
	return scores, nil
}

// rankResults sorts scored rows into descending results, excluding
// excludeRow (pass -1 to keep everything) and capping at limit. Ties
// break on ID so orderings are deterministic.
func (c *corpus) rankResults(rows []int, scores []float64, limit, excludeRow int) []Result {
	results := make([]Result, 0, len(scores))
	for i, score := range scores {
		row := i
		if rows != nil {
			row = rows[i]
		}
		if row == excludeRow {
			continue
		}
		results = append(results, Result{ID: c.ids[row], Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
