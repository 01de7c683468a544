// Package keyword provides the lexical side of hybrid retrieval: a bleve
// BM25 index over chord names, tags, and descriptions. It complements the
// vector backends for queries where exact words matter more than meaning
// ("Cmaj7 drop 2", a specific alternate name).
package keyword

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/voicing"
)

// Hit is one lexical match.
type Hit struct {
	ID    string
	Score float64
}

// Field boosts: an exact chord-name hit outranks a description mention.
const (
	boostChordName = 3.0
	boostNames     = 2.0
	boostTags      = 2.0
	boostText      = 1.0
)

// indexedDoc is the bleve-side projection of a voicing document.
type indexedDoc struct {
	ChordName      string   `json:"chord_name"`
	AlternateNames []string `json:"alternate_names"`
	Tags           []string `json:"tags"`
	PossibleKeys   []string `json:"possible_keys"`
	CAGEDShape     string   `json:"caged_shape"`
	Description    string   `json:"description"`
}

func project(d *voicing.Document) indexedDoc {
	return indexedDoc{
		ChordName:      d.ChordName,
		AlternateNames: d.AlternateNames,
		Tags:           d.SemanticTags,
		PossibleKeys:   d.PossibleKeys,
		CAGEDShape:     d.CAGEDShape,
		Description:    d.Description,
	}
}

// Index is a thread-safe lexical index over voicing documents.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// New opens or creates an index at path. An empty path builds an
// in-memory index. An unreadable on-disk index is cleared and recreated:
// it is derived data, reindexing rebuilds it.
func New(path string) (*Index, error) {
	im := buildMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, cherr.Wrap(cherr.ErrCodeIndexWriteFailed, mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, im)
		} else if err != nil {
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, cherr.Wrap(cherr.ErrCodeIndexWriteFailed, rmErr)
			}
			idx, err = bleve.New(path, im)
		}
	}
	if err != nil {
		return nil, cherr.Wrap(cherr.ErrCodeIndexWriteFailed, err)
	}

	return &Index{index: idx, path: path}, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	text := bleve.NewTextFieldMapping()
	doc := bleve.NewDocumentMapping()
	for _, field := range []string{
		"chord_name", "alternate_names", "tags",
		"possible_keys", "caged_shape", "description",
	} {
		doc.AddFieldMappingsAt(field, text)
	}
	im.DefaultMapping = doc
	return im
}

// Add indexes the documents in one batch, replacing existing entries with
// the same ID.
func (ix *Index) Add(ctx context.Context, docs []voicing.Document) error {
	if len(docs) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return cherr.New(cherr.ErrCodeAlreadyClosed, "keyword index is closed", nil)
	}

	batch := ix.index.NewBatch()
	for i := range docs {
		if err := batch.Index(docs[i].ID, project(&docs[i])); err != nil {
			return cherr.Wrap(cherr.ErrCodeIndexWriteFailed, err).WithDetail("id", docs[i].ID)
		}
	}
	if err := ix.index.Batch(batch); err != nil {
		return cherr.Wrap(cherr.ErrCodeIndexWriteFailed, err)
	}
	return nil
}

// Search returns the top BM25 hits for the query text. Empty queries
// return no hits.
func (ix *Index) Search(ctx context.Context, queryStr string, limit int) ([]Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, cherr.New(cherr.ErrCodeAlreadyClosed, "keyword index is closed", nil)
	}
	if strings.TrimSpace(queryStr) == "" || limit <= 0 {
		return []Hit{}, nil
	}

	req := bleve.NewSearchRequest(fieldDisjunction(queryStr))
	req.Size = limit

	result, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, cherr.Wrap(cherr.ErrCodeSearchFailed, err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, Hit{ID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// fieldDisjunction matches the query against every searchable field with
// per-field boosts.
func fieldDisjunction(queryStr string) query.Query {
	fields := []struct {
		name  string
		boost float64
	}{
		{"chord_name", boostChordName},
		{"alternate_names", boostNames},
		{"tags", boostTags},
		{"possible_keys", boostText},
		{"caged_shape", boostText},
		{"description", boostText},
	}

	parts := make([]query.Query, 0, len(fields))
	for _, f := range fields {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(f.name)
		mq.SetBoost(f.boost)
		parts = append(parts, mq)
	}
	return bleve.NewDisjunctionQuery(parts...)
}

// Count returns the number of indexed documents.
func (ix *Index) Count() (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return 0, cherr.New(cherr.ErrCodeAlreadyClosed, "keyword index is closed", nil)
	}
	n, err := ix.index.DocCount()
	if err != nil {
		return 0, cherr.Wrap(cherr.ErrCodeInternal, err)
	}
	return int(n), nil
}

// Close releases the index. Idempotent.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.index.Close()
}
