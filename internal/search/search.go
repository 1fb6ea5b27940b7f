// Package search holds the BM25 fallback index used when term retrieval
// finds nothing. Memory-only; rebuilt from the chunk store at startup.
package search

import (
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/mperelman/chronicle/models"
)

// Fallback wraps a mem-only bleve index over chunk text.
type Fallback struct {
	mu    sync.RWMutex
	index bleve.Index
}

func NewFallback() (*Fallback, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Fallback{index: index}, nil
}

// Add indexes chunks by id. Re-adding an id overwrites the previous document.
func (f *Fallback) Add(chunks []models.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		if err := f.index.Index(c.ID, map[string]string{"text": c.Text}); err != nil {
			return err
		}
	}
	return nil
}

// Search returns up to k chunk ids ranked by BM25 relevance to q.
func (f *Fallback) Search(q string, k int) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := f.index.Search(req)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, hit.ID)
	}
	return out, nil
}

func (f *Fallback) Close() error {
	return f.index.Close()
}
