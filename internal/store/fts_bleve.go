package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// BleveFTS implements FTSStore on bleve's scorch engine. Alternative
// backend for setups where a single-process index file is preferable to
// SQLite WAL.
type BleveFTS struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

// Verify interface implementation at compile time.
var _ FTSStore = (*BleveFTS)(nil)

// bleveDoc is the indexed document shape.
type bleveDoc struct {
	Text string `json:"text"`
	Path string `json:"path"`
}

func bleveMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()
	textField.Store = false

	pathField := bleve.NewKeywordFieldMapping()
	pathField.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("text", textField)
	doc.AddFieldMappingsAt("path", pathField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// NewBleveFTS opens (or creates) a bleve index at path. An empty path
// creates an in-memory index for tests.
func NewBleveFTS(path string) (*BleveFTS, error) {
	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(bleveMapping())
	} else if _, statErr := os.Stat(path); statErr == nil {
		idx, err = bleve.Open(path)
		if err != nil {
			// Corrupt index: clear and recreate, the caller reindexes.
			_ = os.RemoveAll(path)
			idx, err = bleve.New(path, bleveMapping())
		}
	} else {
		idx, err = bleve.New(path, bleveMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index: %w", err)
	}
	return &BleveFTS{index: idx}, nil
}

// AddChunks indexes records in one batch.
func (s *BleveFTS) AddChunks(ctx context.Context, records []*ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	batch := s.index.NewBatch()
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(r.ID, bleveDoc{Text: expandForIndex(r.Text), Path: r.Path}); err != nil {
			return err
		}
	}
	return s.index.Batch(batch)
}

// RemoveByPath deletes every chunk whose stored path matches.
func (s *BleveFTS) RemoveByPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	term := query.NewTermQuery(path)
	term.SetField("path")
	req := bleve.NewSearchRequest(term)
	req.Size = 10000
	res, err := s.index.Search(req)
	if err != nil {
		return err
	}

	batch := s.index.NewBatch()
	for _, hit := range res.Hits {
		batch.Delete(hit.ID)
	}
	return s.index.Batch(batch)
}

// RemoveByIDs deletes chunks by id.
func (s *BleveFTS) RemoveByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return s.index.Batch(batch)
}

// Search returns the top-k hits by bleve's tf-idf/BM25 scoring.
func (s *BleveFTS) Search(ctx context.Context, q string, k int) ([]*FTSResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	tokens := TokenizeQuery(q)
	if len(tokens) == 0 {
		return []*FTSResult{}, nil
	}

	match := bleve.NewMatchQuery(strings.Join(tokens, " "))
	match.SetField("text")
	req := bleve.NewSearchRequestOptions(match, k, 0, false)
	req.Fields = []string{"path"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	results := make([]*FTSResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := &FTSResult{ID: hit.ID, Score: hit.Score}
		if p, ok := hit.Fields["path"].(string); ok {
			r.Path = p
		}
		results = append(results, r)
	}
	return results, nil
}

// Stats returns the document count.
func (s *BleveFTS) Stats() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}
	n, err := s.index.DocCount()
	return int(n), err
}

// Close closes the index.
func (s *BleveFTS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.index.Close()
}
