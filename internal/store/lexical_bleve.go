package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/token/length"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// findxAnalyzerName names the custom analyzer built from stock bleve
// components: unicode word boundaries, lowercasing, and a length filter
// that drops the overlong tokens spec.md's tokenizer calls out (>= 40
// runes) — the same rule the sqlite backend applies as a pre-pass, here
// expressed as bleve's own building blocks instead.
const findxAnalyzerName = "findx_lexical"

// findxLengthFilterName is a length filter instance configured with the
// spec's cutoff, registered under the index mapping so findxAnalyzerName
// can reference it by name.
const findxLengthFilterName = "findx_length"

// BleveLexicalIndex implements LexicalIndex with a bleve v2 index, for
// deployments that want a standalone index directory instead of FTS5
// tables inside the catalog database.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

type bleveLexicalDoc struct {
	BodyEN string `json:"body_en"`
	BodyFR string `json:"body_fr"`
	Fields string `json:"fields"`
}

// NewBleveLexicalIndex creates or opens a bleve index at path. An empty
// path creates an in-memory index, used by tests.
func NewBleveLexicalIndex(path string, config LexicalConfig) (*BleveLexicalIndex, error) {
	if config.MaxTokenLength <= 0 {
		config = DefaultLexicalConfig()
	}

	indexMapping, err := buildLexicalMapping(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build lexical index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open lexical index: %w", err)
	}

	return &BleveLexicalIndex{index: idx, path: path}, nil
}

func buildLexicalMapping(config LexicalConfig) (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomTokenFilter(findxLengthFilterName, map[string]interface{}{
		"type": length.Name,
		"min":  0.0,
		"max":  float64(config.MaxTokenLength - 1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add length token filter: %w", err)
	}

	err = indexMapping.AddCustomAnalyzer(findxAnalyzerName, map[string]interface{}{
		"type":      "custom",
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			findxLengthFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	bodyMapping := bleve.NewTextFieldMapping()
	bodyMapping.Analyzer = findxAnalyzerName

	storedOnly := bleve.NewTextFieldMapping()
	storedOnly.Index = false
	storedOnly.Store = true
	storedOnly.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("body_en", bodyMapping)
	docMapping.AddFieldMappingsAt("body_fr", bodyMapping)
	docMapping.AddFieldMappingsAt("fields", storedOnly)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = findxAnalyzerName

	return indexMapping, nil
}

// Index adds or replaces documents.
func (b *BleveLexicalIndex) Index(ctx context.Context, docs []LexicalDoc) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		fieldsJSON, err := json.Marshal(doc.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields for %s: %w", doc.ID, err)
		}
		bdoc := bleveLexicalDoc{BodyEN: doc.BodyEN, BodyFR: doc.BodyFR, Fields: string(fieldsJSON)}
		if err := batch.Index(doc.ID, bdoc); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search matches query against body_en OR body_fr with equal boost via a
// disjunction query across the two fields.
func (b *BleveLexicalIndex) Search(ctx context.Context, queryStr string, limit int) ([]LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []LexicalResult{}, nil
	}

	enQuery := bleve.NewMatchQuery(queryStr)
	enQuery.SetField("body_en")
	frQuery := bleve.NewMatchQuery(queryStr)
	frQuery.SetField("body_fr")

	disjunction := bleve.NewDisjunctionQuery(enQuery, frQuery)

	searchRequest := bleve.NewSearchRequest(disjunction)
	searchRequest.Size = limit
	searchRequest.Fields = []string{"fields"}

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	results := make([]LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		var fields map[string]string
		if raw, ok := hit.Fields["fields"].(string); ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields for %s: %w", hit.ID, err)
			}
		}
		results = append(results, LexicalResult{ID: hit.ID, Score: hit.Score, Fields: fields})
	}
	return results, nil
}

// Delete removes documents from the index.
func (b *BleveLexicalIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// AllIDs returns all document IDs in the index.
func (b *BleveLexicalIndex) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	docCount, _ := b.index.DocCount()

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Stats returns index statistics.
func (b *BleveLexicalIndex) Stats() *IndexStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &IndexStats{}
	}

	docCount, _ := b.index.DocCount()
	return &IndexStats{DocumentCount: int(docCount)}
}

// Close closes the index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}
