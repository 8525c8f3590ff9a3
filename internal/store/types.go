// Package store provides the lexical (keyword) and dense-vector index
// implementations consumed by internal/search. Durable state lives in
// internal/catalog; the indices here are rebuilt from it and are free to
// be dropped and recreated.
package store

import (
	"context"
	"fmt"
)

// LexicalDoc is a unit indexed by a LexicalIndex. BodyEN/BodyFR are the two
// parallel language fields queried with equal boost (documents whose
// language is unknown get the same text in both). Fields carries whatever
// stored, non-indexed metadata the caller needs back on a hit — "path",
// "file_id", "mtime_ns", "mime", "size" for the doc-granularity index,
// "path", "file_id", "start_byte", "end_byte" for the chunk-granularity
// index.
type LexicalDoc struct {
	ID     string
	BodyEN string
	BodyFR string
	Fields map[string]string
}

// LexicalResult is a single lexical search hit.
type LexicalResult struct {
	ID     string
	Score  float64
	Fields map[string]string
}

// IndexStats describes the size of a lexical index.
type IndexStats struct {
	DocumentCount int
}

// LexicalIndex provides keyword search over body_en/body_fr fields with
// equal boost across both. Two backends implement it: a sqlite one built
// on FTS5 virtual tables living inside the shared catalog database, and a
// bleve one for installations that want a standalone index directory.
type LexicalIndex interface {
	// Index adds or replaces documents in the index.
	Index(ctx context.Context, docs []LexicalDoc) error

	// Search returns documents matching query across BodyEN/BodyFR,
	// scored and ordered best-first, truncated to limit.
	Search(ctx context.Context, query string, limit int) ([]LexicalResult, error)

	// Delete removes documents by ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns every indexed ID, for reconciliation.
	AllIDs() ([]string, error)

	// Stats returns index statistics.
	Stats() *IndexStats

	Close() error
}

// LexicalConfig configures tokenization shared by both LexicalIndex
// backends: a simple tokenizer, lowercased, with overlong tokens dropped.
type LexicalConfig struct {
	// MaxTokenLength discards tokens at or above this length before
	// indexing or querying (spec calls for "remove-long >= 40").
	MaxTokenLength int
}

// DefaultLexicalConfig returns the tokenization defaults used by both
// backends.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{MaxTokenLength: 40}
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension, set from the active embedder.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean) (default: "cos")
	Metric string

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 20)
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   20,
	}
}

// VectorStore provides semantic search using HNSW algorithm. It holds no
// durable state of its own — the embeddings catalog table is the source
// of truth, and a VectorStore is rebuilt from it at startup.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds k nearest neighbors to query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all vector IDs in the store (for consistency checks)
	AllIDs() []string

	// Contains checks if ID exists.
	Contains(id string) bool

	// Count returns number of vectors.
	Count() int

	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (reindex with the current embedder)", e.Expected, e.Got)
}
