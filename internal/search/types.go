// Package search implements SearchService: the four query modes findx
// exposes over the catalog's lexical and dense-vector indices — keyword
// doc, keyword chunk, semantic chunk, and hybrid chunk fused by
// Reciprocal Rank Fusion.
package search

import "time"

// ModelIDBuiltin is the model_id recorded against every embeddings row
// this build produces; semantic search only ever queries this model.
const ModelIDBuiltin = "builtin"

// DefaultRRFConstant is the k used by Reciprocal Rank Fusion, matching
// the value widely used across hybrid search implementations.
const DefaultRRFConstant = 60.0

// DefaultLimit is the result count used when a caller passes limit <= 0.
const DefaultLimit = 10

// DocResult is one hit from a doc-granularity keyword search.
type DocResult struct {
	Path   string
	Score  float64
	FileID string
	Mtime  time.Time
}

// ChunkResult is one hit from a chunk-granularity keyword, semantic, or
// hybrid search.
type ChunkResult struct {
	Path      string
	Score     float64
	ChunkID   string
	StartByte int
	EndByte   int
}
