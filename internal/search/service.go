package search

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gaspardpetit/findx/internal/catalog"
	"github.com/gaspardpetit/findx/internal/embed"
	"github.com/gaspardpetit/findx/internal/store"
)

// SearchService answers the four query modes over findx's secondary
// store: keyword doc, keyword chunk, semantic chunk, and hybrid chunk.
// It owns no durable state beyond what the catalog already persists —
// the lexical indices and vector store are rebuildable projections of
// the documents/chunks/embeddings tables, and ReindexAll/RebuildVectorIndex
// are how that rebuild happens.
type SearchService struct {
	cat       *catalog.Catalog
	lexDocs   store.LexicalIndex
	lexChunks store.LexicalIndex
	vec       store.VectorStore
	embedder  embed.Embedder
}

// NewSearchService wires a SearchService from its four collaborators.
// embedder may be nil, in which case semantic search returns an empty
// slice and hybrid search returns keyword-only results.
func NewSearchService(cat *catalog.Catalog, lexDocs, lexChunks store.LexicalIndex, vec store.VectorStore, embedder embed.Embedder) *SearchService {
	return &SearchService{
		cat:       cat,
		lexDocs:   lexDocs,
		lexChunks: lexChunks,
		vec:       vec,
		embedder:  embedder,
	}
}

// ReindexAll purges both lexical indices and rebuilds them from every
// active file's documents/chunks rows, then rebuilds the vector index
// from the embeddings table if an embedder is configured. This is the
// full reindex_all operation from spec.md §4.8.
func (s *SearchService) ReindexAll(ctx context.Context) error {
	if err := s.reindexDocs(ctx); err != nil {
		return err
	}
	if err := s.reindexChunks(ctx); err != nil {
		return err
	}
	return s.RebuildVectorIndex(ctx)
}

func (s *SearchService) reindexDocs(ctx context.Context) error {
	docIDs, err := s.lexDocs.AllIDs()
	if err != nil {
		return fmt.Errorf("list existing doc ids: %w", err)
	}
	if err := s.lexDocs.Delete(ctx, docIDs); err != nil {
		return fmt.Errorf("purge doc lexical index: %w", err)
	}

	docs, err := s.cat.ListActiveDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list active documents: %w", err)
	}

	batch := make([]store.LexicalDoc, 0, len(docs))
	for _, d := range docs {
		bodyEN, bodyFR := routeByLang(d.Lang.String, string(d.ContentTxt))
		batch = append(batch, store.LexicalDoc{
			ID:     d.FileID,
			BodyEN: bodyEN,
			BodyFR: bodyFR,
			Fields: map[string]string{
				"path":     d.Realpath,
				"file_id":  d.FileID,
				"mtime_ns": strconv.FormatInt(d.MtimeNS, 10),
				"mime":     guessMime(d.Realpath),
				"size":     strconv.FormatInt(d.Size, 10),
			},
		})
	}
	return s.lexDocs.Index(ctx, batch)
}

func (s *SearchService) reindexChunks(ctx context.Context) error {
	chunkIDs, err := s.lexChunks.AllIDs()
	if err != nil {
		return fmt.Errorf("list existing chunk ids: %w", err)
	}
	if err := s.lexChunks.Delete(ctx, chunkIDs); err != nil {
		return fmt.Errorf("purge chunk lexical index: %w", err)
	}

	chunks, err := s.cat.ListActiveChunks(ctx)
	if err != nil {
		return fmt.Errorf("list active chunks: %w", err)
	}

	// Chunks don't carry their own lang; route by the owning document's
	// lang so a chunk lands in the same field(s) as its parent doc.
	docLangByFileID := make(map[string]string)
	docs, err := s.cat.ListActiveDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list active documents: %w", err)
	}
	for _, d := range docs {
		docLangByFileID[d.FileID] = d.Lang.String
	}

	batch := make([]store.LexicalDoc, 0, len(chunks))
	for _, ch := range chunks {
		bodyEN, bodyFR := routeByLang(docLangByFileID[ch.FileID], ch.Text)
		batch = append(batch, store.LexicalDoc{
			ID:     ch.ChunkID,
			BodyEN: bodyEN,
			BodyFR: bodyFR,
			Fields: map[string]string{
				"path":       ch.Realpath,
				"file_id":    ch.FileID,
				"start_byte": strconv.Itoa(ch.StartByte),
				"end_byte":   strconv.Itoa(ch.EndByte),
			},
		})
	}
	return s.lexChunks.Index(ctx, batch)
}

// RebuildVectorIndex loads every active embedding for ModelIDBuiltin
// from the catalog and adds it to the vector store, discarding whatever
// the store held before. Called when the CLI builds its SearchService and
// again by ReindexAll, since HNSWStore keeps no durable state of its own.
func (s *SearchService) RebuildVectorIndex(ctx context.Context) error {
	if s.embedder == nil || s.vec == nil {
		return nil
	}

	if err := s.vec.Delete(ctx, s.vec.AllIDs()); err != nil {
		return fmt.Errorf("purge vector store: %w", err)
	}

	embeddings, err := s.cat.ListActiveEmbeddingsForModel(ctx, ModelIDBuiltin)
	if err != nil {
		return fmt.Errorf("list active embeddings: %w", err)
	}
	if len(embeddings) == 0 {
		return nil
	}

	ids := make([]string, len(embeddings))
	vectors := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		ids[i] = e.ChunkID
		vectors[i] = e.Vec
	}
	return s.vec.Add(ctx, ids, vectors)
}

// routeByLang returns (bodyEN, bodyFR) for text given a documents.lang
// value: "en" indexes only body_en, "fr" only body_fr, anything else
// (including unset) indexes both, per spec.md §4.8.
func routeByLang(lang, text string) (bodyEN, bodyFR string) {
	switch lang {
	case "en":
		return text, ""
	case "fr":
		return "", text
	default:
		return text, text
	}
}

func guessMime(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// SearchDocs runs a keyword search against body_en OR body_fr with
// equal boost, returning up to limit results.
func (s *SearchService) SearchDocs(ctx context.Context, query string, limit int) ([]DocResult, error) {
	limit = normalizeLimit(limit)

	hits, err := s.lexDocs.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("doc keyword search: %w", err)
	}

	results := make([]DocResult, 0, len(hits))
	for _, h := range hits {
		mtimeNS, _ := strconv.ParseInt(h.Fields["mtime_ns"], 10, 64)
		results = append(results, DocResult{
			Path:   h.Fields["path"],
			Score:  h.Score,
			FileID: h.Fields["file_id"],
			Mtime:  time.Unix(0, mtimeNS),
		})
	}
	return results, nil
}

// SearchChunksKeyword runs a keyword search against chunk_text_en OR
// chunk_text_fr with equal boost, returning up to limit results.
func (s *SearchService) SearchChunksKeyword(ctx context.Context, query string, limit int) ([]ChunkResult, error) {
	limit = normalizeLimit(limit)

	hits, err := s.lexChunks.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("chunk keyword search: %w", err)
	}
	return chunkResultsFromLexicalHits(hits), nil
}

// SearchChunksSemantic embeds query and returns the K nearest chunk
// embeddings by cosine similarity. Returns an empty slice, not an
// error, if no embedder is configured.
func (s *SearchService) SearchChunksSemantic(ctx context.Context, query string, limit int) ([]ChunkResult, error) {
	limit = normalizeLimit(limit)

	if s.embedder == nil {
		return []ChunkResult{}, nil
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.vec.Search(ctx, queryVec, limit)
	if err != nil {
		return nil, fmt.Errorf("semantic chunk search: %w", err)
	}
	if len(hits) == 0 {
		return []ChunkResult{}, nil
	}

	return s.resolveVectorHits(ctx, hits)
}

// SearchChunksHybrid runs keyword-chunk and semantic-chunk independently
// and fuses them with unweighted Reciprocal Rank Fusion (k_rrf=60).
func (s *SearchService) SearchChunksHybrid(ctx context.Context, query string, limit int) ([]ChunkResult, error) {
	limit = normalizeLimit(limit)

	keyword, err := s.SearchChunksKeyword(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	semantic, err := s.SearchChunksSemantic(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	fused := FuseRRF(keyword, semantic, DefaultRRFConstant)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

func (s *SearchService) resolveVectorHits(ctx context.Context, hits []*store.VectorResult) ([]ChunkResult, error) {
	ids := make([]string, len(hits))
	scoreByID := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scoreByID[h.ID] = float64(h.Score)
	}

	chunks, err := s.cat.ListChunksByIDsWithFiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve semantic hits: %w", err)
	}

	byID := make(map[string]catalog.ChunkWithFile, len(chunks))
	for _, ch := range chunks {
		byID[ch.ChunkID] = ch
	}

	results := make([]ChunkResult, 0, len(hits))
	for _, h := range hits {
		ch, ok := byID[h.ID]
		if !ok {
			continue
		}
		results = append(results, ChunkResult{
			Path:      ch.Realpath,
			Score:     scoreByID[h.ID],
			ChunkID:   h.ID,
			StartByte: ch.StartByte,
			EndByte:   ch.EndByte,
		})
	}
	return results, nil
}

func chunkResultsFromLexicalHits(hits []store.LexicalResult) []ChunkResult {
	results := make([]ChunkResult, 0, len(hits))
	for _, h := range hits {
		startByte, _ := strconv.Atoi(h.Fields["start_byte"])
		endByte, _ := strconv.Atoi(h.Fields["end_byte"])
		results = append(results, ChunkResult{
			Path:      h.Fields["path"],
			Score:     h.Score,
			ChunkID:   h.ID,
			StartByte: startByte,
			EndByte:   endByte,
		})
	}
	return results
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// Close releases the lexical indices and vector store. The catalog and
// embedder are owned by the caller and are not closed here.
func (s *SearchService) Close() error {
	var firstErr error
	if err := s.lexDocs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.lexChunks.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.vec != nil {
		if err := s.vec.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
